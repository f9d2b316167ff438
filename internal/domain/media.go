package domain

import "strings"

const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaAudio = "audio"
)

// Per-kind upload ceilings in bytes. Checked client-side before any
// network call and again server-side at target allocation.
const (
	MaxImageBytes = 10 << 20
	MaxVideoBytes = 20 << 20
	MaxAudioBytes = 12 << 20
)

type MediaDescriptor struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
	URL  string `json:"url,omitempty"`
}

func ValidMediaKind(kind string) bool {
	return kind == MediaImage || kind == MediaVideo || kind == MediaAudio
}

func MaxMediaBytes(kind string) int64 {
	switch kind {
	case MediaImage:
		return MaxImageBytes
	case MediaVideo:
		return MaxVideoBytes
	case MediaAudio:
		return MaxAudioBytes
	default:
		return 0
	}
}

// MIMEMatchesKind requires the content type's class to agree with the
// declared kind, e.g. video/mp4 for kind "video".
func MIMEMatchesKind(contentType, kind string) bool {
	return strings.HasPrefix(contentType, kind+"/")
}

// MediaGlyph is the one-character summary prefix used in conversation
// previews for media messages.
func MediaGlyph(kind string) string {
	switch kind {
	case MediaImage:
		return "📷"
	case MediaVideo:
		return "▶"
	case MediaAudio:
		return "🎤"
	default:
		return ""
	}
}
