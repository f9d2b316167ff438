package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	VisibilityEveryone = "everyone"
	VisibilityNobody   = "nobody"
)

type PrivacySettings struct {
	UserID             uuid.UUID `json:"user_id"`
	ReadReceipts       bool      `json:"read_receipts"`
	LastSeenVisibility string    `json:"last_seen_visibility"`
	WhoCanMessage      string    `json:"who_can_message"`
	E2EEEnabled        bool      `json:"e2ee_enabled"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultPrivacySettings returns the settings every user starts with:
// everything permissive, receipts on.
func DefaultPrivacySettings(userID uuid.UUID) PrivacySettings {
	return PrivacySettings{
		UserID:             userID,
		ReadReceipts:       true,
		LastSeenVisibility: VisibilityEveryone,
		WhoCanMessage:      VisibilityEveryone,
	}
}

func ValidVisibility(v string) bool {
	return v == VisibilityEveryone || v == VisibilityNobody
}
