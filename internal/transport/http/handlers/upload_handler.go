package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocloud.dev/gcerrors"

	"github.com/vedran77/courier/internal/blob"
	"github.com/vedran77/courier/internal/transport/http/middleware"
	"github.com/vedran77/courier/pkg/logger"
)

// UploadHandler drives the two-step media flow: allocate a single-use
// target, PUT the bytes, then reference the ref from a message send.
type UploadHandler struct {
	targets *blob.Targets
	store   *blob.Store
}

func NewUploadHandler(targets *blob.Targets, store *blob.Store) *UploadHandler {
	return &UploadHandler{targets: targets, store: store}
}

func (h *UploadHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		Kind        string `json:"kind"`
		Size        int64  `json:"size"`
		ContentType string `json:"content_type"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	target, err := h.targets.Allocate(r.Context(), userID, input.Kind, input.Size, input.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrUnknownKind):
			writeError(w, http.StatusBadRequest, "INVALID_MEDIA_KIND", "Media kind must be image, video or audio")
		case errors.Is(err, blob.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the size limit for its kind")
		case errors.Is(err, blob.ErrBadContentType):
			writeError(w, http.StatusBadRequest, "INVALID_CONTENT_TYPE", "Content type does not match the media kind")
		default:
			logger.Log.Error("allocate upload failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusCreated, target)
}

// Receive spends the target whether or not the transfer succeeds, so a
// failed attempt means allocating again, not retrying the same URL.
func (h *UploadHandler) Receive(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid upload target ID")
		return
	}

	target, err := h.targets.Receive(r.Context(), targetID, r.Body)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrTargetGone):
			writeError(w, http.StatusGone, "GONE", "Upload target is unknown, used or expired")
		case errors.Is(err, blob.ErrSizeMismatch):
			writeError(w, http.StatusBadRequest, "SIZE_MISMATCH", "Uploaded bytes do not match the declared size")
		default:
			// Anything else came out of the bucket write.
			logger.Log.Error("receive upload failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "UPSTREAM", "Storage is temporarily unavailable")
		}
		return
	}

	writeJSON(w, http.StatusOK, target)
}

// Media streams a stored blob. Refs are unguessable, so membership in
// the conversation that owns the media is deliberately not re-checked
// here; authentication still is, by the surrounding middleware.
func (h *UploadHandler) Media(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid media ref")
		return
	}

	reader, contentType, err := h.store.Reader(r.Context(), ref)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Media not found")
		} else {
			logger.Log.Error("open media failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "UPSTREAM", "Storage is temporarily unavailable")
		}
		return
	}
	defer reader.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, reader); err != nil {
		logger.Log.Debug("media stream interrupted", zap.Error(err))
	}
}
