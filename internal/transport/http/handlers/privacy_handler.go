package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/internal/transport/http/middleware"
	"github.com/vedran77/courier/pkg/logger"
)

type PrivacyHandler struct {
	privacyService *service.PrivacyService
}

func NewPrivacyHandler(privacyService *service.PrivacyService) *PrivacyHandler {
	return &PrivacyHandler{privacyService: privacyService}
}

func (h *PrivacyHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	settings, err := h.privacyService.Get(r.Context(), userID)
	if err != nil {
		logger.Log.Error("get privacy settings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func (h *PrivacyHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.UpdatePrivacyInput
	if !decodeJSON(w, r, &input) {
		return
	}

	settings, err := h.privacyService.Update(r.Context(), userID, input)
	if err != nil {
		if errors.Is(err, service.ErrBadVisibility) {
			writeError(w, http.StatusBadRequest, "INVALID_VISIBILITY", "Visibility must be everyone or nobody")
		} else {
			logger.Log.Error("update privacy settings failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func (h *PrivacyHandler) ToggleBlock(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	targetID, err := uuid.Parse(r.PathValue("uid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	resp, err := h.privacyService.ToggleBlock(r.Context(), userID, targetID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCannotBlockSelf):
			writeError(w, http.StatusBadRequest, "CANNOT_BLOCK_SELF", "Cannot block yourself")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		default:
			logger.Log.Error("toggle block failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *PrivacyHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	blocks, err := h.privacyService.ListBlocked(r.Context(), userID)
	if err != nil {
		logger.Log.Error("list blocked users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, blocks)
}
