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

// PresenceHandler is the HTTP fallback for clients without a websocket;
// connected clients drive the same state through ws events.
type PresenceHandler struct {
	presenceService *service.PresenceService
}

func NewPresenceHandler(presenceService *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.presenceService.Heartbeat(r.Context(), userID); err != nil {
		logger.Log.Error("heartbeat failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PresenceHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input service.SetTypingInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.presenceService.SetTyping(r.Context(), userID, convID, input.Typing); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		} else {
			logger.Log.Error("set typing failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PresenceHandler) GetTyping(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	typing, err := h.presenceService.TypingIn(r.Context(), userID, convID)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		} else {
			logger.Log.Error("get typing failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string][]uuid.UUID{"typing": typing})
}
