package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/internal/transport/http/middleware"
	"github.com/vedran77/courier/pkg/logger"
)

type UserHandler struct {
	identityService *service.IdentityService
}

func NewUserHandler(identityService *service.IdentityService) *UserHandler {
	return &UserHandler{identityService: identityService}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.identityService.Me(r.Context(), userID)
	if err != nil {
		logger.Log.Error("get current user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Search finds users to start conversations with. Blocked users, in
// either direction, never show up.
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	query := r.URL.Query().Get("q")
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	users, err := h.identityService.SearchUsers(r.Context(), userID, query, limit)
	if err != nil {
		logger.Log.Error("user search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, users)
}
