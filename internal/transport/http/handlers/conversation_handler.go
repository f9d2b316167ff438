package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/internal/transport/http/middleware"
	"github.com/vedran77/courier/pkg/logger"
	"github.com/vedran77/courier/pkg/validator"
)

type ConversationHandler struct {
	convService *service.ConversationService
}

func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	conv, err := h.convService.GetOrCreateDirect(r.Context(), userID, input.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCannotMessageSelf):
			writeError(w, http.StatusBadRequest, "CANNOT_MESSAGE_SELF", "Cannot start a conversation with yourself")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		case errors.Is(err, service.ErrMessagingRestricted):
			writeError(w, http.StatusForbidden, "MESSAGING_RESTRICTED", "This user cannot be messaged")
		default:
			logger.Log.Error("get or create direct conversation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateGroupInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if errs := validator.ValidateGroup(input.Name, len(input.MemberIDs)); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	conv, err := h.convService.CreateGroup(r.Context(), userID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNameRequired), errors.Is(err, service.ErrGroupMembersRequired):
			writeError(w, http.StatusBadRequest, "INVALID_GROUP", "A group needs a name and at least one other member")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "One of the members does not exist")
		default:
			logger.Log.Error("create group failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	convs, err := h.convService.List(r.Context(), userID)
	if err != nil {
		logger.Log.Error("list conversations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	conv, err := h.convService.Get(r.Context(), userID, convID)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		} else {
			logger.Log.Error("get conversation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Hide removes the conversation from the caller's list without touching
// history or other members.
func (h *ConversationHandler) Hide(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	if err := h.convService.HideForCaller(r.Context(), userID, convID); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		} else {
			logger.Log.Error("hide conversation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	members, err := h.convService.ListMembers(r.Context(), userID, convID)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		} else {
			logger.Log.Error("list members failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *ConversationHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input service.AddMembersInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.convService.AddMembers(r.Context(), userID, convID, input); err != nil {
		switch {
		case errors.Is(err, service.ErrConversationNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		case errors.Is(err, service.ErrNotGroup):
			writeError(w, http.StatusBadRequest, "NOT_GROUP", "Members can only be added to group conversations")
		case errors.Is(err, service.ErrRoleInsufficient):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Only owners and admins can add members")
		case errors.Is(err, service.ErrGroupMembersRequired):
			writeError(w, http.StatusBadRequest, "MISSING_USER_IDS", "user_ids is required")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "One of the users does not exist")
		case errors.Is(err, service.ErrAlreadyMember):
			writeError(w, http.StatusConflict, "ALREADY_MEMBER", "User is already a member")
		default:
			logger.Log.Error("add members failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}
	targetID, err := uuid.Parse(r.PathValue("uid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	if err := h.convService.RemoveMember(r.Context(), userID, convID, targetID); err != nil {
		switch {
		case errors.Is(err, service.ErrConversationNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		case errors.Is(err, service.ErrNotGroup):
			writeError(w, http.StatusBadRequest, "NOT_GROUP", "Members can only be removed from group conversations")
		case errors.Is(err, service.ErrMemberNotFound):
			writeError(w, http.StatusNotFound, "MEMBER_NOT_FOUND", "Member not found")
		case errors.Is(err, service.ErrRoleInsufficient):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Your role does not permit removing this member")
		default:
			logger.Log.Error("remove member failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}
	targetID, err := uuid.Parse(r.PathValue("uid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	var input service.SetRoleInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.convService.SetRole(r.Context(), userID, convID, targetID, input); err != nil {
		switch {
		case errors.Is(err, service.ErrConversationNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		case errors.Is(err, service.ErrNotGroup):
			writeError(w, http.StatusBadRequest, "NOT_GROUP", "Roles only exist in group conversations")
		case errors.Is(err, service.ErrRoleInsufficient):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the owner can change roles")
		case errors.Is(err, service.ErrOwnerRole):
			writeError(w, http.StatusForbidden, "OWNER_ROLE", "The owner role cannot be granted or taken")
		case errors.Is(err, service.ErrBadRole):
			writeError(w, http.StatusBadRequest, "INVALID_ROLE", "Role must be admin or member")
		case errors.Is(err, service.ErrMemberNotFound):
			writeError(w, http.StatusNotFound, "MEMBER_NOT_FOUND", "Member not found")
		default:
			logger.Log.Error("set role failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkRead advances the caller's read mark; unread counts reset as a
// consequence.
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	if err := h.convService.MarkRead(r.Context(), userID, convID); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		} else {
			logger.Log.Error("mark read failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
