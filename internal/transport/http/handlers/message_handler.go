package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/internal/telemetry"
	"github.com/vedran77/courier/internal/transport/http/middleware"
	"github.com/vedran77/courier/pkg/logger"
)

type MessageHandler struct {
	messageService *service.MessageService
	metrics        *telemetry.Metrics
}

func NewMessageHandler(messageService *service.MessageService, metrics *telemetry.Metrics) *MessageHandler {
	return &MessageHandler{messageService: messageService, metrics: metrics}
}

// Send accepts both text and media messages. A media message carries a
// `media` object with the committed upload ref; its `body` is the caption.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input struct {
		Body      string     `json:"body"`
		ReplyToID *uuid.UUID `json:"reply_to_id"`
		Media     *struct {
			Kind string `json:"kind"`
			Ref  string `json:"ref"`
		} `json:"media"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	var (
		msg  *domain.Message
		kind = "text"
	)
	if input.Media != nil {
		kind = input.Media.Kind
		msg, err = h.messageService.SendMedia(r.Context(), userID, convID, service.SendMediaInput{
			Kind:      input.Media.Kind,
			Ref:       input.Media.Ref,
			Caption:   input.Body,
			ReplyToID: input.ReplyToID,
		})
	} else {
		msg, err = h.messageService.SendText(r.Context(), userID, convID, service.SendMessageInput{
			Body:      input.Body,
			ReplyToID: input.ReplyToID,
		})
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConversationNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		case errors.Is(err, service.ErrMessagingRestricted):
			writeError(w, http.StatusForbidden, "MESSAGING_RESTRICTED", "This user cannot be messaged")
		case errors.Is(err, service.ErrEmptyBody):
			writeError(w, http.StatusBadRequest, "EMPTY_BODY", "Message body is required")
		case errors.Is(err, service.ErrBadReplyTarget):
			writeError(w, http.StatusBadRequest, "INVALID_REPLY", "Reply target must be a message in this conversation")
		case errors.Is(err, service.ErrBadMediaKind):
			writeError(w, http.StatusBadRequest, "INVALID_MEDIA_KIND", "Media kind must be image, video or audio")
		case errors.Is(err, service.ErrMediaNotUploaded):
			writeError(w, http.StatusBadRequest, "MEDIA_NOT_UPLOADED", "Upload the file before sending")
		default:
			logger.Log.Error("send message failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.MessagesSent.WithLabelValues(kind).Inc()
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var before *time.Time
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		t, err := time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "before must be an RFC 3339 timestamp")
			return
		}
		before = &t
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, _ = strconv.Atoi(limitStr)
	}

	page, err := h.messageService.List(r.Context(), userID, convID, before, limit)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		} else {
			logger.Log.Error("list messages failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	q := r.URL.Query()

	input := service.SearchInput{
		Text:      q.Get("q"),
		MediaKind: q.Get("kind"),
	}
	if idStr := q.Get("conversation_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
			return
		}
		input.ConversationID = &id
	}
	if idStr := q.Get("sender_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid sender ID")
			return
		}
		input.SenderID = &id
	}
	if fromStr := q.Get("from"); fromStr != "" {
		t, err := time.Parse(time.RFC3339Nano, fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RANGE", "from must be an RFC 3339 timestamp")
			return
		}
		input.From = &t
	}
	if toStr := q.Get("to"); toStr != "" {
		t, err := time.Parse(time.RFC3339Nano, toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RANGE", "to must be an RFC 3339 timestamp")
			return
		}
		input.To = &t
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		input.Limit, _ = strconv.Atoi(limitStr)
	}

	hits, err := h.messageService.Search(r.Context(), userID, input)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		} else {
			logger.Log.Error("search messages failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, hits)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	var input service.EditMessageInput
	if !decodeJSON(w, r, &input) {
		return
	}

	msg, err := h.messageService.Edit(r.Context(), userID, messageID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
		case errors.Is(err, service.ErrNotMessageSender):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "You can only edit your own messages")
		case errors.Is(err, service.ErrMessageDeleted):
			writeError(w, http.StatusConflict, "MESSAGE_DELETED", "This message was deleted")
		case errors.Is(err, service.ErrEmptyBody):
			writeError(w, http.StatusBadRequest, "EMPTY_BODY", "Message body is required")
		default:
			logger.Log.Error("edit message failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	if err := h.messageService.Delete(r.Context(), userID, messageID); err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
		case errors.Is(err, service.ErrNotMessageSender):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "You can only delete your own messages")
		default:
			logger.Log.Error("delete message failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	var input service.ReactionInput
	if !decodeJSON(w, r, &input) {
		return
	}

	resp, err := h.messageService.ToggleReaction(r.Context(), userID, messageID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
		case errors.Is(err, service.ErrUnknownEmoji):
			writeError(w, http.StatusBadRequest, "INVALID_EMOJI", "Unsupported reaction emoji")
		case errors.Is(err, service.ErrMessageDeleted):
			writeError(w, http.StatusConflict, "MESSAGE_DELETED", "This message was deleted")
		default:
			logger.Log.Error("toggle reaction failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) ToggleStar(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	resp, err := h.messageService.ToggleStar(r.Context(), userID, messageID)
	if err != nil {
		if errors.Is(err, service.ErrMessageNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
		} else {
			logger.Log.Error("toggle star failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) ListStarred(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var convID *uuid.UUID
	if idStr := r.URL.Query().Get("conversation_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
			return
		}
		convID = &id
	}

	msgs, err := h.messageService.ListStarred(r.Context(), userID, convID)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Conversation not found")
		} else {
			logger.Log.Error("list starred failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	edits, err := h.messageService.EditHistory(r.Context(), userID, messageID)
	if err != nil {
		if errors.Is(err, service.ErrMessageNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
		} else {
			logger.Log.Error("edit history failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, edits)
}
