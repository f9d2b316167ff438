package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

type Message struct {
	ID             uuid.UUID        `json:"id"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	SenderID       uuid.UUID        `json:"sender_id"`
	Body           string           `json:"body"`
	Media          *MediaDescriptor `json:"media,omitempty"`
	ReplyToID      *uuid.UUID       `json:"reply_to_id,omitempty"`
	Deleted        bool             `json:"deleted"`
	EditedAt       *time.Time       `json:"edited_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	// Joined fields
	SenderUsername    string            `json:"sender_username,omitempty"`
	SenderDisplayName string            `json:"sender_display_name,omitempty"`
	EditCount         int               `json:"edit_count,omitempty"`
	Reactions         []MessageReaction `json:"reactions,omitempty"`
	Starred           bool              `json:"starred,omitempty"`
	Status            *MessageStatus    `json:"status,omitempty"`
}

// MessageStatus is derived at read time for the sender's own messages.
// SeenBy only ever names members whose receipts are enabled.
type MessageStatus struct {
	State  string   `json:"state"`
	SeenBy []string `json:"seen_by,omitempty"`
}

// MessageEdit records one body revision, append-only. The current body
// lives on the message; PreviousBody is what it replaced.
type MessageEdit struct {
	ID           uuid.UUID `json:"id"`
	MessageID    uuid.UUID `json:"message_id"`
	EditorID     uuid.UUID `json:"editor_id"`
	PreviousBody string    `json:"previous_body"`
	EditedAt     time.Time `json:"edited_at"`
}

type MessageReaction struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
	// Joined fields
	Username string `json:"username,omitempty"`
}

type MessageStar struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchHit is one global-search result with its conversation resolved
// to a displayable title.
type SearchHit struct {
	Message           Message `json:"message"`
	ConversationTitle string  `json:"conversation_title"`
}

const DeletedMessagePlaceholder = "This message was deleted"
