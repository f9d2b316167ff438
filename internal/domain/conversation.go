package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// RoleRank orders roles for moderation checks. Higher outranks lower.
func RoleRank(role string) int {
	switch role {
	case RoleOwner:
		return 2
	case RoleAdmin:
		return 1
	default:
		return 0
	}
}

type Conversation struct {
	ID              uuid.UUID  `json:"id"`
	IsGroup         bool       `json:"is_group"`
	Name            *string    `json:"name,omitempty"`
	CreatorID       uuid.UUID  `json:"creator_id"`
	LastMessageText *string    `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	// Joined fields for list views
	UnreadCount          int       `json:"unread_count"`
	OtherUserID          uuid.UUID `json:"other_user_id,omitempty"`
	OtherUserUsername    string    `json:"other_username,omitempty"`
	OtherUserDisplayName string    `json:"other_display_name,omitempty"`
	OtherUserAvatarURL   *string   `json:"other_avatar_url,omitempty"`
	OtherUserOnline      bool      `json:"other_online,omitempty"`
}

type Membership struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Role           string     `json:"role"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	IsDeleted      bool       `json:"-"`
	// Joined fields
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}
