package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
)

// All Get* methods return (nil, nil) when the row does not exist; callers
// decide whether absence is an error.

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	UpsertBySubject(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetBySubject(ctx context.Context, subject string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Search(ctx context.Context, query string, excludeIDs []uuid.UUID, limit int) ([]domain.User, error)
}

type PrivacyRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.PrivacySettings, error)
	GetByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]domain.PrivacySettings, error)
	Upsert(ctx context.Context, settings *domain.PrivacySettings) error
}

type BlockRepository interface {
	Create(ctx context.Context, block *domain.Block) error
	Delete(ctx context.Context, blockerID, blockedID uuid.UUID) error
	Get(ctx context.Context, blockerID, blockedID uuid.UUID) (*domain.Block, error)
	// ExistsBetween reports whether either user blocks the other.
	ExistsBetween(ctx context.Context, a, b uuid.UUID) (bool, error)
	ListByBlocker(ctx context.Context, blockerID uuid.UUID) ([]domain.Block, error)
	// ListInvolving returns every block the user sits on either side of.
	ListInvolving(ctx context.Context, userID uuid.UUID) ([]domain.Block, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	// GetDirectBetween finds the non-group conversation whose member set is
	// exactly {a, b}, hidden memberships included.
	GetDirectBetween(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error)
	// ListByUser returns conversations the user holds a visible membership
	// in, newest activity first, with unread counts and direct-peer fields
	// populated. Direct conversations with a block in either direction are
	// omitted; they resurface when the block is lifted.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
	SetLastMessage(ctx context.Context, id uuid.UUID, text string, at time.Time) error
	TouchUpdatedAt(ctx context.Context, id uuid.UUID, at time.Time) error

	AddMember(ctx context.Context, member *domain.Membership) error
	// GetMember returns the row whether or not it is hidden; callers check
	// IsDeleted themselves.
	GetMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Membership, error)
	// ListMembers returns visible memberships with display fields joined.
	ListMembers(ctx context.Context, conversationID uuid.UUID) ([]domain.Membership, error)
	// ListMemberIDs returns every member id, hidden memberships included.
	ListMemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	SetMemberRole(ctx context.Context, conversationID, userID uuid.UUID, role string) error
	// SetMemberLastRead only ever advances the mark.
	SetMemberLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error
	SetMemberHidden(ctx context.Context, conversationID, userID uuid.UUID, hidden bool) error
}

type SearchParams struct {
	ConversationIDs []uuid.UUID
	Text            string
	MediaKind       string
	SenderID        *uuid.UUID
	From            *time.Time
	To              *time.Time
	Limit           int
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// ListByConversation returns up to limit messages strictly older than
	// before (all newest if nil), in chronological order.
	ListByConversation(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]domain.Message, error)
	UpdateBody(ctx context.Context, id uuid.UUID, body string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params SearchParams) ([]domain.Message, error)

	CreateEdit(ctx context.Context, edit *domain.MessageEdit) error
	ListEdits(ctx context.Context, messageID uuid.UUID) ([]domain.MessageEdit, error)

	AddReaction(ctx context.Context, reaction *domain.MessageReaction) error
	DeleteReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error
	GetReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.MessageReaction, error)
	ListReactionsByMessageIDs(ctx context.Context, messageIDs []uuid.UUID) ([]domain.MessageReaction, error)

	AddStar(ctx context.Context, star *domain.MessageStar) error
	DeleteStar(ctx context.Context, messageID, userID uuid.UUID) error
	GetStar(ctx context.Context, messageID, userID uuid.UUID) (*domain.MessageStar, error)
	ListStarredByUser(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) ([]domain.Message, error)
	ListStarredIDs(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error)
}
