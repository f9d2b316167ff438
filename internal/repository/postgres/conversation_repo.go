package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/courier/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (id, is_group, name, creator_id, last_message_text, last_message_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		conv.ID, conv.IsGroup, conv.Name, conv.CreatorID,
		conv.LastMessageText, conv.LastMessageAt, conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, is_group, name, creator_id, last_message_text, last_message_at, created_at, updated_at
		FROM conversations
		WHERE id = $1`
	var c domain.Conversation
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.IsGroup, &c.Name, &c.CreatorID,
		&c.LastMessageText, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &c, err
}

func (r *ConversationRepo) GetDirectBetween(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT c.id, c.is_group, c.name, c.creator_id, c.last_message_text, c.last_message_at, c.created_at, c.updated_at
		FROM conversations c
		JOIN memberships ma ON ma.conversation_id = c.id AND ma.user_id = $1
		JOIN memberships mb ON mb.conversation_id = c.id AND mb.user_id = $2
		WHERE c.is_group = FALSE`
	var c domain.Conversation
	err := r.pool.QueryRow(ctx, query, a, b).Scan(
		&c.ID, &c.IsGroup, &c.Name, &c.CreatorID,
		&c.LastMessageText, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &c, err
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	query := `
		SELECT c.id, c.is_group, c.name, c.creator_id, c.last_message_text, c.last_message_at, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = c.id AND NOT m.deleted AND m.sender_id <> $1
					AND (mm.last_read_at IS NULL OR m.created_at > mm.last_read_at)) AS unread_count,
			ou.id, ou.username, ou.display_name, ou.avatar_url
		FROM conversations c
		JOIN memberships mm ON mm.conversation_id = c.id AND mm.user_id = $1 AND NOT mm.is_deleted
		LEFT JOIN memberships om ON om.conversation_id = c.id AND om.user_id <> $1 AND NOT c.is_group
		LEFT JOIN users ou ON ou.id = om.user_id
		WHERE c.is_group OR NOT EXISTS (
			SELECT 1 FROM blocks b
			WHERE (b.blocker_id = $1 AND b.blocked_id = om.user_id)
				OR (b.blocker_id = om.user_id AND b.blocked_id = $1)
		)
		ORDER BY c.updated_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		var otherID *uuid.UUID
		var otherUsername, otherDisplayName *string
		var otherAvatar *string
		if err := rows.Scan(
			&c.ID, &c.IsGroup, &c.Name, &c.CreatorID,
			&c.LastMessageText, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
			&c.UnreadCount,
			&otherID, &otherUsername, &otherDisplayName, &otherAvatar,
		); err != nil {
			return nil, err
		}
		if otherID != nil {
			c.OtherUserID = *otherID
			c.OtherUserUsername = *otherUsername
			c.OtherUserDisplayName = *otherDisplayName
			c.OtherUserAvatarURL = otherAvatar
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r *ConversationRepo) SetLastMessage(ctx context.Context, id uuid.UUID, text string, at time.Time) error {
	query := `UPDATE conversations SET last_message_text = $1, last_message_at = $2, updated_at = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, query, text, at, id)
	return err
}

func (r *ConversationRepo) TouchUpdatedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE conversations SET updated_at = $1 WHERE id = $2`, at, id)
	return err
}

func (r *ConversationRepo) AddMember(ctx context.Context, member *domain.Membership) error {
	query := `
		INSERT INTO memberships (conversation_id, user_id, role, joined_at, last_read_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, FALSE)`
	_, err := r.pool.Exec(ctx, query,
		member.ConversationID, member.UserID, member.Role, member.JoinedAt, member.LastReadAt,
	)
	return err
}

func (r *ConversationRepo) GetMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Membership, error) {
	query := `
		SELECT conversation_id, user_id, role, joined_at, last_read_at, is_deleted
		FROM memberships
		WHERE conversation_id = $1 AND user_id = $2`
	var m domain.Membership
	err := r.pool.QueryRow(ctx, query, conversationID, userID).Scan(
		&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadAt, &m.IsDeleted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &m, err
}

func (r *ConversationRepo) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]domain.Membership, error) {
	query := `
		SELECT m.conversation_id, m.user_id, m.role, m.joined_at, m.last_read_at, m.is_deleted,
			u.username, u.display_name
		FROM memberships m
		JOIN users u ON m.user_id = u.id
		WHERE m.conversation_id = $1 AND NOT m.is_deleted
		ORDER BY m.joined_at ASC`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(
			&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastReadAt, &m.IsDeleted,
			&m.Username, &m.DisplayName,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *ConversationRepo) ListMemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM memberships WHERE conversation_id = $1`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ConversationRepo) SetMemberRole(ctx context.Context, conversationID, userID uuid.UUID, role string) error {
	query := `UPDATE memberships SET role = $1 WHERE conversation_id = $2 AND user_id = $3`
	_, err := r.pool.Exec(ctx, query, role, conversationID, userID)
	return err
}

func (r *ConversationRepo) SetMemberLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE memberships
		SET last_read_at = GREATEST(COALESCE(last_read_at, 'epoch'::timestamptz), $1)
		WHERE conversation_id = $2 AND user_id = $3`
	_, err := r.pool.Exec(ctx, query, at, conversationID, userID)
	return err
}

func (r *ConversationRepo) SetMemberHidden(ctx context.Context, conversationID, userID uuid.UUID, hidden bool) error {
	query := `UPDATE memberships SET is_deleted = $1 WHERE conversation_id = $2 AND user_id = $3`
	_, err := r.pool.Exec(ctx, query, hidden, conversationID, userID)
	return err
}
