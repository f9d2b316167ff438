package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/repository"
)

const messageSelect = `
	SELECT m.id, m.conversation_id, m.sender_id, m.body, m.media_kind, m.media_ref,
		m.reply_to_id, m.deleted, m.edited_at, m.created_at, u.username, u.display_name,
		(SELECT COUNT(*) FROM message_edits e WHERE e.message_id = m.id) AS edit_count
	FROM messages m
	JOIN users u ON m.sender_id = u.id`

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, body, media_kind, media_ref, reply_to_id, deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`

	var kind, ref *string
	if msg.Media != nil {
		kind, ref = &msg.Media.Kind, &msg.Media.Ref
	}
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Body, kind, ref, msg.ReplyToID, msg.CreatedAt,
	)
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	row := r.pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]domain.Message, error) {
	var query string
	var args []any

	if before != nil {
		query = fmt.Sprintf(messageSelect+`
			WHERE m.conversation_id = $1 AND m.created_at < $2
			ORDER BY m.created_at DESC
			LIMIT %d`, limit)
		args = []any{conversationID, *before}
	} else {
		query = fmt.Sprintf(messageSelect+`
			WHERE m.conversation_id = $1
			ORDER BY m.created_at DESC
			LIMIT %d`, limit)
		args = []any{conversationID}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order (query returns DESC)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepo) UpdateBody(ctx context.Context, id uuid.UUID, body string, editedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE messages SET body = $1, edited_at = $2 WHERE id = $3`, body, editedAt, id)
	return err
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	// Tombstone: the row survives for reply integrity, the body does not.
	_, err := r.pool.Exec(ctx, `UPDATE messages SET deleted = TRUE, body = '' WHERE id = $1`, id)
	return err
}

func (r *MessageRepo) Search(ctx context.Context, params repository.SearchParams) ([]domain.Message, error) {
	conds := []string{"NOT m.deleted", "m.conversation_id = ANY($1)"}
	args := []any{params.ConversationIDs}

	if params.Text != "" {
		args = append(args, params.Text)
		conds = append(conds, fmt.Sprintf("m.body ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if params.MediaKind != "" {
		args = append(args, params.MediaKind)
		conds = append(conds, fmt.Sprintf("m.media_kind = $%d", len(args)))
	}
	if params.SenderID != nil {
		args = append(args, *params.SenderID)
		conds = append(conds, fmt.Sprintf("m.sender_id = $%d", len(args)))
	}
	if params.From != nil {
		args = append(args, *params.From)
		conds = append(conds, fmt.Sprintf("m.created_at >= $%d", len(args)))
	}
	if params.To != nil {
		args = append(args, *params.To)
		conds = append(conds, fmt.Sprintf("m.created_at <= $%d", len(args)))
	}

	query := fmt.Sprintf(messageSelect+`
		WHERE %s
		ORDER BY m.created_at DESC
		LIMIT %d`, strings.Join(conds, " AND "), params.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *MessageRepo) CreateEdit(ctx context.Context, edit *domain.MessageEdit) error {
	query := `
		INSERT INTO message_edits (id, message_id, editor_id, previous_body, edited_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, edit.ID, edit.MessageID, edit.EditorID, edit.PreviousBody, edit.EditedAt)
	return err
}

func (r *MessageRepo) ListEdits(ctx context.Context, messageID uuid.UUID) ([]domain.MessageEdit, error) {
	query := `
		SELECT id, message_id, editor_id, previous_body, edited_at
		FROM message_edits
		WHERE message_id = $1
		ORDER BY edited_at ASC`

	rows, err := r.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edits []domain.MessageEdit
	for rows.Next() {
		var e domain.MessageEdit
		if err := rows.Scan(&e.ID, &e.MessageID, &e.EditorID, &e.PreviousBody, &e.EditedAt); err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	return edits, rows.Err()
}

func (r *MessageRepo) AddReaction(ctx context.Context, reaction *domain.MessageReaction) error {
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt)
	return err
}

func (r *MessageRepo) DeleteReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	return err
}

func (r *MessageRepo) GetReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.MessageReaction, error) {
	query := `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1 AND user_id = $2 AND emoji = $3`
	var re domain.MessageReaction
	err := r.pool.QueryRow(ctx, query, messageID, userID, emoji).Scan(
		&re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &re, err
}

func (r *MessageRepo) ListReactionsByMessageIDs(ctx context.Context, messageIDs []uuid.UUID) ([]domain.MessageReaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT r.message_id, r.user_id, r.emoji, r.created_at, u.username
		FROM message_reactions r
		JOIN users u ON r.user_id = u.id
		WHERE r.message_id = ANY($1)
		ORDER BY r.created_at ASC`

	rows, err := r.pool.Query(ctx, query, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []domain.MessageReaction
	for rows.Next() {
		var re domain.MessageReaction
		if err := rows.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt, &re.Username); err != nil {
			return nil, err
		}
		reactions = append(reactions, re)
	}
	return reactions, rows.Err()
}

func (r *MessageRepo) AddStar(ctx context.Context, star *domain.MessageStar) error {
	query := `
		INSERT INTO message_stars (message_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, star.MessageID, star.UserID, star.CreatedAt)
	return err
}

func (r *MessageRepo) DeleteStar(ctx context.Context, messageID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_stars WHERE message_id = $1 AND user_id = $2`,
		messageID, userID,
	)
	return err
}

func (r *MessageRepo) GetStar(ctx context.Context, messageID, userID uuid.UUID) (*domain.MessageStar, error) {
	query := `
		SELECT message_id, user_id, created_at
		FROM message_stars
		WHERE message_id = $1 AND user_id = $2`
	var s domain.MessageStar
	err := r.pool.QueryRow(ctx, query, messageID, userID).Scan(&s.MessageID, &s.UserID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &s, err
}

func (r *MessageRepo) ListStarredByUser(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) ([]domain.Message, error) {
	var query string
	var args []any

	if conversationID != nil {
		query = messageSelect + `
			JOIN message_stars s ON s.message_id = m.id
			WHERE s.user_id = $1 AND m.conversation_id = $2
			ORDER BY s.created_at DESC`
		args = []any{userID, *conversationID}
	} else {
		query = messageSelect + `
			JOIN message_stars s ON s.message_id = m.id
			WHERE s.user_id = $1
			ORDER BY s.created_at DESC`
		args = []any{userID}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *MessageRepo) ListStarredIDs(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT message_id FROM message_stars WHERE user_id = $1 AND message_id = ANY($2)`,
		userID, messageIDs,
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

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	var kind, ref *string
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &kind, &ref,
		&msg.ReplyToID, &msg.Deleted, &msg.EditedAt, &msg.CreatedAt,
		&msg.SenderUsername, &msg.SenderDisplayName, &msg.EditCount,
	)
	if err != nil {
		return nil, err
	}
	if kind != nil && ref != nil {
		msg.Media = &domain.MediaDescriptor{Kind: *kind, Ref: *ref}
	}
	return &msg, nil
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}
