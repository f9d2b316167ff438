package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/repository"
)

type MessageRepo struct {
	store *Store
}

func NewMessageRepo(store *Store) *MessageRepo {
	return &MessageRepo{store: store}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	m := *msg
	if m.Media != nil {
		media := *m.Media
		m.Media = &media
	}
	r.store.messages[m.ID] = &m
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	m, ok := r.store.messages[id]
	if !ok {
		return nil, nil
	}
	out := r.decorate(m)
	return &out, nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]domain.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var messages []domain.Message
	for _, m := range r.store.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		messages = append(messages, r.decorate(m))
	}

	// Newest first, cut to limit, then chronological.
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.After(messages[j].CreatedAt) })
	if len(messages) > limit {
		messages = messages[:limit]
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepo) UpdateBody(ctx context.Context, id uuid.UUID, body string, editedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	m, ok := r.store.messages[id]
	if !ok {
		return fmt.Errorf("message %s not found", id)
	}
	m.Body = body
	t := editedAt
	m.EditedAt = &t
	return nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	m, ok := r.store.messages[id]
	if !ok {
		return fmt.Errorf("message %s not found", id)
	}
	m.Deleted = true
	m.Body = ""
	return nil
}

func (r *MessageRepo) Search(ctx context.Context, params repository.SearchParams) ([]domain.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	allowed := make(map[uuid.UUID]struct{}, len(params.ConversationIDs))
	for _, id := range params.ConversationIDs {
		allowed[id] = struct{}{}
	}
	text := strings.ToLower(params.Text)

	var messages []domain.Message
	for _, m := range r.store.messages {
		if m.Deleted {
			continue
		}
		if _, ok := allowed[m.ConversationID]; !ok {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(m.Body), text) {
			continue
		}
		if params.MediaKind != "" && (m.Media == nil || m.Media.Kind != params.MediaKind) {
			continue
		}
		if params.SenderID != nil && m.SenderID != *params.SenderID {
			continue
		}
		if params.From != nil && m.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && m.CreatedAt.After(*params.To) {
			continue
		}
		messages = append(messages, r.decorate(m))
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.After(messages[j].CreatedAt) })
	if len(messages) > params.Limit {
		messages = messages[:params.Limit]
	}
	return messages, nil
}

func (r *MessageRepo) CreateEdit(ctx context.Context, edit *domain.MessageEdit) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	e := *edit
	r.store.edits[e.MessageID] = append(r.store.edits[e.MessageID], &e)
	return nil
}

func (r *MessageRepo) ListEdits(ctx context.Context, messageID uuid.UUID) ([]domain.MessageEdit, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var edits []domain.MessageEdit
	for _, e := range r.store.edits[messageID] {
		edits = append(edits, *e)
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].EditedAt.Before(edits[j].EditedAt) })
	return edits, nil
}

func (r *MessageRepo) AddReaction(ctx context.Context, reaction *domain.MessageReaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := reactionKey{message: reaction.MessageID, user: reaction.UserID, emoji: reaction.Emoji}
	if _, exists := r.store.reactions[key]; exists {
		return nil
	}
	re := *reaction
	r.store.reactions[key] = &re
	return nil
}

func (r *MessageRepo) DeleteReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.reactions, reactionKey{message: messageID, user: userID, emoji: emoji})
	return nil
}

func (r *MessageRepo) GetReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.MessageReaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	re, ok := r.store.reactions[reactionKey{message: messageID, user: userID, emoji: emoji}]
	if !ok {
		return nil, nil
	}
	out := *re
	return &out, nil
}

func (r *MessageRepo) ListReactionsByMessageIDs(ctx context.Context, messageIDs []uuid.UUID) ([]domain.MessageReaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	wanted := make(map[uuid.UUID]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}

	var reactions []domain.MessageReaction
	for key, re := range r.store.reactions {
		if _, ok := wanted[key.message]; !ok {
			continue
		}
		out := *re
		out.Username, _ = r.store.usernameOf(key.user)
		reactions = append(reactions, out)
	}
	sort.Slice(reactions, func(i, j int) bool { return reactions[i].CreatedAt.Before(reactions[j].CreatedAt) })
	return reactions, nil
}

func (r *MessageRepo) AddStar(ctx context.Context, star *domain.MessageStar) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := starKey{message: star.MessageID, user: star.UserID}
	if _, exists := r.store.stars[key]; exists {
		return nil
	}
	s := *star
	r.store.stars[key] = &s
	return nil
}

func (r *MessageRepo) DeleteStar(ctx context.Context, messageID, userID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.stars, starKey{message: messageID, user: userID})
	return nil
}

func (r *MessageRepo) GetStar(ctx context.Context, messageID, userID uuid.UUID) (*domain.MessageStar, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.stars[starKey{message: messageID, user: userID}]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (r *MessageRepo) ListStarredByUser(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID) ([]domain.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	type starred struct {
		msg domain.Message
		at  time.Time
	}
	var hits []starred
	for key, s := range r.store.stars {
		if key.user != userID {
			continue
		}
		m, ok := r.store.messages[key.message]
		if !ok {
			continue
		}
		if conversationID != nil && m.ConversationID != *conversationID {
			continue
		}
		hits = append(hits, starred{msg: r.decorate(m), at: s.CreatedAt})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].at.After(hits[j].at) })
	var messages []domain.Message
	for _, h := range hits {
		messages = append(messages, h.msg)
	}
	return messages, nil
}

func (r *MessageRepo) ListStarredIDs(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var ids []uuid.UUID
	for _, id := range messageIDs {
		if _, ok := r.store.stars[starKey{message: id, user: userID}]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// decorate copies a message and fills the joined fields. Caller must hold
// the lock.
func (r *MessageRepo) decorate(m *domain.Message) domain.Message {
	out := *m
	if m.Media != nil {
		media := *m.Media
		out.Media = &media
	}
	out.SenderUsername, out.SenderDisplayName = r.store.usernameOf(m.SenderID)
	out.EditCount = len(r.store.edits[m.ID])
	return out
}
