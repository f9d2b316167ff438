package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
)

type ConversationRepo struct {
	store *Store
}

func NewConversationRepo(store *Store) *ConversationRepo {
	return &ConversationRepo{store: store}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	c := *conv
	r.store.conversations[c.ID] = &c
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	c, ok := r.store.conversations[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (r *ConversationRepo) GetDirectBetween(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for key, m := range r.store.memberships {
		if key.user != a {
			continue
		}
		conv := r.store.conversations[m.ConversationID]
		if conv == nil || conv.IsGroup {
			continue
		}
		if _, ok := r.store.memberships[memberKey{conversation: conv.ID, user: b}]; ok {
			out := *conv
			return &out, nil
		}
	}
	return nil, nil
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var convs []domain.Conversation
	for key, m := range r.store.memberships {
		if key.user != userID || m.IsDeleted {
			continue
		}
		conv := r.store.conversations[m.ConversationID]
		if conv == nil {
			continue
		}
		out := *conv
		out.UnreadCount = r.unreadCount(conv.ID, userID, m.LastReadAt)
		if !conv.IsGroup {
			blocked := false
			for otherKey := range r.store.memberships {
				if otherKey.conversation != conv.ID || otherKey.user == userID {
					continue
				}
				if _, ok := r.store.blocks[blockKey{blocker: userID, blocked: otherKey.user}]; ok {
					blocked = true
				}
				if _, ok := r.store.blocks[blockKey{blocker: otherKey.user, blocked: userID}]; ok {
					blocked = true
				}
				if other, ok := r.store.users[otherKey.user]; ok {
					out.OtherUserID = other.ID
					out.OtherUserUsername = other.Username
					out.OtherUserDisplayName = other.DisplayName
					out.OtherUserAvatarURL = other.AvatarURL
				}
				break
			}
			// A block hides the shared conversation from both sides until
			// it is lifted.
			if blocked {
				continue
			}
		}
		convs = append(convs, out)
	}

	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs, nil
}

// unreadCount counts live messages from others past the read mark. Caller
// must hold the lock.
func (r *ConversationRepo) unreadCount(conversationID, userID uuid.UUID, lastReadAt *time.Time) int {
	count := 0
	for _, msg := range r.store.messages {
		if msg.ConversationID != conversationID || msg.Deleted || msg.SenderID == userID {
			continue
		}
		if lastReadAt == nil || msg.CreatedAt.After(*lastReadAt) {
			count++
		}
	}
	return count
}

func (r *ConversationRepo) SetLastMessage(ctx context.Context, id uuid.UUID, text string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	conv, ok := r.store.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	conv.LastMessageText = &text
	conv.LastMessageAt = &at
	conv.UpdatedAt = at
	return nil
}

func (r *ConversationRepo) TouchUpdatedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	conv, ok := r.store.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	conv.UpdatedAt = at
	return nil
}

func (r *ConversationRepo) AddMember(ctx context.Context, member *domain.Membership) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := memberKey{conversation: member.ConversationID, user: member.UserID}
	if _, exists := r.store.memberships[key]; exists {
		return fmt.Errorf("membership already exists")
	}
	m := *member
	r.store.memberships[key] = &m
	return nil
}

func (r *ConversationRepo) GetMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Membership, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	m, ok := r.store.memberships[memberKey{conversation: conversationID, user: userID}]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

func (r *ConversationRepo) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]domain.Membership, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var members []domain.Membership
	for key, m := range r.store.memberships {
		if key.conversation != conversationID || m.IsDeleted {
			continue
		}
		out := *m
		out.Username, out.DisplayName = r.store.usernameOf(key.user)
		members = append(members, out)
	}

	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })
	return members, nil
}

func (r *ConversationRepo) ListMemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var ids []uuid.UUID
	for key := range r.store.memberships {
		if key.conversation == conversationID {
			ids = append(ids, key.user)
		}
	}
	return ids, nil
}

func (r *ConversationRepo) SetMemberRole(ctx context.Context, conversationID, userID uuid.UUID, role string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	m, ok := r.store.memberships[memberKey{conversation: conversationID, user: userID}]
	if !ok {
		return fmt.Errorf("membership not found")
	}
	m.Role = role
	return nil
}

func (r *ConversationRepo) SetMemberLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	m, ok := r.store.memberships[memberKey{conversation: conversationID, user: userID}]
	if !ok {
		return fmt.Errorf("membership not found")
	}
	if m.LastReadAt == nil || at.After(*m.LastReadAt) {
		t := at
		m.LastReadAt = &t
	}
	return nil
}

func (r *ConversationRepo) SetMemberHidden(ctx context.Context, conversationID, userID uuid.UUID, hidden bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	m, ok := r.store.memberships[memberKey{conversation: conversationID, user: userID}]
	if !ok {
		return fmt.Errorf("membership not found")
	}
	m.IsDeleted = hidden
	return nil
}
