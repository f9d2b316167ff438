package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type typingEntry struct {
	conversationID uuid.UUID
	userID         uuid.UUID
}

// MemoryCache keeps liveness state in-process. Expired entries are
// dropped lazily on read.
type MemoryCache struct {
	mu       sync.Mutex
	presence map[uuid.UUID]time.Time
	typing   map[typingEntry]time.Time
	now      func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		presence: make(map[uuid.UUID]time.Time),
		typing:   make(map[typingEntry]time.Time),
		now:      time.Now,
	}
}

func (c *MemoryCache) TouchPresence(ctx context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence[userID] = c.now().Add(PresenceTTL)
	return nil
}

func (c *MemoryCache) ClearPresence(ctx context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.presence, userID)
	return nil
}

func (c *MemoryCache) Online(ctx context.Context, userID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onlineLocked(userID), nil
}

func (c *MemoryCache) OnlineMany(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = c.onlineLocked(id)
	}
	return out, nil
}

func (c *MemoryCache) onlineLocked(userID uuid.UUID) bool {
	deadline, ok := c.presence[userID]
	if !ok {
		return false
	}
	if c.now().After(deadline) {
		delete(c.presence, userID)
		return false
	}
	return true
}

func (c *MemoryCache) SetTyping(ctx context.Context, conversationID, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing[typingEntry{conversationID: conversationID, userID: userID}] = c.now().Add(TypingTTL)
	return nil
}

func (c *MemoryCache) ClearTyping(ctx context.Context, conversationID, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.typing, typingEntry{conversationID: conversationID, userID: userID})
	return nil
}

func (c *MemoryCache) Typing(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var users []uuid.UUID
	for entry, deadline := range c.typing {
		if entry.conversationID != conversationID {
			continue
		}
		if now.After(deadline) {
			delete(c.typing, entry)
			continue
		}
		users = append(users, entry.userID)
	}
	return users, nil
}
