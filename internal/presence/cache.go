// Package presence tracks who is online and who is typing. Entries are
// liveness signals with short TTLs, not history: losing them on restart
// is harmless because clients re-assert them on their next heartbeat.
package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypingTTL   = 2 * time.Second
	PresenceTTL = 30 * time.Second
)

type Cache interface {
	TouchPresence(ctx context.Context, userID uuid.UUID) error
	ClearPresence(ctx context.Context, userID uuid.UUID) error
	Online(ctx context.Context, userID uuid.UUID) (bool, error)
	OnlineMany(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)

	SetTyping(ctx context.Context, conversationID, userID uuid.UUID) error
	ClearTyping(ctx context.Context, conversationID, userID uuid.UUID) error
	Typing(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
}
