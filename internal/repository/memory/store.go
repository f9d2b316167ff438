// Package memory implements the repository interfaces on in-process maps.
// It backs local development without postgres and the service test suites.
// All repos share one Store and one lock, so every method is atomic with
// respect to every other.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
)

type blockKey struct {
	blocker uuid.UUID
	blocked uuid.UUID
}

type memberKey struct {
	conversation uuid.UUID
	user         uuid.UUID
}

type reactionKey struct {
	message uuid.UUID
	user    uuid.UUID
	emoji   string
}

type starKey struct {
	message uuid.UUID
	user    uuid.UUID
}

type Store struct {
	mu sync.RWMutex

	users         map[uuid.UUID]*domain.User
	usersBySubj   map[string]uuid.UUID
	privacy       map[uuid.UUID]*domain.PrivacySettings
	blocks        map[blockKey]*domain.Block
	conversations map[uuid.UUID]*domain.Conversation
	memberships   map[memberKey]*domain.Membership
	messages      map[uuid.UUID]*domain.Message
	edits         map[uuid.UUID][]*domain.MessageEdit
	reactions     map[reactionKey]*domain.MessageReaction
	stars         map[starKey]*domain.MessageStar
}

func NewStore() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*domain.User),
		usersBySubj:   make(map[string]uuid.UUID),
		privacy:       make(map[uuid.UUID]*domain.PrivacySettings),
		blocks:        make(map[blockKey]*domain.Block),
		conversations: make(map[uuid.UUID]*domain.Conversation),
		memberships:   make(map[memberKey]*domain.Membership),
		messages:      make(map[uuid.UUID]*domain.Message),
		edits:         make(map[uuid.UUID][]*domain.MessageEdit),
		reactions:     make(map[reactionKey]*domain.MessageReaction),
		stars:         make(map[starKey]*domain.MessageStar),
	}
}

// usernameOf resolves display fields for joined columns. Caller must hold
// the lock.
func (s *Store) usernameOf(id uuid.UUID) (username, displayName string) {
	if u, ok := s.users[id]; ok {
		return u.Username, u.DisplayName
	}
	return "", ""
}
