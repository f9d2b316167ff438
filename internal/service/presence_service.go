package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/presence"
	"github.com/vedran77/courier/internal/repository"
)

// PresenceService fronts the liveness cache. Everything here is
// ephemeral: a lost entry just means the client re-asserts it on the
// next heartbeat or keystroke.
type PresenceService struct {
	convRepo  repository.ConversationRepository
	blockRepo repository.BlockRepository
	liveness  presence.Cache
	publisher Publisher
}

func NewPresenceService(
	convRepo repository.ConversationRepository,
	blockRepo repository.BlockRepository,
	liveness presence.Cache,
) *PresenceService {
	return &PresenceService{
		convRepo:  convRepo,
		blockRepo: blockRepo,
		liveness:  liveness,
	}
}

func (s *PresenceService) SetPublisher(p Publisher) {
	s.publisher = p
}

type SetTypingInput struct {
	Typing bool `json:"typing"`
}

// SetTyping marks or clears the caller as typing in a conversation they
// can see. The mark expires on its own; stop events just clear it early.
func (s *PresenceService) SetTyping(ctx context.Context, callerID, conversationID uuid.UUID, typing bool) error {
	if _, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID); err != nil {
		return err
	}

	var err error
	if typing {
		err = s.liveness.SetTyping(ctx, conversationID, callerID)
	} else {
		err = s.liveness.ClearTyping(ctx, conversationID, callerID)
	}
	if err != nil {
		return err
	}

	if s.publisher != nil {
		s.publisher.TypingChanged(conversationID, callerID, typing)
	}
	return nil
}

// TypingIn lists who is currently typing, without the caller themselves.
func (s *PresenceService) TypingIn(ctx context.Context, callerID, conversationID uuid.UUID) ([]uuid.UUID, error) {
	if _, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID); err != nil {
		return nil, err
	}

	typers, err := s.liveness.Typing(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(typers))
	for _, id := range typers {
		if id != callerID {
			out = append(out, id)
		}
	}
	return out, nil
}

// Heartbeat refreshes the caller's online mark and announces the
// offline-to-online edge. Repeat beats inside the TTL stay quiet.
func (s *PresenceService) Heartbeat(ctx context.Context, callerID uuid.UUID) error {
	wasOnline, err := s.liveness.Online(ctx, callerID)
	if err != nil {
		return err
	}
	if err := s.liveness.TouchPresence(ctx, callerID); err != nil {
		return err
	}
	if !wasOnline && s.publisher != nil {
		s.publisher.PresenceChanged(callerID, true)
	}
	return nil
}

// SetOffline drops the caller's online mark ahead of its TTL, on socket
// disconnect.
func (s *PresenceService) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if err := s.liveness.ClearPresence(ctx, userID); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.PresenceChanged(userID, false)
	}
	return nil
}

func (s *PresenceService) Online(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.liveness.Online(ctx, userID)
}
