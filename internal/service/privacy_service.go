package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/repository"
)

var (
	ErrBadVisibility   = errors.New("visibility must be everyone or nobody")
	ErrCannotBlockSelf = errors.New("cannot block yourself")
)

type PrivacyService struct {
	privacyRepo repository.PrivacyRepository
	blockRepo   repository.BlockRepository
	userRepo    repository.UserRepository
	publisher   Publisher
}

func NewPrivacyService(privacyRepo repository.PrivacyRepository, blockRepo repository.BlockRepository, userRepo repository.UserRepository) *PrivacyService {
	return &PrivacyService{
		privacyRepo: privacyRepo,
		blockRepo:   blockRepo,
		userRepo:    userRepo,
	}
}

func (s *PrivacyService) SetPublisher(p Publisher) {
	s.publisher = p
}

type UpdatePrivacyInput struct {
	ReadReceipts       *bool   `json:"read_receipts"`
	LastSeenVisibility *string `json:"last_seen_visibility"`
	WhoCanMessage      *string `json:"who_can_message"`
	E2EEEnabled        *bool   `json:"e2ee_enabled"`
}

type ToggleBlockResponse struct {
	Blocked bool `json:"blocked"`
}

// Get returns the caller's settings, materializing defaults on first
// read so every user always has a well-defined privacy posture.
func (s *PrivacyService) Get(ctx context.Context, userID uuid.UUID) (*domain.PrivacySettings, error) {
	settings, err := s.privacyRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}

	def := domain.DefaultPrivacySettings(userID)
	def.UpdatedAt = time.Now()
	if err := s.privacyRepo.Upsert(ctx, &def); err != nil {
		return nil, fmt.Errorf("materializing privacy defaults: %w", err)
	}
	return &def, nil
}

func (s *PrivacyService) Update(ctx context.Context, userID uuid.UUID, input UpdatePrivacyInput) (*domain.PrivacySettings, error) {
	settings, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.ReadReceipts != nil {
		settings.ReadReceipts = *input.ReadReceipts
	}
	if input.LastSeenVisibility != nil {
		if !domain.ValidVisibility(*input.LastSeenVisibility) {
			return nil, ErrBadVisibility
		}
		settings.LastSeenVisibility = *input.LastSeenVisibility
	}
	if input.WhoCanMessage != nil {
		if !domain.ValidVisibility(*input.WhoCanMessage) {
			return nil, ErrBadVisibility
		}
		settings.WhoCanMessage = *input.WhoCanMessage
	}
	if input.E2EEEnabled != nil {
		settings.E2EEEnabled = *input.E2EEEnabled
	}
	settings.UpdatedAt = time.Now()

	if err := s.privacyRepo.Upsert(ctx, settings); err != nil {
		return nil, fmt.Errorf("updating privacy settings: %w", err)
	}
	return settings, nil
}

// ToggleBlock creates or removes the caller's block edge toward the
// target. Storage is directional; the effect is symmetric everywhere a
// block is consulted.
func (s *PrivacyService) ToggleBlock(ctx context.Context, callerID, targetID uuid.UUID) (*ToggleBlockResponse, error) {
	if callerID == targetID {
		return nil, ErrCannotBlockSelf
	}

	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrUserNotFound
	}

	existing, err := s.blockRepo.Get(ctx, callerID, targetID)
	if err != nil {
		return nil, err
	}

	var blocked bool
	if existing != nil {
		if err := s.blockRepo.Delete(ctx, callerID, targetID); err != nil {
			return nil, fmt.Errorf("removing block: %w", err)
		}
		blocked = false
	} else {
		block := &domain.Block{
			BlockerID: callerID,
			BlockedID: targetID,
			CreatedAt: time.Now(),
		}
		if err := s.blockRepo.Create(ctx, block); err != nil {
			return nil, fmt.Errorf("creating block: %w", err)
		}
		blocked = true
	}

	// Shared direct conversations appear or disappear for both sides.
	if s.publisher != nil {
		s.publisher.ConversationListChanged(callerID, targetID)
	}

	return &ToggleBlockResponse{Blocked: blocked}, nil
}

// IsBlocked reports whether either user blocks the other.
func (s *PrivacyService) IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return s.blockRepo.ExistsBetween(ctx, a, b)
}

// ListBlocked returns the users the caller has blocked. One indexed
// query; an error propagates rather than degrading to a scan or an
// empty result.
func (s *PrivacyService) ListBlocked(ctx context.Context, callerID uuid.UUID) ([]domain.Block, error) {
	blocks, err := s.blockRepo.ListByBlocker(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("listing blocked users: %w", err)
	}
	if blocks == nil {
		blocks = []domain.Block{}
	}
	return blocks, nil
}
