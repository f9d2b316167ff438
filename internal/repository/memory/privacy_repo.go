package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
)

type PrivacyRepo struct {
	store *Store
}

func NewPrivacyRepo(store *Store) *PrivacyRepo {
	return &PrivacyRepo{store: store}
}

func (r *PrivacyRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.PrivacySettings, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.privacy[userID]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (r *PrivacyRepo) GetByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]domain.PrivacySettings, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var settings []domain.PrivacySettings
	for _, id := range userIDs {
		if s, ok := r.store.privacy[id]; ok {
			settings = append(settings, *s)
		}
	}
	return settings, nil
}

func (r *PrivacyRepo) Upsert(ctx context.Context, settings *domain.PrivacySettings) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	s := *settings
	r.store.privacy[s.UserID] = &s
	return nil
}
