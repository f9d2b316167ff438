package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
)

type BlockRepo struct {
	store *Store
}

func NewBlockRepo(store *Store) *BlockRepo {
	return &BlockRepo{store: store}
}

func (r *BlockRepo) Create(ctx context.Context, block *domain.Block) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := blockKey{blocker: block.BlockerID, blocked: block.BlockedID}
	if _, exists := r.store.blocks[key]; exists {
		return nil
	}
	b := *block
	r.store.blocks[key] = &b
	return nil
}

func (r *BlockRepo) Delete(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.blocks, blockKey{blocker: blockerID, blocked: blockedID})
	return nil
}

func (r *BlockRepo) Get(ctx context.Context, blockerID, blockedID uuid.UUID) (*domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	b, ok := r.store.blocks[blockKey{blocker: blockerID, blocked: blockedID}]
	if !ok {
		return nil, nil
	}
	out := *b
	return &out, nil
}

func (r *BlockRepo) ExistsBetween(ctx context.Context, a, b uuid.UUID) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if _, ok := r.store.blocks[blockKey{blocker: a, blocked: b}]; ok {
		return true, nil
	}
	_, ok := r.store.blocks[blockKey{blocker: b, blocked: a}]
	return ok, nil
}

func (r *BlockRepo) ListByBlocker(ctx context.Context, blockerID uuid.UUID) ([]domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var blocks []domain.Block
	for key, b := range r.store.blocks {
		if key.blocker != blockerID {
			continue
		}
		out := *b
		out.BlockedUsername, out.BlockedDisplayName = r.store.usernameOf(key.blocked)
		blocks = append(blocks, out)
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].CreatedAt.After(blocks[j].CreatedAt) })
	return blocks, nil
}

func (r *BlockRepo) ListInvolving(ctx context.Context, userID uuid.UUID) ([]domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var blocks []domain.Block
	for key, b := range r.store.blocks {
		if key.blocker != userID && key.blocked != userID {
			continue
		}
		blocks = append(blocks, *b)
	}
	return blocks, nil
}
