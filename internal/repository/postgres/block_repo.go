package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/courier/internal/domain"
)

type BlockRepo struct {
	pool *pgxpool.Pool
}

func NewBlockRepo(pool *pgxpool.Pool) *BlockRepo {
	return &BlockRepo{pool: pool}
}

func (r *BlockRepo) Create(ctx context.Context, block *domain.Block) error {
	query := `
		INSERT INTO blocks (blocker_id, blocked_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, block.BlockerID, block.BlockedID, block.CreatedAt)
	return err
}

func (r *BlockRepo) Delete(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`, blockerID, blockedID)
	return err
}

func (r *BlockRepo) Get(ctx context.Context, blockerID, blockedID uuid.UUID) (*domain.Block, error) {
	query := `
		SELECT blocker_id, blocked_id, created_at
		FROM blocks
		WHERE blocker_id = $1 AND blocked_id = $2`
	var b domain.Block
	err := r.pool.QueryRow(ctx, query, blockerID, blockedID).Scan(
		&b.BlockerID, &b.BlockedID, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &b, err
}

func (r *BlockRepo) ExistsBetween(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM blocks
			WHERE (blocker_id = $1 AND blocked_id = $2)
				OR (blocker_id = $2 AND blocked_id = $1)
		)`,
		a, b,
	).Scan(&exists)
	return exists, err
}

func (r *BlockRepo) ListByBlocker(ctx context.Context, blockerID uuid.UUID) ([]domain.Block, error) {
	query := `
		SELECT b.blocker_id, b.blocked_id, b.created_at, u.username, u.display_name
		FROM blocks b
		JOIN users u ON b.blocked_id = u.id
		WHERE b.blocker_id = $1
		ORDER BY b.created_at DESC`

	rows, err := r.pool.Query(ctx, query, blockerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBlocks(rows, true)
}

func (r *BlockRepo) ListInvolving(ctx context.Context, userID uuid.UUID) ([]domain.Block, error) {
	query := `
		SELECT blocker_id, blocked_id, created_at
		FROM blocks
		WHERE blocker_id = $1 OR blocked_id = $1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBlocks(rows, false)
}

func collectBlocks(rows pgx.Rows, withNames bool) ([]domain.Block, error) {
	var blocks []domain.Block
	for rows.Next() {
		var b domain.Block
		var err error
		if withNames {
			err = rows.Scan(&b.BlockerID, &b.BlockedID, &b.CreatedAt, &b.BlockedUsername, &b.BlockedDisplayName)
		} else {
			err = rows.Scan(&b.BlockerID, &b.BlockedID, &b.CreatedAt)
		}
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}
