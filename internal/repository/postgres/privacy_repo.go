package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/courier/internal/domain"
)

type PrivacyRepo struct {
	pool *pgxpool.Pool
}

func NewPrivacyRepo(pool *pgxpool.Pool) *PrivacyRepo {
	return &PrivacyRepo{pool: pool}
}

func (r *PrivacyRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.PrivacySettings, error) {
	query := `
		SELECT user_id, read_receipts, last_seen_visibility, who_can_message, e2ee_enabled, updated_at
		FROM privacy_settings
		WHERE user_id = $1`
	var s domain.PrivacySettings
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID, &s.ReadReceipts, &s.LastSeenVisibility, &s.WhoCanMessage, &s.E2EEEnabled, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &s, err
}

func (r *PrivacyRepo) GetByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]domain.PrivacySettings, error) {
	query := `
		SELECT user_id, read_receipts, last_seen_visibility, who_can_message, e2ee_enabled, updated_at
		FROM privacy_settings
		WHERE user_id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []domain.PrivacySettings
	for rows.Next() {
		var s domain.PrivacySettings
		if err := rows.Scan(
			&s.UserID, &s.ReadReceipts, &s.LastSeenVisibility, &s.WhoCanMessage, &s.E2EEEnabled, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func (r *PrivacyRepo) Upsert(ctx context.Context, settings *domain.PrivacySettings) error {
	query := `
		INSERT INTO privacy_settings (user_id, read_receipts, last_seen_visibility, who_can_message, e2ee_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			read_receipts = EXCLUDED.read_receipts,
			last_seen_visibility = EXCLUDED.last_seen_visibility,
			who_can_message = EXCLUDED.who_can_message,
			e2ee_enabled = EXCLUDED.e2ee_enabled,
			updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query,
		settings.UserID, settings.ReadReceipts, settings.LastSeenVisibility,
		settings.WhoCanMessage, settings.E2EEEnabled, settings.UpdatedAt,
	)
	return err
}
