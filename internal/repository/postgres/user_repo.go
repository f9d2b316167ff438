package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/courier/internal/domain"
)

const userColumns = "id, subject, username, display_name, email, password_hash, avatar_url, created_at, updated_at"

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, subject, username, display_name, email, password_hash, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Subject, user.Username, user.DisplayName,
		user.Email, user.PasswordHash, user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

func (r *UserRepo) UpsertBySubject(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, subject, username, display_name, email, password_hash, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subject) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			email = COALESCE(EXCLUDED.email, users.email),
			avatar_url = COALESCE(EXCLUDED.avatar_url, users.avatar_url),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	var u domain.User
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.Subject, user.Username, user.DisplayName,
		user.Email, user.PasswordHash, user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	).Scan(
		&u.ID, &u.Subject, &u.Username, &u.DisplayName,
		&u.Email, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return err
	}
	*user = u
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

func (r *UserRepo) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE subject = $1", subject)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1", username)
}

func (r *UserRepo) Search(ctx context.Context, query string, excludeIDs []uuid.UUID, limit int) ([]domain.User, error) {
	sql := fmt.Sprintf(`
		SELECT %s FROM users
		WHERE (username ILIKE '%%' || $1 || '%%' OR display_name ILIKE '%%' || $1 || '%%')
			AND NOT (id = ANY($2))
		ORDER BY username
		LIMIT %d`, userColumns, limit)

	rows, err := r.pool.Query(ctx, sql, query, excludeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.ID, &u.Subject, &u.Username, &u.DisplayName,
			&u.Email, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Subject, &u.Username, &u.DisplayName,
		&u.Email, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &u, err
}
