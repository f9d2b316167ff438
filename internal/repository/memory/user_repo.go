package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
)

type UserRepo struct {
	store *Store
}

func NewUserRepo(store *Store) *UserRepo {
	return &UserRepo{store: store}
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u := *user
	r.store.users[u.ID] = &u
	if u.Subject != "" {
		r.store.usersBySubj[u.Subject] = u.ID
	}
	return nil
}

func (r *UserRepo) UpsertBySubject(ctx context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if id, ok := r.store.usersBySubj[user.Subject]; ok {
		existing := r.store.users[id]
		existing.Username = user.Username
		existing.DisplayName = user.DisplayName
		if user.Email != nil {
			existing.Email = user.Email
		}
		if user.AvatarURL != nil {
			existing.AvatarURL = user.AvatarURL
		}
		existing.UpdatedAt = time.Now().UTC()
		*user = *existing
		return nil
	}

	u := *user
	r.store.users[u.ID] = &u
	r.store.usersBySubj[u.Subject] = u.ID
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (r *UserRepo) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.usersBySubj[subject]
	if !ok {
		return nil, nil
	}
	out := *r.store.users[id]
	return &out, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, u := range r.store.users {
		if u.Email != nil && *u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, u := range r.store.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) Search(ctx context.Context, query string, excludeIDs []uuid.UUID, limit int) ([]domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	excluded := make(map[uuid.UUID]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	q := strings.ToLower(query)
	var users []domain.User
	for _, u := range r.store.users {
		if _, skip := excluded[u.ID]; skip {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.DisplayName), q) {
			users = append(users, *u)
		}
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}
