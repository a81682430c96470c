package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stagecall/audition-service/internal/domain"
)

// InMemoryUserRepository is a map-backed UserRepository for tests and for
// running the service without Postgres. Mirrors the SQL implementation's
// semantics, including pgx.ErrNoRows on missing rows.
type InMemoryUserRepository struct {
	mu    sync.Mutex
	byID  map[string]*domain.User
	clock func() time.Time
}

// NewInMemoryUserRepository builds an empty repository.
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{byID: make(map[string]*domain.User), clock: time.Now}
}

func (r *InMemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.byID[id]; ok {
		return copyUser(user), nil
	}
	return nil, pgx.ErrNoRows
}

func (r *InMemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.byID {
		if user.Email != nil && *user.Email == email {
			return copyUser(user), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *InMemoryUserRepository) GetByLineUserID(_ context.Context, lineUserID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.byID {
		if user.LineUserID != nil && *user.LineUserID == lineUserID {
			return copyUser(user), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *InMemoryUserRepository) UpsertByLineUserID(_ context.Context, lineUserID, displayName string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	for _, user := range r.byID {
		if user.LineUserID != nil && *user.LineUserID == lineUserID {
			user.DisplayName = displayName
			user.UpdatedAt = now
			return copyUser(user), nil
		}
	}
	lid := lineUserID
	user := &domain.User{
		ID:          uuid.NewString(),
		LineUserID:  &lid,
		DisplayName: displayName,
		Role:        domain.RoleApplicant,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.byID[user.ID] = user
	return copyUser(user), nil
}

func (r *InMemoryUserRepository) UpsertByEmail(_ context.Context, email string, role domain.Role) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	for _, user := range r.byID {
		if user.Email != nil && *user.Email == email {
			user.UpdatedAt = now
			return copyUser(user), nil
		}
	}
	if role == "" {
		role = domain.RoleApplicant
	}
	addr := email
	user := &domain.User{
		ID:          uuid.NewString(),
		Email:       &addr,
		DisplayName: email,
		Role:        role,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.byID[user.ID] = user
	return copyUser(user), nil
}

func (r *InMemoryUserRepository) BumpTokenVersion(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	user.TokenVersion++
	user.UpdatedAt = r.clock()
	return user.TokenVersion, nil
}

// SetActive flips the active flag, for exercising disabled-account paths.
func (r *InMemoryUserRepository) SetActive(id string, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.byID[id]; ok {
		user.Active = active
	}
}

// Count reports the number of stored rows.
func (r *InMemoryUserRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func copyUser(user *domain.User) *domain.User {
	clone := *user
	return &clone
}

var _ UserRepository = (*InMemoryUserRepository)(nil)
