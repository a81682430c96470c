package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagecall/audition-service/internal/domain"
)

// UserRepository defines persistence access for user identity records.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByLineUserID(ctx context.Context, lineUserID string) (*domain.User, error)
	// UpsertByLineUserID finds-or-creates by the provider subject id. A create
	// seeds role and token_version; an existing row only has its display name
	// refreshed.
	UpsertByLineUserID(ctx context.Context, lineUserID, displayName string) (*domain.User, error)
	// UpsertByEmail is the magic-link equivalent keyed on email.
	UpsertByEmail(ctx context.Context, email string, role domain.Role) (*domain.User, error)
	// BumpTokenVersion increments the user's token_version, invalidating all
	// outstanding session tokens. Returns the new version.
	BumpTokenVersion(ctx context.Context, id string) (int, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, email, line_user_id, display_name, role, token_version, active, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.LineUserID,
		&user.DisplayName,
		&user.Role,
		&user.TokenVersion,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *userRepository) GetByLineUserID(ctx context.Context, lineUserID string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE line_user_id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, lineUserID))
}

func (r *userRepository) UpsertByLineUserID(ctx context.Context, lineUserID, displayName string) (*domain.User, error) {
	const query = `
        INSERT INTO users (line_user_id, display_name, role, token_version)
        VALUES ($1, $2, $3, 0)
        ON CONFLICT (line_user_id) WHERE line_user_id IS NOT NULL
        DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = NOW()
        RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, lineUserID, displayName, domain.RoleApplicant))
}

func (r *userRepository) UpsertByEmail(ctx context.Context, email string, role domain.Role) (*domain.User, error) {
	if role == "" {
		role = domain.RoleApplicant
	}
	const query = `
        INSERT INTO users (email, display_name, role, token_version)
        VALUES ($1, $1, $2, 0)
        ON CONFLICT (email) WHERE email IS NOT NULL
        DO UPDATE SET updated_at = NOW()
        RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, email, role))
}

func (r *userRepository) BumpTokenVersion(ctx context.Context, id string) (int, error) {
	const query = `
        UPDATE users SET token_version = token_version + 1, updated_at = NOW()
        WHERE id=$1
        RETURNING token_version`
	var version int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}
