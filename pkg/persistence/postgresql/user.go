package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/lib/pq"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db dbtx
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	var (
		user  models.User
		roles pq.StringArray
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, roles, created_at, updated_at, deleted_at
		FROM users
		WHERE `+where, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&roles,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.Roles = make([]models.Role, 0, len(roles))
	for _, role := range roles {
		user.Roles = append(user.Roles, models.Role(role))
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "lower(email) = lower($1)", email)
}

func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, roles, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			roles = EXCLUDED.roles,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`,
		user.ID,
		user.Email,
		user.Name,
		pq.Array(roles),
		user.CreatedAt,
		user.UpdatedAt,
		user.DeletedAt,
	)
	if err != nil {
		return mapWriteError("Save", "user", user.ID, err)
	}

	return nil
}
