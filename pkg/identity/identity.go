// Package identity supplies authenticated users and their role claims to the
// review core.
package identity

import (
	"context"
	"fmt"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// Provider looks users up. Both methods return nil, nil for unknown or
// deleted users.
type Provider interface {
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Directory is a Provider backed by the user repository.
type Directory struct {
	users persistence.UserRepository
}

func NewDirectory(users persistence.UserRepository) *Directory {
	return &Directory{users: users}
}

func (d *Directory) UserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", id, err)
	}

	if user == nil || !user.IsActive() {
		return nil, nil
	}

	return user, nil
}

func (d *Directory) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := d.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	if user == nil || !user.IsActive() {
		return nil, nil
	}

	return user, nil
}

// DisplayName returns the user's name, falling back to the e-mail address and
// finally to the raw ID when the user cannot be resolved.
func DisplayName(ctx context.Context, provider Provider, id string) string {
	user, err := provider.UserByID(ctx, id)
	if err != nil || user == nil {
		return id
	}

	if user.Name != "" {
		return user.Name
	}

	if user.Email != "" {
		return user.Email
	}

	return id
}
