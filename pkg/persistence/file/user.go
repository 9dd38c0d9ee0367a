package file

import (
	"context"
	"strings"

	"github.com/dukex/reviewflow/pkg/models"
)

// UserRepository handles user-related file operations.
type UserRepository struct {
	users collection[models.User]
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.users.get(id)
}

// GetByEmail matches e-mail addresses case-insensitively.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	users, err := r.users.filter(func(u *models.User) bool {
		return strings.EqualFold(u.Email, strings.TrimSpace(email))
	})
	if err != nil || len(users) == 0 {
		return nil, err
	}

	return users[0], nil
}

func (r *UserRepository) Save(_ context.Context, user *models.User) error {
	return r.users.store.exclusive(func() error {
		return r.users.put(user.ID, user)
	})
}
