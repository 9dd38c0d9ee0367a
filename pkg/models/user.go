// Package models defines the core domain models for form review routing.
package models

import (
	"slices"
	"time"
)

// Role is a role claim supplied by the identity provider.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// User is an authenticated identity that can submit forms and review them.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"                validate:"required,email"`
	Name      string     `json:"name"                 validate:"required"`
	Roles     []Role     `json:"roles"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// HasRole reports whether the user carries the given role claim.
func (u *User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, role)
}

func (u *User) IsActive() bool {
	return u.DeletedAt == nil
}
