package models

import (
	"slices"
	"time"
)

// Team is a named group of users. Assigning a team to a step makes every
// current member a reviewer of that step.
type Team struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"                 validate:"required,max=255"`
	MemberIDs []string   `json:"member_ids"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (t *Team) IsActive() bool {
	return t.DeletedAt == nil
}

// HasMember reports whether userID is a member of the team.
func (t *Team) HasMember(userID string) bool {
	return slices.Contains(t.MemberIDs, userID)
}
