package models

import "time"

// Assignment is the reviewer roster of a step: directly assigned users, assigned
// teams, and users explicitly excluded from the resolved set.
type Assignment struct {
	UserIDs         []string `json:"user_ids"`
	TeamIDs         []string `json:"team_ids"`
	ExcludedUserIDs []string `json:"excluded_user_ids,omitempty"`
}

// IsEmpty reports whether nothing is assigned. Exclusions alone do not count.
func (a Assignment) IsEmpty() bool {
	return len(a.UserIDs) == 0 && len(a.TeamIDs) == 0
}

// Step is a named stage of a review pipeline.
type Step struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"                 validate:"required,max=255"`
	UserIDs   []string   `json:"user_ids"`
	TeamIDs   []string   `json:"team_ids"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (s *Step) IsActive() bool {
	return s.DeletedAt == nil
}

// Assignment returns the step's default reviewer roster.
func (s *Step) Assignment() Assignment {
	return Assignment{
		UserIDs: s.UserIDs,
		TeamIDs: s.TeamIDs,
	}
}

// HasAssignments reports whether any user or team is still assigned. A team
// with no members still counts as an assignment.
func (s *Step) HasAssignments() bool {
	return !s.Assignment().IsEmpty()
}

// AssignUsers adds users that are not already assigned.
func (s *Step) AssignUsers(userIDs ...string) {
	s.UserIDs = appendUnique(s.UserIDs, userIDs...)
}

// AssignTeams adds teams that are not already assigned.
func (s *Step) AssignTeams(teamIDs ...string) {
	s.TeamIDs = appendUnique(s.TeamIDs, teamIDs...)
}

func (s *Step) UnassignUsers(userIDs ...string) {
	s.UserIDs = removeAll(s.UserIDs, userIDs...)
}

func (s *Step) UnassignTeams(teamIDs ...string) {
	s.TeamIDs = removeAll(s.TeamIDs, teamIDs...)
}
