// Package assignment computes who may review a step. The reviewer set is
// always derived from the current assignment and team membership; it is never
// stored.
package assignment

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dukex/reviewflow/pkg/models"
)

// ReviewerSet is a deduplicated set of user IDs.
type ReviewerSet map[string]struct{}

func (s ReviewerSet) Contains(userID string) bool {
	_, ok := s[userID]

	return ok
}

func (s ReviewerSet) Len() int {
	return len(s)
}

func (s ReviewerSet) IsEmpty() bool {
	return len(s) == 0
}

// Sorted returns the members in lexical order.
func (s ReviewerSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	ids = slices.AppendSeq(ids, maps.Keys(s))
	slices.Sort(ids)

	return ids
}

// Resolve returns the users directly assigned plus the members of every
// assigned, active team in teams, minus the excluded users. Teams not named by
// the assignment are ignored.
func Resolve(a models.Assignment, teams []*models.Team) ReviewerSet {
	set := make(ReviewerSet, len(a.UserIDs))

	for _, userID := range a.UserIDs {
		set[userID] = struct{}{}
	}

	for _, team := range teams {
		if team == nil || !team.IsActive() || !slices.Contains(a.TeamIDs, team.ID) {
			continue
		}

		for _, member := range team.MemberIDs {
			set[member] = struct{}{}
		}
	}

	for _, excluded := range a.ExcludedUserIDs {
		delete(set, excluded)
	}

	return set
}

// TeamSource loads active teams by ID. persistence.TeamRepository satisfies it.
type TeamSource interface {
	GetByIDs(ctx context.Context, ids []string) ([]*models.Team, error)
}

// Resolver resolves assignments against the teams of a TeamSource.
type Resolver struct {
	teams TeamSource
}

func NewResolver(teams TeamSource) *Resolver {
	return &Resolver{teams: teams}
}

// ResolveReviewers returns the effective reviewer set of a.
func (r *Resolver) ResolveReviewers(ctx context.Context, a models.Assignment) (ReviewerSet, error) {
	if len(a.TeamIDs) == 0 {
		return Resolve(a, nil), nil
	}

	teams, err := r.teams.GetByIDs(ctx, a.TeamIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load assigned teams: %w", err)
	}

	return Resolve(a, teams), nil
}

// ResolveStep returns the reviewer set of the step's default assignment.
func (r *Resolver) ResolveStep(ctx context.Context, step *models.Step) (ReviewerSet, error) {
	return r.ResolveReviewers(ctx, step.Assignment())
}

// IsAuthorizedReviewer reports whether userID belongs to the resolved set of a.
func (r *Resolver) IsAuthorizedReviewer(ctx context.Context, a models.Assignment, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	set, err := r.ResolveReviewers(ctx, a)
	if err != nil {
		return false, err
	}

	return set.Contains(userID), nil
}
