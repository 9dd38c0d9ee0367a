// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Epoch is the creation time of every built entity.
var Epoch = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

// NewUser creates an active user whose name and e-mail derive from id.
func NewUser(id string, roles ...models.Role) *models.User {
	if len(roles) == 0 {
		roles = []models.Role{models.RoleUser}
	}

	return &models.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "User " + id,
		Roles:     roles,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
}

// NewTeam creates an active team with the given members.
func NewTeam(name string, memberIDs ...string) *models.Team {
	return &models.Team{
		ID:        uuid.New().String(),
		Name:      name,
		MemberIDs: memberIDs,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
}

// NewStep creates an active step with default values that can be overridden.
func NewStep(name string, overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithUsers assigns users directly to the step.
func WithUsers(userIDs ...string) func(*models.Step) {
	return func(s *models.Step) {
		s.AssignUsers(userIDs...)
	}
}

// WithTeams assigns teams to the step.
func WithTeams(teamIDs ...string) func(*models.Step) {
	return func(s *models.Step) {
		s.AssignTeams(teamIDs...)
	}
}

// NewFormTemplate creates a template with the given fields.
func NewFormTemplate(fields ...models.FormField) *models.FormTemplate {
	return &models.FormTemplate{
		ID:        uuid.New().String(),
		Name:      "Template",
		Fields:    fields,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
}

// RequiredField is a mandatory free-text field.
func RequiredField(id string) models.FormField {
	return models.FormField{ID: id, Label: id, Required: true}
}

// OptionalField is a free-text field that may be left out.
func OptionalField(id string) models.FormField {
	return models.FormField{ID: id, Label: id}
}

// NewFlow creates a flow over the given steps, in order, without overrides.
func NewFlow(name, templateID string, stepIDs ...string) *models.Flow {
	steps := make([]models.FlowStep, 0, len(stepIDs))
	for _, id := range stepIDs {
		steps = append(steps, models.FlowStep{StepID: id})
	}

	return &models.Flow{
		ID:             uuid.New().String(),
		Name:           name,
		FormTemplateID: templateID,
		Steps:          steps,
		CreatedAt:      Epoch,
		UpdatedAt:      Epoch,
	}
}

// Seed saves every entity through repos. Unsupported types fail the test.
func Seed(t *testing.T, repos persistence.Repositories, entities ...any) {
	t.Helper()

	ctx := context.Background()

	for _, entity := range entities {
		var err error

		switch e := entity.(type) {
		case *models.User:
			err = repos.UserRepository().Save(ctx, e)
		case *models.Team:
			err = repos.TeamRepository().Save(ctx, e)
		case *models.Step:
			err = repos.StepRepository().Save(ctx, e)
		case *models.FormTemplate:
			err = repos.FormTemplateRepository().Save(ctx, e)
		case *models.Flow:
			err = repos.FlowRepository().Save(ctx, e)
		case *models.FormResponse:
			err = repos.FormResponseRepository().Create(ctx, e)
		default:
			t.Fatalf("testutil.Seed: unsupported entity %T", entity)
		}

		require.NoError(t, err)
	}
}

// Clock is a manually advanced time source.
type Clock struct {
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
