package services_test

import (
	"testing"

	"github.com/dukex/reviewflow/pkg/events"
	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/services"
	"github.com/dukex/reviewflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTopology_CreateStep(t *testing.T) {
	f := newFixture(t)

	step, err := f.topology.CreateStep(t.Context(), services.CreateStepRequest{
		ActorID: "admin",
		Name:    "  Legal ",
		UserIDs: []string{"u3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Legal", step.Name)
	assert.Equal(t, []string{"u3"}, step.UserIDs)

	history, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{StepID: step.ID})
	require.NoError(t, err)
	require.Len(t, history.Items, 1)
	assert.Equal(t, models.StepHistoryActionCreate, history.Items[0].Action)
	assert.Equal(t, "admin", history.Items[0].ActorID)
	assert.Equal(t, "Legal", history.Items[0].Details.Name)

	f.bus.AssertCalled(t, "Publish", mock.Anything, step.ID, mock.MatchedBy(func(e events.StepCreated) bool {
		return e.Name == "Legal" && e.ActorID == "admin"
	}))

	t.Run("duplicate name ignoring case", func(t *testing.T) {
		_, err := f.topology.CreateStep(t.Context(), services.CreateStepRequest{ActorID: "admin", Name: "LEGAL"})
		require.ErrorIs(t, err, services.ErrDuplicateName)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := f.topology.CreateStep(t.Context(), services.CreateStepRequest{ActorID: "admin", Name: "   "})
		require.ErrorIs(t, err, services.ErrValidation)

		var serviceErr *services.ServiceError
		require.ErrorAs(t, err, &serviceErr)
		assert.Equal(t, "required", serviceErr.Fields["name"])
	})

	t.Run("control characters in name", func(t *testing.T) {
		_, err := f.topology.CreateStep(t.Context(), services.CreateStepRequest{ActorID: "admin", Name: "HR\r\nBcc: victim@example.com"})
		require.ErrorIs(t, err, services.ErrValidation)

		var serviceErr *services.ServiceError
		require.ErrorAs(t, err, &serviceErr)
		assert.Equal(t, "nocontrol", serviceErr.Fields["name"])
	})

	t.Run("unknown members", func(t *testing.T) {
		_, err := f.topology.CreateStep(t.Context(), services.CreateStepRequest{
			ActorID: "admin",
			Name:    "HR",
			UserIDs: []string{"ghost"},
			TeamIDs: []string{"no-team"},
		})
		require.ErrorIs(t, err, services.ErrValidation)

		var serviceErr *services.ServiceError
		require.ErrorAs(t, err, &serviceErr)
		assert.Contains(t, serviceErr.Fields, "user_ids.ghost")
		assert.Contains(t, serviceErr.Fields, "team_ids.no-team")

		steps, err := f.topology.ListSteps(t.Context(), services.ListStepsRequest{})
		require.NoError(t, err)
		assert.Len(t, steps, 1)
	})
}

func TestTopology_RenameStep(t *testing.T) {
	f := newFixture(t)

	legal := testutil.NewStep("Legal")
	hr := testutil.NewStep("HR")
	f.seed(t, legal, hr)

	renamed, err := f.topology.RenameStep(t.Context(), services.RenameStepRequest{
		ActorID: "admin", StepID: legal.ID, Name: "Compliance",
	})
	require.NoError(t, err)
	assert.Equal(t, "Compliance", renamed.Name)

	_, err = f.topology.RenameStep(t.Context(), services.RenameStepRequest{
		ActorID: "admin", StepID: legal.ID, Name: "hr",
	})
	require.ErrorIs(t, err, services.ErrDuplicateName)

	_, err = f.topology.RenameStep(t.Context(), services.RenameStepRequest{
		ActorID: "admin", StepID: legal.ID, Name: "COMPLIANCE",
	})
	require.NoError(t, err, "changing only the case of the own name is allowed")

	_, err = f.topology.RenameStep(t.Context(), services.RenameStepRequest{
		ActorID: "admin", StepID: legal.ID, Name: "COMPLIANCE",
	})
	require.NoError(t, err)

	_, err = f.topology.RenameStep(t.Context(), services.RenameStepRequest{
		ActorID: "admin", StepID: "missing", Name: "Anything",
	})
	require.ErrorIs(t, err, services.ErrNotFound)

	history, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{
		StepID: legal.ID,
		Action: string(models.StepHistoryActionNameChange),
	})
	require.NoError(t, err)
	require.Len(t, history.Items, 2, "renaming to the current name records nothing")

	names := []models.StepHistoryDetails{history.Items[0].Details, history.Items[1].Details}
	assert.Contains(t, names, models.StepHistoryDetails{OldName: "Legal", NewName: "Compliance"})
	assert.Contains(t, names, models.StepHistoryDetails{OldName: "Compliance", NewName: "COMPLIANCE"})
}

// Scenario B.
func TestTopology_DeleteAfterMovingMembersOut(t *testing.T) {
	f := newFixture(t)

	legal := testutil.NewStep("Legal", testutil.WithUsers("u3"))
	hr := testutil.NewStep("HR")
	f.seed(t, legal, hr)

	err := f.topology.DeleteStep(t.Context(), services.DeleteStepRequest{ActorID: "admin", StepID: legal.ID})
	require.ErrorIs(t, err, services.ErrStepNotEmpty)

	_, err = f.topology.MoveMembers(t.Context(), services.MoveMembersRequest{
		ActorID:      "admin",
		SourceStepID: legal.ID,
		TargetStepID: hr.ID,
		UserIDs:      []string{"u3"},
	})
	require.NoError(t, err)

	err = f.topology.DeleteStep(t.Context(), services.DeleteStepRequest{ActorID: "admin", StepID: legal.ID})
	require.NoError(t, err)

	_, err = f.topology.GetStep(t.Context(), legal.ID)
	require.ErrorIs(t, err, services.ErrNotFound)

	history, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{
		StepID: legal.ID,
		Action: string(models.StepHistoryActionDelete),
	})
	require.NoError(t, err)
	require.Len(t, history.Items, 1)
	assert.Equal(t, "Legal", history.Items[0].Details.Name)

	err = f.topology.DeleteStep(t.Context(), services.DeleteStepRequest{ActorID: "admin", StepID: legal.ID})
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestTopology_DeleteStepRequiresEmptyAssignment(t *testing.T) {
	f := newFixture(t)

	empty := testutil.NewTeam("Nobody")
	staffed := testutil.NewTeam("Ops", "u4")
	byEmptyTeam := testutil.NewStep("Audit", testutil.WithTeams(empty.ID))
	byTeam := testutil.NewStep("Ops review", testutil.WithTeams(staffed.ID))
	f.seed(t, empty, staffed, byEmptyTeam, byTeam)

	for _, step := range []*models.Step{byEmptyTeam, byTeam} {
		err := f.topology.DeleteStep(t.Context(), services.DeleteStepRequest{ActorID: "admin", StepID: step.ID})
		require.ErrorIs(t, err, services.ErrStepNotEmpty, step.Name)
	}

	history, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{
		Action: string(models.StepHistoryActionDelete),
	})
	require.NoError(t, err)
	assert.Empty(t, history.Items)
}

func TestTopology_MoveMembers(t *testing.T) {
	f := newFixture(t)

	ops := testutil.NewTeam("Ops", "u4", "u5")
	source := testutil.NewStep("Legal", testutil.WithUsers("u1", "u2"), testutil.WithTeams(ops.ID))
	target := testutil.NewStep("HR", testutil.WithUsers("u2"))
	f.seed(t, ops, source, target)

	result, err := f.topology.MoveMembers(t.Context(), services.MoveMembersRequest{
		ActorID:      "admin",
		SourceStepID: source.ID,
		TargetStepID: target.ID,
		UserIDs:      []string{"u2"},
		TeamIDs:      []string{ops.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, result.Source.UserIDs)
	assert.Empty(t, result.Source.TeamIDs)
	assert.Equal(t, []string{"u2"}, result.Target.UserIDs, "no duplicate assignment")
	assert.Equal(t, []string{ops.ID}, result.Target.TeamIDs)

	fromSource, err := f.topology.ResolveReviewers(t.Context(), source.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, fromSource.Sorted())

	fromTarget, err := f.topology.ResolveReviewers(t.Context(), target.ID)
	require.NoError(t, err)
	for _, moved := range []string{"u2", "u4", "u5"} {
		assert.True(t, fromTarget.Contains(moved), moved)
	}

	history, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{
		Action: string(models.StepHistoryActionMoveUsers),
	})
	require.NoError(t, err)
	require.Len(t, history.Items, 2, "one entry on each side of the move")

	for _, stepID := range []string{source.ID, target.ID} {
		page, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{
			StepID: stepID,
			Action: string(models.StepHistoryActionMoveUsers),
		})
		require.NoError(t, err)
		require.Len(t, page.Items, 1, stepID)

		entry := page.Items[0]
		assert.Equal(t, stepID, entry.StepID)
		assert.Equal(t, "Legal", entry.Details.SourceStep)
		assert.Equal(t, "HR", entry.Details.TargetStep)
		assert.ElementsMatch(t, []string{"User u2", "User u4", "User u5"}, entry.Details.MovedUsers)
		assert.Equal(t, []string{"Ops"}, entry.Details.MovedTeams)
	}

	f.bus.AssertCalled(t, "Publish", mock.Anything, source.ID, mock.AnythingOfType("events.StepMembersMoved"))
}

func TestTopology_MoveMembersKeepsNoReviewerBehind(t *testing.T) {
	f := newFixture(t)

	contracts := testutil.NewTeam("Contracts", "u1", "u2")
	source := testutil.NewStep("Legal", testutil.WithUsers("u1"), testutil.WithTeams(contracts.ID))
	target := testutil.NewStep("HR")
	f.seed(t, contracts, source, target)

	t.Run("team member still assigned directly", func(t *testing.T) {
		_, err := f.topology.MoveMembers(t.Context(), services.MoveMembersRequest{
			ActorID:      "admin",
			SourceStepID: source.ID,
			TargetStepID: target.ID,
			TeamIDs:      []string{contracts.ID},
		})
		require.ErrorIs(t, err, services.ErrValidation)

		var serviceErr *services.ServiceError
		require.ErrorAs(t, err, &serviceErr)
		assert.Contains(t, serviceErr.Fields, "user_ids.u1")
		assert.NotContains(t, serviceErr.Fields, "user_ids.u2")

		unchanged, err := f.topology.GetStep(t.Context(), source.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, unchanged.UserIDs)
		assert.Equal(t, []string{contracts.ID}, unchanged.TeamIDs)
	})

	t.Run("direct user still assigned through a team", func(t *testing.T) {
		_, err := f.topology.MoveMembers(t.Context(), services.MoveMembersRequest{
			ActorID:      "admin",
			SourceStepID: source.ID,
			TargetStepID: target.ID,
			UserIDs:      []string{"u1"},
		})
		require.ErrorIs(t, err, services.ErrValidation)
	})

	t.Run("moving both clears the source", func(t *testing.T) {
		_, err := f.topology.MoveMembers(t.Context(), services.MoveMembersRequest{
			ActorID:      "admin",
			SourceStepID: source.ID,
			TargetStepID: target.ID,
			UserIDs:      []string{"u1"},
			TeamIDs:      []string{contracts.ID},
		})
		require.NoError(t, err)

		fromSource, err := f.topology.ResolveReviewers(t.Context(), source.ID)
		require.NoError(t, err)
		assert.True(t, fromSource.IsEmpty())

		fromTarget, err := f.topology.ResolveReviewers(t.Context(), target.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2"}, fromTarget.Sorted())
	})
}

func TestTopology_MoveMembersRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	source := testutil.NewStep("Legal", testutil.WithUsers("u1"))
	target := testutil.NewStep("HR")
	f.seed(t, source, target)

	tests := []struct {
		name     string
		req      services.MoveMembersRequest
		expected error
	}{
		{
			name:     "same step",
			req:      services.MoveMembersRequest{ActorID: "admin", SourceStepID: source.ID, TargetStepID: source.ID, UserIDs: []string{"u1"}},
			expected: services.ErrValidation,
		},
		{
			name:     "nothing to move",
			req:      services.MoveMembersRequest{ActorID: "admin", SourceStepID: source.ID, TargetStepID: target.ID},
			expected: services.ErrValidation,
		},
		{
			name:     "user not on source",
			req:      services.MoveMembersRequest{ActorID: "admin", SourceStepID: source.ID, TargetStepID: target.ID, UserIDs: []string{"u2"}},
			expected: services.ErrValidation,
		},
		{
			name:     "unknown target",
			req:      services.MoveMembersRequest{ActorID: "admin", SourceStepID: source.ID, TargetStepID: "missing", UserIDs: []string{"u1"}},
			expected: services.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.topology.MoveMembers(t.Context(), tt.req)
			require.ErrorIs(t, err, tt.expected)
		})
	}

	unchanged, err := f.topology.GetStep(t.Context(), source.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, unchanged.UserIDs)
}

func TestTopology_AssignMembers(t *testing.T) {
	f := newFixture(t)

	step := testutil.NewStep("Legal", testutil.WithUsers("u1"))
	f.seed(t, step)

	updated, err := f.topology.AssignMembers(t.Context(), services.AssignMembersRequest{
		ActorID: "admin", StepID: step.ID, UserIDs: []string{"u1", "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, updated.UserIDs)

	_, err = f.topology.AssignMembers(t.Context(), services.AssignMembersRequest{ActorID: "admin", StepID: step.ID})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestTopology_RestoreStepIsNotSupported(t *testing.T) {
	f := newFixture(t)

	err := f.topology.RestoreStep(t.Context(), "any")
	require.ErrorIs(t, err, services.ErrNotRestorable)
	assert.Equal(t, services.CodeNotRestorable, services.Kind(err))
}

func TestTopology_ListSteps(t *testing.T) {
	f := newFixture(t)

	ops := testutil.NewTeam("Ops", "u4")
	f.seed(t, ops,
		testutil.NewStep("beta", testutil.WithUsers("u1")),
		testutil.NewStep("Alpha", testutil.WithTeams(ops.ID)),
		testutil.NewStep("gamma", testutil.WithUsers("u1")),
	)

	steps, err := f.topology.ListSteps(t.Context(), services.ListStepsRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "beta", "gamma"}, stepNames(steps))

	steps, err = f.topology.ListSteps(t.Context(), services.ListStepsRequest{UserID: "u1", SortOrder: "desc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma", "beta"}, stepNames(steps))

	steps, err = f.topology.ListSteps(t.Context(), services.ListStepsRequest{TeamID: ops.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, stepNames(steps))

	_, err = f.topology.ListSteps(t.Context(), services.ListStepsRequest{SortBy: "user_ids"})
	require.ErrorIs(t, err, services.ErrValidation)

	_, err = f.topology.ListSteps(t.Context(), services.ListStepsRequest{SortOrder: "sideways"})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestTopology_Teams(t *testing.T) {
	f := newFixture(t)

	team, err := f.topology.CreateTeam(t.Context(), services.CreateTeamRequest{
		ActorID: "admin", Name: "Ops", MemberIDs: []string{"u1", "u1", "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, team.MemberIDs)

	_, err = f.topology.CreateTeam(t.Context(), services.CreateTeamRequest{ActorID: "admin", Name: "ops"})
	require.ErrorIs(t, err, services.ErrDuplicateName)

	step := testutil.NewStep("Legal", testutil.WithTeams(team.ID))
	f.seed(t, step)

	updated, err := f.topology.UpdateTeam(t.Context(), services.UpdateTeamRequest{
		ActorID: "admin",
		TeamID:  team.ID,
		Patch:   models.TeamPatch{MemberIDs: &[]string{"u3"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ops", updated.Name)
	assert.Equal(t, []string{"u3"}, updated.MemberIDs)

	reviewers, err := f.topology.ResolveReviewers(t.Context(), step.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, reviewers.Sorted(), "membership changes apply to assigned steps")

	_, err = f.topology.UpdateTeam(t.Context(), services.UpdateTeamRequest{ActorID: "admin", TeamID: team.ID})
	require.ErrorIs(t, err, services.ErrValidation)

	badName := "Ops\nBcc: victim@example.com"
	_, err = f.topology.UpdateTeam(t.Context(), services.UpdateTeamRequest{
		ActorID: "admin",
		TeamID:  team.ID,
		Patch:   models.TeamPatch{Name: &badName},
	})
	require.ErrorIs(t, err, services.ErrValidation)

	require.NoError(t, f.topology.DeleteTeam(t.Context(), "admin", team.ID))

	_, err = f.topology.GetTeam(t.Context(), team.ID)
	require.ErrorIs(t, err, services.ErrNotFound)

	reviewers, err = f.topology.ResolveReviewers(t.Context(), step.ID)
	require.NoError(t, err)
	assert.True(t, reviewers.IsEmpty())

	restored, err := f.topology.RestoreTeam(t.Context(), "admin", team.ID)
	require.NoError(t, err)
	assert.True(t, restored.IsActive())

	reviewers, err = f.topology.ResolveReviewers(t.Context(), step.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, reviewers.Sorted())
}

func TestTopology_RestoreTeamWithTakenName(t *testing.T) {
	f := newFixture(t)

	team, err := f.topology.CreateTeam(t.Context(), services.CreateTeamRequest{ActorID: "admin", Name: "Ops"})
	require.NoError(t, err)
	require.NoError(t, f.topology.DeleteTeam(t.Context(), "admin", team.ID))

	_, err = f.topology.CreateTeam(t.Context(), services.CreateTeamRequest{ActorID: "admin", Name: "Ops"})
	require.NoError(t, err)

	_, err = f.topology.RestoreTeam(t.Context(), "admin", team.ID)
	require.ErrorIs(t, err, services.ErrDuplicateName)
}

func stepNames(steps []*models.Step) []string {
	names := make([]string, 0, len(steps))
	for _, step := range steps {
		names = append(names, step.Name)
	}

	return names
}
