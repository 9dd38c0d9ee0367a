package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/reviewflow/pkg/assignment"
	"github.com/dukex/reviewflow/pkg/events"
	"github.com/dukex/reviewflow/pkg/identity"
	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/otelhelper"
	"github.com/dukex/reviewflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// Topology owns the lifecycle of steps and teams.
type Topology struct {
	base

	users identity.Provider
}

// NewTopology creates a new topology service.
func NewTopology(p persistence.Persistence, users identity.Provider, opts ...Option) *Topology {
	return &Topology{
		base:  newBase(p, "topology", opts),
		users: users,
	}
}

type CreateStepRequest struct {
	ActorID string `validate:"required"`
	Name    string `validate:"required,max=255,nocontrol"`
	UserIDs []string
	TeamIDs []string
}

// CreateStep creates an active step, optionally with initial reviewers.
func (s *Topology) CreateStep(ctx context.Context, req CreateStepRequest) (step *models.Step, err error) {
	const op = "CreateStep"

	ctx, span := s.startSpan(ctx, "topology.create_step", attribute.String(otelhelper.ActorIDKey, req.ActorID))
	defer otelhelper.End(span, &err)

	req.Name = strings.TrimSpace(req.Name)

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		existing, err := repos.StepRepository().GetByName(ctx, req.Name)
		if err != nil {
			return err
		}

		if existing != nil {
			return newError(op, ErrDuplicateName, fmt.Sprintf("step %q already exists", req.Name))
		}

		err = checkMembers(ctx, op, s.users, repos.TeamRepository(), req.UserIDs, req.TeamIDs)
		if err != nil {
			return err
		}

		now := s.now()
		step = &models.Step{
			ID:        s.newID(),
			Name:      req.Name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		step.AssignUsers(req.UserIDs...)
		step.AssignTeams(req.TeamIDs...)

		err = repos.StepRepository().Save(ctx, step)
		if err != nil {
			return err
		}

		_, err = s.recorder.RecordStepChange(ctx, repos, step.ID, req.ActorID,
			models.StepHistoryActionCreate, models.StepHistoryDetails{Name: step.Name})

		return err
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Step created", "step_id", step.ID, "actor_id", req.ActorID)
	s.publish(ctx, step.ID, events.StepCreated{
		BaseEvent: events.NewBaseEvent(events.StepCreatedEvent, req.ActorID),
		StepID:    step.ID,
		Name:      step.Name,
	})

	return step, nil
}

type RenameStepRequest struct {
	ActorID string `validate:"required"`
	StepID  string `validate:"required"`
	Name    string `validate:"required,max=255,nocontrol"`
}

// RenameStep changes the name of an active step. Renaming to the current name
// is a no-op and records nothing.
func (s *Topology) RenameStep(ctx context.Context, req RenameStepRequest) (step *models.Step, err error) {
	const op = "RenameStep"

	ctx, span := s.startSpan(ctx, "topology.rename_step", attribute.String(otelhelper.StepIDKey, req.StepID))
	defer otelhelper.End(span, &err)

	req.Name = strings.TrimSpace(req.Name)

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	var oldName string

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		step, err = repos.StepRepository().GetByIDForUpdate(ctx, req.StepID)
		if err != nil {
			return err
		}

		if step == nil {
			return notFound(op, "step", req.StepID)
		}

		oldName = step.Name
		if oldName == req.Name {
			return nil
		}

		clash, err := repos.StepRepository().GetByName(ctx, req.Name)
		if err != nil {
			return err
		}

		if clash != nil && clash.ID != step.ID {
			return newError(op, ErrDuplicateName, fmt.Sprintf("step %q already exists", req.Name))
		}

		step.Name = req.Name
		step.UpdatedAt = s.now()

		err = repos.StepRepository().Save(ctx, step)
		if err != nil {
			return err
		}

		_, err = s.recorder.RecordStepChange(ctx, repos, step.ID, req.ActorID,
			models.StepHistoryActionNameChange,
			models.StepHistoryDetails{OldName: oldName, NewName: step.Name})

		return err
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	if oldName != step.Name {
		s.logger.InfoContext(ctx, "Step renamed", "step_id", step.ID, "actor_id", req.ActorID)
		s.publish(ctx, step.ID, events.StepRenamed{
			BaseEvent: events.NewBaseEvent(events.StepRenamedEvent, req.ActorID),
			StepID:    step.ID,
			OldName:   oldName,
			NewName:   step.Name,
		})
	}

	return step, nil
}

type AssignMembersRequest struct {
	ActorID string `validate:"required"`
	StepID  string `validate:"required"`
	UserIDs []string
	TeamIDs []string
}

// AssignMembers adds users and teams to a step's default reviewers.
// Members already assigned are left as they are.
func (s *Topology) AssignMembers(ctx context.Context, req AssignMembersRequest) (step *models.Step, err error) {
	const op = "AssignMembers"

	ctx, span := s.startSpan(ctx, "topology.assign_members", attribute.String(otelhelper.StepIDKey, req.StepID))
	defer otelhelper.End(span, &err)

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	if len(req.UserIDs) == 0 && len(req.TeamIDs) == 0 {
		return nil, NewValidationError(op, "", map[string]string{"user_ids": "at least one user or team is required"})
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		step, err = repos.StepRepository().GetByIDForUpdate(ctx, req.StepID)
		if err != nil {
			return err
		}

		if step == nil {
			return notFound(op, "step", req.StepID)
		}

		err = checkMembers(ctx, op, s.users, repos.TeamRepository(), req.UserIDs, req.TeamIDs)
		if err != nil {
			return err
		}

		step.AssignUsers(req.UserIDs...)
		step.AssignTeams(req.TeamIDs...)
		step.UpdatedAt = s.now()

		return repos.StepRepository().Save(ctx, step)
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Step members assigned", "step_id", step.ID, "actor_id", req.ActorID)

	return step, nil
}

type MoveMembersRequest struct {
	ActorID      string `validate:"required"`
	SourceStepID string `validate:"required"`
	TargetStepID string `validate:"required,nefield=SourceStepID"`
	UserIDs      []string
	TeamIDs      []string
}

// MoveMembersResult holds both steps after a move.
type MoveMembersResult struct {
	Source *models.Step
	Target *models.Step
}

// MoveMembers moves directly assigned users and teams from one step to
// another in one transaction. Every moved user and team must currently be
// assigned to the source step, and no moved user may stay a reviewer of the
// source through a direct or team assignment left behind.
func (s *Topology) MoveMembers(ctx context.Context, req MoveMembersRequest) (result *MoveMembersResult, err error) {
	const op = "MoveMembers"

	ctx, span := s.startSpan(ctx, "topology.move_members",
		attribute.String(otelhelper.StepIDKey, req.SourceStepID),
		attribute.String(otelhelper.ActorIDKey, req.ActorID),
	)
	defer otelhelper.End(span, &err)

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	userIDs := slices.Compact(slices.Sorted(slices.Values(req.UserIDs)))
	teamIDs := slices.Compact(slices.Sorted(slices.Values(req.TeamIDs)))

	if len(userIDs) == 0 && len(teamIDs) == 0 {
		return nil, NewValidationError(op, "", map[string]string{"user_ids": "at least one user or team is required"})
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		source, target, err := s.lockPair(ctx, op, repos, req.SourceStepID, req.TargetStepID)
		if err != nil {
			return err
		}

		fields := map[string]string{}

		for _, userID := range userIDs {
			if !slices.Contains(source.UserIDs, userID) {
				fields["user_ids."+userID] = "not assigned to the source step"
			}
		}

		for _, teamID := range teamIDs {
			if !slices.Contains(source.TeamIDs, teamID) {
				fields["team_ids."+teamID] = "not assigned to the source step"
			}
		}

		if len(fields) > 0 {
			return NewValidationError(op, "", fields)
		}

		now := s.now()

		source.UnassignUsers(userIDs...)
		source.UnassignTeams(teamIDs...)
		source.UpdatedAt = now

		err = s.checkMovedOut(ctx, op, repos, source, userIDs, teamIDs)
		if err != nil {
			return err
		}

		target.AssignUsers(userIDs...)
		target.AssignTeams(teamIDs...)
		target.UpdatedAt = now

		err = repos.StepRepository().Save(ctx, source)
		if err != nil {
			return err
		}

		err = repos.StepRepository().Save(ctx, target)
		if err != nil {
			return err
		}

		details, err := s.moveDetails(ctx, repos, source, target, userIDs, teamIDs)
		if err != nil {
			return err
		}

		for _, stepID := range []string{source.ID, target.ID} {
			_, err = s.recorder.RecordStepChange(ctx, repos, stepID, req.ActorID, models.StepHistoryActionMoveUsers, details)
			if err != nil {
				return err
			}
		}

		result = &MoveMembersResult{Source: source, Target: target}

		return nil
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Step members moved",
		"source_step_id", req.SourceStepID,
		"target_step_id", req.TargetStepID,
		"actor_id", req.ActorID,
	)
	s.publish(ctx, req.SourceStepID, events.StepMembersMoved{
		BaseEvent:    events.NewBaseEvent(events.StepMembersMovedEvent, req.ActorID),
		SourceStepID: req.SourceStepID,
		TargetStepID: req.TargetStepID,
		UserIDs:      userIDs,
		TeamIDs:      teamIDs,
	})

	return result, nil
}

// checkMovedOut rejects a move that would leave a moved user, or a member of
// a moved team, reviewing the source step through what stays assigned there.
func (s *Topology) checkMovedOut(
	ctx context.Context,
	op string,
	repos persistence.Repositories,
	source *models.Step,
	userIDs, teamIDs []string,
) error {
	moved, err := repos.TeamRepository().GetByIDs(ctx, teamIDs)
	if err != nil {
		return err
	}

	remaining, err := repos.TeamRepository().GetByIDs(ctx, source.TeamIDs)
	if err != nil {
		return err
	}

	leftover := assignment.Resolve(source.Assignment(), remaining)
	fields := map[string]string{}

	check := func(userID string) {
		if leftover.Contains(userID) {
			fields["user_ids."+userID] = "still assigned to the source step; move it too"
		}
	}

	for _, userID := range userIDs {
		check(userID)
	}

	for _, team := range moved {
		for _, member := range team.MemberIDs {
			check(member)
		}
	}

	if len(fields) > 0 {
		return NewValidationError(op, "", fields)
	}

	return nil
}

// lockPair locks two steps in ID order so concurrent moves in opposite
// directions cannot deadlock.
func (s *Topology) lockPair(
	ctx context.Context,
	op string,
	repos persistence.Repositories,
	sourceID, targetID string,
) (*models.Step, *models.Step, error) {
	locked := make(map[string]*models.Step, 2)

	for _, id := range slices.Sorted(slices.Values([]string{sourceID, targetID})) {
		step, err := repos.StepRepository().GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, nil, err
		}

		if step == nil {
			return nil, nil, notFound(op, "step", id)
		}

		locked[id] = step
	}

	return locked[sourceID], locked[targetID], nil
}

// moveDetails names everyone affected by a move, including users reachable
// only through a moved team.
func (s *Topology) moveDetails(
	ctx context.Context,
	repos persistence.Repositories,
	source, target *models.Step,
	userIDs, teamIDs []string,
) (models.StepHistoryDetails, error) {
	teams, err := repos.TeamRepository().GetByIDs(ctx, teamIDs)
	if err != nil {
		return models.StepHistoryDetails{}, err
	}

	affected := slices.Clone(userIDs)
	teamNames := make([]string, 0, len(teams))

	for _, team := range teams {
		teamNames = append(teamNames, team.Name)

		for _, member := range team.MemberIDs {
			if !slices.Contains(affected, member) {
				affected = append(affected, member)
			}
		}
	}

	userNames := make([]string, 0, len(affected))
	for _, userID := range affected {
		userNames = append(userNames, identity.DisplayName(ctx, s.users, userID))
	}

	return models.StepHistoryDetails{
		SourceStep: source.Name,
		TargetStep: target.Name,
		MovedUsers: userNames,
		MovedTeams: teamNames,
	}, nil
}

type DeleteStepRequest struct {
	ActorID string `validate:"required"`
	StepID  string `validate:"required"`
}

// DeleteStep soft-deletes a step that has no reviewers and no assignments
// left. Emptiness is checked under the step's row lock.
func (s *Topology) DeleteStep(ctx context.Context, req DeleteStepRequest) (err error) {
	const op = "DeleteStep"

	ctx, span := s.startSpan(ctx, "topology.delete_step", attribute.String(otelhelper.StepIDKey, req.StepID))
	defer otelhelper.End(span, &err)

	err = s.validateRequest(op, req)
	if err != nil {
		return err
	}

	var name string

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		step, err := repos.StepRepository().GetByIDForUpdate(ctx, req.StepID)
		if err != nil {
			return err
		}

		if step == nil {
			return notFound(op, "step", req.StepID)
		}

		reviewers, err := assignment.NewResolver(repos.TeamRepository()).ResolveStep(ctx, step)
		if err != nil {
			return err
		}

		if !reviewers.IsEmpty() || step.HasAssignments() {
			return newError(op, ErrStepNotEmpty, fmt.Sprintf(
				"step %q still has %d reviewer(s), %d user(s) and %d team(s) assigned",
				step.Name, reviewers.Len(), len(step.UserIDs), len(step.TeamIDs),
			))
		}

		now := s.now()
		step.DeletedAt = &now
		step.UpdatedAt = now
		name = step.Name

		err = repos.StepRepository().Save(ctx, step)
		if err != nil {
			return err
		}

		_, err = s.recorder.RecordStepChange(ctx, repos, step.ID, req.ActorID,
			models.StepHistoryActionDelete, models.StepHistoryDetails{Name: step.Name})

		return err
	})
	if err != nil {
		return wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Step deleted", "step_id", req.StepID, "actor_id", req.ActorID)
	s.publish(ctx, req.StepID, events.StepDeleted{
		BaseEvent: events.NewBaseEvent(events.StepDeletedEvent, req.ActorID),
		StepID:    req.StepID,
		Name:      name,
	})

	return nil
}

// RestoreStep always fails: deleted steps stay deleted.
func (s *Topology) RestoreStep(ctx context.Context, stepID string) error {
	return restorable("RestoreStep", models.EntityStep, stepID)
}

func restorable(op string, kind models.EntityKind, id string) error {
	if !models.SoftDeletePolicyFor(kind).Restorable {
		return newError(op, ErrNotRestorable, fmt.Sprintf("%s %s cannot be restored", kind, id))
	}

	return nil
}

// GetStep returns an active step.
func (s *Topology) GetStep(ctx context.Context, stepID string) (*models.Step, error) {
	return getStep(ctx, "GetStep", s.persistence, stepID)
}

type ListStepsRequest struct {
	UserID    string
	TeamID    string
	SortBy    string
	SortOrder string
}

// ListSteps lists active steps, by default by name ascending.
func (s *Topology) ListSteps(ctx context.Context, req ListStepsRequest) ([]*models.Step, error) {
	const op = "ListSteps"

	sortBy, ok := models.ParseStepSortField(req.SortBy)
	if !ok {
		return nil, NewValidationError(op, "", map[string]string{"sort_by": "unknown sort field " + req.SortBy})
	}

	order := models.SortOrderAsc
	if req.SortOrder != "" {
		order, ok = models.ParseSortOrder(req.SortOrder)
		if !ok {
			return nil, NewValidationError(op, "", map[string]string{"sort_order": "must be asc or desc"})
		}
	}

	steps, err := s.persistence.StepRepository().List(ctx, persistence.ListStepsOptions{
		UserID:    req.UserID,
		TeamID:    req.TeamID,
		SortBy:    sortBy,
		SortOrder: order,
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	return steps, nil
}

// ResolveReviewers returns the current reviewer set of an active step.
func (s *Topology) ResolveReviewers(ctx context.Context, stepID string) (assignment.ReviewerSet, error) {
	const op = "ResolveReviewers"

	step, err := s.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	set, err := assignment.NewResolver(s.persistence.TeamRepository()).ResolveStep(ctx, step)
	if err != nil {
		return nil, wrapError(op, err)
	}

	return set, nil
}

// checkMembers verifies that every user is known and every team is active.
func checkMembers(
	ctx context.Context,
	op string,
	users identity.Provider,
	teams persistence.TeamRepository,
	userIDs, teamIDs []string,
) error {
	fields := map[string]string{}

	for _, userID := range userIDs {
		user, err := users.UserByID(ctx, userID)
		if err != nil {
			return err
		}

		if user == nil {
			fields["user_ids."+userID] = "unknown user"
		}
	}

	if len(teamIDs) > 0 {
		found, err := teams.GetByIDs(ctx, teamIDs)
		if err != nil {
			return err
		}

		for _, teamID := range teamIDs {
			if !slices.ContainsFunc(found, func(t *models.Team) bool { return t.ID == teamID }) {
				fields["team_ids."+teamID] = "unknown team"
			}
		}
	}

	if len(fields) > 0 {
		return NewValidationError(op, "", fields)
	}

	return nil
}
