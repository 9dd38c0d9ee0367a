package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/otelhelper"
	"github.com/dukex/reviewflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

type CreateTeamRequest struct {
	ActorID   string `validate:"required"`
	Name      string `validate:"required,max=255,nocontrol"`
	MemberIDs []string
}

// CreateTeam creates an active team.
func (s *Topology) CreateTeam(ctx context.Context, req CreateTeamRequest) (team *models.Team, err error) {
	const op = "CreateTeam"

	ctx, span := s.startSpan(ctx, "topology.create_team", attribute.String(otelhelper.ActorIDKey, req.ActorID))
	defer otelhelper.End(span, &err)

	req.Name = strings.TrimSpace(req.Name)

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		err := s.checkTeamName(ctx, op, repos, "", req.Name)
		if err != nil {
			return err
		}

		err = checkMembers(ctx, op, s.users, repos.TeamRepository(), req.MemberIDs, nil)
		if err != nil {
			return err
		}

		now := s.now()
		team = &models.Team{
			ID:        s.newID(),
			Name:      req.Name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		models.TeamPatch{MemberIDs: &req.MemberIDs}.Apply(team)

		return repos.TeamRepository().Save(ctx, team)
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Team created", "team_id", team.ID, "actor_id", req.ActorID)

	return team, nil
}

type UpdateTeamRequest struct {
	ActorID string           `validate:"required"`
	TeamID  string           `validate:"required"`
	Patch   models.TeamPatch
}

// UpdateTeam applies the present fields of the patch. Membership changes take
// effect on every step the team is assigned to.
func (s *Topology) UpdateTeam(ctx context.Context, req UpdateTeamRequest) (team *models.Team, err error) {
	const op = "UpdateTeam"

	ctx, span := s.startSpan(ctx, "topology.update_team", attribute.String(otelhelper.TeamIDKey, req.TeamID))
	defer otelhelper.End(span, &err)

	if req.Patch.Name != nil {
		name := strings.TrimSpace(*req.Patch.Name)
		req.Patch.Name = &name
	}

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	if req.Patch.IsEmpty() {
		return nil, NewValidationError(op, "", map[string]string{"patch": "nothing to update"})
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		team, err = repos.TeamRepository().GetByID(ctx, req.TeamID)
		if err != nil {
			return err
		}

		if team == nil {
			return notFound(op, "team", req.TeamID)
		}

		if req.Patch.Name != nil {
			err = s.checkTeamName(ctx, op, repos, team.ID, *req.Patch.Name)
			if err != nil {
				return err
			}
		}

		if req.Patch.MemberIDs != nil {
			err = checkMembers(ctx, op, s.users, repos.TeamRepository(), *req.Patch.MemberIDs, nil)
			if err != nil {
				return err
			}
		}

		req.Patch.Apply(team)
		team.UpdatedAt = s.now()

		return repos.TeamRepository().Save(ctx, team)
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Team updated", "team_id", team.ID, "actor_id", req.ActorID)

	return team, nil
}

// DeleteTeam soft-deletes a team. Its members stop being reviewers of the
// steps it is assigned to; the assignments themselves are kept so a restore
// brings them back.
func (s *Topology) DeleteTeam(ctx context.Context, actorID, teamID string) (err error) {
	const op = "DeleteTeam"

	ctx, span := s.startSpan(ctx, "topology.delete_team", attribute.String(otelhelper.TeamIDKey, teamID))
	defer otelhelper.End(span, &err)

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		team, err := repos.TeamRepository().GetByID(ctx, teamID)
		if err != nil {
			return err
		}

		if team == nil {
			return notFound(op, "team", teamID)
		}

		now := s.now()
		team.DeletedAt = &now
		team.UpdatedAt = now

		return repos.TeamRepository().Save(ctx, team)
	})
	if err != nil {
		return wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Team deleted", "team_id", teamID, "actor_id", actorID)

	return nil
}

// RestoreTeam clears the delete timestamp of a team, provided no active team
// took its name in the meantime.
func (s *Topology) RestoreTeam(ctx context.Context, actorID, teamID string) (team *models.Team, err error) {
	const op = "RestoreTeam"

	ctx, span := s.startSpan(ctx, "topology.restore_team", attribute.String(otelhelper.TeamIDKey, teamID))
	defer otelhelper.End(span, &err)

	err = restorable(op, models.EntityTeam, teamID)
	if err != nil {
		return nil, err
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		team, err = repos.TeamRepository().GetByIDIncludingDeleted(ctx, teamID)
		if err != nil {
			return err
		}

		if team == nil {
			return notFound(op, "team", teamID)
		}

		if team.IsActive() {
			return nil
		}

		err = s.checkTeamName(ctx, op, repos, team.ID, team.Name)
		if err != nil {
			return err
		}

		team.DeletedAt = nil
		team.UpdatedAt = s.now()

		return repos.TeamRepository().Save(ctx, team)
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Team restored", "team_id", teamID, "actor_id", actorID)

	return team, nil
}

// GetTeam returns an active team.
func (s *Topology) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	const op = "GetTeam"

	team, err := s.persistence.TeamRepository().GetByID(ctx, teamID)
	if err != nil {
		return nil, wrapError(op, err)
	}

	if team == nil {
		return nil, notFound(op, "team", teamID)
	}

	return team, nil
}

func (s *Topology) checkTeamName(ctx context.Context, op string, repos persistence.Repositories, selfID, name string) error {
	existing, err := repos.TeamRepository().GetByName(ctx, name)
	if err != nil {
		return err
	}

	if existing != nil && existing.ID != selfID {
		return newError(op, ErrDuplicateName, fmt.Sprintf("team %q already exists", name))
	}

	return nil
}
