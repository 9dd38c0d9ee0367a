package file

import (
	"context"
	"slices"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// TeamRepository handles team-related file operations.
type TeamRepository struct {
	teams collection[models.Team]
}

func (r *TeamRepository) GetByID(_ context.Context, id string) (*models.Team, error) {
	team, err := r.teams.get(id)
	if err != nil || team == nil || !team.IsActive() {
		return nil, err
	}

	return team, nil
}

func (r *TeamRepository) GetByIDIncludingDeleted(_ context.Context, id string) (*models.Team, error) {
	return r.teams.get(id)
}

func (r *TeamRepository) GetByName(_ context.Context, name string) (*models.Team, error) {
	key := models.NameKey(name)

	teams, err := r.teams.filter(func(t *models.Team) bool {
		return t.IsActive() && models.NameKey(t.Name) == key
	})
	if err != nil || len(teams) == 0 {
		return nil, err
	}

	return teams[0], nil
}

// GetByIDs returns the active teams among ids, in the order of ids.
func (r *TeamRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Team, error) {
	teams := make([]*models.Team, 0, len(ids))

	for _, id := range ids {
		team, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if team != nil {
			teams = append(teams, team)
		}
	}

	return teams, nil
}

func (r *TeamRepository) ListByMember(_ context.Context, userID string) ([]*models.Team, error) {
	teams, err := r.teams.filter(func(t *models.Team) bool {
		return t.IsActive() && t.HasMember(userID)
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(teams, func(a, b *models.Team) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return teams, nil
}

func (r *TeamRepository) Save(_ context.Context, team *models.Team) error {
	return r.teams.store.exclusive(func() error {
		if team.IsActive() {
			key := models.NameKey(team.Name)

			clashes, err := r.teams.filter(func(t *models.Team) bool {
				return t.ID != team.ID && t.IsActive() && models.NameKey(t.Name) == key
			})
			if err != nil {
				return err
			}

			if len(clashes) > 0 {
				return persistence.NewEntityError("Save", "team", team.ID, persistence.ErrDuplicateKey)
			}
		}

		return r.teams.put(team.ID, team)
	})
}
