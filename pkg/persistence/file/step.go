package file

import (
	"context"
	"slices"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// StepRepository handles step-related file operations.
type StepRepository struct {
	steps collection[models.Step]
}

// GetByID retrieves an active step by its ID.
func (r *StepRepository) GetByID(_ context.Context, id string) (*models.Step, error) {
	step, err := r.steps.get(id)
	if err != nil || step == nil || !step.IsActive() {
		return nil, err
	}

	return step, nil
}

// GetByIDForUpdate is GetByID; the transaction lock already serialises writers.
func (r *StepRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Step, error) {
	return r.GetByID(ctx, id)
}

// GetByName retrieves the active step whose name folds to the same key.
func (r *StepRepository) GetByName(_ context.Context, name string) (*models.Step, error) {
	key := models.NameKey(name)

	steps, err := r.steps.filter(func(s *models.Step) bool {
		return s.IsActive() && models.NameKey(s.Name) == key
	})
	if err != nil || len(steps) == 0 {
		return nil, err
	}

	return steps[0], nil
}

// List returns active steps matching opts.
func (r *StepRepository) List(_ context.Context, opts persistence.ListStepsOptions) ([]*models.Step, error) {
	steps, err := r.steps.filter(func(s *models.Step) bool {
		if !s.IsActive() {
			return false
		}

		if opts.UserID != "" && !slices.Contains(s.UserIDs, opts.UserID) {
			return false
		}

		return opts.TeamID == "" || slices.Contains(s.TeamIDs, opts.TeamID)
	})
	if err != nil {
		return nil, err
	}

	order := opts.SortOrder
	if order == "" {
		order = models.SortOrderAsc
	}

	slices.SortFunc(steps, func(a, b *models.Step) int {
		return opts.SortBy.Compare(a, b, order)
	})

	return steps, nil
}

// Save writes a step, refusing a name already used by another active step.
func (r *StepRepository) Save(_ context.Context, step *models.Step) error {
	return r.steps.store.exclusive(func() error {
		if step.IsActive() {
			key := models.NameKey(step.Name)

			clashes, err := r.steps.filter(func(s *models.Step) bool {
				return s.ID != step.ID && s.IsActive() && models.NameKey(s.Name) == key
			})
			if err != nil {
				return err
			}

			if len(clashes) > 0 {
				return persistence.NewEntityError("Save", "step", step.ID, persistence.ErrDuplicateKey)
			}
		}

		return r.steps.put(step.ID, step)
	})
}
