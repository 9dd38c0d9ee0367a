package file

import (
	"context"
	"slices"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// FormResponseRepository handles form response file operations.
type FormResponseRepository struct {
	responses collection[models.FormResponse]
}

func (r *FormResponseRepository) GetByID(_ context.Context, id string) (*models.FormResponse, error) {
	response, err := r.responses.get(id)
	if err != nil || response == nil || !response.IsActive() {
		return nil, err
	}

	return response, nil
}

func (r *FormResponseRepository) Create(_ context.Context, response *models.FormResponse) error {
	return r.responses.store.exclusive(func() error {
		existing, err := r.responses.get(response.ID)
		if err != nil {
			return err
		}

		if existing != nil {
			return persistence.NewEntityError("Create", "form_response", response.ID, persistence.ErrDuplicateKey)
		}

		return r.responses.put(response.ID, response)
	})
}

// Update compares the stored state with expected and writes under the same
// lock, so two writers racing from the same read cannot both succeed.
func (r *FormResponseRepository) Update(
	_ context.Context,
	response *models.FormResponse,
	expected models.FormResponseState,
) error {
	return r.responses.store.exclusive(func() error {
		current, err := r.responses.get(response.ID)
		if err != nil {
			return err
		}

		if current == nil || !current.IsActive() || current.State() != expected {
			return persistence.NewEntityError("Update", "form_response", response.ID, persistence.ErrStaleWrite)
		}

		return r.responses.put(response.ID, response)
	})
}

func (r *FormResponseRepository) List(
	_ context.Context,
	opts persistence.ListFormResponsesOptions,
) (*persistence.Page[*models.FormResponse], error) {
	responses, err := r.responses.filter(func(resp *models.FormResponse) bool {
		return matchesResponse(resp, opts)
	})
	if err != nil {
		return nil, err
	}

	order := opts.SortOrder
	if order == "" {
		order = models.SortOrderDesc
	}

	slices.SortFunc(responses, func(a, b *models.FormResponse) int {
		return opts.SortBy.Compare(a, b, order)
	})

	return persistence.Paginate(responses, opts.Pagination), nil
}

func matchesResponse(resp *models.FormResponse, opts persistence.ListFormResponsesOptions) bool {
	switch {
	case !resp.IsActive():
		return false
	case opts.SubmittedBy != "" && resp.SubmittedBy != opts.SubmittedBy:
		return false
	case opts.FlowID != "" && resp.FlowID != opts.FlowID:
		return false
	case opts.StepID != "" && resp.CurrentStepID != opts.StepID:
		return false
	case opts.Status != nil && resp.Status != *opts.Status:
		return false
	case opts.EnteredBefore != nil && !resp.StepEnteredAt.Before(*opts.EnteredBefore):
		return false
	}

	if opts.Positions == nil {
		return true
	}

	return slices.Contains(opts.Positions, persistence.FlowPosition{FlowID: resp.FlowID, StepID: resp.CurrentStepID})
}
