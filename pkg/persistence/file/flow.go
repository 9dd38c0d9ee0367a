package file

import (
	"context"
	"slices"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	flows collection[models.Flow]
}

func (r *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	flow, err := r.flows.get(id)
	if err != nil || flow == nil || !flow.IsActive() {
		return nil, err
	}

	return flow, nil
}

func (r *FlowRepository) GetByName(_ context.Context, name string) (*models.Flow, error) {
	key := models.NameKey(name)

	flows, err := r.flows.filter(func(f *models.Flow) bool {
		return f.IsActive() && models.NameKey(f.Name) == key
	})
	if err != nil || len(flows) == 0 {
		return nil, err
	}

	return flows[0], nil
}

// List returns active flows ordered by creation.
func (r *FlowRepository) List(_ context.Context) ([]*models.Flow, error) {
	flows, err := r.flows.filter((*models.Flow).IsActive)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(flows, func(a, b *models.Flow) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return flows, nil
}

func (r *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	return r.flows.store.exclusive(func() error {
		if flow.IsActive() {
			key := models.NameKey(flow.Name)

			clashes, err := r.flows.filter(func(f *models.Flow) bool {
				return f.ID != flow.ID && f.IsActive() && models.NameKey(f.Name) == key
			})
			if err != nil {
				return err
			}

			if len(clashes) > 0 {
				return persistence.NewEntityError("Save", "flow", flow.ID, persistence.ErrDuplicateKey)
			}
		}

		return r.flows.put(flow.ID, flow)
	})
}

// FormTemplateRepository handles form template file operations.
type FormTemplateRepository struct {
	templates collection[models.FormTemplate]
}

func (r *FormTemplateRepository) GetByID(_ context.Context, id string) (*models.FormTemplate, error) {
	return r.templates.get(id)
}

func (r *FormTemplateRepository) Save(_ context.Context, template *models.FormTemplate) error {
	return r.templates.store.exclusive(func() error {
		return r.templates.put(template.ID, template)
	})
}
