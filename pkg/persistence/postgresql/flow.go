package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/reviewflow/pkg/models"
)

const flowColumns = `
	id
  , name
  , form_template_id
  , steps
  , created_at
  , updated_at
  , deleted_at
`

// FlowRepository handles flow-related database operations. The ordered step
// list is stored as one JSONB document so a replace is a single write.
type FlowRepository struct {
	db     dbtx
	logger *slog.Logger
}

func scanFlow(row rowScanner) (*models.Flow, error) {
	var (
		flow      models.Flow
		stepsJSON []byte
	)

	err := row.Scan(
		&flow.ID,
		&flow.Name,
		&flow.FormTemplateID,
		&stepsJSON,
		&flow.CreatedAt,
		&flow.UpdatedAt,
		&flow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(stepsJSON, &flow.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow steps: %w", err)
	}

	return &flow, nil
}

func (r *FlowRepository) getOne(ctx context.Context, query string, args ...any) (*models.Flow, error) {
	flow, err := scanFlow(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	return flow, nil
}

func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	return r.getOne(ctx, `SELECT `+flowColumns+` FROM flows WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *FlowRepository) GetByName(ctx context.Context, name string) (*models.Flow, error) {
	return r.getOne(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE name_key = $1 AND deleted_at IS NULL`,
		models.NameKey(name),
	)
}

func (r *FlowRepository) List(ctx context.Context) ([]*models.Flow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	steps := flow.Steps
	if steps == nil {
		steps = []models.FlowStep{}
	}

	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("failed to marshal flow steps: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO flows (id, name, name_key, form_template_id, steps, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			name_key = EXCLUDED.name_key,
			form_template_id = EXCLUDED.form_template_id,
			steps = EXCLUDED.steps,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`,
		flow.ID,
		flow.Name,
		models.NameKey(flow.Name),
		flow.FormTemplateID,
		stepsJSON,
		flow.CreatedAt,
		flow.UpdatedAt,
		flow.DeletedAt,
	)
	if err != nil {
		return mapWriteError("Save", "flow", flow.ID, err)
	}

	return nil
}

// FormTemplateRepository handles form template database operations.
type FormTemplateRepository struct {
	db dbtx
}

func (r *FormTemplateRepository) GetByID(ctx context.Context, id string) (*models.FormTemplate, error) {
	var (
		template   models.FormTemplate
		fieldsJSON []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, fields, created_at, updated_at
		FROM form_templates
		WHERE id = $1
	`, id).Scan(&template.ID, &template.Name, &fieldsJSON, &template.CreatedAt, &template.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan form template: %w", err)
	}

	err = json.Unmarshal(fieldsJSON, &template.Fields)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal form template fields: %w", err)
	}

	return &template, nil
}

func (r *FormTemplateRepository) Save(ctx context.Context, template *models.FormTemplate) error {
	fields := template.Fields
	if fields == nil {
		fields = []models.FormField{}
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal form template fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO form_templates (id, name, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
	`, template.ID, template.Name, fieldsJSON, template.CreatedAt, template.UpdatedAt)
	if err != nil {
		return mapWriteError("Save", "form_template", template.ID, err)
	}

	return nil
}
