package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
	"github.com/lib/pq"
)

const stepColumns = `
	id
  , name
  , user_ids
  , team_ids
  , created_at
  , updated_at
  , deleted_at
`

// StepRepository handles step-related database operations.
type StepRepository struct {
	db     dbtx
	logger *slog.Logger
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(row rowScanner) (*models.Step, error) {
	var step models.Step

	err := row.Scan(
		&step.ID,
		&step.Name,
		pq.Array(&step.UserIDs),
		pq.Array(&step.TeamIDs),
		&step.CreatedAt,
		&step.UpdatedAt,
		&step.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &step, nil
}

func (r *StepRepository) getOne(ctx context.Context, query string, args ...any) (*models.Step, error) {
	step, err := scanStep(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	return step, nil
}

func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.Step, error) {
	return r.getOne(ctx, `SELECT `+stepColumns+` FROM steps WHERE id = $1 AND deleted_at IS NULL`, id)
}

// GetByIDForUpdate locks the step row for the rest of the transaction.
func (r *StepRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Step, error) {
	return r.getOne(ctx, `SELECT `+stepColumns+` FROM steps WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
}

func (r *StepRepository) GetByName(ctx context.Context, name string) (*models.Step, error) {
	return r.getOne(ctx,
		`SELECT `+stepColumns+` FROM steps WHERE name_key = $1 AND deleted_at IS NULL`,
		models.NameKey(name),
	)
}

var stepOrderColumns = map[models.StepSortField]string{
	models.StepSortName:      "lower(name)",
	models.StepSortCreatedAt: "created_at",
}

func (r *StepRepository) List(ctx context.Context, opts persistence.ListStepsOptions) ([]*models.Step, error) {
	where := []string{"deleted_at IS NULL"}
	args := []any{}

	if opts.UserID != "" {
		args = append(args, opts.UserID)
		where = append(where, fmt.Sprintf("$%d = ANY(user_ids)", len(args)))
	}

	if opts.TeamID != "" {
		args = append(args, opts.TeamID)
		where = append(where, fmt.Sprintf("$%d = ANY(team_ids)", len(args)))
	}

	column, ok := stepOrderColumns[opts.SortBy]
	if !ok {
		column = stepOrderColumns[models.StepSortName]
	}

	direction := sqlDirection(opts.SortOrder, models.SortOrderAsc)

	query := `SELECT ` + stepColumns + ` FROM steps WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY %s %s, id %s", column, direction, direction)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.Step, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

// Save upserts a step. A name clash with another active step yields
// persistence.ErrDuplicateKey.
func (r *StepRepository) Save(ctx context.Context, step *models.Step) error {
	query := `
		INSERT INTO steps (id, name, name_key, user_ids, team_ids, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			name_key = EXCLUDED.name_key,
			user_ids = EXCLUDED.user_ids,
			team_ids = EXCLUDED.team_ids,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err := r.db.ExecContext(ctx, query,
		step.ID,
		step.Name,
		models.NameKey(step.Name),
		stringArray(step.UserIDs),
		stringArray(step.TeamIDs),
		step.CreatedAt,
		step.UpdatedAt,
		step.DeletedAt,
	)
	if err != nil {
		return mapWriteError("Save", "step", step.ID, err)
	}

	return nil
}

// sqlDirection renders order, falling back to fallback when unset.
func sqlDirection(order, fallback models.SortOrder) string {
	if order == "" {
		order = fallback
	}

	if order == models.SortOrderAsc {
		return "ASC"
	}

	return "DESC"
}
