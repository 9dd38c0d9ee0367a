package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

const formResponseColumns = `
	id
  , flow_id
  , form_template_id
  , current_step_id
  , submitted_by
  , completed_by
  , answers
  , status
  , reject_reason
  , step_entered_at
  , created_at
  , updated_at
  , deleted_at
`

// FormResponseRepository handles form response database operations.
type FormResponseRepository struct {
	db     dbtx
	logger *slog.Logger
}

func scanFormResponse(row rowScanner) (*models.FormResponse, error) {
	var (
		response    models.FormResponse
		answersJSON []byte
	)

	err := row.Scan(
		&response.ID,
		&response.FlowID,
		&response.FormTemplateID,
		&response.CurrentStepID,
		&response.SubmittedBy,
		&response.CompletedBy,
		&answersJSON,
		&response.Status,
		&response.RejectReason,
		&response.StepEnteredAt,
		&response.CreatedAt,
		&response.UpdatedAt,
		&response.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(answersJSON, &response.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
	}

	return &response, nil
}

func (r *FormResponseRepository) GetByID(ctx context.Context, id string) (*models.FormResponse, error) {
	response, err := scanFormResponse(r.db.QueryRowContext(ctx,
		`SELECT `+formResponseColumns+` FROM form_responses WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan form response: %w", err)
	}

	return response, nil
}

func (r *FormResponseRepository) Create(ctx context.Context, response *models.FormResponse) error {
	answersJSON, err := marshalAnswers(response.Answers)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO form_responses (`+formResponseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		response.ID,
		response.FlowID,
		response.FormTemplateID,
		response.CurrentStepID,
		response.SubmittedBy,
		response.CompletedBy,
		answersJSON,
		response.Status,
		response.RejectReason,
		response.StepEnteredAt,
		response.CreatedAt,
		response.UpdatedAt,
		response.DeletedAt,
	)
	if err != nil {
		return mapWriteError("Create", "form_response", response.ID, err)
	}

	return nil
}

// Update is a compare-and-swap on the status/current-step pair.
func (r *FormResponseRepository) Update(
	ctx context.Context,
	response *models.FormResponse,
	expected models.FormResponseState,
) error {
	answersJSON, err := marshalAnswers(response.Answers)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE form_responses SET
			current_step_id = $2,
			completed_by = $3,
			answers = $4,
			status = $5,
			reject_reason = $6,
			step_entered_at = $7,
			updated_at = $8,
			deleted_at = $9
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND status = $10
		  AND current_step_id = $11
	`,
		response.ID,
		response.CurrentStepID,
		response.CompletedBy,
		answersJSON,
		response.Status,
		response.RejectReason,
		response.StepEnteredAt,
		response.UpdatedAt,
		response.DeletedAt,
		expected.Status,
		expected.CurrentStepID,
	)
	if err != nil {
		return fmt.Errorf("failed to update form response: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("Update", "form_response", response.ID, persistence.ErrStaleWrite)
	}

	return nil
}

var formResponseOrderColumns = map[models.FormResponseSortField]string{
	models.FormResponseSortCreatedAt: "created_at",
	models.FormResponseSortUpdatedAt: "updated_at",
	models.FormResponseSortStatus:    "status",
}

func (r *FormResponseRepository) List(
	ctx context.Context,
	opts persistence.ListFormResponsesOptions,
) (*persistence.Page[*models.FormResponse], error) {
	if opts.Positions != nil && len(opts.Positions) == 0 {
		return &persistence.Page[*models.FormResponse]{Items: []*models.FormResponse{}}, nil
	}

	filter := newFilter("deleted_at IS NULL")
	filter.equal("submitted_by", opts.SubmittedBy)
	filter.equal("flow_id", opts.FlowID)
	filter.equal("current_step_id", opts.StepID)

	if opts.Status != nil {
		filter.add("status = $%d", *opts.Status)
	}

	if opts.EnteredBefore != nil {
		filter.add("step_entered_at < $%d", *opts.EnteredBefore)
	}

	if len(opts.Positions) > 0 {
		pairs := make([]string, 0, len(opts.Positions))
		for _, pos := range opts.Positions {
			flowArg := filter.arg(pos.FlowID)
			stepArg := filter.arg(pos.StepID)
			pairs = append(pairs, fmt.Sprintf("(flow_id = %s AND current_step_id = %s)", flowArg, stepArg))
		}

		filter.where = append(filter.where, "("+strings.Join(pairs, " OR ")+")")
	}

	column, ok := formResponseOrderColumns[opts.SortBy]
	if !ok {
		column = formResponseOrderColumns[models.FormResponseSortCreatedAt]
	}

	direction := sqlDirection(opts.SortOrder, models.SortOrderDesc)
	orderBy := fmt.Sprintf("%s %s, id %s", column, direction, direction)

	total, err := filter.count(ctx, r.db, "form_responses")
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+formResponseColumns+` FROM form_responses WHERE `+filter.clause()+
			` ORDER BY `+orderBy+filter.window(opts.Pagination),
		filter.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query form responses: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	items := make([]*models.FormResponse, 0)

	for rows.Next() {
		response, err := scanFormResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form response: %w", err)
		}

		items = append(items, response)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating form responses: %w", err)
	}

	return newPage(items, total, opts.Pagination), nil
}

func marshalAnswers(answers map[string]any) ([]byte, error) {
	if answers == nil {
		answers = map[string]any{}
	}

	data, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal answers: %w", err)
	}

	return data, nil
}
