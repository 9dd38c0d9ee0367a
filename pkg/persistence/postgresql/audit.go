package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// FormReviewRepository is the append-only table of review decisions.
type FormReviewRepository struct {
	db     dbtx
	logger *slog.Logger
}

func (r *FormReviewRepository) Append(ctx context.Context, review *models.FormReview) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO form_reviews (id, form_response_id, reviewer_id, step_id, action, reject_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		review.ID,
		review.FormResponseID,
		review.ReviewerID,
		review.StepID,
		review.Action,
		review.RejectReason,
		review.CreatedAt,
	)
	if err != nil {
		return mapWriteError("Append", "form_review", review.ID, err)
	}

	return nil
}

func (r *FormReviewRepository) List(
	ctx context.Context,
	opts persistence.ListFormReviewsOptions,
) (*persistence.Page[*models.FormReview], error) {
	filter := newFilter()
	filter.equal("form_response_id", opts.FormResponseID)
	filter.equal("reviewer_id", opts.ReviewerID)
	filter.equal("step_id", opts.StepID)
	filter.equal("action", string(opts.Action))
	filter.between("created_at", opts.From, opts.To)

	total, err := filter.count(ctx, r.db, "form_reviews")
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, form_response_id, reviewer_id, step_id, action, reject_reason, created_at
		FROM form_reviews
		WHERE `+filter.clause()+`
		ORDER BY created_at DESC, id DESC`+filter.window(opts.Pagination),
		filter.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query form reviews: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	items := make([]*models.FormReview, 0)

	for rows.Next() {
		var review models.FormReview

		err := rows.Scan(
			&review.ID,
			&review.FormResponseID,
			&review.ReviewerID,
			&review.StepID,
			&review.Action,
			&review.RejectReason,
			&review.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form review: %w", err)
		}

		items = append(items, &review)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating form reviews: %w", err)
	}

	return newPage(items, total, opts.Pagination), nil
}

// StepHistoryRepository is the append-only table of topology changes.
type StepHistoryRepository struct {
	db     dbtx
	logger *slog.Logger
}

func (r *StepHistoryRepository) Append(ctx context.Context, entry *models.StepHistory) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal step history details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO step_histories (id, step_id, actor_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		entry.ID,
		entry.StepID,
		entry.ActorID,
		entry.Action,
		details,
		entry.CreatedAt,
	)
	if err != nil {
		return mapWriteError("Append", "step_history", entry.ID, err)
	}

	return nil
}

func (r *StepHistoryRepository) List(
	ctx context.Context,
	opts persistence.ListStepHistoryOptions,
) (*persistence.Page[*models.StepHistory], error) {
	filter := newFilter()
	filter.equal("step_id", opts.StepID)
	filter.equal("actor_id", opts.ActorID)
	filter.equal("action", string(opts.Action))
	filter.between("created_at", opts.From, opts.To)

	total, err := filter.count(ctx, r.db, "step_histories")
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, step_id, actor_id, action, details, created_at
		FROM step_histories
		WHERE `+filter.clause()+`
		ORDER BY created_at DESC, id DESC`+filter.window(opts.Pagination),
		filter.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query step history: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	items := make([]*models.StepHistory, 0)

	for rows.Next() {
		var (
			entry   models.StepHistory
			details []byte
		)

		err := rows.Scan(&entry.ID, &entry.StepID, &entry.ActorID, &entry.Action, &details, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step history: %w", err)
		}

		err = json.Unmarshal(details, &entry.Details)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step history details: %w", err)
		}

		items = append(items, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step history: %w", err)
	}

	return newPage(items, total, opts.Pagination), nil
}
