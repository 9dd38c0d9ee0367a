package file

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// FormReviewRepository is the append-only file store of review decisions.
type FormReviewRepository struct {
	reviews collection[models.FormReview]
}

func (r *FormReviewRepository) Append(_ context.Context, review *models.FormReview) error {
	return r.reviews.store.exclusive(func() error {
		existing, err := r.reviews.get(review.ID)
		if err != nil {
			return err
		}

		if existing != nil {
			return persistence.NewEntityError("Append", "form_review", review.ID, persistence.ErrDuplicateKey)
		}

		return r.reviews.put(review.ID, review)
	})
}

func (r *FormReviewRepository) List(
	_ context.Context,
	opts persistence.ListFormReviewsOptions,
) (*persistence.Page[*models.FormReview], error) {
	reviews, err := r.reviews.filter(func(rv *models.FormReview) bool {
		switch {
		case opts.FormResponseID != "" && rv.FormResponseID != opts.FormResponseID:
			return false
		case opts.ReviewerID != "" && rv.ReviewerID != opts.ReviewerID:
			return false
		case opts.StepID != "" && rv.StepID != opts.StepID:
			return false
		case opts.Action != "" && rv.Action != opts.Action:
			return false
		}

		return within(rv.CreatedAt, opts.From, opts.To)
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(reviews, func(a, b *models.FormReview) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})

	return persistence.Paginate(reviews, opts.Pagination), nil
}

// StepHistoryRepository is the append-only file store of topology changes.
type StepHistoryRepository struct {
	entries collection[models.StepHistory]
}

func (r *StepHistoryRepository) Append(_ context.Context, entry *models.StepHistory) error {
	return r.entries.store.exclusive(func() error {
		existing, err := r.entries.get(entry.ID)
		if err != nil {
			return err
		}

		if existing != nil {
			return persistence.NewEntityError("Append", "step_history", entry.ID, persistence.ErrDuplicateKey)
		}

		return r.entries.put(entry.ID, entry)
	})
}

func (r *StepHistoryRepository) List(
	_ context.Context,
	opts persistence.ListStepHistoryOptions,
) (*persistence.Page[*models.StepHistory], error) {
	entries, err := r.entries.filter(func(e *models.StepHistory) bool {
		switch {
		case opts.StepID != "" && e.StepID != opts.StepID:
			return false
		case opts.ActorID != "" && e.ActorID != opts.ActorID:
			return false
		case opts.Action != "" && e.Action != opts.Action:
			return false
		}

		return within(e.CreatedAt, opts.From, opts.To)
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b *models.StepHistory) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})

	return persistence.Paginate(entries, opts.Pagination), nil
}

// within reports whether t lies in the inclusive [from, to] range.
func within(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}

	return to == nil || !t.After(*to)
}

func newestFirst(a, b time.Time, aID, bID string) int {
	return cmp.Or(b.Compare(a), cmp.Compare(bID, aID))
}
