// Package audit is the append-only write path of the audit log. Entries are
// recorded through the repositories of the caller's transaction so they
// commit or roll back with the change they describe.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// Recorder stamps and appends audit entries.
type Recorder struct {
	now   func() time.Time
	newID func() string
}

func NewRecorder(now func() time.Time, newID func() string) *Recorder {
	return &Recorder{now: now, newID: newID}
}

// RecordStepChange appends a step history entry.
func (r *Recorder) RecordStepChange(
	ctx context.Context,
	repos persistence.Repositories,
	stepID, actorID string,
	action models.StepHistoryAction,
	details models.StepHistoryDetails,
) (*models.StepHistory, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("unknown step history action %q", action)
	}

	entry := &models.StepHistory{
		ID:        r.newID(),
		StepID:    stepID,
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		CreatedAt: r.now(),
	}

	err := repos.StepHistoryRepository().Append(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to append step history: %w", err)
	}

	return entry, nil
}

// RecordReview appends the decision reviewerID made on response at stepID.
func (r *Recorder) RecordReview(
	ctx context.Context,
	repos persistence.Repositories,
	responseID, reviewerID, stepID string,
	action models.ReviewAction,
	reason *string,
) (*models.FormReview, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("unknown review action %q", action)
	}

	review := &models.FormReview{
		ID:             r.newID(),
		FormResponseID: responseID,
		ReviewerID:     reviewerID,
		StepID:         stepID,
		Action:         action,
		RejectReason:   reason,
		CreatedAt:      r.now(),
	}

	err := repos.FormReviewRepository().Append(ctx, review)
	if err != nil {
		return nil, fmt.Errorf("failed to append form review: %w", err)
	}

	return review, nil
}
