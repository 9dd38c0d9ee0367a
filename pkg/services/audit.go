package services

import (
	"context"
	"time"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence"
)

// AuditLog is the read side of the audit trail. Listings are newest first
// with ties broken by ID, so pages never overlap or skip entries.
type AuditLog struct {
	base
}

func NewAuditLog(p persistence.Persistence, opts ...Option) *AuditLog {
	return &AuditLog{base: newBase(p, "audit", opts)}
}

type StepHistoryRequest struct {
	PageRequest

	StepID  string
	ActorID string
	Action  string
	From    *time.Time
	To      *time.Time
}

// ListStepHistory lists topology changes, including those of deleted steps.
func (s *AuditLog) ListStepHistory(ctx context.Context, req StepHistoryRequest) (*persistence.Page[*models.StepHistory], error) {
	const op = "ListStepHistory"

	err := s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	action := models.StepHistoryAction(req.Action)
	if action != "" && !action.IsValid() {
		return nil, NewValidationError(op, "", map[string]string{"action": "oneof=create name_change delete move_users"})
	}

	err = parseTimeRange(op, req.From, req.To)
	if err != nil {
		return nil, err
	}

	page, err := s.persistence.StepHistoryRepository().List(ctx, persistence.ListStepHistoryOptions{
		Pagination: req.pagination(),
		StepID:     req.StepID,
		ActorID:    req.ActorID,
		Action:     action,
		From:       req.From,
		To:         req.To,
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	return page, nil
}

type ReviewHistoryRequest struct {
	PageRequest

	FormResponseID string
	ReviewerID     string
	StepID         string
	Action         string
	From           *time.Time
	To             *time.Time
}

// ListReviewHistory lists review decisions.
func (s *AuditLog) ListReviewHistory(ctx context.Context, req ReviewHistoryRequest) (*persistence.Page[*models.FormReview], error) {
	const op = "ListReviewHistory"

	err := s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	action := models.ReviewAction(req.Action)
	if action != "" && !action.IsValid() {
		return nil, NewValidationError(op, "", map[string]string{"action": "oneof=approved rejected"})
	}

	err = parseTimeRange(op, req.From, req.To)
	if err != nil {
		return nil, err
	}

	page, err := s.persistence.FormReviewRepository().List(ctx, persistence.ListFormReviewsOptions{
		Pagination:     req.pagination(),
		FormResponseID: req.FormResponseID,
		ReviewerID:     req.ReviewerID,
		StepID:         req.StepID,
		Action:         action,
		From:           req.From,
		To:             req.To,
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	return page, nil
}
