package models

import "time"

// ReviewAction is the decision recorded by a review.
type ReviewAction string

const (
	ReviewActionApproved ReviewAction = "approved"
	ReviewActionRejected ReviewAction = "rejected"
)

// IsValid reports whether the action is one of the known decisions.
func (a ReviewAction) IsValid() bool {
	return a == ReviewActionApproved || a == ReviewActionRejected
}

// FormReview is an immutable record of one review decision.
type FormReview struct {
	ID             string       `json:"id"`
	FormResponseID string       `json:"form_response_id"`
	ReviewerID     string       `json:"reviewer_id"`
	StepID         string       `json:"step_id"`
	Action         ReviewAction `json:"action"`
	RejectReason   *string      `json:"reject_reason,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}
