package models

import "time"

// FormResponseStatus represents the review state of a form response.
type FormResponseStatus string

const (
	FormResponseStatusPending  FormResponseStatus = "pending"  // Awaiting the current step's reviewers
	FormResponseStatusApproved FormResponseStatus = "approved" // Cleared the last step
	FormResponseStatusRejected FormResponseStatus = "rejected" // Rejected at some step
)

// IsTerminal reports whether no further review can happen.
func (s FormResponseStatus) IsTerminal() bool {
	return s == FormResponseStatusApproved || s == FormResponseStatusRejected
}

// MaxRejectReasonLength is the default bound for reject reasons, in runes.
const MaxRejectReasonLength = 500

// FormResponse is one submission of answers travelling through a flow.
type FormResponse struct {
	ID             string             `json:"id"`
	FlowID         string             `json:"flow_id"`
	FormTemplateID string             `json:"form_template_id"`
	CurrentStepID  string             `json:"current_step_id"`
	SubmittedBy    string             `json:"submitted_by"`
	CompletedBy    *string            `json:"completed_by,omitempty"`
	Answers        map[string]any     `json:"answers"`
	Status         FormResponseStatus `json:"status"`
	RejectReason   *string            `json:"reject_reason,omitempty"`
	StepEnteredAt  time.Time          `json:"step_entered_at"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	DeletedAt      *time.Time         `json:"deleted_at,omitempty"`
}

// FormResponseState is the status/current-step pair used as the optimistic
// concurrency token of a response.
type FormResponseState struct {
	Status        FormResponseStatus
	CurrentStepID string
}

func (r *FormResponse) State() FormResponseState {
	return FormResponseState{Status: r.Status, CurrentStepID: r.CurrentStepID}
}

func (r *FormResponse) IsActive() bool {
	return r.DeletedAt == nil
}

// Recipients returns the users that hear about terminal transitions.
func (r *FormResponse) Recipients() []string {
	recipients := []string{r.SubmittedBy}
	if r.CompletedBy != nil && *r.CompletedBy != r.SubmittedBy {
		recipients = append(recipients, *r.CompletedBy)
	}

	return recipients
}
