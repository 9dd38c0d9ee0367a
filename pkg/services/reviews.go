package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukex/reviewflow/pkg/assignment"
	"github.com/dukex/reviewflow/pkg/events"
	"github.com/dukex/reviewflow/pkg/identity"
	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/notify"
	"github.com/dukex/reviewflow/pkg/otelhelper"
	"github.com/dukex/reviewflow/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// Reviews drives form responses through their flow: submission, approval or
// rejection at each step, and the queries over responses.
type Reviews struct {
	base

	users identity.Provider
}

// NewReviews creates a new review service.
func NewReviews(p persistence.Persistence, users identity.Provider, opts ...Option) *Reviews {
	return &Reviews{
		base:  newBase(p, "reviews", opts),
		users: users,
	}
}

type SubmitRequest struct {
	FlowID      string `validate:"required"`
	SubmittedBy string `validate:"required"`
	// CompletedBy is set when someone fills the form in on behalf of the
	// submitter.
	CompletedBy *string
	Answers     map[string]any
}

// Submit creates a pending response at the first step of the flow.
func (s *Reviews) Submit(ctx context.Context, req SubmitRequest) (response *models.FormResponse, err error) {
	const op = "Submit"

	ctx, span := s.startSpan(ctx, "reviews.submit",
		attribute.String(otelhelper.FlowIDKey, req.FlowID),
		attribute.String(otelhelper.ActorIDKey, req.SubmittedBy),
	)
	defer otelhelper.End(span, &err)

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	if req.CompletedBy != nil && (*req.CompletedBy == "" || *req.CompletedBy == req.SubmittedBy) {
		req.CompletedBy = nil
	}

	err = s.checkUsers(ctx, op, req.SubmittedBy, req.CompletedBy)
	if err != nil {
		return nil, err
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		flow, err := getFlow(ctx, op, repos, req.FlowID)
		if err != nil {
			return err
		}

		template, err := repos.FormTemplateRepository().GetByID(ctx, flow.FormTemplateID)
		if err != nil {
			return err
		}

		if template == nil {
			return notFound(op, "form template", flow.FormTemplateID)
		}

		err = validateAnswers(op, template, req.Answers)
		if err != nil {
			return err
		}

		first, ok := flow.FirstStep()
		if !ok {
			return newError(op, ErrEmptyFlow, fmt.Sprintf("flow %s has no steps", flow.ID))
		}

		now := s.now()
		response = &models.FormResponse{
			ID:             s.newID(),
			FlowID:         flow.ID,
			FormTemplateID: template.ID,
			CurrentStepID:  first.StepID,
			SubmittedBy:    req.SubmittedBy,
			CompletedBy:    req.CompletedBy,
			Answers:        req.Answers,
			Status:         models.FormResponseStatusPending,
			StepEnteredAt:  now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		return repos.FormResponseRepository().Create(ctx, response)
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	span.SetAttributes(attribute.String(otelhelper.FormResponseIDKey, response.ID))
	s.logger.InfoContext(ctx, "Form response submitted",
		"form_response_id", response.ID,
		"flow_id", response.FlowID,
		"step_id", response.CurrentStepID,
	)
	s.publish(ctx, response.ID, events.FormResponseSubmitted{
		BaseEvent:      events.NewBaseEvent(events.FormResponseSubmittedEvent, req.SubmittedBy),
		FormResponseID: response.ID,
		FlowID:         response.FlowID,
		StepID:         response.CurrentStepID,
		SubmittedBy:    response.SubmittedBy,
	})

	return response, nil
}

type ReviewRequest struct {
	FormResponseID string              `validate:"required"`
	ReviewerID     string              `validate:"required"`
	Decision       models.ReviewAction `validate:"required,oneof=approved rejected"`
	RejectReason   string
	// StepID is the expected-state token: the step the reviewer saw. When
	// set, a response that has moved on since fails with ErrNotFound, so a
	// retried or concurrent decision never lands on the next step. Callers
	// acting on a rendered review should always send it; left empty, the
	// decision applies to whatever step is current.
	StepID string
}

// Review applies one decision to a pending response. The status change and
// the review record are written atomically; a response that changed since it
// was read fails with ErrConcurrency.
func (s *Reviews) Review(ctx context.Context, req ReviewRequest) (response *models.FormResponse, err error) {
	const op = "Review"

	ctx, span := s.startSpan(ctx, "reviews.review",
		attribute.String(otelhelper.FormResponseIDKey, req.FormResponseID),
		attribute.String(otelhelper.ReviewerIDKey, req.ReviewerID),
		attribute.String(otelhelper.DecisionKey, string(req.Decision)),
	)
	defer otelhelper.End(span, &err)

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	var (
		flow     *models.Flow
		reviewed *models.Step
		from     models.FormResponseState
	)

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		response, err = repos.FormResponseRepository().GetByID(ctx, req.FormResponseID)
		if err != nil {
			return err
		}

		if response == nil {
			return notFound(op, "form response", req.FormResponseID)
		}

		if response.Status.IsTerminal() {
			return newError(op, ErrNotFound, fmt.Sprintf("form response %s is already %s", response.ID, response.Status))
		}

		if req.StepID != "" && req.StepID != response.CurrentStepID {
			return newError(op, ErrNotFound, fmt.Sprintf("form response %s is no longer at step %s", response.ID, req.StepID))
		}

		flow, err = repos.FlowRepository().GetByID(ctx, response.FlowID)
		if err != nil {
			return err
		}

		if flow == nil {
			return notFound(op, "flow", response.FlowID)
		}

		idx := flow.IndexOf(response.CurrentStepID)
		if idx < 0 {
			return notFound(op, "step", response.CurrentStepID)
		}

		reviewed, err = repos.StepRepository().GetByID(ctx, response.CurrentStepID)
		if err != nil {
			return err
		}

		authorized, err := assignment.NewResolver(repos.TeamRepository()).
			IsAuthorizedReviewer(ctx, effectiveAssignment(flow.Steps[idx], reviewed), req.ReviewerID)
		if err != nil {
			return err
		}

		if !authorized {
			return newError(op, ErrUnauthorizedReviewer, fmt.Sprintf(
				"user %s may not review step %s", req.ReviewerID, response.CurrentStepID))
		}

		reason, err := s.rejectReason(op, req)
		if err != nil {
			return err
		}

		from = response.State()
		now := s.now()

		switch req.Decision {
		case models.ReviewActionRejected:
			response.Status = models.FormResponseStatusRejected
			response.RejectReason = reason
		case models.ReviewActionApproved:
			next, hasNext, _ := flow.NextStep(response.CurrentStepID)
			if hasNext {
				response.CurrentStepID = next.StepID
				response.StepEnteredAt = now
			} else {
				response.Status = models.FormResponseStatusApproved
			}
		}

		response.UpdatedAt = now

		err = repos.FormResponseRepository().Update(ctx, response, from)
		if err != nil {
			return err
		}

		_, err = s.recorder.RecordReview(ctx, repos, response.ID, req.ReviewerID, from.CurrentStepID, req.Decision, reason)

		return err
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Form response reviewed",
		"form_response_id", response.ID,
		"reviewer_id", req.ReviewerID,
		"decision", req.Decision,
		"step_id", from.CurrentStepID,
		"status", response.Status,
	)

	s.afterReview(ctx, req.ReviewerID, response, flow, reviewed, from)

	return response, nil
}

func (s *Reviews) rejectReason(op string, req ReviewRequest) (*string, error) {
	if req.Decision != models.ReviewActionRejected {
		return nil, nil
	}

	reason := strings.TrimSpace(req.RejectReason)
	if reason == "" {
		return nil, NewValidationError(op, "", map[string]string{"reject_reason": "required"})
	}

	if utf8.RuneCountInString(reason) > s.maxRejectReason {
		return nil, NewValidationError(op, "", map[string]string{
			"reject_reason": fmt.Sprintf("max=%d", s.maxRejectReason),
		})
	}

	return &reason, nil
}

// afterReview publishes the outcome of a committed review and notifies the
// submitter of terminal outcomes. Nothing here can fail the review.
func (s *Reviews) afterReview(
	ctx context.Context,
	reviewerID string,
	response *models.FormResponse,
	flow *models.Flow,
	reviewed *models.Step,
	from models.FormResponseState,
) {
	switch response.Status {
	case models.FormResponseStatusPending:
		s.publish(ctx, response.ID, events.FormResponseAdvanced{
			BaseEvent:      events.NewBaseEvent(events.FormResponseAdvancedEvent, reviewerID),
			FormResponseID: response.ID,
			FlowID:         response.FlowID,
			FromStepID:     from.CurrentStepID,
			ToStepID:       response.CurrentStepID,
		})

		return
	case models.FormResponseStatusApproved:
		s.publish(ctx, response.ID, events.FormResponseApproved{
			BaseEvent:      events.NewBaseEvent(events.FormResponseApprovedEvent, reviewerID),
			FormResponseID: response.ID,
			FlowID:         response.FlowID,
			StepID:         from.CurrentStepID,
			Recipients:     response.Recipients(),
		})
	case models.FormResponseStatusRejected:
		s.publish(ctx, response.ID, events.FormResponseRejected{
			BaseEvent:      events.NewBaseEvent(events.FormResponseRejectedEvent, reviewerID),
			FormResponseID: response.ID,
			FlowID:         response.FlowID,
			StepID:         from.CurrentStepID,
			Reason:         deref(response.RejectReason),
			Recipients:     response.Recipients(),
		})
	}

	stepName := from.CurrentStepID
	if reviewed != nil {
		stepName = reviewed.Name
	}

	err := s.notifier.Notify(ctx, notify.Notification{
		FormResponseID: response.ID,
		FlowID:         flow.ID,
		FlowName:       flow.Name,
		StepID:         from.CurrentStepID,
		StepName:       stepName,
		Status:         response.Status,
		Reason:         deref(response.RejectReason),
		ReviewerID:     reviewerID,
		Recipients:     response.Recipients(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to notify about form response",
			"form_response_id", response.ID,
			"status", response.Status,
			"error", err,
		)
	}
}

type UpdateAnswersRequest struct {
	FormResponseID string `validate:"required"`
	SubmitterID    string `validate:"required"`
	Patch          models.FormResponsePatch
}

// UpdateAnswers lets the submitter edit a response that no one has reviewed
// yet.
func (s *Reviews) UpdateAnswers(ctx context.Context, req UpdateAnswersRequest) (response *models.FormResponse, err error) {
	const op = "UpdateAnswers"

	ctx, span := s.startSpan(ctx, "reviews.update_answers",
		attribute.String(otelhelper.FormResponseIDKey, req.FormResponseID))
	defer otelhelper.End(span, &err)

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	if req.Patch.IsEmpty() {
		return nil, NewValidationError(op, "", map[string]string{"patch": "nothing to update"})
	}

	if req.Patch.CompletedBy != nil && *req.Patch.CompletedBy != "" {
		err = s.checkUsers(ctx, op, *req.Patch.CompletedBy, nil)
		if err != nil {
			return nil, err
		}
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		response, err = repos.FormResponseRepository().GetByID(ctx, req.FormResponseID)
		if err != nil {
			return err
		}

		if response == nil {
			return notFound(op, "form response", req.FormResponseID)
		}

		if response.SubmittedBy != req.SubmitterID {
			return newError(op, ErrUnauthorizedReviewer, "only the submitter may edit a form response")
		}

		err = s.checkEditable(ctx, op, repos, response)
		if err != nil {
			return err
		}

		template, err := repos.FormTemplateRepository().GetByID(ctx, response.FormTemplateID)
		if err != nil {
			return err
		}

		if template == nil {
			return notFound(op, "form template", response.FormTemplateID)
		}

		expected := response.State()

		req.Patch.Apply(response)

		err = validateAnswers(op, template, response.Answers)
		if err != nil {
			return err
		}

		response.UpdatedAt = s.now()

		return repos.FormResponseRepository().Update(ctx, response, expected)
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Form response answers updated", "form_response_id", response.ID)

	return response, nil
}

// checkEditable allows edits only while the response waits at the first step
// of its flow with no review recorded.
func (s *Reviews) checkEditable(ctx context.Context, op string, repos persistence.Repositories, response *models.FormResponse) error {
	flow, err := repos.FlowRepository().GetByID(ctx, response.FlowID)
	if err != nil {
		return err
	}

	if flow == nil {
		return notFound(op, "flow", response.FlowID)
	}

	first, ok := flow.FirstStep()
	if response.Status != models.FormResponseStatusPending || !ok || first.StepID != response.CurrentStepID {
		return NewValidationError(op, "", map[string]string{"status": "form response is already under review"})
	}

	reviews, err := repos.FormReviewRepository().List(ctx, persistence.ListFormReviewsOptions{
		Pagination:     persistence.Pagination{Limit: 1},
		FormResponseID: response.ID,
	})
	if err != nil {
		return err
	}

	if reviews.TotalCount > 0 {
		return NewValidationError(op, "", map[string]string{"status": "form response is already under review"})
	}

	return nil
}

// DeleteResponse soft-deletes a response. The submitter and administrators
// may do so.
func (s *Reviews) DeleteResponse(ctx context.Context, actorID, responseID string) (err error) {
	const op = "DeleteResponse"

	ctx, span := s.startSpan(ctx, "reviews.delete_response",
		attribute.String(otelhelper.FormResponseIDKey, responseID),
		attribute.String(otelhelper.ActorIDKey, actorID),
	)
	defer otelhelper.End(span, &err)

	actor, err := s.users.UserByID(ctx, actorID)
	if err != nil {
		return wrapError(op, err)
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		response, err := repos.FormResponseRepository().GetByID(ctx, responseID)
		if err != nil {
			return err
		}

		if response == nil {
			return notFound(op, "form response", responseID)
		}

		if actor == nil || (actor.ID != response.SubmittedBy && !actor.HasRole(models.RoleAdmin)) {
			return newError(op, ErrUnauthorizedReviewer, "only the submitter or an administrator may delete a form response")
		}

		now := s.now()
		response.DeletedAt = &now
		response.UpdatedAt = now

		return repos.FormResponseRepository().Update(ctx, response, response.State())
	})
	if err != nil {
		return wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Form response deleted", "form_response_id", responseID, "actor_id", actorID)

	return nil
}

// GetResponse returns an active response.
func (s *Reviews) GetResponse(ctx context.Context, responseID string) (*models.FormResponse, error) {
	const op = "GetResponse"

	response, err := s.persistence.FormResponseRepository().GetByID(ctx, responseID)
	if err != nil {
		return nil, wrapError(op, err)
	}

	if response == nil {
		return nil, notFound(op, "form response", responseID)
	}

	return response, nil
}

// ListResponsesRequest filters and orders a response listing. Empty sort
// fields mean newest first.
type ListResponsesRequest struct {
	PageRequest

	Status    string
	SortBy    string
	SortOrder string
}

func (r ListResponsesRequest) options(op string) (persistence.ListFormResponsesOptions, error) {
	fields := map[string]string{}

	sortBy, ok := models.ParseFormResponseSortField(r.SortBy)
	if !ok {
		fields["sort_by"] = "unknown sort field " + r.SortBy
	}

	order, ok := models.ParseSortOrder(r.SortOrder)
	if !ok {
		fields["sort_order"] = "must be asc or desc"
	}

	opts := persistence.ListFormResponsesOptions{
		Pagination: r.pagination(),
		SortBy:     sortBy,
		SortOrder:  order,
	}

	if r.Status != "" {
		status := models.FormResponseStatus(r.Status)
		switch status {
		case models.FormResponseStatusPending, models.FormResponseStatusApproved, models.FormResponseStatusRejected:
			opts.Status = &status
		default:
			fields["status"] = "oneof=pending approved rejected"
		}
	}

	if len(fields) > 0 {
		return opts, NewValidationError(op, "", fields)
	}

	return opts, nil
}

// ListByUser lists the responses a user submitted.
func (s *Reviews) ListByUser(ctx context.Context, userID string, req ListResponsesRequest) (*persistence.Page[*models.FormResponse], error) {
	const op = "ListByUser"

	opts, err := s.listOptions(op, req)
	if err != nil {
		return nil, err
	}

	opts.SubmittedBy = userID

	return s.list(ctx, op, opts)
}

// ListByStep lists the responses currently at a step, across flows.
func (s *Reviews) ListByStep(ctx context.Context, stepID string, req ListResponsesRequest) (*persistence.Page[*models.FormResponse], error) {
	const op = "ListByStep"

	opts, err := s.listOptions(op, req)
	if err != nil {
		return nil, err
	}

	opts.StepID = stepID

	return s.list(ctx, op, opts)
}

// ListAssignedToReviewer lists the pending responses the reviewer may act on
// right now, honouring per-flow reviewer overrides.
func (s *Reviews) ListAssignedToReviewer(
	ctx context.Context,
	reviewerID string,
	req ListResponsesRequest,
) (page *persistence.Page[*models.FormResponse], err error) {
	const op = "ListAssignedToReviewer"

	ctx, span := s.startSpan(ctx, "reviews.list_assigned", attribute.String(otelhelper.ReviewerIDKey, reviewerID))
	defer otelhelper.End(span, &err)

	req.Status = string(models.FormResponseStatusPending)

	opts, err := s.listOptions(op, req)
	if err != nil {
		return nil, err
	}

	opts.Positions, err = s.positionsOf(ctx, reviewerID)
	if err != nil {
		return nil, wrapError(op, err)
	}

	return s.list(ctx, op, opts)
}

// positionsOf collects every flow/step pair the reviewer is authorised for.
func (s *Reviews) positionsOf(ctx context.Context, reviewerID string) ([]persistence.FlowPosition, error) {
	positions := []persistence.FlowPosition{}

	if reviewerID == "" {
		return positions, nil
	}

	flows, err := s.persistence.FlowRepository().List(ctx)
	if err != nil {
		return nil, err
	}

	resolver := assignment.NewResolver(s.persistence.TeamRepository())
	steps := map[string]*models.Step{}

	for _, flow := range flows {
		if !flow.IsActive() {
			continue
		}

		for _, fs := range flow.Steps {
			step, cached := steps[fs.StepID]
			if !cached {
				step, err = s.persistence.StepRepository().GetByID(ctx, fs.StepID)
				if err != nil {
					return nil, err
				}

				steps[fs.StepID] = step
			}

			authorized, err := resolver.IsAuthorizedReviewer(ctx, effectiveAssignment(fs, step), reviewerID)
			if err != nil {
				return nil, err
			}

			if authorized {
				positions = append(positions, persistence.FlowPosition{FlowID: flow.ID, StepID: fs.StepID})
			}
		}
	}

	return positions, nil
}

type ListStuckRequest struct {
	PageRequest

	StepID string
	// OlderThan defaults to the configured stuck threshold.
	OlderThan time.Duration `validate:"min=0"`
	SortBy    string
	SortOrder string
}

// ListStuck lists pending responses that entered their current step longer
// than OlderThan ago.
func (s *Reviews) ListStuck(ctx context.Context, req ListStuckRequest) (*persistence.Page[*models.FormResponse], error) {
	const op = "ListStuck"

	err := s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	opts, err := s.listOptions(op, ListResponsesRequest{
		PageRequest: req.PageRequest,
		Status:      string(models.FormResponseStatusPending),
		SortBy:      req.SortBy,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		return nil, err
	}

	olderThan := req.OlderThan
	if olderThan == 0 {
		olderThan = s.stuckAfter
	}

	cutoff := s.now().Add(-olderThan)
	opts.StepID = req.StepID
	opts.EnteredBefore = &cutoff

	return s.list(ctx, op, opts)
}

func (s *Reviews) listOptions(op string, req ListResponsesRequest) (persistence.ListFormResponsesOptions, error) {
	err := s.validateRequest(op, req)
	if err != nil {
		return persistence.ListFormResponsesOptions{}, err
	}

	return req.options(op)
}

func (s *Reviews) list(
	ctx context.Context,
	op string,
	opts persistence.ListFormResponsesOptions,
) (*persistence.Page[*models.FormResponse], error) {
	page, err := s.persistence.FormResponseRepository().List(ctx, opts)
	if err != nil {
		return nil, wrapError(op, err)
	}

	return page, nil
}

// checkUsers verifies that the submitter and the optional on-behalf completer
// are known users.
func (s *Reviews) checkUsers(ctx context.Context, op, submitterID string, completedBy *string) error {
	ids := []string{submitterID}
	if completedBy != nil {
		ids = append(ids, *completedBy)
	}

	for _, id := range ids {
		user, err := s.users.UserByID(ctx, id)
		if err != nil {
			return wrapError(op, err)
		}

		if user == nil {
			return notFound(op, "user", id)
		}
	}

	return nil
}

// effectiveAssignment is the roster of fs. A deleted step without a flow
// override has no reviewers.
func effectiveAssignment(fs models.FlowStep, step *models.Step) models.Assignment {
	if step == nil {
		if fs.Reviewers != nil {
			return *fs.Reviewers
		}

		return models.Assignment{}
	}

	return fs.EffectiveAssignment(step)
}

// validateAnswers checks answers against the template: required fields must
// be present and non-blank, unknown fields are rejected, and fields with a
// schema must satisfy it.
func validateAnswers(op string, template *models.FormTemplate, answers map[string]any) error {
	fields := map[string]string{}

	for key := range answers {
		if _, ok := template.Field(key); !ok {
			fields["answers."+key] = "unknown field"
		}
	}

	for _, field := range template.Fields {
		value, present := answers[field.ID]

		if !present || isBlank(value) {
			if field.Required {
				fields["answers."+field.ID] = "required"
			}

			continue
		}

		if field.Schema == nil {
			continue
		}

		problems, err := schemaProblems(field.Schema, value)
		if err != nil {
			fields["answers."+field.ID] = "invalid schema: " + err.Error()

			continue
		}

		if len(problems) > 0 {
			fields["answers."+field.ID] = strings.Join(problems, "; ")
		}
	}

	if len(fields) > 0 {
		return NewValidationError(op, "", fields)
	}

	return nil
}

func schemaProblems(schema map[string]any, value any) ([]string, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(value))
	if err != nil {
		return nil, err
	}

	if result.Valid() {
		return nil, nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return problems, nil
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
