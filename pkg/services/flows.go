package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/reviewflow/pkg/assignment"
	"github.com/dukex/reviewflow/pkg/identity"
	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/otelhelper"
	"github.com/dukex/reviewflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// Flows owns flow definitions: which steps a form passes through and in which
// order.
type Flows struct {
	base

	users identity.Provider
}

// NewFlows creates a new flow service.
func NewFlows(p persistence.Persistence, users identity.Provider, opts ...Option) *Flows {
	return &Flows{
		base:  newBase(p, "flows", opts),
		users: users,
	}
}

type CreateFlowRequest struct {
	Name           string `validate:"required,max=255,nocontrol"`
	FormTemplateID string `validate:"required"`
	Steps          []models.FlowStep
}

// CreateFlow creates a flow over existing active steps. Every step must end up
// with at least one reviewer, either from its own roster or from the flow's
// override.
func (s *Flows) CreateFlow(ctx context.Context, req CreateFlowRequest) (flow *models.Flow, err error) {
	const op = "CreateFlow"

	ctx, span := s.startSpan(ctx, "flows.create_flow")
	defer otelhelper.End(span, &err)

	req.Name = strings.TrimSpace(req.Name)

	err = s.validateRequest(op, req)
	if err != nil {
		return nil, err
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		existing, err := repos.FlowRepository().GetByName(ctx, req.Name)
		if err != nil {
			return err
		}

		if existing != nil {
			return newError(op, ErrDuplicateName, fmt.Sprintf("flow %q already exists", req.Name))
		}

		template, err := repos.FormTemplateRepository().GetByID(ctx, req.FormTemplateID)
		if err != nil {
			return err
		}

		if template == nil {
			return notFound(op, "form template", req.FormTemplateID)
		}

		err = s.validateSteps(ctx, op, repos, req.Steps)
		if err != nil {
			return err
		}

		now := s.now()
		flow = &models.Flow{
			ID:             s.newID(),
			Name:           req.Name,
			FormTemplateID: template.ID,
			Steps:          req.Steps,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		return repos.FlowRepository().Save(ctx, flow)
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	span.SetAttributes(attribute.String(otelhelper.FlowIDKey, flow.ID))
	s.logger.InfoContext(ctx, "Flow created", "flow_id", flow.ID, "steps", len(flow.Steps))

	return flow, nil
}

// ReplaceSteps swaps the whole ordered step list of a flow. Pending responses
// waiting at a step that the new list drops would be orphaned, so the
// replacement is refused while any exist.
func (s *Flows) ReplaceSteps(ctx context.Context, flowID string, steps []models.FlowStep) (flow *models.Flow, err error) {
	const op = "ReplaceSteps"

	ctx, span := s.startSpan(ctx, "flows.replace_steps", attribute.String(otelhelper.FlowIDKey, flowID))
	defer otelhelper.End(span, &err)

	if flowID == "" {
		return nil, NewValidationError(op, "", map[string]string{"flow_id": "required"})
	}

	err = s.persistence.Transaction(ctx, func(ctx context.Context, repos persistence.Repositories) error {
		flow, err = repos.FlowRepository().GetByID(ctx, flowID)
		if err != nil {
			return err
		}

		if flow == nil {
			return notFound(op, "flow", flowID)
		}

		err = s.validateSteps(ctx, op, repos, steps)
		if err != nil {
			return err
		}

		replacement := &models.Flow{Steps: steps}
		pending := models.FormResponseStatusPending

		for _, stepID := range flow.StepIDs() {
			if replacement.IndexOf(stepID) >= 0 {
				continue
			}

			waiting, err := repos.FormResponseRepository().List(ctx, persistence.ListFormResponsesOptions{
				Pagination: persistence.Pagination{Limit: 1},
				FlowID:     flow.ID,
				StepID:     stepID,
				Status:     &pending,
			})
			if err != nil {
				return err
			}

			if waiting.TotalCount > 0 {
				return NewValidationError(op, "", map[string]string{
					"steps": fmt.Sprintf("%d pending response(s) still wait at step %s", waiting.TotalCount, stepID),
				})
			}
		}

		flow.Steps = steps
		flow.UpdatedAt = s.now()

		return repos.FlowRepository().Save(ctx, flow)
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	s.logger.InfoContext(ctx, "Flow steps replaced", "flow_id", flow.ID, "steps", len(flow.Steps))

	return flow, nil
}

// validateSteps checks an ordered step list: non-empty, no repeats, every
// step active, every override naming known users and teams, and every
// position resolving to at least one reviewer.
func (s *Flows) validateSteps(ctx context.Context, op string, repos persistence.Repositories, steps []models.FlowStep) error {
	if len(steps) == 0 {
		return NewValidationError(op, "", map[string]string{"steps": "at least one step is required"})
	}

	resolver := assignment.NewResolver(repos.TeamRepository())
	seen := make(map[string]bool, len(steps))
	fields := map[string]string{}

	for i, fs := range steps {
		key := "steps[" + strconv.Itoa(i) + "]"

		if fs.StepID == "" {
			fields[key+".step_id"] = "required"

			continue
		}

		if seen[fs.StepID] {
			fields[key+".step_id"] = "step appears more than once"

			continue
		}

		seen[fs.StepID] = true

		step, err := repos.StepRepository().GetByID(ctx, fs.StepID)
		if err != nil {
			return err
		}

		if step == nil {
			return notFound(op, "step", fs.StepID)
		}

		if fs.Reviewers != nil {
			err = checkMembers(ctx, op, s.users, repos.TeamRepository(), fs.Reviewers.UserIDs, fs.Reviewers.TeamIDs)
			if err != nil {
				return err
			}
		}

		reviewers, err := resolver.ResolveReviewers(ctx, fs.EffectiveAssignment(step))
		if err != nil {
			return err
		}

		if reviewers.IsEmpty() {
			fields[key+".reviewers"] = fmt.Sprintf("step %q has no reviewers", step.Name)
		}
	}

	if len(fields) > 0 {
		return NewValidationError(op, "", fields)
	}

	return nil
}

// GetFlow returns an active flow.
func (s *Flows) GetFlow(ctx context.Context, flowID string) (*models.Flow, error) {
	return getFlow(ctx, "GetFlow", s.persistence, flowID)
}

func getFlow(ctx context.Context, op string, repos persistence.Repositories, flowID string) (*models.Flow, error) {
	flow, err := repos.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, wrapError(op, err)
	}

	if flow == nil || !flow.IsActive() {
		return nil, notFound(op, "flow", flowID)
	}

	return flow, nil
}

func (s *Flows) ListFlows(ctx context.Context) ([]*models.Flow, error) {
	flows, err := s.persistence.FlowRepository().List(ctx)
	if err != nil {
		return nil, wrapError("ListFlows", err)
	}

	return flows, nil
}

// GetFirstStep returns the step new responses of the flow start at.
func (s *Flows) GetFirstStep(ctx context.Context, flowID string) (*models.Step, error) {
	const op = "GetFirstStep"

	flow, err := getFlow(ctx, op, s.persistence, flowID)
	if err != nil {
		return nil, err
	}

	fs, ok := flow.FirstStep()
	if !ok {
		return nil, newError(op, ErrEmptyFlow, fmt.Sprintf("flow %s has no steps", flowID))
	}

	return getStep(ctx, op, s.persistence, fs.StepID)
}

// GetNextStep returns the step after currentStepID, or nil when currentStepID
// is the last step of the flow.
func (s *Flows) GetNextStep(ctx context.Context, flowID, currentStepID string) (*models.Step, error) {
	const op = "GetNextStep"

	flow, err := getFlow(ctx, op, s.persistence, flowID)
	if err != nil {
		return nil, err
	}

	next, hasNext, inFlow := flow.NextStep(currentStepID)
	if !inFlow {
		return nil, notFound(op, "step", currentStepID)
	}

	if !hasNext {
		return nil, nil
	}

	return getStep(ctx, op, s.persistence, next.StepID)
}

func getStep(ctx context.Context, op string, repos persistence.Repositories, stepID string) (*models.Step, error) {
	step, err := repos.StepRepository().GetByID(ctx, stepID)
	if err != nil {
		return nil, wrapError(op, err)
	}

	if step == nil {
		return nil, notFound(op, "step", stepID)
	}

	return step, nil
}
