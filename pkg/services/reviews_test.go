package services_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dukex/reviewflow/pkg/events"
	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/notify"
	"github.com/dukex/reviewflow/pkg/services"
	"github.com/dukex/reviewflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Scenario A.
func TestReviews_ApprovalMovesToNextStep(t *testing.T) {
	f := newFixture(t)
	flow, intake, approval := f.onboarding(t)

	response := f.submit(t, flow.ID, "u5")
	assert.Equal(t, intake.ID, response.CurrentStepID)
	assert.Equal(t, models.FormResponseStatusPending, response.Status)

	f.tick()

	reviewed, err := f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: response.ID,
		ReviewerID:     "u1",
		Decision:       models.ReviewActionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, approval.ID, reviewed.CurrentStepID)
	assert.Equal(t, models.FormResponseStatusPending, reviewed.Status)
	assert.Equal(t, f.clock.Now(), reviewed.StepEnteredAt)

	_, err = f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: response.ID,
		ReviewerID:     "u2",
		Decision:       models.ReviewActionApproved,
	})
	require.ErrorIs(t, err, services.ErrUnauthorizedReviewer)
	assert.True(t, services.IsUnauthorized(err))

	f.bus.AssertCalled(t, "Publish", mock.Anything, response.ID, mock.MatchedBy(func(e events.FormResponseAdvanced) bool {
		return e.FromStepID == intake.ID && e.ToStepID == approval.ID
	}))
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestReviews_LastApprovalCompletesTheResponse(t *testing.T) {
	f := newFixture(t)
	flow, intake, approval := f.onboarding(t)

	response := f.submit(t, flow.ID, "u5")

	for _, reviewer := range []string{"u1", "u3"} {
		f.tick()

		_, err := f.reviews.Review(t.Context(), services.ReviewRequest{
			FormResponseID: response.ID,
			ReviewerID:     reviewer,
			Decision:       models.ReviewActionApproved,
		})
		require.NoError(t, err)
	}

	done, err := f.reviews.GetResponse(t.Context(), response.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FormResponseStatusApproved, done.Status)
	assert.Equal(t, approval.ID, done.CurrentStepID)

	history, err := f.audit.ListReviewHistory(t.Context(), services.ReviewHistoryRequest{FormResponseID: response.ID})
	require.NoError(t, err)
	require.EqualValues(t, 2, history.TotalCount, "one review per traversed step")
	assert.Equal(t, approval.ID, history.Items[0].StepID)
	assert.Equal(t, intake.ID, history.Items[1].StepID)

	f.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Status == models.FormResponseStatusApproved &&
			n.FlowName == "Onboarding" &&
			n.StepName == "Approval" &&
			assert.ObjectsAreEqual([]string{"u5"}, n.Recipients)
	}))
}

func TestReviews_RejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	flow, intake, _ := f.onboarding(t)

	response := f.submit(t, flow.ID, "u5")

	rejected, err := f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: response.ID,
		ReviewerID:     "u1",
		Decision:       models.ReviewActionRejected,
		RejectReason:   "  incomplete  ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FormResponseStatusRejected, rejected.Status)
	assert.Equal(t, intake.ID, rejected.CurrentStepID, "rejection never advances")
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "incomplete", *rejected.RejectReason)

	for _, decision := range []models.ReviewAction{models.ReviewActionApproved, models.ReviewActionRejected} {
		_, err = f.reviews.Review(t.Context(), services.ReviewRequest{
			FormResponseID: response.ID,
			ReviewerID:     "u1",
			Decision:       decision,
			RejectReason:   "again",
		})
		require.ErrorIs(t, err, services.ErrNotFound)
	}

	history, err := f.audit.ListReviewHistory(t.Context(), services.ReviewHistoryRequest{FormResponseID: response.ID})
	require.NoError(t, err)
	require.Len(t, history.Items, 1)
	assert.Equal(t, models.ReviewActionRejected, history.Items[0].Action)

	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
	f.bus.AssertCalled(t, "Publish", mock.Anything, response.ID, mock.MatchedBy(func(e events.FormResponseRejected) bool {
		return e.Reason == "incomplete" && e.StepID == intake.ID
	}))
}

// Scenario D.
func TestReviews_RejectRequiresReason(t *testing.T) {
	f := newFixture(t, services.WithMaxRejectReasonLength(10))
	flow, intake, _ := f.onboarding(t)

	response := f.submit(t, flow.ID, "u5")

	for _, reason := range []string{"", "   ", strings.Repeat("é", 11)} {
		_, err := f.reviews.Review(t.Context(), services.ReviewRequest{
			FormResponseID: response.ID,
			ReviewerID:     "u1",
			Decision:       models.ReviewActionRejected,
			RejectReason:   reason,
		})
		require.ErrorIs(t, err, services.ErrValidation, "reason %q", reason)
	}

	history, err := f.audit.ListReviewHistory(t.Context(), services.ReviewHistoryRequest{FormResponseID: response.ID})
	require.NoError(t, err)
	assert.Empty(t, history.Items)

	unchanged, err := f.reviews.GetResponse(t.Context(), response.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FormResponseStatusPending, unchanged.Status)
	assert.Equal(t, intake.ID, unchanged.CurrentStepID)

	_, err = f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: response.ID,
		ReviewerID:     "u1",
		Decision:       models.ReviewActionRejected,
		RejectReason:   strings.Repeat("é", 10),
	})
	require.NoError(t, err)
}

func TestReviews_UnauthorizedReviewLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	flow, _, _ := f.onboarding(t)

	response := f.submit(t, flow.ID, "u5")

	_, err := f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: response.ID,
		ReviewerID:     "u2",
		Decision:       models.ReviewActionRejected,
	})
	require.ErrorIs(t, err, services.ErrUnauthorizedReviewer, "authorisation is checked before the reason")

	history, err := f.audit.ListReviewHistory(t.Context(), services.ReviewHistoryRequest{FormResponseID: response.ID})
	require.NoError(t, err)
	assert.Empty(t, history.Items)
}

func TestReviews_ReviewInputErrors(t *testing.T) {
	f := newFixture(t)
	flow, _, approval := f.onboarding(t)

	response := f.submit(t, flow.ID, "u5")

	tests := []struct {
		name     string
		req      services.ReviewRequest
		expected error
	}{
		{
			name:     "unknown response",
			req:      services.ReviewRequest{FormResponseID: "missing", ReviewerID: "u1", Decision: models.ReviewActionApproved},
			expected: services.ErrNotFound,
		},
		{
			name:     "unknown decision",
			req:      services.ReviewRequest{FormResponseID: response.ID, ReviewerID: "u1", Decision: "maybe"},
			expected: services.ErrValidation,
		},
		{
			name:     "missing reviewer",
			req:      services.ReviewRequest{FormResponseID: response.ID, Decision: models.ReviewActionApproved},
			expected: services.ErrValidation,
		},
		{
			name: "stale step",
			req: services.ReviewRequest{
				FormResponseID: response.ID, ReviewerID: "u1", Decision: models.ReviewActionApproved, StepID: approval.ID,
			},
			expected: services.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reviews.Review(t.Context(), tt.req)
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestReviews_StepIDPinsTheDecision(t *testing.T) {
	f := newFixture(t)

	first := testutil.NewStep("First", testutil.WithUsers("u1"))
	second := testutil.NewStep("Second", testutil.WithUsers("u1"))
	template := testutil.NewFormTemplate(testutil.OptionalField("name"))
	f.seed(t, first, second, template)

	flow, err := f.flows.CreateFlow(t.Context(), services.CreateFlowRequest{
		Name:           "Two steps",
		FormTemplateID: template.ID,
		Steps:          []models.FlowStep{{StepID: first.ID}, {StepID: second.ID}},
	})
	require.NoError(t, err)

	response := f.submit(t, flow.ID, "u5")
	req := services.ReviewRequest{
		FormResponseID: response.ID, ReviewerID: "u1", Decision: models.ReviewActionApproved, StepID: first.ID,
	}

	advanced, err := f.reviews.Review(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, second.ID, advanced.CurrentStepID)

	_, err = f.reviews.Review(t.Context(), req)
	require.ErrorIs(t, err, services.ErrNotFound, "a repeated decision does not approve the next step")

	unchanged, err := f.reviews.GetResponse(t.Context(), response.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, unchanged.CurrentStepID)
	assert.Equal(t, models.FormResponseStatusPending, unchanged.Status)

	req.StepID = second.ID
	done, err := f.reviews.Review(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, models.FormResponseStatusApproved, done.Status)
}

func TestReviews_TeamMembersAndOverrides(t *testing.T) {
	f := newFixture(t)

	ops := testutil.NewTeam("Ops", "u2")
	intake := testutil.NewStep("Intake", testutil.WithTeams(ops.ID))
	template := testutil.NewFormTemplate(testutil.OptionalField("name"))
	f.seed(t, ops, intake, template)

	byTeam, err := f.flows.CreateFlow(t.Context(), services.CreateFlowRequest{
		Name: "By team", FormTemplateID: template.ID, Steps: []models.FlowStep{{StepID: intake.ID}},
	})
	require.NoError(t, err)

	byOverride, err := f.flows.CreateFlow(t.Context(), services.CreateFlowRequest{
		Name:           "By override",
		FormTemplateID: template.ID,
		Steps:          []models.FlowStep{{StepID: intake.ID, Reviewers: &models.Assignment{UserIDs: []string{"u4"}}}},
	})
	require.NoError(t, err)

	first := f.submit(t, byTeam.ID, "u5")
	second := f.submit(t, byOverride.ID, "u5")

	_, err = f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: second.ID, ReviewerID: "u2", Decision: models.ReviewActionApproved,
	})
	require.ErrorIs(t, err, services.ErrUnauthorizedReviewer, "the override replaces the step roster")

	assigned, err := f.reviews.ListAssignedToReviewer(t.Context(), "u2", services.ListResponsesRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, responseIDs(assigned.Items))

	assigned, err = f.reviews.ListAssignedToReviewer(t.Context(), "u4", services.ListResponsesRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, responseIDs(assigned.Items))

	assigned, err = f.reviews.ListAssignedToReviewer(t.Context(), "u1", services.ListResponsesRequest{})
	require.NoError(t, err)
	assert.Empty(t, assigned.Items)

	_, err = f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: first.ID, ReviewerID: "u2", Decision: models.ReviewActionApproved,
	})
	require.NoError(t, err)

	assigned, err = f.reviews.ListAssignedToReviewer(t.Context(), "u2", services.ListResponsesRequest{})
	require.NoError(t, err)
	assert.Empty(t, assigned.Items, "only pending responses are assigned")
}

func TestReviews_Submit(t *testing.T) {
	f := newFixture(t)

	intake := testutil.NewStep("Intake", testutil.WithUsers("u1"))
	template := testutil.NewFormTemplate(
		testutil.RequiredField("name"),
		models.FormField{ID: "age", Schema: map[string]any{"type": "integer", "minimum": 18}},
	)
	f.seed(t, intake, template)

	flow, err := f.flows.CreateFlow(t.Context(), services.CreateFlowRequest{
		Name: "Signup", FormTemplateID: template.ID, Steps: []models.FlowStep{{StepID: intake.ID}},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		req      services.SubmitRequest
		expected error
		field    string
	}{
		{
			name:     "missing required field",
			req:      services.SubmitRequest{FlowID: flow.ID, SubmittedBy: "u5", Answers: map[string]any{"age": 30}},
			expected: services.ErrValidation,
			field:    "answers.name",
		},
		{
			name:     "blank required field",
			req:      services.SubmitRequest{FlowID: flow.ID, SubmittedBy: "u5", Answers: map[string]any{"name": " "}},
			expected: services.ErrValidation,
			field:    "answers.name",
		},
		{
			name:     "schema violation",
			req:      services.SubmitRequest{FlowID: flow.ID, SubmittedBy: "u5", Answers: map[string]any{"name": "Ana", "age": 12}},
			expected: services.ErrValidation,
			field:    "answers.age",
		},
		{
			name:     "unknown field",
			req:      services.SubmitRequest{FlowID: flow.ID, SubmittedBy: "u5", Answers: map[string]any{"name": "Ana", "color": "red"}},
			expected: services.ErrValidation,
			field:    "answers.color",
		},
		{
			name:     "unknown submitter",
			req:      services.SubmitRequest{FlowID: flow.ID, SubmittedBy: "ghost", Answers: map[string]any{"name": "Ana"}},
			expected: services.ErrNotFound,
		},
		{
			name:     "unknown flow",
			req:      services.SubmitRequest{FlowID: "missing", SubmittedBy: "u5", Answers: map[string]any{"name": "Ana"}},
			expected: services.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reviews.Submit(t.Context(), tt.req)
			require.ErrorIs(t, err, tt.expected)

			if tt.field != "" {
				var serviceErr *services.ServiceError
				require.ErrorAs(t, err, &serviceErr)
				assert.Contains(t, serviceErr.Fields, tt.field)
			}
		})
	}

	response, err := f.reviews.Submit(t.Context(), services.SubmitRequest{
		FlowID:      flow.ID,
		SubmittedBy: "u5",
		CompletedBy: ptr("u4"),
		Answers:     map[string]any{"name": "Ana", "age": 30},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u5", "u4"}, response.Recipients())

	f.bus.AssertCalled(t, "Publish", mock.Anything, response.ID, mock.MatchedBy(func(e events.FormResponseSubmitted) bool {
		return e.SubmittedBy == "u5" && e.StepID == intake.ID
	}))
}

func TestReviews_NotificationFailureDoesNotFailReview(t *testing.T) {
	f := newFixture(t)
	flow, _, _ := f.onboarding(t)

	f.notifier.ExpectedCalls = nil
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	response := f.submit(t, flow.ID, "u5")

	rejected, err := f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: response.ID,
		ReviewerID:     "u1",
		Decision:       models.ReviewActionRejected,
		RejectReason:   "missing documents",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FormResponseStatusRejected, rejected.Status)
	f.notifier.AssertExpectations(t)
}

func TestReviews_UpdateAnswers(t *testing.T) {
	f := newFixture(t)
	flow, _, _ := f.onboarding(t)

	response := f.submit(t, flow.ID, "u5")

	updated, err := f.reviews.UpdateAnswers(t.Context(), services.UpdateAnswersRequest{
		FormResponseID: response.ID,
		SubmitterID:    "u5",
		Patch:          models.FormResponsePatch{Answers: map[string]any{"notes": "late", "name": "Ana Maria"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ana Maria", "notes": "late"}, updated.Answers)

	_, err = f.reviews.UpdateAnswers(t.Context(), services.UpdateAnswersRequest{
		FormResponseID: response.ID,
		SubmitterID:    "u5",
		Patch:          models.FormResponsePatch{Answers: map[string]any{"name": nil}},
	})
	require.ErrorIs(t, err, services.ErrValidation, "removing a required answer")

	_, err = f.reviews.UpdateAnswers(t.Context(), services.UpdateAnswersRequest{
		FormResponseID: response.ID,
		SubmitterID:    "u4",
		Patch:          models.FormResponsePatch{Answers: map[string]any{"notes": "mine"}},
	})
	require.ErrorIs(t, err, services.ErrUnauthorizedReviewer)

	_, err = f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: response.ID, ReviewerID: "u1", Decision: models.ReviewActionApproved,
	})
	require.NoError(t, err)

	_, err = f.reviews.UpdateAnswers(t.Context(), services.UpdateAnswersRequest{
		FormResponseID: response.ID,
		SubmitterID:    "u5",
		Patch:          models.FormResponsePatch{Answers: map[string]any{"notes": "too late"}},
	})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestReviews_DeleteResponse(t *testing.T) {
	f := newFixture(t)
	flow, _, _ := f.onboarding(t)

	own := f.submit(t, flow.ID, "u5")
	other := f.submit(t, flow.ID, "u5")

	err := f.reviews.DeleteResponse(t.Context(), "u4", own.ID)
	require.ErrorIs(t, err, services.ErrUnauthorizedReviewer)

	require.NoError(t, f.reviews.DeleteResponse(t.Context(), "u5", own.ID))
	require.NoError(t, f.reviews.DeleteResponse(t.Context(), "admin", other.ID))

	for _, id := range []string{own.ID, other.ID} {
		_, err = f.reviews.GetResponse(t.Context(), id)
		require.ErrorIs(t, err, services.ErrNotFound)

		_, err = f.reviews.Review(t.Context(), services.ReviewRequest{
			FormResponseID: id, ReviewerID: "u1", Decision: models.ReviewActionApproved,
		})
		require.ErrorIs(t, err, services.ErrNotFound)
	}

	mine, err := f.reviews.ListByUser(t.Context(), "u5", services.ListResponsesRequest{})
	require.NoError(t, err)
	assert.Empty(t, mine.Items)
}

func TestReviews_Listings(t *testing.T) {
	f := newFixture(t)
	flow, intake, approval := f.onboarding(t)

	var ids []string

	for range 3 {
		f.tick()
		ids = append(ids, f.submit(t, flow.ID, "u5").ID)
	}

	f.tick()
	f.submit(t, flow.ID, "u4")

	_, err := f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: ids[0], ReviewerID: "u1", Decision: models.ReviewActionApproved,
	})
	require.NoError(t, err)

	mine, err := f.reviews.ListByUser(t.Context(), "u5", services.ListResponsesRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, responseIDs(mine.Items), "newest first by default")

	page, err := f.reviews.ListByUser(t.Context(), "u5", services.ListResponsesRequest{
		PageRequest: services.PageRequest{Limit: 2, Offset: 1},
		SortOrder:   "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1], ids[2]}, responseIDs(page.Items))
	assert.EqualValues(t, 3, page.TotalCount)
	assert.False(t, page.HasNextPage)

	atIntake, err := f.reviews.ListByStep(t.Context(), intake.ID, services.ListResponsesRequest{})
	require.NoError(t, err)
	assert.Len(t, atIntake.Items, 3)

	atApproval, err := f.reviews.ListByStep(t.Context(), approval.ID, services.ListResponsesRequest{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, responseIDs(atApproval.Items))

	invalid := []services.ListResponsesRequest{
		{SortBy: "answers"},
		{SortOrder: "up"},
		{Status: "stuck"},
		{PageRequest: services.PageRequest{Limit: 1000}},
		{PageRequest: services.PageRequest{Offset: -1}},
	}
	for _, req := range invalid {
		_, err = f.reviews.ListByUser(t.Context(), "u5", req)
		require.ErrorIs(t, err, services.ErrValidation, "%+v", req)
	}
}

func TestReviews_ListStuck(t *testing.T) {
	f := newFixture(t)
	flow, intake, _ := f.onboarding(t)

	old := f.submit(t, flow.ID, "u5")

	f.clock.Advance(5 * 24 * time.Hour)
	recent := f.submit(t, flow.ID, "u5")

	f.clock.Advance(3 * 24 * time.Hour)

	stuck, err := f.reviews.ListStuck(t.Context(), services.ListStuckRequest{StepID: intake.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, responseIDs(stuck.Items), "default threshold is seven days")

	stuck, err = f.reviews.ListStuck(t.Context(), services.ListStuckRequest{OlderThan: 48 * time.Hour})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{old.ID, recent.ID}, responseIDs(stuck.Items))

	_, err = f.reviews.ListStuck(t.Context(), services.ListStuckRequest{OlderThan: -time.Hour})
	require.ErrorIs(t, err, services.ErrValidation)
}

func responseIDs(responses []*models.FormResponse) []string {
	ids := make([]string, 0, len(responses))
	for _, response := range responses {
		ids = append(ids, response.ID)
	}

	return ids
}
