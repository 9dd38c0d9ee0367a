package services_test

import (
	"testing"
	"time"

	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLog_StepHistoryPagesAreStable(t *testing.T) {
	f := newFixture(t)

	var created []string

	for _, name := range []string{"One", "Two", "Three", "Four", "Five"} {
		step, err := f.topology.CreateStep(t.Context(), services.CreateStepRequest{ActorID: "admin", Name: name})
		require.NoError(t, err)

		created = append(created, step.ID)
	}

	var seen []string

	for offset := 0; ; offset += 2 {
		page, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{
			PageRequest: services.PageRequest{Limit: 2, Offset: offset},
		})
		require.NoError(t, err)
		assert.EqualValues(t, 5, page.TotalCount)

		for _, entry := range page.Items {
			seen = append(seen, entry.StepID)
		}

		if !page.HasNextPage {
			break
		}
	}

	assert.Len(t, seen, 5)
	assert.ElementsMatch(t, created, seen, "equal timestamps never drop or repeat entries")
}

func TestAuditLog_StepHistoryFilters(t *testing.T) {
	f := newFixture(t)

	step, err := f.topology.CreateStep(t.Context(), services.CreateStepRequest{ActorID: "admin", Name: "Legal"})
	require.NoError(t, err)

	start := f.clock.Now()
	f.clock.Advance(time.Hour)

	_, err = f.topology.RenameStep(t.Context(), services.RenameStepRequest{ActorID: "u1", StepID: step.ID, Name: "Compliance"})
	require.NoError(t, err)

	byActor, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{ActorID: "u1"})
	require.NoError(t, err)
	require.Len(t, byActor.Items, 1)
	assert.Equal(t, models.StepHistoryActionNameChange, byActor.Items[0].Action)

	from := start.Add(time.Minute)
	later, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{From: &from})
	require.NoError(t, err)
	require.Len(t, later.Items, 1)

	earlier, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{To: &start})
	require.NoError(t, err)
	require.Len(t, earlier.Items, 1, "bounds are inclusive")
	assert.Equal(t, models.StepHistoryActionCreate, earlier.Items[0].Action)

	all, err := f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{StepID: step.ID})
	require.NoError(t, err)
	require.Len(t, all.Items, 2)
	assert.Equal(t, models.StepHistoryActionNameChange, all.Items[0].Action, "newest first")

	_, err = f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{Action: "rename"})
	require.ErrorIs(t, err, services.ErrValidation)

	_, err = f.audit.ListStepHistory(t.Context(), services.StepHistoryRequest{From: &from, To: &start})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestAuditLog_ReviewHistoryFilters(t *testing.T) {
	f := newFixture(t)
	flow, intake, _ := f.onboarding(t)

	approved := f.submit(t, flow.ID, "u5")
	rejected := f.submit(t, flow.ID, "u5")

	_, err := f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: approved.ID, ReviewerID: "u1", Decision: models.ReviewActionApproved,
	})
	require.NoError(t, err)

	f.tick()

	_, err = f.reviews.Review(t.Context(), services.ReviewRequest{
		FormResponseID: rejected.ID, ReviewerID: "u1", Decision: models.ReviewActionRejected, RejectReason: "no",
	})
	require.NoError(t, err)

	byReviewer, err := f.audit.ListReviewHistory(t.Context(), services.ReviewHistoryRequest{ReviewerID: "u1"})
	require.NoError(t, err)
	require.Len(t, byReviewer.Items, 2)
	assert.Equal(t, rejected.ID, byReviewer.Items[0].FormResponseID)

	rejections, err := f.audit.ListReviewHistory(t.Context(), services.ReviewHistoryRequest{
		StepID: intake.ID,
		Action: string(models.ReviewActionRejected),
	})
	require.NoError(t, err)
	require.Len(t, rejections.Items, 1)
	require.NotNil(t, rejections.Items[0].RejectReason)
	assert.Equal(t, "no", *rejections.Items[0].RejectReason)

	_, err = f.audit.ListReviewHistory(t.Context(), services.ReviewHistoryRequest{Action: "skipped"})
	require.ErrorIs(t, err, services.ErrValidation)
}
