package services_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/reviewflow/pkg/identity"
	"github.com/dukex/reviewflow/pkg/mocks"
	"github.com/dukex/reviewflow/pkg/models"
	"github.com/dukex/reviewflow/pkg/persistence/file"
	"github.com/dukex/reviewflow/pkg/services"
	"github.com/dukex/reviewflow/pkg/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	persistence *file.Persistence
	clock       *testutil.Clock
	bus         *mocks.MockEventBus
	notifier    *mocks.MockNotifier

	topology *services.Topology
	flows    *services.Flows
	reviews  *services.Reviews
	audit    *services.AuditLog
}

func newFixture(t *testing.T, opts ...services.Option) *fixture {
	t.Helper()

	f := &fixture{
		persistence: file.NewPersistence(t.TempDir()),
		clock:       testutil.NewClock(testutil.Epoch),
		bus:         &mocks.MockEventBus{},
		notifier:    &mocks.MockNotifier{},
	}

	f.bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()

	opts = append([]services.Option{
		services.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		services.WithClock(f.clock.Now),
		services.WithPublisher(f.bus),
		services.WithNotifier(f.notifier),
	}, opts...)

	users := identity.NewDirectory(f.persistence.UserRepository())

	f.topology = services.NewTopology(f.persistence, users, opts...)
	f.flows = services.NewFlows(f.persistence, users, opts...)
	f.reviews = services.NewReviews(f.persistence, users, opts...)
	f.audit = services.NewAuditLog(f.persistence, opts...)

	testutil.Seed(t, f.persistence,
		testutil.NewUser("u1"),
		testutil.NewUser("u2"),
		testutil.NewUser("u3"),
		testutil.NewUser("u4"),
		testutil.NewUser("u5"),
		testutil.NewUser("admin", models.RoleAdmin),
	)

	return f
}

func (f *fixture) seed(t *testing.T, entities ...any) {
	t.Helper()
	testutil.Seed(t, f.persistence, entities...)
}

// onboarding seeds Scenario A: flow "Onboarding" with steps [Intake, Approval],
// Intake reviewed by u1 and Approval by u3.
func (f *fixture) onboarding(t *testing.T) (*models.Flow, *models.Step, *models.Step) {
	t.Helper()

	intake := testutil.NewStep("Intake", testutil.WithUsers("u1"))
	approval := testutil.NewStep("Approval", testutil.WithUsers("u3"))
	template := testutil.NewFormTemplate(testutil.RequiredField("name"), testutil.OptionalField("notes"))
	f.seed(t, intake, approval, template)

	flow, err := f.flows.CreateFlow(t.Context(), services.CreateFlowRequest{
		Name:           "Onboarding",
		FormTemplateID: template.ID,
		Steps:          []models.FlowStep{{StepID: intake.ID}, {StepID: approval.ID}},
	})
	require.NoError(t, err)

	return flow, intake, approval
}

func (f *fixture) submit(t *testing.T, flowID, submitter string) *models.FormResponse {
	t.Helper()

	response, err := f.reviews.Submit(t.Context(), services.SubmitRequest{
		FlowID:      flowID,
		SubmittedBy: submitter,
		Answers:     map[string]any{"name": "Ana"},
	})
	require.NoError(t, err)

	return response
}

func (f *fixture) tick() {
	f.clock.Advance(time.Minute)
}

func ptr[T any](v T) *T {
	return &v
}
