package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/reviewflow/pkg/channels/gochannel"
	"github.com/dukex/reviewflow/pkg/eventbus"
	"github.com/dukex/reviewflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.FormResponseRejected, 1)

	require.NoError(t, bus.Handle(events.FormResponseRejectedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.FormResponseRejected)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	err := bus.Publish(t.Context(), "r1", events.FormResponseRejected{
		BaseEvent:      events.NewBaseEvent(events.FormResponseRejectedEvent, "u1"),
		FormResponseID: "r1",
		Reason:         "incomplete",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "r1", event.FormResponseID)
		assert.Equal(t, "incomplete", event.Reason)
		assert.Equal(t, "u1", event.ActorID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_IgnoresUnhandledTypes(t *testing.T) {
	bus := newTestBus(t)

	handled := make(chan struct{}, 1)

	require.NoError(t, bus.Handle(events.StepDeletedEvent, func(context.Context, any) error {
		handled <- struct{}{}

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	require.NoError(t, bus.Publish(t.Context(), "s1", events.StepCreated{
		BaseEvent: events.NewBaseEvent(events.StepCreatedEvent, "admin"),
		StepID:    "s1",
	}))
	require.NoError(t, bus.Publish(t.Context(), "s1", events.StepDeleted{
		BaseEvent: events.NewBaseEvent(events.StepDeletedEvent, "admin"),
		StepID:    "s1",
	}))

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("step.deleted was not delivered")
	}

	assert.NotEmpty(t, bus.GenerateID())
}
