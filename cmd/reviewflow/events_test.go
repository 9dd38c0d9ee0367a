package main

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukex/reviewflow/pkg/cmd"
	"github.com/dukex/reviewflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func TestWatchEvents(t *testing.T) {
	bus, err := cmd.NewEventBus("gochannel", nil, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	var out lockedBuffer
	require.NoError(t, watchEvents(t.Context(), bus, &out))

	err = bus.Publish(t.Context(), "s1", events.StepCreated{
		BaseEvent: events.NewBaseEvent(events.StepCreatedEvent, "admin"),
		StepID:    "s1",
		Name:      "Intake",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"step_id":"s1"`)
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), `"type":"step.created"`)
}
