package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildgate/buildgate/pkg/channels/gochannel"
	"github.com/buildgate/buildgate/pkg/events"
	"github.com/buildgate/buildgate/pkg/models"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.RunAdmitted, 1)

	err := bus.Handle(events.RunAdmittedEvent, func(_ context.Context, event any) error {
		admitted, ok := event.(*events.RunAdmitted)
		if ok {
			received <- admitted
		}

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(t.Context()))

	event := events.RunAdmitted{
		BaseEvent:      events.NewBaseEvent(events.RunAdmittedEvent, "run-1"),
		WorkflowName:   "ghcr-runtime",
		ConcurrencyKey: "ghcr-runtime@main",
		Context:        models.RunContext{Event: models.EventKindPush, Ref: "main", SHA: "abc", Owner: "acme"},
	}

	require.NoError(t, bus.Publish(t.Context(), "run-1", event))

	select {
	case admitted := <-received:
		assert.Equal(t, "run-1", admitted.RunID)
		assert.Equal(t, "ghcr-runtime@main", admitted.ConcurrencyKey)
		assert.Equal(t, models.EventKindPush, admitted.Context.Event)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledEventTypesAreIgnored(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.RunFinished, 1)

	err := bus.Handle(events.RunFinishedEvent, func(_ context.Context, event any) error {
		finished, ok := event.(*events.RunFinished)
		if ok {
			received <- finished
		}

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(t.Context()))

	started := events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, "run-1"),
	}
	require.NoError(t, bus.Publish(t.Context(), "run-1", started))

	finished := events.RunFinished{
		BaseEvent: events.NewBaseEvent(events.RunFinishedEvent, "run-1"),
		Status:    models.RunStatusSuccess,
	}
	require.NoError(t, bus.Publish(t.Context(), "run-1", finished))

	select {
	case got := <-received:
		assert.Equal(t, models.RunStatusSuccess, got.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
