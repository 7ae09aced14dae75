package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/notiflow/pkg/channels/gochannel"
	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/events"
	"github.com/dukex/notiflow/pkg/models"
)

func newTestBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub, slog.New(slog.DiscardHandler))

	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)
	received := make(chan *events.WorkflowStatusChanged, 1)

	require.NoError(t, bus.Handle(events.WorkflowStatusChangedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowStatusChanged)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	wf := &models.Workflow{ID: "wf-1", EnvironmentID: "env-1"}

	require.NoError(t, bus.Publish(ctx, wf.ID, events.WorkflowUpserted{
		BaseEvent: events.NewBaseEvent(events.WorkflowUpsertedEvent, wf),
	}))
	require.NoError(t, bus.Publish(ctx, wf.ID, events.WorkflowStatusChanged{
		BaseEvent:      events.NewBaseEvent(events.WorkflowStatusChangedEvent, wf),
		PreviousStatus: models.WorkflowStatusActive,
		Status:         models.WorkflowStatusError,
	}))

	select {
	case event := <-received:
		assert.Equal(t, "wf-1", event.WorkflowID)
		assert.Equal(t, "env-1", event.EnvironmentID)
		assert.Equal(t, models.WorkflowStatusActive, event.PreviousStatus)
		assert.Equal(t, models.WorkflowStatusError, event.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("status change event was not delivered")
	}
}

func TestWatermillEventBus_UndecodableMessageIsDropped(t *testing.T) {
	t.Parallel()

	pub, sub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub, slog.New(slog.DiscardHandler))

	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.WorkflowStatusChanged, 2)

	require.NoError(t, bus.Handle(events.WorkflowStatusChangedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowStatusChanged)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	broken := message.NewMessage(watermill.NewUUID(), []byte("{not json"))
	broken.Metadata.Set(events.EventTypeMetadataKey, string(events.WorkflowStatusChangedEvent))
	require.NoError(t, pub.Publish(events.Topic, broken))

	wf := &models.Workflow{ID: "wf-2", EnvironmentID: "env-1"}
	require.NoError(t, bus.Publish(ctx, wf.ID, events.WorkflowStatusChanged{
		BaseEvent: events.NewBaseEvent(events.WorkflowStatusChangedEvent, wf),
		Status:    models.WorkflowStatusActive,
	}))

	select {
	case event := <-received:
		assert.Equal(t, "wf-2", event.WorkflowID)
	case <-time.After(5 * time.Second):
		t.Fatal("event published after an undecodable message was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	t.Parallel()

	bus := newTestBus(t)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
