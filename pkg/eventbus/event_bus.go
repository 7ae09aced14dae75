// Package eventbus publishes and consumes workflow lifecycle events.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/notiflow/pkg/events"
)

var ErrUnknownEventType = errors.New("unknown event type")

type Event interface {
	GetType() events.EventType
}

// EventPublisher is the side of the bus used by the workflow service.
// key is the workflow ID so events of one workflow share a partition.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event, e.g. *events.WorkflowDeleted.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

func decodeEvent(eventType events.EventType, payload []byte) (any, error) {
	var event any

	switch eventType {
	case events.WorkflowUpsertedEvent:
		event = &events.WorkflowUpserted{}
	case events.WorkflowStatusChangedEvent:
		event = &events.WorkflowStatusChanged{}
	case events.WorkflowDeletedEvent:
		event = &events.WorkflowDeleted{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return event, nil
}
