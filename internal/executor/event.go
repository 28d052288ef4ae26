package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
)

// eventPublisher is the narrow slice of eventbus.Bus the event executor
// needs to publish a user channel message.
type eventPublisher interface {
	Publish(ctx context.Context, rec *domain.EventRecord) error
}

// EventExecutor publishes the upstream output onto a user-named channel.
// subscribe is an explicit non-goal of the current core and is rejected.
type EventExecutor struct {
	bus eventPublisher
}

func NewEventExecutor(bus eventPublisher) *EventExecutor {
	return &EventExecutor{bus: bus}
}

func (e *EventExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	config := node.Config
	operation := configString(config, "operation", "publish")
	channel := configString(config, "channel", "")

	if operation == "subscribe" {
		return nil, fmt.Errorf("%w: event node %s: subscribe is not implemented", domain.ErrTerminalActivity, node.ID)
	}
	if channel == "" {
		return nil, fmt.Errorf("%w: event node %s missing channel", domain.ErrTerminalActivity, node.ID)
	}

	payload, _ := input["payload"].(map[string]interface{})
	if payload == nil {
		payload = input
	}

	if err := e.bus.Publish(ctx, &domain.EventRecord{
		NodeID:    node.ID,
		EventType: channel,
		Data:      payload,
		Timestamp: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("%w: publishing to channel %q: %v", domain.ErrTransientActivity, channel, err)
	}

	out := header(node, domain.OutputSuccess)
	out.Timestamp = time.Now()
	out.Event = &domain.EventOut{EventName: channel, Payload: payload}
	out.Raw = map[string]interface{}{"event_name": channel, "payload": payload}
	return &out, nil
}
