package executor

import (
	"context"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventExecutor_Execute_PublishesPayload(t *testing.T) {
	publisher := &fakePublisher{}
	e := NewEventExecutor(publisher)
	node := &domain.Node{ID: "n1", Type: domain.NodeEvent, Config: map[string]interface{}{
		"channel": "orders.updated", "operation": "publish",
	}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"payload": map[string]interface{}{"id": 1}})
	require.NoError(t, err)
	assert.Equal(t, "orders.updated", out.Event.EventName)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "orders.updated", publisher.events[0].EventType)
}

func TestEventExecutor_Execute_SubscribeIsRejected(t *testing.T) {
	e := NewEventExecutor(&fakePublisher{})
	node := &domain.Node{ID: "n1", Type: domain.NodeEvent, Config: map[string]interface{}{
		"channel": "c", "operation": "subscribe",
	}}

	_, err := e.Execute(context.Background(), node, map[string]interface{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTerminalActivity)
}
