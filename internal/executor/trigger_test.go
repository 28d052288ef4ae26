package executor

import (
	"context"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerExecutor_Execute_ReturnsInputAsOutput(t *testing.T) {
	e := NewTriggerExecutor()
	node := &domain.Node{ID: "n1", Type: domain.NodeTrigger, Config: map[string]interface{}{"type": "webhook"}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"order_id": "123"})
	require.NoError(t, err)
	assert.Equal(t, "webhook", out.Trigger.TriggerType)
	assert.Equal(t, "123", out.Trigger.Input["order_id"])
}

func TestConditionalExecutor_Execute_NormalizesOutput(t *testing.T) {
	e := NewConditionalExecutor()
	node := &domain.Node{ID: "n1", Type: domain.NodeConditional}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"matched": true, "branch": "true"})
	require.NoError(t, err)
	assert.True(t, out.Condition.Matched)
	assert.Equal(t, "true", out.Condition.Branch)
}

func TestRegistry_Execute_DispatchesByNodeType(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.NodeTrigger, NewTriggerExecutor())
	node := &domain.Node{ID: "n1", Type: domain.NodeTrigger}

	out, err := r.Execute(context.Background(), node, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, domain.NodeTrigger, out.NodeType)
}

func TestRegistry_Execute_UnknownTypeIsNodeNotFound(t *testing.T) {
	r := NewRegistry()
	node := &domain.Node{ID: "n1", Type: domain.NodeMerge}

	_, err := r.Execute(context.Background(), node, map[string]interface{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}
