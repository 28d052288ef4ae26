package executor

import (
	"context"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerExecutor_Execute_UsesConfigDuration(t *testing.T) {
	e := NewTimerExecutor()
	node := &domain.Node{ID: "n1", Type: domain.NodeTimer, Config: map[string]interface{}{"duration_seconds": 30.0}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, 30, out.Timer.WaitedSeconds)
}

func TestTimerExecutor_Execute_FallsBackToMappedDuration(t *testing.T) {
	e := NewTimerExecutor()
	node := &domain.Node{ID: "n1", Type: domain.NodeTimer, Config: map[string]interface{}{}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"duration_seconds": 90})
	require.NoError(t, err)
	assert.Equal(t, 90, out.Timer.WaitedSeconds)
}
