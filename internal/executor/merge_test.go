package executor

import (
	"context"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeExecutor_Execute_CombineStrategy(t *testing.T) {
	e := NewMergeExecutor()
	node := &domain.Node{ID: "n1", Type: domain.NodeMerge, Config: map[string]interface{}{"merge_strategy": "combine"}}
	branches := []interface{}{map[string]interface{}{"a": 1}, map[string]interface{}{"b": 2}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"branches": branches})
	require.NoError(t, err)
	assert.Equal(t, "combine", out.Merge.Strategy)
	assert.Len(t, out.Raw["merged_results"], 2)
}

func TestMergeExecutor_Execute_VoteStrategyPicksMajority(t *testing.T) {
	e := NewMergeExecutor()
	node := &domain.Node{ID: "n1", Type: domain.NodeMerge, Config: map[string]interface{}{"merge_strategy": "vote"}}
	branches := []interface{}{
		map[string]interface{}{"x": "a"},
		map[string]interface{}{"x": "a"},
		map[string]interface{}{"x": "b"},
	}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"branches": branches})
	require.NoError(t, err)
	assert.Equal(t, "a", out.Merge.Merged["x"])
}
