package executor

import (
	"context"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalExecutor_Execute_SchemaMissingFieldNeverErrorsFromExecutor(t *testing.T) {
	// on_failure is an interpreter-level decision; the executor always
	// succeeds and just reports passed=false.
	e := NewEvalExecutor(nil)
	node := &domain.Node{ID: "n1", Type: domain.NodeEval, Config: map[string]interface{}{
		"eval_type":  "schema",
		"on_failure": "block",
		"schema":     map[string]interface{}{"required": []interface{}{"id"}},
	}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"output": map[string]interface{}{"name": "x"}})
	require.NoError(t, err)
	assert.False(t, out.Eval.Passed)
	assert.Equal(t, "block", out.Eval.OnFailure)
}

func TestEvalExecutor_Execute_SchemaOnFailureWarnStillSucceeds(t *testing.T) {
	e := NewEvalExecutor(nil)
	node := &domain.Node{ID: "n1", Type: domain.NodeEval, Config: map[string]interface{}{
		"eval_type":  "schema",
		"on_failure": "warn",
		"schema":     map[string]interface{}{"required": []interface{}{"id"}},
	}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"output": map[string]interface{}{}})
	require.NoError(t, err)
	assert.False(t, out.Eval.Passed)
}

func TestEvalExecutor_Execute_PolicyCostLimit(t *testing.T) {
	e := NewEvalExecutor(nil)
	node := &domain.Node{ID: "n1", Type: domain.NodeEval, Config: map[string]interface{}{
		"eval_type":  "policy",
		"on_failure": "warn",
		"rules":      []interface{}{"cost_limit"},
		"cost_limit": 1.0,
	}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"cost": 5.0})
	require.NoError(t, err)
	assert.False(t, out.Eval.Passed)
	assert.Contains(t, out.Eval.Criteria["failed_rules"], "cost_limit")
}

func TestEvalExecutor_Execute_CustomAlwaysPasses(t *testing.T) {
	e := NewEvalExecutor(nil)
	node := &domain.Node{ID: "n1", Type: domain.NodeEval, Config: map[string]interface{}{"eval_type": "custom"}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, out.Eval.Passed)
}
