package validate

import (
	"errors"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleValid() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		ID: "wf-1",
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeTrigger},
			{ID: "ask", Type: domain.NodeAgent, Config: map[string]interface{}{"system_instructions": "hi"}},
			{ID: "finish", Type: domain.NodeEnd},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "start", Target: "ask"},
			{ID: "e2", Source: "ask", Target: "finish"},
		},
	}
}

func TestDefinition_Valid(t *testing.T) {
	assert.NoError(t, Definition(simpleValid()))
}

func TestDefinition_MissingTrigger(t *testing.T) {
	w := simpleValid()
	w.Nodes = w.Nodes[1:]
	err := Definition(w)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Contains(t, err.Error(), "no trigger node")
}

func TestDefinition_DuplicateTrigger(t *testing.T) {
	w := simpleValid()
	w.Nodes = append(w.Nodes, domain.Node{ID: "start2", Type: domain.NodeTrigger})
	err := Definition(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly 1")
}

func TestDefinition_DanglingEdge(t *testing.T) {
	w := simpleValid()
	w.Edges = append(w.Edges, domain.Edge{ID: "e3", Source: "ask", Target: "ghost"})
	err := Definition(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target node "ghost"`)
}

func TestDefinition_UnreachableNode(t *testing.T) {
	w := simpleValid()
	w.Nodes = append(w.Nodes, domain.Node{ID: "orphan", Type: domain.NodeAgent, Config: map[string]interface{}{"system_instructions": "x"}})
	err := Definition(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `node "orphan" is unreachable`)
}

func TestDefinition_MissingRequiredConfig(t *testing.T) {
	w := simpleValid()
	w.Nodes[1].Config = nil
	err := Definition(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required config field "system_instructions"`)
}

func TestDefinition_ConditionalMissingBranches(t *testing.T) {
	w := &domain.WorkflowDefinition{
		Nodes: []domain.Node{
			{ID: "start", Type: domain.NodeTrigger},
			{ID: "check", Type: domain.NodeConditional, Config: map[string]interface{}{"condition_expression": "output.ok"}},
			{ID: "finish", Type: domain.NodeEnd},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "start", Target: "check"},
			{ID: "e2", Source: "check", Target: "finish", SourceHandle: "true"},
		},
	}
	err := Definition(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no edge for the "false" branch`)
}

func TestDefinition_NoEndNode(t *testing.T) {
	w := simpleValid()
	for i := range w.Nodes {
		if w.Nodes[i].Type == domain.NodeEnd {
			w.Nodes[i].Type = domain.NodeAgent
			w.Nodes[i].Config = map[string]interface{}{"system_instructions": "x"}
		}
	}
	err := Definition(w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no end node reachable")
}
