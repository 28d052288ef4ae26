package mapper

import (
	"testing"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_TriggerToAgent(t *testing.T) {
	source := &domain.MappedOutput{
		NodeID:   "start",
		NodeType: domain.NodeTrigger,
		Trigger:  &domain.TriggerOut{Input: map[string]interface{}{"region": "us"}, TriggerType: "manual"},
	}
	result, err := Map(source, domain.NodeAgent, map[string]interface{}{"prompt": "go"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "us", result["region"])
	assert.Equal(t, "go", result["prompt"])
}

func TestMap_AgentToConditional(t *testing.T) {
	source := &domain.MappedOutput{
		NodeID:   "ask",
		NodeType: domain.NodeAgent,
		Agent:    &domain.AgentOut{Text: "yes", Cost: 0.02},
	}
	result, err := Map(source, domain.NodeConditional, map[string]interface{}{"condition_expression": "output.text == 'yes'"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "yes", result["text"])
	assert.Equal(t, 0.02, result["cost"])
}

func TestMap_UnknownPairFallsBackToTextContent(t *testing.T) {
	source := &domain.MappedOutput{
		NodeID:   "wait",
		NodeType: domain.NodeTimer,
		Timer:    &domain.TimerOut{WaitedSeconds: 30, CompletedAt: time.Now()},
	}
	result, err := Map(source, domain.NodeEvent, map[string]interface{}{"event_name": "tick"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "30", result["text"])
}

func TestMap_TargetConfigOverridesExtractor(t *testing.T) {
	source := &domain.MappedOutput{
		NodeID:   "ask",
		NodeType: domain.NodeAgent,
		Agent:    &domain.AgentOut{Text: "yes"},
	}
	result, err := Map(source, domain.NodeAgent, map[string]interface{}{"prior_response": "overridden"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "overridden", result["prior_response"])
}

func TestMap_NodeReferenceResolution(t *testing.T) {
	allOutputs := map[string]*domain.MappedOutput{
		"fetch": {NodeID: "fetch", NodeType: domain.NodeAPICall, Api: &domain.ApiOut{StatusCode: 200, Body: map[string]interface{}{"id": "42"}}},
	}
	result, err := Map(nil, domain.NodeAgent, map[string]interface{}{
		"prompt": "summarize ${$nodes.fetch.body.id}",
		"raw":    "$nodes.fetch.status_code",
	}, allOutputs)
	require.NoError(t, err)
	assert.Equal(t, "summarize 42", result["prompt"])
	assert.EqualValues(t, 200, result["raw"])
}

func TestMap_NodeReferenceMissingNode(t *testing.T) {
	_, err := Map(nil, domain.NodeAgent, map[string]interface{}{"prompt": "$nodes.missing"}, map[string]*domain.MappedOutput{})
	assert.Error(t, err)
}
