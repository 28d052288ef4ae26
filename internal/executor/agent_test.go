package executor

import (
	"context"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name string
	resp AgentResponse
	err  error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Complete(ctx context.Context, req AgentRequest) (AgentResponse, error) {
	return f.resp, f.err
}

func TestAgentExecutor_Execute_ComputesCost(t *testing.T) {
	provider := &fakeProvider{name: "default", resp: AgentResponse{
		Text: "hello", Model: "claude-haiku", PromptTokens: 1000, CompletionTokens: 500,
	}}
	e := NewAgentExecutor(provider)
	node := &domain.Node{ID: "n1", Type: domain.NodeAgent, Config: map[string]interface{}{
		"provider": "default", "agent_id": "agent-1",
	}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"prompt": "hi"})
	require.NoError(t, err)
	require.NotNil(t, out.Agent)
	assert.Equal(t, "hello", out.Agent.Text)
	expectedCost := (1000*0.8 + 500*4.0) / 1e6
	assert.InDelta(t, expectedCost, out.Agent.Cost, 1e-9)
	assert.Equal(t, 0.7, out.Agent.Temperature)
}

func TestAgentExecutor_Execute_AutoTunesTemperature(t *testing.T) {
	provider := &fakeProvider{name: "default", resp: AgentResponse{Text: "x", Model: "gpt-4o-mini"}}
	e := NewAgentExecutor(provider)
	node := &domain.Node{ID: "n1", Type: domain.NodeAgent, Config: map[string]interface{}{
		"provider": "default", "auto_tune": true,
	}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{
		"prompt":                 "hi",
		PreviousEvalScoreKey:     0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Agent.Temperature)
}

func TestAgentExecutor_Execute_UnknownProviderIsTerminal(t *testing.T) {
	e := NewAgentExecutor(&fakeProvider{name: "default"})
	node := &domain.Node{ID: "n1", Type: domain.NodeAgent, Config: map[string]interface{}{"provider": "missing"}}

	_, err := e.Execute(context.Background(), node, map[string]interface{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTerminalActivity)
}
