package interpreter_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lyzr/workflowengine/internal/condition"
	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/durable"
	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/interpreter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcExecutor func(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error)

func (f funcExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	return f(ctx, node, input)
}

func triggerExecutor() executor.Executor {
	return funcExecutor(func(_ context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
		return &domain.MappedOutput{
			NodeID: node.ID, NodeType: domain.NodeTrigger, Status: domain.OutputSuccess,
			Trigger: &domain.TriggerOut{Input: input},
		}, nil
	})
}

type fakeStore struct {
	executions []*domain.Execution
	approvals  []*domain.ApprovalSlot
}

func (f *fakeStore) SaveExecution(ctx context.Context, e *domain.Execution, execCtx *domain.ExecutionContext) error {
	cp := *e
	f.executions = append(f.executions, &cp)
	return nil
}

func (f *fakeStore) SaveApproval(ctx context.Context, slot *domain.ApprovalSlot) error {
	f.approvals = append(f.approvals, slot)
	return nil
}

type fakeBus struct {
	events []*domain.EventRecord
}

func (f *fakeBus) Publish(ctx context.Context, rec *domain.EventRecord) error {
	f.events = append(f.events, rec)
	return nil
}

func (f *fakeBus) has(eventType string) bool {
	for _, e := range f.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

type fakeCompensator struct {
	called       bool
	failedNodeID string
}

func (f *fakeCompensator) Compensate(ctx context.Context, def *domain.WorkflowDefinition, execCtx *domain.ExecutionContext, failedNodeID string) error {
	f.called = true
	f.failedNodeID = failedNodeID
	return nil
}

type fakeScoreRecorder struct {
	reroute    bool
	alternate  string
	recorded   []bool
}

func (f *fakeScoreRecorder) RecordExecution(ctx context.Context, provider, agentID string, success bool, latencyMs, cost float64) error {
	f.recorded = append(f.recorded, success)
	return nil
}

func (f *fakeScoreRecorder) ShouldReroute(ctx context.Context, provider, agentID string) (bool, error) {
	return f.reroute, nil
}

func (f *fakeScoreRecorder) AlternateAgent(ctx context.Context, provider, failedAgentID string, allAgentIDs []string) (string, error) {
	return f.alternate, nil
}

func mustEvaluator(t *testing.T) *condition.Evaluator {
	t.Helper()
	eval, err := condition.New()
	require.NoError(t, err)
	return eval
}

func TestInterpreter_HappyPath_TriggerAgentEnd(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-1",
		Nodes: []domain.Node{
			{ID: "t1", Type: domain.NodeTrigger, Config: map[string]interface{}{}},
			{ID: "a1", Type: domain.NodeAgent, Config: map[string]interface{}{"system_instructions": "summarize"}},
			{ID: "e1", Type: domain.NodeEnd, Config: map[string]interface{}{"capture_output": true}},
		},
		Edges: []domain.Edge{
			{ID: "ed1", Source: "t1", Target: "a1"},
			{ID: "ed2", Source: "a1", Target: "e1"},
		},
	}

	registry := executor.NewRegistry()
	registry.Register(domain.NodeTrigger, triggerExecutor())
	registry.Register(domain.NodeAgent, funcExecutor(func(_ context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
		return &domain.MappedOutput{
			NodeID: node.ID, NodeType: domain.NodeAgent, Status: domain.OutputSuccess,
			Agent: &domain.AgentOut{Text: "done", Model: "gpt-x", Cost: 0.02},
		}, nil
	}))

	runtime := durable.NewInProcessRuntime(interpreter.DefaultRetryClassifier)
	store := &fakeStore{}
	bus := &fakeBus{}
	interp := interpreter.New(interpreter.Options{
		Registry: registry, Runtime: runtime, Evaluator: mustEvaluator(t), Store: store, Bus: bus,
	})

	run, err := interp.Start(context.Background(), def, map[string]interface{}{"topic": "widgets"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := run.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, exec.Status)
	assert.Equal(t, "done", exec.Output["text"])
	assert.True(t, bus.has("workflow.completed"))
	assert.NotEmpty(t, store.executions)
}

func TestInterpreter_ConditionalBranching_FollowsTrueEdge(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-cond",
		Nodes: []domain.Node{
			{ID: "t1", Type: domain.NodeTrigger},
			{ID: "c1", Type: domain.NodeConditional, Config: map[string]interface{}{"condition_expression": "input.approve_all == true"}},
			{ID: "end_yes", Type: domain.NodeEnd},
			{ID: "end_no", Type: domain.NodeEnd},
		},
		Edges: []domain.Edge{
			{ID: "ed1", Source: "t1", Target: "c1"},
			{ID: "ed2", Source: "c1", Target: "end_yes", SourceHandle: "true"},
			{ID: "ed3", Source: "c1", Target: "end_no", SourceHandle: "false"},
		},
	}

	registry := executor.NewRegistry()
	registry.Register(domain.NodeTrigger, triggerExecutor())
	registry.Register(domain.NodeConditional, funcExecutor(func(_ context.Context, node *domain.Node, _ map[string]interface{}) (*domain.MappedOutput, error) {
		return &domain.MappedOutput{NodeID: node.ID, NodeType: domain.NodeConditional, Status: domain.OutputSuccess}, nil
	}))

	runtime := durable.NewInProcessRuntime(interpreter.DefaultRetryClassifier)
	interp := interpreter.New(interpreter.Options{Registry: registry, Runtime: runtime, Evaluator: mustEvaluator(t)})

	run, err := interp.Start(context.Background(), def, map[string]interface{}{"approve_all": true})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := run.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, exec.Status)
	assert.Equal(t, "end_yes", exec.CurrentNode)
}

func TestInterpreter_Approval_SignalResolvesAndRoutes(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-appr",
		Nodes: []domain.Node{
			{ID: "t1", Type: domain.NodeTrigger},
			{ID: "ap1", Type: domain.NodeApproval, Config: map[string]interface{}{"description": "ship it?", "approval_type": "any"}},
			{ID: "end_ok", Type: domain.NodeEnd},
			{ID: "end_rejected", Type: domain.NodeEnd},
		},
		Edges: []domain.Edge{
			{ID: "ed1", Source: "t1", Target: "ap1"},
			{ID: "ed2", Source: "ap1", Target: "end_ok", SourceHandle: "approve"},
			{ID: "ed3", Source: "ap1", Target: "end_rejected", SourceHandle: "reject"},
		},
	}

	registry := executor.NewRegistry()
	registry.Register(domain.NodeTrigger, triggerExecutor())
	registry.Register(domain.NodeApproval, funcExecutor(func(_ context.Context, node *domain.Node, _ map[string]interface{}) (*domain.MappedOutput, error) {
		return &domain.MappedOutput{
			NodeID: node.ID, NodeType: domain.NodeApproval, Status: domain.OutputSuccess,
			Raw: map[string]interface{}{"approval_id": "appr-1"},
		}, nil
	}))

	runtime := durable.NewInProcessRuntime(interpreter.DefaultRetryClassifier)
	store := &fakeStore{}
	interp := interpreter.New(interpreter.Options{Registry: registry, Runtime: runtime, Evaluator: mustEvaluator(t), Store: store})

	run, err := interp.Start(context.Background(), def, nil)
	require.NoError(t, err)

	require.NoError(t, run.Signal(interpreter.Approve("alice", "looks good")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := run.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, exec.Status)
	assert.Equal(t, "end_ok", exec.CurrentNode)
	require.Len(t, store.approvals, 1)
	assert.Equal(t, domain.ApprovalApproved, store.approvals[0].Status)
}

func TestInterpreter_AgentFailure_TriggersCompensation(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-fail",
		Nodes: []domain.Node{
			{ID: "t1", Type: domain.NodeTrigger},
			{ID: "a1", Type: domain.NodeAgent, Config: map[string]interface{}{"system_instructions": "x"}},
			{ID: "e1", Type: domain.NodeEnd},
		},
		Edges: []domain.Edge{
			{ID: "ed1", Source: "t1", Target: "a1"},
			{ID: "ed2", Source: "a1", Target: "e1"},
		},
	}

	registry := executor.NewRegistry()
	registry.Register(domain.NodeTrigger, triggerExecutor())
	registry.Register(domain.NodeAgent, funcExecutor(func(_ context.Context, node *domain.Node, _ map[string]interface{}) (*domain.MappedOutput, error) {
		return nil, fmt.Errorf("%w: provider rejected the request", domain.ErrTerminalActivity)
	}))

	runtime := durable.NewInProcessRuntime(interpreter.DefaultRetryClassifier)
	comp := &fakeCompensator{}
	interp := interpreter.New(interpreter.Options{Registry: registry, Runtime: runtime, Evaluator: mustEvaluator(t), Compensation: comp})

	run, err := interp.Start(context.Background(), def, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, waitErr := run.Wait(ctx)
	require.Error(t, waitErr)
	assert.Equal(t, domain.StatusFailed, exec.Status)
	assert.Equal(t, "a1", exec.FailureReason)
	assert.True(t, comp.called)
	assert.Equal(t, "a1", comp.failedNodeID)
	assert.Equal(t, domain.CompensationCompleted, exec.CompensationStatus)
}

func TestInterpreter_SelfHealFallback_ReroutesToAlternateAgent(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-fallback",
		Nodes: []domain.Node{
			{ID: "t1", Type: domain.NodeTrigger},
			{ID: "a1", Type: domain.NodeAgent, Config: map[string]interface{}{
				"system_instructions": "x",
				"agent_id":            "agent-a",
				"fallback_agent_ids":  []interface{}{"agent-b"},
			}},
			{ID: "e1", Type: domain.NodeEnd},
		},
		Edges: []domain.Edge{
			{ID: "ed1", Source: "t1", Target: "a1"},
			{ID: "ed2", Source: "a1", Target: "e1"},
		},
	}

	registry := executor.NewRegistry()
	registry.Register(domain.NodeTrigger, triggerExecutor())
	registry.Register(domain.NodeAgent, funcExecutor(func(_ context.Context, node *domain.Node, _ map[string]interface{}) (*domain.MappedOutput, error) {
		if node.Config["agent_id"] == "agent-b" {
			return &domain.MappedOutput{NodeID: node.ID, NodeType: domain.NodeAgent, Status: domain.OutputSuccess, Agent: &domain.AgentOut{Text: "recovered"}}, nil
		}
		return nil, fmt.Errorf("%w: agent-a unavailable", domain.ErrTerminalActivity)
	}))

	runtime := durable.NewInProcessRuntime(interpreter.DefaultRetryClassifier)
	score := &fakeScoreRecorder{reroute: true, alternate: "agent-b"}
	interp := interpreter.New(interpreter.Options{Registry: registry, Runtime: runtime, Evaluator: mustEvaluator(t), SelfHeal: score})

	run, err := interp.Start(context.Background(), def, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := run.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, exec.Status)
	assert.Equal(t, "recovered", exec.Output["text"])

	history := run.GetExecutionHistory()
	require.Len(t, history, 2) // trigger, agent — end nodes never get a history entry
	assert.True(t, history[1].IsFallback)
}

func TestInterpreter_PauseThenResume(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-pause",
		Nodes: []domain.Node{
			{ID: "t1", Type: domain.NodeTrigger},
			{ID: "e1", Type: domain.NodeEnd},
		},
		Edges: []domain.Edge{{ID: "ed1", Source: "t1", Target: "e1"}},
	}

	registry := executor.NewRegistry()
	registry.Register(domain.NodeTrigger, triggerExecutor())

	runtime := durable.NewInProcessRuntime(interpreter.DefaultRetryClassifier)
	interp := interpreter.New(interpreter.Options{Registry: registry, Runtime: runtime, Evaluator: mustEvaluator(t)})

	run, err := interp.Start(context.Background(), def, nil)
	require.NoError(t, err)
	require.NoError(t, run.Signal(interpreter.Pause()))
	require.NoError(t, run.Signal(interpreter.Resume()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exec, err := run.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, exec.Status)
}
