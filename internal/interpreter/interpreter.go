// Package interpreter implements the durable workflow state machine: it
// walks a WorkflowDefinition node by node, dispatches each node's activity
// through internal/durable (which applies retries, timeouts and circuit
// breaking), maps outputs between nodes via internal/mapper, branches on
// conditionals and approvals, and drives internal/compensation on terminal
// failure. Grounded on cmd/workflow-runner/coordinator/coordinator.go's
// completion-signal loop, generalized from the teacher's Redis "IR" task
// graph to spec's typed Node/Edge model and from ad hoc dependent-routing
// to the conditional/approval/first-edge/terminate branching rules.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/workflowengine/internal/condition"
	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/durable"
	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/validate"
)

// Publisher is the narrow slice of eventbus.Bus the interpreter needs.
type Publisher interface {
	Publish(ctx context.Context, rec *domain.EventRecord) error
}

// Store is the narrow slice of persistence.Store the interpreter needs to
// checkpoint executions and approval gates.
type Store interface {
	SaveExecution(ctx context.Context, e *domain.Execution, execCtx *domain.ExecutionContext) error
	SaveApproval(ctx context.Context, slot *domain.ApprovalSlot) error
}

// ScoreRecorder is the narrow slice of selfheal.Registry the interpreter
// consults around agent-node dispatch. A nil ScoreRecorder disables
// self-healing fallback entirely; agent failures are then always terminal.
type ScoreRecorder interface {
	RecordExecution(ctx context.Context, provider, agentID string, success bool, latencyMs, cost float64) error
	ShouldReroute(ctx context.Context, provider, agentID string) (bool, error)
	AlternateAgent(ctx context.Context, provider, failedAgentID string, allAgentIDs []string) (string, error)
}

// Compensator is the narrow slice of compensation.Coordinator the
// interpreter invokes on terminal failure.
type Compensator interface {
	Compensate(ctx context.Context, def *domain.WorkflowDefinition, execCtx *domain.ExecutionContext, failedNodeID string) error
}

// Options configures a new Interpreter. Registry, Runtime, and Evaluator
// are required; SelfHeal, Compensation, Bus, and Store are optional and
// degrade gracefully (no fallback, no compensation, no events, no
// persistence) when nil, which keeps the interpreter usable in unit tests
// without wiring Redis or Postgres.
type Options struct {
	Registry     *executor.Registry
	Runtime      durable.Runtime
	Evaluator    *condition.Evaluator
	SelfHeal     ScoreRecorder
	Compensation Compensator
	Bus          Publisher
	Store        Store
	Logger       *slog.Logger
}

// Interpreter owns the collaborators a Run dispatches against; it holds
// no per-execution state itself, so one Interpreter safely starts many
// concurrent Runs (spec's "many executions proceed in parallel" model).
type Interpreter struct {
	registry     *executor.Registry
	runtime      durable.Runtime
	evaluator    *condition.Evaluator
	selfheal     ScoreRecorder
	compensation Compensator
	bus          Publisher
	store        Store
	log          *slog.Logger
}

func New(opts Options) *Interpreter {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Interpreter{
		registry:     opts.Registry,
		runtime:      opts.Runtime,
		evaluator:    opts.Evaluator,
		selfheal:     opts.SelfHeal,
		compensation: opts.Compensation,
		bus:          opts.Bus,
		store:        opts.Store,
		log:          log,
	}
}

func durableActivityOptions(nodeType domain.NodeType) durable.ActivityOptions {
	return durable.DefaultActivityOptions(string(nodeType))
}

func (i *Interpreter) evalMaxAttempts() int {
	return durableActivityOptions(domain.NodeEval).MaxAttempts
}

// DefaultRetryClassifier marks domain.ErrTransientActivity as retryable
// and everything else (including domain.ErrTerminalActivity) as terminal.
// It lives here rather than in internal/durable because durable is a leaf
// package that must not import domain; callers wire it into
// durable.NewInProcessRuntime when constructing the Runtime an
// Interpreter is given.
func DefaultRetryClassifier(err error) bool {
	return errors.Is(err, domain.ErrTransientActivity)
}

// Start validates def, creates a fresh Execution and ExecutionContext,
// persists them, publishes workflow.started, and begins the main loop in
// a background goroutine. The returned Run is the caller's handle for
// signaling and querying the in-flight execution; Start itself never
// blocks for the execution to finish.
func (i *Interpreter) Start(ctx context.Context, def *domain.WorkflowDefinition, input map[string]interface{}) (*Run, error) {
	if err := validate.Definition(def); err != nil {
		return nil, err
	}
	trigger, ok := def.TriggerNode()
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s has no trigger node", domain.ErrValidation, def.ID)
	}

	execID := uuid.NewString()
	exec := &domain.Execution{
		ID:          execID,
		WorkflowID:  def.ID,
		Status:      domain.StatusRunning,
		Input:       input,
		StartedAt:   time.Now(),
		CurrentNode: trigger.ID,
	}
	execCtx := domain.NewExecutionContext(def.ID, execID, input)

	run := newRun(i, def, exec, execCtx)

	if i.store != nil {
		if err := i.store.SaveExecution(ctx, exec, execCtx); err != nil {
			return nil, fmt.Errorf("interpreter: persisting new execution: %w", err)
		}
	}
	run.publish(ctx, "", "workflow.started", map[string]interface{}{"input": input})

	go run.loop(ctx)
	return run, nil
}

// Resume reconstructs a Run from a checkpointed Execution/ExecutionContext
// pair (as persistence.Store.GetExecution/GetExecutionContext would load
// them) and continues the main loop from exec.CurrentNode — the process
// restart survival property spec.md §4.1 requires. Only running or paused
// executions can be resumed; a terminal execution has nothing left to do.
func (i *Interpreter) Resume(ctx context.Context, def *domain.WorkflowDefinition, exec *domain.Execution, execCtx *domain.ExecutionContext) (*Run, error) {
	if exec.Status != domain.StatusRunning && exec.Status != domain.StatusPaused {
		return nil, fmt.Errorf("interpreter: cannot resume execution %s in status %s", exec.ID, exec.Status)
	}

	run := newRun(i, def, exec, execCtx)
	if exec.Status == domain.StatusPaused {
		run.paused = true
		run.pauseGate = make(chan struct{})
	}

	go run.loop(ctx)
	return run, nil
}
