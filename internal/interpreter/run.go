package interpreter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/mapper"
)

// Run is the handle for one in-flight execution. All mutation of exec and
// ctx happens on the single goroutine running loop; everything else
// (Signal, GetState, GetExecutionHistory, Wait) only reads, under mu.
type Run struct {
	interp *Interpreter
	def    *domain.WorkflowDefinition

	mu   sync.RWMutex
	exec *domain.Execution
	ctx  *domain.ExecutionContext

	paused                bool
	pauseGate             chan struct{}
	cancelRequested       bool
	cancelReason          string
	pendingApprovalSignal *ApprovalPayload

	sigCh chan Signal
	done  chan struct{}
	err   error
}

func newRun(i *Interpreter, def *domain.WorkflowDefinition, exec *domain.Execution, execCtx *domain.ExecutionContext) *Run {
	return &Run{
		interp:    i,
		def:       def,
		exec:      exec,
		ctx:       execCtx,
		sigCh:     make(chan Signal, 16),
		done:      make(chan struct{}),
		pauseGate: closedChan(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// loop is the interpreter's main state-machine step. It runs until the
// workflow reaches an end node, a terminal failure is compensated, or the
// execution is canceled; each iteration is a single node step so a crash
// between iterations loses at most the in-flight node (replayed on
// Resume, since the current node id is only advanced after a step
// succeeds).
func (r *Run) loop(ctx context.Context) {
	defer close(r.done)

	r.mu.RLock()
	currentNodeID := r.exec.CurrentNode
	r.mu.RUnlock()

	for {
		if err := r.waitWhilePaused(ctx); err != nil {
			r.finishWithErr(ctx, err)
			return
		}
		if r.drainSignals() {
			r.finishCanceled(ctx)
			return
		}

		node, ok := r.def.NodeByID(currentNodeID)
		if !ok {
			r.finishWithErr(ctx, fmt.Errorf("%w: node %q", domain.ErrNodeNotFound, currentNodeID))
			return
		}

		if node.Type == domain.NodeEnd {
			r.finalizeSuccess(ctx, node)
			return
		}

		entryIdx := r.beginHistory(node)
		r.persist(ctx)
		r.publish(ctx, node.ID, "node.started", map[string]interface{}{"node_type": node.Type})

		input, err := r.buildInput(node)
		if err != nil {
			r.failHistory(entryIdx, err)
			r.publish(ctx, node.ID, "node.failed", map[string]interface{}{"error": err.Error()})
			r.terminalFailure(ctx, node, err)
			return
		}

		out, usedFallback, err := r.runNodeWithPolicies(ctx, node, input)
		if err != nil {
			r.failHistory(entryIdx, err)
			r.publish(ctx, node.ID, "node.failed", map[string]interface{}{"error": err.Error()})
			r.terminalFailure(ctx, node, err)
			return
		}

		r.succeedHistory(entryIdx, usedFallback)
		r.mu.Lock()
		r.ctx.NodeOutputs[node.ID] = out
		r.ctx.MappedOutputs[node.ID] = out
		r.mu.Unlock()
		r.publish(ctx, node.ID, "node.completed", map[string]interface{}{"status": out.Status, "fallback": usedFallback})

		if node.Type == domain.NodeApproval {
			resolved, err := r.awaitApproval(ctx, node, out)
			if err != nil {
				r.terminalFailure(ctx, node, err)
				return
			}
			out = resolved
			r.mu.Lock()
			r.ctx.NodeOutputs[node.ID] = out
			r.ctx.MappedOutputs[node.ID] = out
			r.mu.Unlock()
		}

		if node.Type == domain.NodeTimer && out.Timer != nil {
			wait := time.Duration(out.Timer.WaitedSeconds) * time.Second
			if err := r.interp.runtime.Sleep(ctx, wait); err != nil {
				r.terminalFailure(ctx, node, err)
				return
			}
			r.publish(ctx, node.ID, "timer.completed", map[string]interface{}{"waited_seconds": out.Timer.WaitedSeconds})
		}

		nextID, terminate, err := r.nextNode(node, out)
		if err != nil {
			r.terminalFailure(ctx, node, err)
			return
		}
		if terminate {
			r.finalizeSuccess(ctx, nil)
			return
		}

		currentNodeID = nextID
		r.mu.Lock()
		r.exec.CurrentNode = currentNodeID
		r.mu.Unlock()
	}
}

// runNodeWithPolicies dispatches node, applying the eval on_failure policy
// (retry/warn/block/compensate) and the self-healing agent fallback. It
// returns the output to record plus whether a fallback agent produced it.
func (r *Run) runNodeWithPolicies(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, bool, error) {
	maxAttempts := 1
	if node.Type == domain.NodeEval {
		maxAttempts = r.interp.evalMaxAttempts()
	}

	var out *domain.MappedOutput
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var usedFallback bool
		out, err = r.dispatchNode(ctx, node, input)
		if err != nil {
			var fallbackOut *domain.MappedOutput
			fallbackOut, usedFallback, err = r.tryFallback(ctx, node, err)
			if usedFallback && err == nil {
				out = fallbackOut
			}
		}
		if err != nil {
			return nil, usedFallback, err
		}

		if node.Type != domain.NodeEval || out.Eval == nil || out.Eval.Passed {
			return out, usedFallback, nil
		}

		switch out.Eval.OnFailure {
		case "retry":
			if attempt < maxAttempts {
				r.publish(ctx, node.ID, "eval.completed", map[string]interface{}{"passed": false, "attempt": attempt, "retrying": true})
				continue
			}
			return nil, false, fmt.Errorf("%w: eval node %s did not pass after %d attempts", domain.ErrEvalFailure, node.ID, attempt)
		case "warn":
			r.publish(ctx, node.ID, "eval.completed", map[string]interface{}{"passed": false, "warning": true})
			return out, usedFallback, nil
		case "compensate":
			return nil, false, fmt.Errorf("%w: eval node %s requested compensation", domain.ErrEvalFailure, node.ID)
		default: // "block" or unset
			return nil, false, fmt.Errorf("%w: eval node %s blocked the workflow", domain.ErrEvalFailure, node.ID)
		}
	}
	return out, false, err
}

// dispatchNode runs one activity through the durable runtime (so
// retry/timeout/circuit-breaking apply) and records an agent score for
// self-healing when the node is an agent node.
func (r *Run) dispatchNode(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	opts := durableActivityOptions(node.Type)
	start := time.Now()

	var out *domain.MappedOutput
	runErr := r.interp.runtime.RunActivity(ctx, opts, func(actCtx context.Context) error {
		o, execErr := r.interp.registry.Execute(actCtx, node, input)
		if execErr != nil {
			return execErr
		}
		out = o
		return nil
	})

	if node.Type == domain.NodeAgent && r.interp.selfheal != nil {
		latencyMs := float64(time.Since(start).Milliseconds())
		cost := 0.0
		if out != nil && out.Agent != nil {
			cost = out.Agent.Cost
		}
		provider := configString(node.Config, "provider", "default")
		agentID := configString(node.Config, "agent_id", node.ID)
		_ = r.interp.selfheal.RecordExecution(ctx, provider, agentID, runErr == nil, latencyMs, cost)
	}

	return out, runErr
}

// buildInput resolves the mapped input for node. Trigger nodes have no
// predecessor, so they receive the raw workflow input directly; merge
// nodes additionally collect every configured incoming branch's output.
func (r *Run) buildInput(node *domain.Node) (map[string]interface{}, error) {
	r.mu.RLock()
	prev := r.ctx.LastOutput(node.ID)
	allOutputs := r.ctx.MappedOutputs
	workflowInput := r.ctx.WorkflowInput
	r.mu.RUnlock()

	if node.Type == domain.NodeTrigger {
		input := make(map[string]interface{}, len(workflowInput))
		for k, v := range workflowInput {
			input[k] = v
		}
		return input, nil
	}

	mapped, err := mapper.Map(prev, node.Type, node.Config, allOutputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTerminalActivity, err)
	}

	if node.Type == domain.NodeMerge {
		mapped["branches"] = r.mergeBranches(node)
	}
	return mapped, nil
}

func (r *Run) mergeBranches(node *domain.Node) []interface{} {
	ids, _ := node.Config["incoming_branch_node_ids"].([]interface{})
	r.mu.RLock()
	defer r.mu.RUnlock()
	var branches []interface{}
	for _, idRaw := range ids {
		id, ok := idRaw.(string)
		if !ok {
			continue
		}
		if out, ok := r.ctx.MappedOutputs[id]; ok {
			branches = append(branches, out.AsInterface())
		}
	}
	return branches
}

func (r *Run) allNodeOutputsAsInterface() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]interface{}, len(r.ctx.MappedOutputs))
	for id, m := range r.ctx.MappedOutputs {
		out[id] = m.AsInterface()
	}
	return out
}

func (r *Run) beginHistory(node *domain.Node) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx.AppendHistory(domain.HistoryEntry{
		NodeID:    node.ID,
		NodeType:  node.Type,
		Status:    domain.HistoryRunning,
		StartTime: time.Now(),
	})
}

func (r *Run) succeedHistory(idx int, usedFallback bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.ctx.History[idx].Status = domain.HistorySuccess
	r.ctx.History[idx].EndTime = &now
	r.ctx.History[idx].IsFallback = usedFallback
}

func (r *Run) failHistory(idx int, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.ctx.History[idx].Status = domain.HistoryFailed
	r.ctx.History[idx].EndTime = &now
	r.ctx.History[idx].Error = cause.Error()
}

func (r *Run) persist(ctx context.Context) {
	if r.interp.store == nil {
		return
	}
	r.mu.RLock()
	execCopy := *r.exec
	err := r.interp.store.SaveExecution(ctx, &execCopy, r.ctx)
	r.mu.RUnlock()
	if err != nil {
		r.interp.log.Error("interpreter: checkpoint failed", "execution_id", execCopy.ID, "error", err)
	}
}

func (r *Run) publish(ctx context.Context, nodeID, eventType string, data map[string]interface{}) {
	if r.interp.bus == nil {
		return
	}
	r.mu.RLock()
	workflowID := r.ctx.WorkflowID
	executionID := r.exec.ID
	r.mu.RUnlock()
	_ = r.interp.bus.Publish(ctx, &domain.EventRecord{
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		NodeID:      nodeID,
		EventType:   eventType,
		Data:        data,
		Timestamp:   time.Now(),
	})
}

// finalizeSuccess records the execution as completed. When endNode is
// non-nil and its capture_output config is true, the end node's own
// input (the last node's mapped output) becomes the workflow output;
// otherwise (no end node reached via a natural terminate, or
// capture_output unset) the last successfully executed node's output is
// used, per spec.md's "last successful node" fallback rule.
func (r *Run) finalizeSuccess(ctx context.Context, endNode *domain.Node) {
	r.mu.Lock()
	exclude := ""
	if endNode != nil {
		exclude = endNode.ID
	}
	finalOutput := r.ctx.LastOutput(exclude).AsInterface()

	now := time.Now()
	r.exec.Status = domain.StatusCompleted
	r.exec.Output = finalOutput
	r.exec.CompletedAt = &now
	if endNode != nil {
		r.exec.CurrentNode = endNode.ID
	}
	execID := r.exec.ID
	r.mu.Unlock()

	r.persist(ctx)
	r.publish(ctx, "", "workflow.completed", map[string]interface{}{"execution_id": execID, "output": finalOutput})
	r.finish(nil)
}

func (r *Run) terminalFailure(ctx context.Context, node *domain.Node, cause error) {
	r.mu.Lock()
	now := time.Now()
	r.exec.Status = domain.StatusFailed
	r.exec.Error = cause.Error()
	r.exec.FailureReason = node.ID
	r.exec.CompletedAt = &now
	r.exec.CompensationStatus = domain.CompensationInProgress
	def := r.def
	execCtx := r.ctx
	r.mu.Unlock()

	r.persist(ctx)
	r.publish(ctx, node.ID, "workflow.failed", map[string]interface{}{"error": cause.Error(), "node_id": node.ID})

	if r.interp.compensation != nil {
		compErr := r.interp.compensation.Compensate(ctx, def, execCtx, node.ID)
		r.mu.Lock()
		if compErr != nil {
			r.exec.CompensationStatus = domain.CompensationFailed
		} else {
			r.exec.CompensationStatus = domain.CompensationCompleted
		}
		r.mu.Unlock()
		r.persist(ctx)
	}

	r.finish(fmt.Errorf("%w: %v", domain.ErrWorkflowFailure, cause))
}

func (r *Run) finishCanceled(ctx context.Context) {
	r.mu.Lock()
	now := time.Now()
	r.exec.Status = domain.StatusCanceled
	r.exec.CompletedAt = &now
	reason := r.cancelReason
	r.mu.Unlock()

	r.persist(ctx)
	r.publish(ctx, "", "workflow.canceled", map[string]interface{}{"reason": reason})
	r.finish(nil)
}

func (r *Run) finishWithErr(ctx context.Context, err error) {
	r.mu.Lock()
	now := time.Now()
	r.exec.Status = domain.StatusFailed
	r.exec.Error = err.Error()
	r.exec.CompletedAt = &now
	r.mu.Unlock()

	r.persist(ctx)
	r.publish(ctx, "", "workflow.failed", map[string]interface{}{"error": err.Error()})
	r.finish(err)
}

func (r *Run) finish(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// waitWhilePaused blocks while r.paused is set, servicing signals (a
// Resume unblocks it; other signals are applied and the wait continues).
func (r *Run) waitWhilePaused(ctx context.Context) error {
	for {
		r.mu.RLock()
		paused := r.paused
		gate := r.pauseGate
		r.mu.RUnlock()
		if !paused {
			return nil
		}
		select {
		case s := <-r.sigCh:
			r.applyControlSignal(s)
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainSignals applies every signal queued since the last step boundary
// and reports whether a cancellation was requested.
func (r *Run) drainSignals() bool {
	for {
		select {
		case s := <-r.sigCh:
			r.applyControlSignal(s)
		default:
			r.mu.RLock()
			c := r.cancelRequested
			r.mu.RUnlock()
			return c
		}
	}
}

func (r *Run) applyControlSignal(s Signal) {
	switch s.Type {
	case SignalPause:
		r.mu.Lock()
		if !r.paused {
			r.paused = true
			r.pauseGate = make(chan struct{})
			r.ctx.Paused = true
			r.exec.Status = domain.StatusPaused
		}
		r.mu.Unlock()
	case SignalResume:
		r.mu.Lock()
		if r.paused {
			r.paused = false
			close(r.pauseGate)
			r.ctx.Paused = false
			r.exec.Status = domain.StatusRunning
		}
		r.mu.Unlock()
	case SignalCancel:
		r.mu.Lock()
		r.cancelRequested = true
		r.cancelReason = s.Reason
		r.mu.Unlock()
	case SignalApproval:
		payload := s.Approval
		r.mu.Lock()
		r.pendingApprovalSignal = &payload
		r.mu.Unlock()
	}
}
