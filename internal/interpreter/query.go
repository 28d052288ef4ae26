package interpreter

import (
	"context"

	"github.com/lyzr/workflowengine/internal/domain"
)

// Snapshot is a point-in-time read of a Run's state, safe to hand to a
// caller outside the run's own goroutine.
type Snapshot struct {
	Execution         domain.Execution
	CurrentNode       string
	IsPaused          bool
	IsWaitingApproval bool
	History           []domain.HistoryEntry
}

// GetState returns the execution's current snapshot.
func (r *Run) GetState() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	history := make([]domain.HistoryEntry, len(r.ctx.History))
	copy(history, r.ctx.History)
	return Snapshot{
		Execution:         *r.exec,
		CurrentNode:       r.exec.CurrentNode,
		IsPaused:          r.paused,
		IsWaitingApproval: r.ctx.PendingApproval != nil,
		History:           history,
	}
}

// IsPaused reports whether the run is currently honoring a Pause signal.
func (r *Run) IsPaused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// GetExecutionHistory returns a copy of every node step recorded so far,
// in the order the nodes were entered.
func (r *Run) GetExecutionHistory() []domain.HistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	history := make([]domain.HistoryEntry, len(r.ctx.History))
	copy(history, r.ctx.History)
	return history
}

// Wait blocks until the run reaches a terminal status or ctx is canceled,
// then returns the final Execution and, for a failed or errored run, the
// error that ended it.
func (r *Run) Wait(ctx context.Context) (*domain.Execution, error) {
	select {
	case <-r.done:
		r.mu.RLock()
		defer r.mu.RUnlock()
		execCopy := *r.exec
		return &execCopy, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
