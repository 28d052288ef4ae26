package domain

import "errors"

// Sentinel error taxonomy. The interpreter and executors wrap these with
// fmt.Errorf("...: %w", ...) so callers can errors.Is/As to decide retry
// vs. terminal handling without string matching.
var (
	// ErrValidation marks a definition rejected before any execution
	// starts (missing trigger/end, dangling edge, unreachable node).
	ErrValidation = errors.New("validation error")

	// ErrTransientActivity marks a retryable activity failure (HTTP 5xx,
	// network, rate-limit). The worker's retry policy consumes these.
	ErrTransientActivity = errors.New("transient activity error")

	// ErrTerminalActivity marks a non-retryable activity failure (HTTP
	// 4xx excluding 429, schema mismatch, config error).
	ErrTerminalActivity = errors.New("terminal activity error")

	// ErrEvalFailure marks an eval node result with passed=false; the
	// interpreter, not the executor, decides what to do per on_failure.
	ErrEvalFailure = errors.New("eval failure")

	// ErrApprovalTimeout marks an approval wait that exceeded
	// timeout_hours.
	ErrApprovalTimeout = errors.New("approval timeout")

	// ErrCompensation marks a per-node compensation handler failure.
	// It is recorded but never aborts the remaining rollback.
	ErrCompensation = errors.New("compensation error")

	// ErrWorkflowFailure is the final state after compensation runs.
	ErrWorkflowFailure = errors.New("workflow failure")

	// ErrNodeNotFound means the interpreter tried to resolve a node id
	// that isn't in the definition; always non-retryable.
	ErrNodeNotFound = errors.New("node not found")

	// ErrApprovalAlreadyResolved means a signal arrived for a slot whose
	// status is no longer pending.
	ErrApprovalAlreadyResolved = errors.New("approval slot already resolved")
)
