// Package durable models the "external durable workflow runtime"
// collaborator as a small interface: the interpreter dispatches every
// node activity and every sleep through it. The one implementation,
// InProcessRuntime, runs activities in the calling goroutine and keeps
// its retry and circuit-breaker state in memory only; none of it
// survives a process restart.
package durable

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sony/gobreaker"
)

// Runtime performs the two nondeterministic operations the interpreter is
// never allowed to do directly: running an activity with retry/timeout/
// circuit-breaking, and sleeping.
type Runtime interface {
	RunActivity(ctx context.Context, opts ActivityOptions, fn func(ctx context.Context) error) error
	Sleep(ctx context.Context, d time.Duration) error
}

// ActivityOptions is the per-dispatch timeout/retry policy from the
// activity timeout table: a type-specific start->close timeout and retry
// count, exponential backoff between 1s and 10s.
type ActivityOptions struct {
	Name        string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Retryable reports whether err should be retried rather than bubbled up
// as a terminal failure; callers pass in their own classifier since the
// taxonomy lives in internal/domain and durable must not import it back
// (it is a leaf package usable from outside the engine's node model).
type Retryable func(err error) bool

// InProcessRuntime runs activities directly against the calling
// goroutine's context, applying timeout, retry with exponential backoff,
// and a per-activity-name circuit breaker. It satisfies Runtime without
// requiring a separate worker process per node type; internal/worker
// provides that deployment model for installations that want node types
// isolated into their own processes.
type InProcessRuntime struct {
	breakers  map[string]*gobreaker.CircuitBreaker[any]
	retryable Retryable
}

func NewInProcessRuntime(retryable Retryable) *InProcessRuntime {
	return &InProcessRuntime{
		breakers:  make(map[string]*gobreaker.CircuitBreaker[any]),
		retryable: retryable,
	}
}

func (r *InProcessRuntime) breaker(name string) *gobreaker.CircuitBreaker[any] {
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	r.breakers[name] = b
	return b
}

func (r *InProcessRuntime) RunActivity(ctx context.Context, opts ActivityOptions, fn func(ctx context.Context) error) error {
	breaker := r.breaker(opts.Name)
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		activityCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		_, err := breaker.Execute(func() (any, error) {
			return nil, fn(activityCtx)
		})
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return err
		}
		if r.retryable != nil && !r.retryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		if sleepErr := r.Sleep(ctx, backoffDelay(attempt, opts.BaseDelay, opts.MaxDelay)); sleepErr != nil {
			return sleepErr
		}
	}
	return lastErr
}

func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if delay > max {
		delay = max
	}
	return delay
}

func (r *InProcessRuntime) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DefaultActivityOptions is the timeout/retry table from the concurrency
// model: agent gets the longest timeout and full retry budget, approval
// dispatch and merge get a single short-timeout attempt.
func DefaultActivityOptions(nodeType string) ActivityOptions {
	switch nodeType {
	case "agent":
		return ActivityOptions{Name: nodeType, Timeout: 10 * time.Minute, MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	case "api_call":
		return ActivityOptions{Name: nodeType, Timeout: 2 * time.Minute, MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	case "eval":
		return ActivityOptions{Name: nodeType, Timeout: 2 * time.Minute, MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	case "approval":
		return ActivityOptions{Name: nodeType, Timeout: 60 * time.Second, MaxAttempts: 1}
	case "merge":
		return ActivityOptions{Name: nodeType, Timeout: 60 * time.Second, MaxAttempts: 1}
	case "event":
		return ActivityOptions{Name: nodeType, Timeout: 30 * time.Second, MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	default:
		return ActivityOptions{Name: nodeType, Timeout: 30 * time.Second, MaxAttempts: 1}
	}
}
