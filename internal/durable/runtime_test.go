package durable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysRetryable(err error) bool { return true }

func TestInProcessRuntime_RunActivity_SucceedsOnFirstAttempt(t *testing.T) {
	r := NewInProcessRuntime(alwaysRetryable)
	calls := 0
	err := r.RunActivity(context.Background(), ActivityOptions{Name: "t1", Timeout: time.Second, MaxAttempts: 3}, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestInProcessRuntime_RunActivity_RetriesUntilSuccess(t *testing.T) {
	r := NewInProcessRuntime(alwaysRetryable)
	calls := 0
	err := r.RunActivity(context.Background(), ActivityOptions{Name: "t2", Timeout: time.Second, MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestInProcessRuntime_RunActivity_GivesUpAfterMaxAttempts(t *testing.T) {
	r := NewInProcessRuntime(alwaysRetryable)
	calls := 0
	err := r.RunActivity(context.Background(), ActivityOptions{Name: "t3", Timeout: time.Second, MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestInProcessRuntime_RunActivity_NonRetryableStopsImmediately(t *testing.T) {
	r := NewInProcessRuntime(func(err error) bool { return false })
	calls := 0
	err := r.RunActivity(context.Background(), ActivityOptions{Name: "t4", Timeout: time.Second, MaxAttempts: 5}, func(ctx context.Context) error {
		calls++
		return errors.New("terminal")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestInProcessRuntime_Sleep_RespectsContextCancellation(t *testing.T) {
	r := NewInProcessRuntime(alwaysRetryable)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Sleep(ctx, time.Second)
	require.Error(t, err)
}

func TestBackoffDelay_CapsAtMax(t *testing.T) {
	d := backoffDelay(10, time.Second, 10*time.Second)
	assert.Equal(t, 10*time.Second, d)
}
