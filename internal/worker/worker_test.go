package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lyzr/workflowengine/internal/domain"
	redisWrapper "github.com/lyzr/workflowengine/common/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stubLogger struct{}

func (stubLogger) Info(msg string, kv ...interface{})  {}
func (stubLogger) Error(msg string, kv ...interface{}) {}
func (stubLogger) Warn(msg string, kv ...interface{})  {}
func (stubLogger) Debug(msg string, kv ...interface{}) {}

type fixedExecutor struct {
	out *domain.MappedOutput
	err error
}

func (f *fixedExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	return f.out, f.err
}

func newTestRedis(t *testing.T) *redisWrapper.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return redisWrapper.NewClient(rc, stubLogger{})
}

func TestWorker_ProcessNext_PublishesCompletionResult(t *testing.T) {
	rc := newTestRedis(t)
	node := domain.Node{ID: "n1", Type: domain.NodeTrigger}
	exec := &fixedExecutor{out: &domain.MappedOutput{NodeID: "n1", NodeType: domain.NodeTrigger, Status: domain.OutputSuccess}}
	w := New(rc, domain.NodeTrigger, exec, slog.Default())

	ctx := context.Background()
	require.NoError(t, Enqueue(ctx, rc, Task{ExecutionID: "exec-1", Node: node, Input: map[string]interface{}{}}))
	require.NoError(t, w.redis.CreateStreamGroup(ctx, streamName(domain.NodeTrigger), w.consumerGroup))

	require.NoError(t, w.processNext(ctx, streamName(domain.NodeTrigger)))

	require.NoError(t, rc.CreateStreamGroup(ctx, completionStream, "completion_readers"))
	streams, err := rc.ReadFromStreamGroup(ctx, "completion_readers", "reader-1", completionStream, 1, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Len(t, streams[0].Messages, 1)

	var result Result
	require.NoError(t, json.Unmarshal([]byte(streams[0].Messages[0].Values["result"].(string)), &result))
	require.Equal(t, "completed", result.Status)
	require.Equal(t, "n1", result.NodeID)
}

func TestWorker_ProcessNext_RecordsExecutorFailure(t *testing.T) {
	rc := newTestRedis(t)
	node := domain.Node{ID: "n2", Type: domain.NodeAPICall}
	exec := &fixedExecutor{err: domain.ErrTerminalActivity}
	w := New(rc, domain.NodeAPICall, exec, slog.Default())

	ctx := context.Background()
	require.NoError(t, Enqueue(ctx, rc, Task{ExecutionID: "exec-2", Node: node, Input: map[string]interface{}{}}))
	require.NoError(t, w.redis.CreateStreamGroup(ctx, streamName(domain.NodeAPICall), w.consumerGroup))
	require.NoError(t, w.processNext(ctx, streamName(domain.NodeAPICall)))

	require.NoError(t, rc.CreateStreamGroup(ctx, completionStream, "completion_readers2"))
	streams, err := rc.ReadFromStreamGroup(ctx, "completion_readers2", "reader-1", completionStream, 1, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, streams, 1)

	var result Result
	require.NoError(t, json.Unmarshal([]byte(streams[0].Messages[0].Values["result"].(string)), &result))
	require.Equal(t, "failed", result.Status)
}
