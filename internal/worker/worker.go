// Package worker runs one node type's activity dispatch as a standalone
// process: a Redis stream consumer group per type, exactly like the
// teacher's http_worker.go XREADGROUP/XACK loop, generalized from "HTTP
// tasks only" to any internal/executor.Executor.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/executor"
	redisWrapper "github.com/lyzr/workflowengine/common/redis"
)

// Task is the unit of work a worker reads off its stream: a single node
// dispatch with its already-mapped input.
type Task struct {
	ExecutionID string                 `json:"execution_id"`
	Node        domain.Node            `json:"node"`
	Input       map[string]interface{} `json:"input"`
}

// Result is what a worker writes back after running the activity.
type Result struct {
	ExecutionID string               `json:"execution_id"`
	NodeID      string               `json:"node_id"`
	Status      string               `json:"status"` // "completed" | "failed"
	Output      *domain.MappedOutput `json:"output,omitempty"`
	Error       string               `json:"error,omitempty"`
}

func streamName(nodeType domain.NodeType) string {
	return fmt.Sprintf("wf.tasks.%s", nodeType)
}

const completionStream = "wf.completions"

// Worker consumes one node type's task stream and dispatches each task to
// the matching executor, writing a Result back onto the shared completion
// stream. Nothing in this repository reads that stream; the interpreter
// dispatches through durable.InProcessRuntime instead.
type Worker struct {
	redis        *redisWrapper.Client
	executor     executor.Executor
	nodeType     domain.NodeType
	consumerGroup string
	consumerName  string
	log           *slog.Logger
}

func New(redisClient *redisWrapper.Client, nodeType domain.NodeType, exec executor.Executor, log *slog.Logger) *Worker {
	return &Worker{
		redis:         redisClient,
		executor:      exec,
		nodeType:      nodeType,
		consumerGroup: fmt.Sprintf("%s_workers", nodeType),
		consumerName:  fmt.Sprintf("%s_worker_%d", nodeType, time.Now().UnixNano()),
		log:           log,
	}
}

// Start begins consuming tasks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	stream := streamName(w.nodeType)
	if err := w.redis.CreateStreamGroup(ctx, stream, w.consumerGroup); err != nil {
		return fmt.Errorf("worker %s: creating consumer group: %w", w.nodeType, err)
	}

	w.log.Info("worker starting", "node_type", w.nodeType, "stream", stream, "consumer", w.consumerName)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping", "node_type", w.nodeType)
			return nil
		default:
			if err := w.processNext(ctx, stream); err != nil {
				w.log.Error("worker processing error", "node_type", w.nodeType, "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) processNext(ctx context.Context, stream string) error {
	streams, err := w.redis.ReadFromStreamGroup(ctx, w.consumerGroup, w.consumerName, stream, 1, 5*time.Second)
	if err != nil {
		return err
	}

	for _, s := range streams {
		for _, message := range s.Messages {
			w.handleMessage(ctx, message.ID, message.Values)
			if ackErr := w.redis.AckStreamMessage(ctx, stream, w.consumerGroup, message.ID); ackErr != nil {
				w.log.Error("failed to ack message", "message_id", message.ID, "error", ackErr)
			}
		}
	}
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, messageID string, values map[string]interface{}) {
	payload, ok := values["task"].(string)
	if !ok {
		w.log.Error("message missing task field", "message_id", messageID)
		return
	}

	var task Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		w.log.Error("failed to unmarshal task", "message_id", messageID, "error", err)
		return
	}

	result := Result{ExecutionID: task.ExecutionID, NodeID: task.Node.ID}
	out, err := w.executor.Execute(ctx, &task.Node, task.Input)
	if err != nil {
		result.Status = "failed"
		result.Error = err.Error()
	} else {
		result.Status = "completed"
		result.Output = out
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		w.log.Error("failed to marshal result", "error", err)
		return
	}
	if _, err := w.redis.AddToStream(ctx, completionStream, map[string]interface{}{"result": string(encoded)}); err != nil {
		w.log.Error("failed to publish completion", "error", err)
	}
}

// Enqueue places a task on the per-type stream a Worker for task.Node.Type
// consumes, for a queued (multi-process) deployment. The interpreter does
// not call it; it dispatches through durable.InProcessRuntime.
func Enqueue(ctx context.Context, redisClient *redisWrapper.Client, task Task) error {
	encoded, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("worker: encoding task: %w", err)
	}
	_, err = redisClient.AddToStream(ctx, streamName(task.Node.Type), map[string]interface{}{"task": string(encoded)})
	return err
}
