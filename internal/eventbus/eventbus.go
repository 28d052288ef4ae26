// Package eventbus publishes workflow/execution events durably (Postgres,
// for replay) and broadcasts them live (Redis Streams + PubSub, for the
// WebSocket gateway). Grounded on cmd/workflow-runner/workflow_lifecycle's
// EventPublisher/StatusManager (the publish-and-persist shape, and the
// hot-path/cold-path pipeline idea) and common/redis/client.go for the
// underlying XADD/PUBLISH primitives.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redisWrapper "github.com/lyzr/workflowengine/common/redis"
	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	workflowStreamMaxLen  = 10000
	executionStreamMaxLen = 5000
)

// Bus publishes EventRecords: a durable Postgres row for replay, plus a
// bounded Redis stream entry and a PubSub message for live subscribers.
type Bus struct {
	redis *redisWrapper.Client
	raw   *redis.Client
	store *persistence.Store
	log   *slog.Logger
}

func New(redisClient *redisWrapper.Client, raw *redis.Client, store *persistence.Store, log *slog.Logger) *Bus {
	return &Bus{redis: redisClient, raw: raw, store: store, log: log}
}

// Publish persists e and fans it out live. Persistence failures are
// returned (the caller's execution step should not be considered durable
// without it); live fan-out failures are only logged, since a dropped
// WebSocket push never loses data — the event log remains the source of
// truth and /executions/{id}/events always replays it exactly.
func (b *Bus) Publish(ctx context.Context, e *domain.EventRecord) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if err := b.store.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("eventbus: persist event: %w", err)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		b.log.Error("eventbus: marshal event for fanout", "error", err)
		return nil
	}

	workflowChannel := fmt.Sprintf("workflow:%s", e.WorkflowID)
	executionChannel := fmt.Sprintf("execution:%s", e.ExecutionID)

	pipe := b.redis.NewPipeline()
	pipe.AddToStream(ctx, "events:"+workflowChannel, map[string]interface{}{"payload": string(payload)})
	pipe.AddToStream(ctx, "events:"+executionChannel, map[string]interface{}{"payload": string(payload)})
	pipe.PublishEvent(ctx, workflowChannel, string(payload))
	pipe.PublishEvent(ctx, executionChannel, string(payload))
	if err := pipe.Exec(ctx); err != nil {
		b.log.Warn("eventbus: live fanout failed, event still durable", "event_id", e.ID, "error", err)
	}

	if err := b.raw.XTrimMaxLenApprox(ctx, "events:"+workflowChannel, workflowStreamMaxLen, 100).Err(); err != nil {
		b.log.Debug("eventbus: trim workflow stream failed", "error", err)
	}
	if err := b.raw.XTrimMaxLenApprox(ctx, "events:"+executionChannel, executionStreamMaxLen, 100).Err(); err != nil {
		b.log.Debug("eventbus: trim execution stream failed", "error", err)
	}

	return nil
}

// Replay returns every durable event for an execution, in order — what
// the event log is for: a crashed worker, a reconnecting client, or an
// audit request all get the same authoritative sequence.
func (b *Bus) Replay(ctx context.Context, executionID string) ([]*domain.EventRecord, error) {
	return b.store.EventsForExecution(ctx, executionID)
}

// Subscribe forwards every PubSub message on channel to handler until
// ctx is cancelled. channel should be "workflow:<id>" or "execution:<id>".
func (b *Bus) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	pubsub := b.raw.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("eventbus: subscribe to %s: %w", channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler([]byte(msg.Payload))
		}
	}
}
