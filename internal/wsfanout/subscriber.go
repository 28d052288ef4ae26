package wsfanout

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisSubscriber forwards every workflow:*/execution:* PubSub message
// published by internal/eventbus to the hub, so a client connected to
// either channel sees events live. Grounded on
// cmd/fanout/redis_subscriber.go's PSubscribe pattern.
type RedisSubscriber struct {
	redis *redis.Client
	hub   *Hub
	log   *slog.Logger
}

func NewRedisSubscriber(redisClient *redis.Client, hub *Hub, log *slog.Logger) *RedisSubscriber {
	return &RedisSubscriber{redis: redisClient, hub: hub, log: log}
}

// Start blocks, forwarding messages until ctx is cancelled.
func (s *RedisSubscriber) Start(ctx context.Context) error {
	pubsub := s.redis.PSubscribe(ctx, "workflow:*", "execution:*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	s.log.Info("fanout subscriber listening", "patterns", []string{"workflow:*", "execution:*"})

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.hub.Broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
