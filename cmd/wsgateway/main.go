// Command wsgateway runs the WebSocket fan-out as its own process,
// separate from cmd/orchestrator so a slow or disconnecting browser
// client never shares a failure domain with workflow execution. Grounded
// on cmd/fanout/main.go's process shape, rewired onto internal/wsfanout.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyzr/workflowengine/common/bootstrap"
	"github.com/lyzr/workflowengine/common/server"
	"github.com/lyzr/workflowengine/internal/wsfanout"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Setup(ctx, "wsgateway", bootstrap.WithoutDB(), bootstrap.WithoutQueue(), bootstrap.WithoutCache())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap wsgateway: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	rawRedis := goredis.NewClient(&goredis.Options{Addr: redisAddr()})
	if err := rawRedis.Ping(ctx).Err(); err != nil {
		components.Logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	hub := wsfanout.NewHub(components.Logger.Logger)
	done := make(chan struct{})
	go hub.Run(done)
	defer close(done)

	subscriber := wsfanout.NewRedisSubscriber(rawRedis, hub, components.Logger.Logger)
	go func() {
		if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
			components.Logger.Error("redis subscriber stopped", "error", err)
		}
	}()

	wsServer := wsfanout.NewServer(hub, components.Logger.Logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.HandleWebSocket)
	mux.HandleFunc("/health", wsServer.HandleHealth)

	srv := server.New("wsgateway", components.Config.Service.Port, mux, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}
