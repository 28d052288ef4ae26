package wsfanout

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes the hub over plain HTTP/WebSocket.
type Server struct {
	hub *Hub
	log *slog.Logger
}

func NewServer(hub *Hub, log *slog.Logger) *Server {
	return &Server{hub: hub, log: log}
}

// HandleWebSocket upgrades the connection and subscribes it to the
// channel named by the "channel" query parameter, e.g.
// /ws?channel=execution:exec-123 or /ws?channel=workflow:wf-7.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		http.Error(w, "channel query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, channel, s.log)
	s.log.Info("ws connection opened", "channel", channel, "remote", r.RemoteAddr)
	client.Register()
}

// HandleHealth is a trivial liveness probe for the gateway binary.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
