// Package wsfanout broadcasts workflow/execution events to WebSocket
// subscribers. Grounded on cmd/fanout/{hub,client,redis_subscriber,server}.go,
// re-keyed from "username" to "workflow:{id}"/"execution:{id}" channels —
// a client can subscribe to either, or both, to watch a run live.
package wsfanout

import (
	"log/slog"
	"sync"
)

// Hub maintains active WebSocket connections keyed by channel
// ("workflow:<id>" or "execution:<id>") and broadcasts messages to every
// connection subscribed to a channel.
type Hub struct {
	log *slog.Logger

	mu          sync.RWMutex
	connections map[string][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
}

// Message is one payload to fan out to every client on Channel.
type Message struct {
	Channel string
	Data    []byte
}

// NewHub creates an idle hub; call Run to start its event loop.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:         log,
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
	}
}

// Run processes register/unregister/broadcast events until ctx-like stop
// is signalled by closing done.
func (h *Hub) Run(done <-chan struct{}) {
	h.log.Info("fanout hub started")
	for {
		select {
		case <-done:
			return
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case m := <-h.broadcast:
			h.broadcastToChannel(m)
		}
	}
}

// Broadcast queues a message for delivery; safe to call from any
// goroutine (e.g. the event bus subscriber).
func (h *Hub) Broadcast(channel string, data []byte) {
	h.broadcast <- &Message{Channel: channel, Data: data}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.channel] = append(h.connections[c.channel], c)
	h.log.Debug("ws client registered", "channel", c.channel, "total", len(h.connections[c.channel]))
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.connections[c.channel]
	for i, existing := range clients {
		if existing == c {
			h.connections[c.channel] = append(clients[:i], clients[i+1:]...)
			close(c.send)
			if len(h.connections[c.channel]) == 0 {
				delete(h.connections, c.channel)
			}
			break
		}
	}
}

// broadcastToChannel drops a client on the first send failure rather
// than blocking the hub loop behind a slow reader.
func (h *Hub) broadcastToChannel(m *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.connections[m.Channel]
	kept := clients[:0]
	for _, c := range clients {
		select {
		case c.send <- m.Data:
			kept = append(kept, c)
		default:
			h.log.Warn("ws client send buffer full, dropping", "channel", m.Channel)
			close(c.send)
		}
	}
	if len(kept) == 0 {
		delete(h.connections, m.Channel)
	} else {
		h.connections[m.Channel] = kept
	}
}

// ConnectionCount reports the total number of live connections across
// every channel.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.connections {
		n += len(clients)
	}
	return n
}
