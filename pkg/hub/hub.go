package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Cavumnigrum/cheating-detector/internal/log"
)

// queueSize bounds both the hub inbox and every client outbox.
const queueSize = 256

// Hub owns the dashboard clients. A single goroutine (Run) mutates the
// client set; everything else talks to it over channels.
type Hub struct {
	logger *slog.Logger

	clients map[*Client]struct{}
	mu      sync.RWMutex // guards clients for readers outside Run

	inbox      chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// New creates a hub. Nothing is delivered until Run is called.
func New(name string) *Hub {
	return &Hub{
		logger:     log.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		inbox:      make(chan Message, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run delivers messages until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c, "client disconnected")
		case msg := <-h.inbox:
			h.deliver(msg)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", "topic", c.topic, "clients", n)
}

// remove closes c's outbox once; later calls for the same client are no-ops.
func (h *Hub) remove(c *Client, why string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Info(why, "topic", c.topic, "clients", n)
	}
}

func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.clients {
		if !msg.wants(c.topic) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.remove(c, "slow client dropped")
	}
}

func (h *Hub) stop() {
	close(h.done)
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
	}
	clear(h.clients)
	h.mu.Unlock()
}

// Broadcast queues msg without blocking. The message is dropped when the
// inbox is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.inbox <- msg:
	default:
		h.logger.Warn("inbox full, message dropped", "topic", msg.Topic)
	}
}

// Publish encodes v as JSON and broadcasts it under topic.
func (h *Hub) Publish(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewMessage(topic, data))
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
