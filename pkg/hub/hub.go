// Package hub fans goal events out to websocket clients.
//
// A single goroutine owns the client set; producers hand it frames through
// a buffered channel and never block. Each client either follows every
// goal or a single goal id.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-cartdock/internal/log"
)

// frame is one encoded event and the goal it belongs to.
type frame struct {
	goalID string
	data   []byte
}

// Hub tracks connected clients and delivers frames to those that want them.
type Hub struct {
	logger *slog.Logger

	frames     chan frame
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]struct{}

	running atomic.Bool
	dropped atomic.Int64 // frames discarded because the hub was backed up
	evicted atomic.Int64 // clients removed for not keeping up
}

// New creates a hub. name tags its log lines.
func New(name string, logger *slog.Logger) *Hub {
	return &Hub{
		logger:     log.Or(logger).With("component", "hub", "hub", name),
		frames:     make(chan frame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
	}
}

// Run delivers frames until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.removeLocked(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", n, "goal", c.goalID)

		case c := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(c)
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", n)

		case f := <-h.frames:
			h.deliver(f)
		}
	}
}

func (h *Hub) deliver(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !c.wants(f.goalID) {
			continue
		}
		select {
		case c.send <- f.data:
		default:
			h.removeLocked(c)
			h.evicted.Add(1)
			h.logger.Warn("evicted slow client", "goal", c.goalID)
		}
	}
}

// removeLocked drops c and closes its queue. h.mu must be held.
func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Broadcast queues data for clients following goalID. It never blocks; when
// the hub is backed up the frame is counted and dropped.
func (h *Hub) Broadcast(goalID string, data []byte) {
	select {
	case h.frames <- frame{goalID: goalID, data: data}:
	default:
		h.dropped.Add(1)
		h.logger.Debug("hub backed up, dropping frame", "goal", goalID)
	}
}

// Publish encodes v as JSON and broadcasts it for goalID.
func (h *Hub) Publish(goalID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(goalID, data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Evicted returns how many clients were removed for falling behind.
func (h *Hub) Evicted() int64 {
	return h.evicted.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
