// Package hub holds this process's live websocket connections and pumps
// their reads and writes.
package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/metrics"
)

var (
	ErrNotConnected   = errors.New("connection not registered on this process")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Hub is the per-process registry of live connections. Run is the only
// goroutine that adds or removes entries; lookups take the read lock.
type Hub struct {
	clients    map[string]*Client
	register   chan registration
	unregister chan string
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan registration),
		unregister: make(chan string),
		done:       make(chan struct{}),
	}
}

// Run applies registrations until ctx is cancelled, then closes every
// remaining connection's send queue.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		h.mu.Lock()
		for id, c := range h.clients {
			close(c.send)
			delete(h.clients, id)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	m := metrics.Get()
	for {
		select {
		case <-ctx.Done():
			return nil

		case r := <-h.register:
			h.mu.Lock()
			h.clients[r.client.ID] = r.client
			h.mu.Unlock()
			close(r.applied)
			m.ActiveConnections.Inc()
			log.L().Debug().Str(log.FieldConnID, r.client.ID).Msg("connection registered")

		case id := <-h.unregister:
			h.mu.Lock()
			if c, ok := h.clients[id]; ok {
				delete(h.clients, id)
				close(c.send)
				m.ActiveConnections.Dec()
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnID, id).Msg("connection unregistered")
		}
	}
}

type registration struct {
	client  *Client
	applied chan struct{}
}

// Register adds client. It returns once Run has applied it, or immediately
// if the hub has stopped.
func (h *Hub) Register(client *Client) {
	r := registration{client: client, applied: make(chan struct{})}
	select {
	case h.register <- r:
		<-r.applied
	case <-h.done:
	}
}

// Unregister removes a connection and closes its send queue. Unknown ids are ignored.
func (h *Hub) Unregister(connID string) {
	select {
	case h.unregister <- connID:
	case <-h.done:
	}
}

// Has reports whether connID is live on this process.
func (h *Hub) Has(connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[connID]
	return ok
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues data on the connection without blocking.
func (h *Hub) Send(connID string, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connID]
	if !ok {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}
