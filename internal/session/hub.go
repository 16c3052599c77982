package session

import (
	"sync"

	"github.com/sha03112000/autohead/pkg/logger"

	"go.uber.org/zap"
)

// Subscriber receives session events on Events until it is unregistered
// or dropped for falling behind.
type Subscriber struct {
	Events chan Event
}

// Hub fans session events out to subscribers. Broadcast never blocks: a
// subscriber whose buffer is full is dropped and its channel closed.
type Hub struct {
	mu      sync.Mutex
	clients map[*Subscriber]bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Subscriber]bool),
	}
}

func (h *Hub) Register(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 16
	}
	s := &Subscriber{Events: make(chan Event, buffer)}

	h.mu.Lock()
	h.clients[s] = true
	h.mu.Unlock()
	return s
}

func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.Events)
	}
}

// Broadcast queues e on every subscriber before returning.
func (h *Hub) Broadcast(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		select {
		case s.Events <- e:
		default:
			logger.Warn("session subscriber fell behind, dropping", zap.String("state", string(e.State)))
			close(s.Events)
			delete(h.clients, s)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
