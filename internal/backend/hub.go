package backend

import (
	"sync"

	"github.com/Dezexus/subvision/pkg/models"
)

// Hub fans broker events out to in-process subscribers (SSE handlers, open
// sessions). Slow subscribers drop events rather than block the consumer.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan models.JobEvent
	next int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan models.JobEvent)}
}

// Subscribe returns a buffered event channel for a client identifier and an
// unsubscribe func that closes it.
func (h *Hub) Subscribe(clientID string) (<-chan models.JobEvent, func()) {
	ch := make(chan models.JobEvent, 64)

	h.mu.Lock()
	if h.subs[clientID] == nil {
		h.subs[clientID] = make(map[int]chan models.JobEvent)
	}
	id := h.next
	h.next++
	h.subs[clientID][id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if m, ok := h.subs[clientID]; ok {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(h.subs, clientID)
			}
		}
		h.mu.Unlock()
	}
}

// Publish delivers an event to every subscriber of its client identifier.
func (h *Hub) Publish(event models.JobEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[event.ClientID] {
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up; drop.
		}
	}
}
