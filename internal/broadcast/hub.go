// Package broadcast implements the client push channel's lossy-best-effort
// fan-out: one typed Event per subscriber buffered channel, a
// full buffer drops the event rather than blocking the publisher.
package broadcast

import (
	"sync"

	"github.com/Conceptual-Machines/jamctl/internal/logger"
)

// subscriberBuffer is how many pending events a slow subscriber can
// accumulate before new events are dropped for it.
const subscriberBuffer = 64

// Event is one typed message on the push channel.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans Events out to subscribers. The zero value is not usable; use New.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]chan Event
	next int64
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[int64]chan Event)}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. Callers must Unsubscribe when done to free the channel.
func (h *Hub) Subscribe() (int64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// Publish fans out one event to every current subscriber. A subscriber
// whose buffer is full has the event dropped for it and logged; fan-out
// is lossy best-effort, never blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("broadcast: dropping event for slow subscriber", logger.Fields{
				"subscriber_id": id,
				"event_type":    ev.Type,
			})
		}
	}
}

// SubscriberCount reports the current number of subscribers, for metrics.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
