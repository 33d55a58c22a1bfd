// Package stream fans taxonomy lifecycle events out to subscribers:
// the websocket endpoint in the gateway and, when configured, the
// kafka publisher.
package stream

import (
	"encoding/json"
	"sync"
	"time"
)

type Event struct {
	Kind string          `json:"kind"`
	At   string          `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(kind string, data any) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Kind: kind, At: time.Now().UTC().Format(time.RFC3339Nano), Data: raw}
}

// Hub is a non-blocking broadcast hub. Slow subscribers drop events
// rather than stalling publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Event]struct{}{}}
}

func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	_, exists := h.subs[ch]
	if exists {
		delete(h.subs, ch)
	}
	h.mu.Unlock()
	if exists {
		close(ch)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Emit publishes a freshly-stamped event. It satisfies
// taxonomy.EventSink.
func (h *Hub) Emit(kind string, data any) {
	h.Publish(NewEvent(kind, data))
}
