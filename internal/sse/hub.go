package sse

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Hub fans notifications out to every connected listener. Slow listeners
// miss events rather than blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() (chan []byte, func()) {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}
}

func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Publish encodes data as a named event and broadcasts it.
func (h *Hub) Publish(event string, data any) error {
	payload, err := Event(event, data)
	if err != nil {
		return err
	}
	h.Broadcast(payload)
	return nil
}

// Event renders one server-sent event frame.
func Event(event string, data any) ([]byte, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, encoded)), nil
}
