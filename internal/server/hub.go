package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/position-monitor/internal/engine"
)

// ClientBufferSize is the per-subscriber notification buffer.
const ClientBufferSize = 64

// ChangeMessage is the wire form of an engine change.
type ChangeMessage struct {
	Kind      engine.ChangeKind `json:"kind"`
	ID        string            `json:"id"`
	Field     string            `json:"field,omitempty"`
	Direction string            `json:"direction,omitempty"`
	At        time.Time         `json:"at"`
}

func newChangeMessage(c engine.Change) ChangeMessage {
	msg := ChangeMessage{
		Kind:  c.Kind,
		ID:    c.Key.RecordID,
		Field: c.Key.Field,
		At:    c.At,
	}
	if c.Kind == engine.ChangeUpdate {
		msg.Direction = c.Direction.String()
	}
	return msg
}

// Hub fans engine changes out to subscribers. A subscriber that falls
// behind loses its oldest pending messages.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[chan ChangeMessage]struct{}
	sent   int64
	drops  int64
	closed bool
}

// NewHub creates a hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[chan ChangeMessage]struct{}),
	}
}

// Run broadcasts changes until ctx is done, then closes every subscriber.
func (h *Hub) Run(ctx context.Context, changes <-chan engine.Change) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-changes:
			h.Broadcast(newChangeMessage(c))
		}
	}
}

// Subscribe registers a subscriber. The returned channel is closed by
// cancel or when the hub stops.
func (h *Hub) Subscribe() (<-chan ChangeMessage, func()) {
	ch := make(chan ChangeMessage, ClientBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Broadcast delivers msg to every subscriber without blocking.
func (h *Hub) Broadcast(msg ChangeMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- msg:
			h.sent++
			continue
		default:
		}

		// Drop the oldest and retry once.
		select {
		case <-ch:
			h.drops++
		default:
		}
		select {
		case ch <- msg:
			h.sent++
		default:
			h.drops++
		}
	}
}

// HubStats reports fan-out counters.
type HubStats struct {
	Subscribers int
	Sent        int64
	Dropped     int64
}

// Stats returns current counters.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HubStats{Subscribers: len(h.subs), Sent: h.sent, Dropped: h.drops}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.logger.Debug("change hub stopped")
}
