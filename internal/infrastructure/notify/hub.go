package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Message pairs an event with its destination for subscribers.
type Message struct {
	Destination Destination `json:"destination"`
	Event       Event       `json:"event"`
}

// Hub broadcasts events to in-process subscribers such as the SSE and
// websocket handlers. Slow subscribers lose messages rather than block.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Message]struct{}
	logger      *zap.Logger
	bufferSize  int
}

var _ Notifier = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[chan Message]struct{}),
		logger:      logger,
		bufferSize:  16,
	}
}

// Subscribe registers a listener. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, h.bufferSize)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

// Subscribers returns the number of active listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) Notify(ctx context.Context, dest Destination, ev Event) error {
	msg := Message{Destination: dest, Event: ev}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("dropped notification for slow subscriber",
				zap.String("job_id", ev.JobID),
				zap.String("destination", dest.String()))
		}
	}
	return nil
}
