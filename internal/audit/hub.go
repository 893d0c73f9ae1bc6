package audit

import (
	"sync"

	"policy-audit/internal/models"
)

const subscriberBuffer = 32

// hub fans a job's progress events out to any number of live subscribers.
// Events are ephemeral: nothing is replayed, and a slow subscriber loses
// frames instead of stalling the pipeline.
type hub struct {
	mu     sync.Mutex
	subs   map[chan models.StreamEvent]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan models.StreamEvent]struct{})}
}

// subscribe registers a listener and returns its channel plus an unsubscribe
// func. Subscribing to a finished job yields the sentinel immediately.
func (h *hub) subscribe() (<-chan models.StreamEvent, func()) {
	ch := make(chan models.StreamEvent, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ch <- models.Sentinel()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, unsubscribe
}

func (h *hub) publish(ev models.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close delivers the sentinel to every subscriber and shuts the hub down.
// Further publishes and subscriptions observe the closed state.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		select {
		case ch <- models.Sentinel():
		default:
		}
		close(ch)
		delete(h.subs, ch)
	}
}
