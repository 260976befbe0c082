package chat

import (
	"sync"

	"github.com/telecare/platform/internal/shared/types"
)

// Hub fans persisted messages out to live subscribers within this process.
// Delivery is best effort and at most once: a slow subscriber drops
// messages rather than blocking the sender, and history remains the source
// of truth.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[types.ID]map[chan Message]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[types.ID]map[chan Message]struct{}),
	}
}

// Subscribe registers a listener for one consultation's messages. The
// returned function must be called to unsubscribe; it closes the channel.
func (h *Hub) Subscribe(consultationID types.ID) (<-chan Message, func()) {
	ch := make(chan Message, 16)

	h.mu.Lock()
	if h.subscribers[consultationID] == nil {
		h.subscribers[consultationID] = make(map[chan Message]struct{})
	}
	h.subscribers[consultationID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[consultationID], ch)
			if len(h.subscribers[consultationID]) == 0 {
				delete(h.subscribers, consultationID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}

	return ch, unsubscribe
}

// Broadcast delivers a message to every live subscriber of its
// consultation. Never blocks: full subscriber buffers are skipped.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[msg.ConsultationID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers reports the live subscriber count for a consultation
func (h *Hub) Subscribers(consultationID types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[consultationID])
}
