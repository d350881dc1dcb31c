package session

import (
	"sync"

	"phobos.org.uk/sajtmaskin/internal/stream"
	"phobos.org.uk/sajtmaskin/internal/streamstate"
)

// Event is one update of a stream delivered to subscribers. Chunk events
// carry the interpreted chunk; the final event of a stream carries its
// terminal state and snapshot.
type Event struct {
	StreamID string            `json:"stream_id"`
	Seq      uint64            `json:"seq"`
	State    streamstate.State `json:"state"`
	Chunk    *stream.Chunk     `json:"chunk,omitempty"`
	Snapshot *Snapshot         `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Hub fans stream events out to subscribers. Sends never block: a
// subscriber whose buffer is full misses events.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Event]struct{}{}}
}

// Subscribe registers for events of one stream. The returned function
// unsubscribes and closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe(streamID string, buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	h.mu.Lock()
	if _, ok := h.subs[streamID]; !ok {
		h.subs[streamID] = map[chan Event]struct{}{}
	}
	h.subs[streamID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if streamSubs, ok := h.subs[streamID]; ok {
				delete(streamSubs, ch)
				if len(streamSubs) == 0 {
					delete(h.subs, streamID)
				}
			}
			close(ch)
		})
	}
	return ch, unsub
}

// Publish delivers ev to the stream's subscribers.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.StreamID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of subscribers of a stream.
func (h *Hub) Subscribers(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[streamID])
}
