package service

import (
	"sync"

	nest "github.com/gleadbet/nest"
)

// Per-subscriber buffer; a subscriber that falls this far behind starts
// losing intermediate updates, never the connection.
const subscriberBuffer = 8

// Hub fans normalized device updates out to per-device subscribers. The
// gateway publishes after every genuine upstream fetch, so subscribers see
// both poll results and post-write refreshes as the same event stream.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan nest.Device]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan nest.Device]struct{})}
}

// Subscribe registers interest in one device and returns the update stream
// plus a cancel func. Cancel is idempotent and closes the stream.
func (h *Hub) Subscribe(deviceID string) (<-chan nest.Device, func()) {
	ch := make(chan nest.Device, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[deviceID]
	if !ok {
		set = make(map[chan nest.Device]struct{})
		h.subs[deviceID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[deviceID], ch)
			if len(h.subs[deviceID]) == 0 {
				delete(h.subs, deviceID)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers an update to every subscriber of the device without
// blocking; slow subscribers drop updates.
func (h *Hub) Publish(d nest.Device) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[d.ID] {
		select {
		case ch <- d:
		default:
		}
	}
}
