// Package service holds process-wide plumbing shared by the API handlers.
package service

import (
	"sync"

	"go.uber.org/zap"
)

// Event is a change to the map view, fanned out to SSE subscribers.
type Event struct {
	Resource string // "features", "legend", "measure", "popup"
	Action   string // e.g. "rebuilt", "toggled", "updated"
	ID       string // session, popup or category, when relevant
}

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 16

// EventBus is a fan-out pub/sub for view change events.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
	log    *zap.Logger
}

// NewEventBus creates an event bus. A nil logger discards drop warnings.
func NewEventBus(log *zap.Logger) *EventBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventBus{
		subs:   make(map[chan Event]struct{}),
		buffer: DefaultBuffer,
		log:    log.Named("bus"),
	}
}

// Publish sends an event to all subscribers without blocking. Subscribers
// with a full buffer miss the event.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.log.Debug("subscriber too slow, event dropped",
				zap.String("resource", e.Resource), zap.String("action", e.Action))
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Subscribers returns the number of live subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
