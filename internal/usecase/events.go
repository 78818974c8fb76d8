package usecase

import (
	"sync"
	"time"
)

// StatusEvent is emitted after every committed status transition.
type StatusEvent struct {
	Entity string    `json:"entity"` // "order" or "transfer"
	Number string    `json:"number"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// EventBus fans status events out to registered callbacks. Subscription is
// callback-style; delivery is synchronous and in registration order.
type EventBus struct {
	mu   sync.RWMutex
	subs []func(StatusEvent)
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (b *EventBus) Subscribe(fn func(StatusEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *EventBus) Publish(e StatusEvent) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}
