package scene

import (
	"slices"
	"sync"
)

// Lifecycle signals emitted by Manager.Render.
const (
	EventBeforeRender = "before-render"
	EventAfterRender  = "after-render"
)

// SubscriptionID is returned by Subscribe and used to unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id    SubscriptionID
	event string
	fn    func()
}

// Bus delivers payload-free named signals to any number of subscribers.
// The zero value is ready to use.
type Bus struct {
	mu     sync.Mutex
	nextID SubscriptionID
	subs   []subscription
}

// NewBus returns an empty bus. The zero value is also ready to use.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe calls fn every time event is emitted.
func (b *Bus) Subscribe(event string, fn func()) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, event: event, fn: fn})
	return b.nextID
}

// Unsubscribe removes a subscription and reports whether it existed.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = slices.Delete(b.subs, i, i+1)
			return true
		}
	}
	return false
}

// Emit calls the subscribers of event synchronously, in subscription order.
func (b *Bus) Emit(event string) {
	b.mu.Lock()
	var fns []func()
	for _, s := range b.subs {
		if s.event == event {
			fns = append(fns, s.fn)
		}
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
