package surface

import (
	"sync"
	"sync/atomic"
)

// Listener handles a dispatched event.
type Listener func(Event)

// ListenerID is the handle returned by AddEventListener. It is the only way
// to remove a listener again.
type ListenerID uint64

var listenerSeq atomic.Uint64

type listenerEntry struct {
	id  ListenerID
	typ EventType
	fn  Listener
}

// EventTarget keeps listeners per event type in registration order.
// The zero value is ready to use.
type EventTarget struct {
	mu        sync.Mutex
	listeners []listenerEntry
}

// AddEventListener registers fn for events of type typ.
func (t *EventTarget) AddEventListener(typ EventType, fn Listener) ListenerID {
	id := ListenerID(listenerSeq.Add(1))
	t.mu.Lock()
	t.listeners = append(t.listeners, listenerEntry{id: id, typ: typ, fn: fn})
	t.mu.Unlock()
	return id
}

// RemoveEventListener unregisters the listener with the given handle.
// It reports whether a listener was removed.
func (t *EventTarget) RemoveEventListener(id ListenerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, l := range t.listeners {
		if l.id == id {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// ListenerCount returns how many listeners are registered for typ.
func (t *EventTarget) ListenerCount(typ EventType) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, l := range t.listeners {
		if l.typ == typ {
			n++
		}
	}
	return n
}

// DispatchEvent calls every listener registered for the event's type.
// Listeners may add or remove listeners while being called.
func (t *EventTarget) DispatchEvent(ev Event) {
	t.mu.Lock()
	var fns []Listener
	for _, l := range t.listeners {
		if l.typ == ev.Type() {
			fns = append(fns, l.fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
