package cart

import "sync"

// EventKind enumerates the cart change events. The colon-separated names are
// the canonical scheme; subscribers match on the kind constant, never on the
// string form.
type EventKind string

const (
	EventUpdated EventKind = "cart:updated"
	EventAdded   EventKind = "cart:added"
	EventRemoved EventKind = "cart:removed"
	EventCleared EventKind = "cart:cleared"
)

// Event is a cart change notification. Items holds the full item list after
// the change; Item is set for added/removed events.
type Event struct {
	Kind  EventKind
	Items []Item
	Item  *Item
}

// Bus is a minimal in-process event fanout. Publish dispatches synchronously
// to all subscribers in registration order, mirroring same-session event
// dispatch semantics: a mutation runs to completion, including its
// notifications, before the next one starts.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn for all cart events and returns an unsubscribe
// function.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
