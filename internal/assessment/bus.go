package assessment

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Listener receives events published for the name it registered under.
type Listener func(Event)

// Subscription identifies one registered listener so it can be removed.
type Subscription struct {
	name EventName
	id   uint64
}

// Event returns the event name the subscription listens to.
func (s Subscription) Event() EventName {
	return s.name
}

// Valid reports whether the subscription came from a successful On call.
func (s Subscription) Valid() bool {
	return s.id != 0
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// BusOption customizes Bus construction.
type BusOption func(*Bus)

// BusWithLogger injects a logger for recovered listener panics.
func BusWithLogger(logger *zap.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Bus is a named publish/subscribe hub. Emission is synchronous and follows
// registration order. A panicking listener is recovered and logged so the
// remaining listeners still receive the event.
type Bus struct {
	mu        sync.RWMutex
	listeners map[EventName][]listenerEntry
	nextID    uint64
	logger    *zap.Logger
}

// NewBus constructs an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		listeners: map[EventName][]listenerEntry{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// On registers fn for events named name.
func (b *Bus) On(name EventName, fn Listener) Subscription {
	if fn == nil || name == "" {
		return Subscription{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	entry := listenerEntry{id: b.nextID, fn: fn}
	b.listeners[name] = append(b.listeners[name], entry)
	return Subscription{name: name, id: entry.id}
}

// Off removes a listener. It reports whether anything was removed.
func (b *Bus) Off(sub Subscription) bool {
	if !sub.Valid() {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.listeners[sub.name]
	for i, entry := range entries {
		if entry.id != sub.id {
			continue
		}
		next := make([]listenerEntry, 0, len(entries)-1)
		next = append(next, entries[:i]...)
		next = append(next, entries[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, sub.name)
		} else {
			b.listeners[sub.name] = next
		}
		return true
	}
	return false
}

// ListenerCount returns the number of listeners registered for name.
func (b *Bus) ListenerCount(name EventName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Emit delivers event to every listener registered for its name.
func (b *Bus) Emit(event Event) {
	if b == nil || event == nil {
		return
	}
	name := event.Name()
	b.mu.RLock()
	entries := b.listeners[name]
	b.mu.RUnlock()
	for _, entry := range entries {
		b.dispatch(name, entry, event)
	}
}

func (b *Bus) dispatch(name EventName, entry listenerEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("assessment: listener panicked",
				zap.String("event", string(name)),
				zap.Uint64("listener", entry.id),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	entry.fn(event)
}

// Subscribe registers a listener typed to a single event payload.
func Subscribe[E Event](b *Bus, fn func(E)) Subscription {
	if b == nil || fn == nil {
		return Subscription{}
	}
	var zero E
	return b.On(zero.Name(), func(event Event) {
		if typed, ok := event.(E); ok {
			fn(typed)
		}
	})
}

// OnAll registers fn for every event in EventNames and returns one
// subscription per name.
func (b *Bus) OnAll(fn Listener) []Subscription {
	if b == nil || fn == nil {
		return nil
	}
	names := EventNames()
	subs := make([]Subscription, 0, len(names))
	for _, name := range names {
		subs = append(subs, b.On(name, fn))
	}
	return subs
}

// OffAll removes every subscription in subs.
func (b *Bus) OffAll(subs []Subscription) {
	for _, sub := range subs {
		b.Off(sub)
	}
}
