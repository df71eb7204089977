package object

import "github.com/wippyai/gdext/abi"

// EventType identifies a lifecycle transition.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventWrapped
	EventFreed
	EventDisposed
)

func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventWrapped:
		return "wrapped"
	case EventFreed:
		return "freed"
	case EventDisposed:
		return "disposed"
	}
	return "unknown"
}

// Event describes one lifecycle transition.
type Event struct {
	Shadow Shadow
	Class  string
	Ptr    abi.ObjectPtr
	ID     abi.ObjectID
	Type   EventType
}

// Observer receives lifecycle events. It is called synchronously and must
// not call back into the bridge.
type Observer interface {
	OnObjectEvent(Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnObjectEvent(e Event) { f(e) }

type subscription struct {
	o  Observer
	id uint64
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (b *Bridge) Subscribe(o Observer) (unsubscribe func()) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.obsSeq++
	id := b.obsSeq
	b.observers = append(b.observers, subscription{o: o, id: id})
	return func() { b.unsubscribe(id) }
}

func (b *Bridge) unsubscribe(id uint64) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	for i, s := range b.observers {
		if s.id == id {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			return
		}
	}
}

func (b *Bridge) notify(t EventType, c *core, ptr abi.ObjectPtr) {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	if len(b.observers) == 0 {
		return
	}
	e := Event{Shadow: c.self, Class: c.class, Ptr: ptr, ID: c.id, Type: t}
	for _, s := range b.observers {
		s.o.OnObjectEvent(e)
	}
}
