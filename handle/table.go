package handle

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("handle table closed")

// Handle is an opaque reference to a table slot.
// Handle 0 is reserved and always invalid.
type Handle uint64

// Index returns the one-based slot index.
func (h Handle) Index() uint32 { return uint32(h) }

// Generation returns the slot generation the handle was minted with.
func (h Handle) Generation() uint32 { return uint32(h >> 32) }

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

// Dropper is implemented by values that release resources when the table
// is closed.
type Dropper interface {
	Drop()
}

// Table is a concurrent slot table. Lookups take a read lock; inserts and
// removals are atomic relative to lookups.
type Table[T any] struct {
	entries  []entry[T]
	freeList []uint32
	mu       sync.RWMutex
	closed   bool
}

type entry[T any] struct {
	value T
	gen   uint32
	valid bool
}

// New creates an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{
		entries:  make([]entry[T], 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert stores a value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrClosed
	}

	if len(t.freeList) > 0 {
		idx := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		e := &t.entries[idx-1]
		e.gen++
		e.value = value
		e.valid = true
		return makeHandle(idx, e.gen), nil
	}

	t.entries = append(t.entries, entry[T]{value: value, gen: 1, valid: true})
	return makeHandle(uint32(len(t.entries)), 1), nil
}

func (t *Table[T]) slot(h Handle) *entry[T] {
	idx := h.Index()
	if idx == 0 || int(idx) > len(t.entries) {
		return nil
	}
	e := &t.entries[idx-1]
	if !e.valid || e.gen != h.Generation() {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e := t.slot(h); e != nil {
		return e.value, true
	}
	var zero T
	return zero, false
}

// Remove invalidates h and returns its value. Only the first Remove of a
// handle succeeds.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	e := t.slot(h)
	if e == nil {
		return zero, false
	}

	value := e.value
	e.value = zero
	e.valid = false
	t.freeList = append(t.freeList, h.Index())
	return value, true
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries) - len(t.freeList)
}

// Each iterates over live entries until fn returns false. fn must not
// modify the table.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(makeHandle(uint32(i+1), e.gen), e.value) {
				break
			}
		}
	}
}

// Close invalidates every entry, calling Drop on values that implement
// Dropper. Later inserts fail with ErrClosed.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	var drop []Dropper
	if !t.closed {
		t.closed = true
		for i := range t.entries {
			if t.entries[i].valid {
				if d, ok := any(t.entries[i].value).(Dropper); ok {
					drop = append(drop, d)
				}
			}
		}
		t.entries = nil
		t.freeList = nil
	}
	t.mu.Unlock()

	// Dropping outside the lock lets Drop call back into the table.
	for _, d := range drop {
		d.Drop()
	}
	return nil
}
