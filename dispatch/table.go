package dispatch

import (
	"sync"
	"unsafe"

	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/names"
)

// Invoker runs a virtual override on receiver with typed argument slots.
type Invoker func(receiver any, args []unsafe.Pointer, ret unsafe.Pointer) error

// Table maps virtual method names of one class to invokers. Names are
// interned, so lookups compare pointers.
type Table struct {
	entries map[*names.Name]Invoker
	order   []*names.Name
	class   string
	mu      sync.RWMutex
}

// NewTable creates an empty table for class.
func NewTable(class string) *Table {
	return &Table{
		class:   class,
		entries: make(map[*names.Name]Invoker, 8),
	}
}

// Add installs an invoker for name. The table takes a reference to name.
func (t *Table) Add(name *names.Name, inv Invoker) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		return errors.DuplicateMember(t.class, "virtual method override", name.String())
	}
	t.entries[name] = inv
	t.order = append(t.order, name.Retain())
	return nil
}

// Resolve returns the invoker for name.
func (t *Table) Resolve(name *names.Name) (Invoker, bool) {
	if name == nil {
		return nil, false
	}
	t.mu.RLock()
	inv, ok := t.entries[name]
	t.mu.RUnlock()
	return inv, ok
}

// Len returns the number of overrides.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Names returns the override names in insertion order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	for i, n := range t.order {
		out[i] = n.String()
	}
	return out
}

// Clear drops every override and releases the names.
func (t *Table) Clear() {
	t.mu.Lock()
	order := t.order
	t.order = nil
	t.entries = make(map[*names.Name]Invoker)
	t.mu.Unlock()
	for _, n := range order {
		n.Release()
	}
}
