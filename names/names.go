// Package names interns the names used as keys across the bridge.
//
// Every class, method, property and signal name is interned once per table:
// equal text always resolves to the same *Name, so names compare by pointer.
// Each Name owns one native StringName that is destroyed when the last
// reference is released or the table is closed.
package names

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/gdext/abi"
)

// Name is an interned, reference-counted name.
type Name struct {
	table  *Table
	text   string
	native abi.StringName
	refs   atomic.Int32
}

// String returns the text of the name.
func (n *Name) String() string { return n.text }

// Native returns the native StringName. The pointer stays valid until the
// name is fully released.
func (n *Name) Native() *abi.StringName { return &n.native }

// Retain adds a reference and returns n.
func (n *Name) Retain() *Name {
	n.refs.Add(1)
	return n
}

// Release drops a reference. The native StringName is destroyed with the
// last one.
func (n *Name) Release() {
	if n.refs.Add(-1) == 0 {
		n.table.remove(n)
	}
}

// Table interns names against the host.
type Table struct {
	iface    *abi.Interface
	byText   map[string]*Name
	byNative map[uintptr]*Name
	mu       sync.RWMutex
	closed   bool
}

// NewTable creates an empty table backed by iface.
func NewTable(iface *abi.Interface) *Table {
	return &Table{
		iface:    iface,
		byText:   make(map[string]*Name, 64),
		byNative: make(map[uintptr]*Name, 64),
	}
}

// Intern returns the name for text with an added reference.
func (t *Table) Intern(text string) *Name {
	t.mu.RLock()
	n, ok := t.byText[text]
	if ok {
		n.refs.Add(1)
	}
	t.mu.RUnlock()
	if ok {
		return n
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := t.byText[text]; ok {
		n.refs.Add(1)
		return n
	}

	n = &Name{table: t, text: text}
	t.iface.StringNameNew(&n.native, text)
	n.refs.Store(1)
	t.byText[text] = n
	t.byNative[n.native.Ptr] = n
	return n
}

// Lookup returns the interned name for text without adding a reference.
func (t *Table) Lookup(text string) (*Name, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.byText[text]
	return n, ok
}

// Find resolves a host-provided StringName to an interned name without
// adding a reference. Names the table never interned are not found.
func (t *Table) Find(sn *abi.StringName) (*Name, bool) {
	if sn == nil || sn.Ptr == 0 {
		return nil, false
	}
	t.mu.RLock()
	n, ok := t.byNative[sn.Ptr]
	t.mu.RUnlock()
	if ok {
		return n, true
	}
	return t.Lookup(t.iface.StringNameToUTF8(sn))
}

// Text returns the text of a host-provided StringName.
func (t *Table) Text(sn *abi.StringName) string {
	if n, ok := t.Find(sn); ok {
		return n.text
	}
	if sn == nil || sn.Ptr == 0 {
		return ""
	}
	return t.iface.StringNameToUTF8(sn)
}

// Len returns the number of live names.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byText)
}

func (t *Table) remove(n *Name) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A concurrent Intern may have revived n between the last Release and
	// taking the lock.
	if n.refs.Load() > 0 || t.byText[n.text] != n {
		return
	}
	delete(t.byText, n.text)
	delete(t.byNative, n.native.Ptr)
	if !t.closed {
		t.iface.StringNameDestroy(&n.native)
	}
}

// Close destroys every remaining native name regardless of references.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for _, n := range t.byText {
		t.iface.StringNameDestroy(&n.native)
	}
	clear(t.byText)
	clear(t.byNative)
}
