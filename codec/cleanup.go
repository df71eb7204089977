package codec

import (
	"sync"

	"github.com/wippyai/gdext/abi"
)

type cleanupEntry struct {
	variant abi.Variant
	handle  uintptr
	kind    abi.VariantType
	whole   bool
}

// Cleanup collects native values acquired during one conversion and
// releases them in reverse acquisition order.
type Cleanup struct {
	entries []cleanupEntry
}

var cleanupPool = sync.Pool{
	New: func() any {
		return &Cleanup{entries: make([]cleanupEntry, 0, 8)}
	},
}

const maxPooledCleanupCapacity = 128

// NewCleanup returns an empty list from the pool.
func NewCleanup() *Cleanup {
	return cleanupPool.Get().(*Cleanup)
}

// AddVariant records a native variant to destroy.
func (c *Cleanup) AddVariant(v abi.Variant) {
	if v.Type.Inline() {
		return
	}
	c.entries = append(c.entries, cleanupEntry{variant: v, whole: true})
}

// AddString records a native String to destroy.
func (c *Cleanup) AddString(s abi.String) {
	c.entries = append(c.entries, cleanupEntry{handle: s.Ptr, kind: abi.TypeString})
}

// AddStringName records a native StringName to destroy.
func (c *Cleanup) AddStringName(s abi.StringName) {
	c.entries = append(c.entries, cleanupEntry{handle: s.Ptr, kind: abi.TypeStringName})
}

// Count returns the number of pending entries.
func (c *Cleanup) Count() int { return len(c.entries) }

// Free releases every entry, newest first, and empties the list.
func (c *Cleanup) Free(iface *abi.Interface) {
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := &c.entries[i]
		switch {
		case e.whole:
			iface.VariantDestroy(&e.variant)
		case e.handle == 0:
		case e.kind == abi.TypeString:
			iface.StringDestroy(&abi.String{Ptr: e.handle})
		case e.kind == abi.TypeStringName:
			iface.StringNameDestroy(&abi.StringName{Ptr: e.handle})
		}
	}
	c.entries = c.entries[:0]
}

// Release returns the list to the pool. The list is invalid afterwards.
func (c *Cleanup) Release() {
	if cap(c.entries) > maxPooledCleanupCapacity {
		return
	}
	c.entries = c.entries[:0]
	cleanupPool.Put(c)
}

// FreeAndRelease frees every entry and returns the list to the pool.
func (c *Cleanup) FreeAndRelease(iface *abi.Interface) {
	c.Free(iface)
	c.Release()
}
