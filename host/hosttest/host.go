// Package hosttest provides an in-process engine host for tests.
//
// A Host implements every abi.Interface entry against a simulated heap of
// reference-counted strings, names, containers, packed arrays, callables
// and objects. It records class registrations and drives the reverse
// callbacks an engine would invoke: instantiation, property access through
// bound accessors, method calls, virtual calls, property validation and
// object destruction.
//
//	h := hosttest.New()
//	rt, err := bridge.Initialize(h.GetProcAddress, h.Library(), &init, configure)
//	h.Initialize(&init)
//	obj, _ := h.Instantiate("Widget")
//	h.Call(obj, "Increment")
//
// Host never holds its lock while calling back into the extension, so
// callbacks may freely re-enter the host.
package hosttest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wippyai/gdext/abi"
)

// Option configures a Host.
type Option func(*Host)

// WithNativeClass declares an engine class and its parent.
func WithNativeClass(name, parent string) Option {
	return func(h *Host) { h.native[name] = parent }
}

// WithVersion sets the reported engine version.
func WithVersion(v abi.GodotVersion) Option {
	return func(h *Host) { h.version = v }
}

// WithoutProc removes an entry from the resolver, for testing load failures.
func WithoutProc(name string) Option {
	return func(h *Host) { delete(h.procs, name) }
}

// Host is a simulated engine.
type Host struct {
	cells        map[uintptr]*cell
	stringNames  map[string]uintptr
	objects      map[abi.ObjectPtr]*Object
	ids          map[abi.ObjectID]abi.ObjectPtr
	classes      map[string]*Class
	native       map[string]string
	procs        map[string]any
	classOrder   []string
	unregistered []string
	errs         []string
	version      abi.GodotVersion
	next         uintptr
	nextID       abi.ObjectID
	lib          abi.LibraryPtr
	mu           sync.Mutex
}

type cell struct {
	value any
	kind  abi.VariantType
	refs  int
}

// New creates a host with the core engine class hierarchy.
func New(opts ...Option) *Host {
	h := &Host{
		cells:       make(map[uintptr]*cell),
		stringNames: make(map[string]uintptr),
		objects:     make(map[abi.ObjectPtr]*Object),
		ids:         make(map[abi.ObjectID]abi.ObjectPtr),
		classes:     make(map[string]*Class),
		native: map[string]string{
			"Object":     "",
			"RefCounted": "Object",
			"Resource":   "RefCounted",
			"Node":       "Object",
			"CanvasItem": "Node",
			"Node2D":     "CanvasItem",
			"Control":    "CanvasItem",
			"Node3D":     "Node",
		},
		version: abi.GodotVersion{Major: 4, Minor: 3, Status: "stable", Build: "hosttest"},
		next:    0x10000,
		nextID:  1000,
		lib:     0xe0e0,
	}
	h.procs = h.buildInterface().Procs()
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetProcAddress resolves an interface function by name.
func (h *Host) GetProcAddress(name string) any {
	fn, ok := h.procs[name]
	if !ok {
		return nil
	}
	return fn
}

// Library returns the library token handed to the extension.
func (h *Host) Library() abi.LibraryPtr { return h.lib }

// Initialize runs the extension's initializer for every level from its
// minimum up to editor.
func (h *Host) Initialize(init *abi.Initialization) {
	for l := init.MinimumLevel; l < abi.LevelMax; l++ {
		init.Initialize(init.Userdata, l)
	}
}

// Deinitialize runs the extension's deinitializer from editor down to its
// minimum level.
func (h *Host) Deinitialize(init *abi.Initialization) {
	for l := abi.LevelMax - 1; l >= init.MinimumLevel; l-- {
		init.Deinitialize(init.Userdata, l)
	}
}

// Errors returns every message reported through print_error or detected as
// a contract violation by the host.
func (h *Host) Errors() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.errs...)
}

// LiveHandles returns the number of live heap cells, excluding objects.
func (h *Host) LiveHandles() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cells)
}

// LiveStrings returns the text of every live String, StringName and
// NodePath cell, sorted. Useful to diagnose leaks.
func (h *Host) LiveStrings() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []string
	for _, c := range h.cells {
		switch c.kind {
		case abi.TypeString, abi.TypeStringName, abi.TypeNodePath:
			out = append(out, fmt.Sprintf("%s(%q)x%d", c.kind, c.value, c.refs))
		}
	}
	sort.Strings(out)
	return out
}

func (h *Host) failf(format string, args ...any) {
	h.mu.Lock()
	h.errs = append(h.errs, "hosttest: "+fmt.Sprintf(format, args...))
	h.mu.Unlock()
}

func (h *Host) alloc(kind abi.VariantType, value any) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(kind, value)
}

func (h *Host) allocLocked(kind abi.VariantType, value any) uintptr {
	h.next += 16
	h.cells[h.next] = &cell{kind: kind, value: value, refs: 1}
	return h.next
}

func (h *Host) lookup(ptr uintptr, kind abi.VariantType) (*cell, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.cells[ptr]
	if !ok || c.kind != kind {
		return nil, false
	}
	return c, true
}

func (h *Host) retain(ptr uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.cells[ptr]; ok {
		c.refs++
		return
	}
	h.errs = append(h.errs, fmt.Sprintf("hosttest: retain of unknown handle %#x", ptr))
}

// release drops a reference and destroys the cell's children with the
// last one. Extension callbacks run without the lock held.
func (h *Host) release(ptr uintptr) {
	h.mu.Lock()
	c, ok := h.cells[ptr]
	if !ok {
		h.errs = append(h.errs, fmt.Sprintf("hosttest: release of unknown handle %#x", ptr))
		h.mu.Unlock()
		return
	}
	c.refs--
	if c.refs > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.cells, ptr)
	if c.kind == abi.TypeStringName {
		delete(h.stringNames, c.value.(string))
	}
	h.mu.Unlock()

	switch v := c.value.(type) {
	case *arrayCell:
		for i := range v.elems {
			h.variantDestroy(&v.elems[i])
		}
	case *dictCell:
		for i := range v.keys {
			h.variantDestroy(&v.keys[i])
			h.variantDestroy(&v.values[i])
		}
	case *packedCell:
		for i := range v.strs {
			h.release(v.strs[i].Ptr)
		}
	case *signalCell:
		h.release(v.name.Ptr)
	case *callableCell:
		if v.info.Free != nil {
			v.info.Free(v.info.Userdata)
		}
	}
}

func (h *Host) buildInterface() *abi.Interface {
	return &abi.Interface{
		GetGodotVersion: func(out *abi.GodotVersion) { *out = h.version },
		PrintError:      h.printError,

		VariantNewCopy:  h.variantNewCopy,
		VariantDestroy:  h.variantDestroy,
		VariantHash:     h.variantHash,
		VariantFromType: h.variantFromType,
		VariantToType:   h.variantToType,

		StringNew:     h.stringNew,
		StringToUTF8:  func(s *abi.String) string { return h.text(s.Ptr, abi.TypeString) },
		StringDestroy: func(s *abi.String) { h.release(s.Ptr); s.Ptr = 0 },

		StringNameNew:     h.stringNameNew,
		StringNameToUTF8:  func(s *abi.StringName) string { return h.text(s.Ptr, abi.TypeStringName) },
		StringNameDestroy: func(s *abi.StringName) { h.release(s.Ptr); s.Ptr = 0 },

		NodePathNew:     func(dst *abi.NodePath, text string) { dst.Ptr = h.alloc(abi.TypeNodePath, text) },
		NodePathToUTF8:  func(p *abi.NodePath) string { return h.text(p.Ptr, abi.TypeNodePath) },
		NodePathDestroy: func(p *abi.NodePath) { h.release(p.Ptr); p.Ptr = 0 },

		ArrayNew:      func(dst *abi.Array) { dst.Ptr = h.alloc(abi.TypeArray, &arrayCell{}) },
		ArraySize:     h.arraySize,
		ArrayGet:      h.arrayGet,
		ArrayPushBack: h.arrayPushBack,
		ArrayDestroy:  func(a *abi.Array) { h.release(a.Ptr); a.Ptr = 0 },

		DictionaryNew:     func(dst *abi.Dictionary) { dst.Ptr = h.alloc(abi.TypeDictionary, &dictCell{}) },
		DictionarySize:    h.dictionarySize,
		DictionarySet:     h.dictionarySet,
		DictionaryEntry:   h.dictionaryEntry,
		DictionaryDestroy: func(d *abi.Dictionary) { h.release(d.Ptr); d.Ptr = 0 },

		PackedArrayNew:     h.packedArrayNew,
		PackedArraySize:    h.packedArraySize,
		PackedArrayData:    h.packedArrayData,
		PackedArrayDestroy: func(_ abi.VariantType, p *abi.PackedArray) { h.release(p.Ptr); p.Ptr = 0 },

		ObjectGetClassName:      h.objectGetClassName,
		ObjectGetInstanceID:     h.objectGetInstanceID,
		ObjectGetInstanceFromID: h.objectGetInstanceFromID,
		ObjectSetInstance:       h.objectSetInstance,
		ObjectDestroy:           h.Destroy,

		ClassDBConstructObject:                        h.classDBConstructObject,
		ClassDBRegisterExtensionClass:                 h.registerClass,
		ClassDBRegisterExtensionClassMethod:           h.registerMethod,
		ClassDBRegisterExtensionClassVirtualMethod:    h.registerVirtualMethod,
		ClassDBRegisterExtensionClassIntegerConstant:  h.registerConstant,
		ClassDBRegisterExtensionClassProperty:         h.registerProperty,
		ClassDBRegisterExtensionClassPropertyGroup:    h.registerGroup,
		ClassDBRegisterExtensionClassPropertySubgroup: h.registerSubgroup,
		ClassDBRegisterExtensionClassSignal:           h.registerSignal,
		ClassDBUnregisterExtensionClass:               h.unregisterClass,

		CallableCustomCreate:      h.callableCustomCreate,
		CallableCustomGetUserdata: h.callableCustomGetUserdata,
		CallableDestroy:           func(c *abi.Callable) { h.release(uintptr(c.Data[0])); c.Data = [2]uint64{} },
	}
}

func (h *Host) printError(description, function, file string, line int32, _ bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if function != "" || file != "" {
		h.errs = append(h.errs, fmt.Sprintf("%s (%s at %s:%d)", description, function, file, line))
		return
	}
	h.errs = append(h.errs, description)
}
