package object

import (
	"runtime"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/errors"
)

// Bridge is the identity table. It is safe for concurrent use.
type Bridge struct {
	iface     *abi.Interface
	owned     map[abi.ObjectPtr]*core
	observed  map[abi.ObjectPtr]weak.Pointer[core]
	wrappers  map[string]func() Shadow
	observers []subscription
	lib       abi.LibraryPtr
	obsSeq    uint64
	mu        sync.RWMutex
	obsMu     sync.RWMutex
}

// NewBridge creates an empty bridge over the host interface.
func NewBridge(iface *abi.Interface, lib abi.LibraryPtr) *Bridge {
	return &Bridge{
		iface:    iface,
		lib:      lib,
		owned:    make(map[abi.ObjectPtr]*core, 64),
		observed: make(map[abi.ObjectPtr]weak.Pointer[core], 64),
		wrappers: make(map[string]func() Shadow, 16),
	}
}

// RegisterWrapper installs the shadow constructor used by LookupOrWrap for
// objects whose dynamic class is exactly class.
func (b *Bridge) RegisterWrapper(class string, ctor func() Shadow) error {
	if class == "" || ctor == nil {
		return errors.InvalidInput(errors.PhaseRegister, "wrapper needs a class name and a constructor")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.wrappers[class]; ok {
		return errors.DuplicateMember(class, "wrapper", class)
	}
	b.wrappers[class] = ctor
	return nil
}

// UnregisterWrapper removes the wrapper for class.
func (b *Bridge) UnregisterWrapper(class string) {
	b.mu.Lock()
	delete(b.wrappers, class)
	b.mu.Unlock()
}

// RegisterNative correlates ptr with s strongly. It is used for shadows
// created by the class factory.
func (b *Bridge) RegisterNative(ptr abi.ObjectPtr, class string, s Shadow) error {
	if ptr == 0 {
		return errors.InvalidInput(errors.PhaseLifecycle, "register of a null object")
	}
	id := b.iface.ObjectGetInstanceID(ptr)

	b.mu.Lock()
	if _, ok := b.owned[ptr]; ok {
		b.mu.Unlock()
		return errors.New(errors.PhaseLifecycle, errors.KindInvalidInput).
			Path(class).
			Detail("object %#x already has an owned shadow", uintptr(ptr)).
			Build()
	}
	c, err := b.attach(s, ptr, id, class, true)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	delete(b.observed, ptr)
	b.owned[ptr] = c
	b.mu.Unlock()

	b.notify(EventRegistered, c, ptr)
	return nil
}

// attach binds s to a new core. Callers hold b.mu.
func (b *Bridge) attach(s Shadow, ptr abi.ObjectPtr, id abi.ObjectID, class string, owned bool) (*core, error) {
	o := s.AsObject()
	if o.core != nil {
		return nil, errors.New(errors.PhaseLifecycle, errors.KindInvalidInput).
			Path(class).
			Detail("shadow is already bound to object %d", o.core.id).
			Build()
	}
	c := &core{bridge: b, self: s, class: class, id: id, owned: owned}
	c.ptr.Store(uintptr(ptr))
	o.core = c
	return c, nil
}

// Lookup returns the live shadow correlated with ptr.
func (b *Bridge) Lookup(ptr abi.ObjectPtr) (Shadow, bool) {
	b.mu.RLock()
	c := b.findLocked(ptr)
	b.mu.RUnlock()
	if c == nil {
		return nil, false
	}
	return c.self, true
}

func (b *Bridge) findLocked(ptr abi.ObjectPtr) *core {
	if c, ok := b.owned[ptr]; ok {
		return c
	}
	if wp, ok := b.observed[ptr]; ok {
		// A nil value means the shadow was collected before the cleanup ran.
		return wp.Value()
	}
	return nil
}

// LookupOrWrap returns the shadow for ptr, creating an observed shadow on
// first sight. The object's dynamic class must have a registered wrapper;
// base classes are never guessed.
func (b *Bridge) LookupOrWrap(ptr abi.ObjectPtr) (Shadow, error) {
	if ptr == 0 {
		return nil, errors.InvalidInput(errors.PhaseDecode, "wrap of a null object")
	}
	id := b.iface.ObjectGetInstanceID(ptr)
	if id == 0 {
		return nil, errors.InvalidHandle(errors.PhaseDecode, "object", uint64(ptr))
	}

	b.mu.RLock()
	c := b.findLocked(ptr)
	b.mu.RUnlock()
	if c != nil {
		if c.id == id {
			return c.self, nil
		}
		// The host reused the address for a new object.
		b.expire(c, ptr)
	}

	class, err := b.className(ptr)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if c := b.findLocked(ptr); c != nil && c.id == id {
		b.mu.Unlock()
		return c.self, nil
	}
	ctor, ok := b.wrappers[class]
	if !ok {
		b.mu.Unlock()
		return nil, errors.UnknownClass(class)
	}
	s := ctor()
	c, err = b.attach(s, ptr, id, class, false)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	b.observed[ptr] = weak.Make(c)
	b.mu.Unlock()

	runtime.AddCleanup(c, b.prune, ptr)
	b.notify(EventWrapped, c, ptr)
	return s, nil
}

func (b *Bridge) className(ptr abi.ObjectPtr) (string, error) {
	var sn abi.StringName
	if !b.iface.ObjectGetClassName(ptr, b.lib, &sn) {
		return "", errors.InvalidHandle(errors.PhaseDecode, "object", uint64(ptr))
	}
	class := b.iface.StringNameToUTF8(&sn)
	b.iface.StringNameDestroy(&sn)
	return class, nil
}

// prune drops a weak entry whose shadow has been collected.
func (b *Bridge) prune(ptr abi.ObjectPtr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wp, ok := b.observed[ptr]; ok && wp.Value() == nil {
		delete(b.observed, ptr)
	}
}

// removeLocked drops the entry for ptr if it still belongs to c.
func (b *Bridge) removeLocked(c *core, ptr abi.ObjectPtr) {
	if cur, ok := b.owned[ptr]; ok && cur == c {
		delete(b.owned, ptr)
	}
	if wp, ok := b.observed[ptr]; ok && wp.Value() == c {
		delete(b.observed, ptr)
	}
}

// release moves c out of the alive state and removes its correlation.
func (b *Bridge) release(c *core, to State) (abi.ObjectPtr, error) {
	if !c.transition(to) {
		return 0, ErrAlreadyReleased
	}
	ptr := abi.ObjectPtr(c.ptr.Swap(0))
	b.mu.Lock()
	b.removeLocked(c, ptr)
	b.mu.Unlock()
	return ptr, nil
}

// expire marks an observed shadow freed after the host dropped its object
// without telling us.
func (b *Bridge) expire(c *core, ptr abi.ObjectPtr) {
	if _, err := b.release(c, StateFreed); err == nil {
		Logger().Debug("observed object expired",
			zap.String("class", c.class),
			zap.Uint64("id", uint64(c.id)))
		b.notify(EventFreed, c, ptr)
	}
}

func (b *Bridge) hostHas(ptr abi.ObjectPtr, id abi.ObjectID) bool {
	return b.iface.ObjectGetInstanceFromID(id) == ptr
}

// Free handles native destruction of ptr. The shadow is invalidated and the
// correlation removed. A ptr with no shadow reports an invalid handle; a
// shadow already released reports ErrAlreadyReleased.
func (b *Bridge) Free(ptr abi.ObjectPtr) error {
	b.mu.RLock()
	c := b.findLocked(ptr)
	b.mu.RUnlock()
	if c == nil {
		return errors.InvalidHandle(errors.PhaseLifecycle, "object", uint64(ptr))
	}
	return b.free(c)
}

// FreeShadow is Free for callers that hold the shadow rather than the
// identity, such as the class free callback.
func (b *Bridge) FreeShadow(s Shadow) error {
	c := s.AsObject().core
	if c == nil {
		return errors.NotInitialized(errors.PhaseLifecycle, "object shadow")
	}
	return b.free(c)
}

func (b *Bridge) free(c *core) error {
	ptr, err := b.release(c, StateFreed)
	if err != nil {
		return err
	}
	b.notify(EventFreed, c, ptr)
	return nil
}

// Dispose releases a shadow from Go. An owned object is destroyed on the
// host; an observed one only loses its shadow.
func (b *Bridge) Dispose(s Shadow) error {
	c := s.AsObject().core
	if c == nil {
		return errors.NotInitialized(errors.PhaseLifecycle, "object shadow")
	}
	ptr, err := b.release(c, StateDisposed)
	if err != nil {
		return err
	}
	b.notify(EventDisposed, c, ptr)
	if c.owned && ptr != 0 {
		// The host answers with the class free callback, which finds the
		// shadow already disposed.
		b.iface.ObjectDestroy(ptr)
	}
	return nil
}

// DisposeAll disposes every tracked shadow: owned objects first, then
// observed ones.
func (b *Bridge) DisposeAll() {
	b.mu.RLock()
	owned := make([]*core, 0, len(b.owned))
	for _, c := range b.owned {
		owned = append(owned, c)
	}
	observed := make([]*core, 0, len(b.observed))
	for _, wp := range b.observed {
		if c := wp.Value(); c != nil {
			observed = append(observed, c)
		}
	}
	b.mu.RUnlock()

	for _, group := range [][]*core{owned, observed} {
		for _, c := range group {
			if err := b.Dispose(c.self); err != nil && !errors.Is(err, ErrAlreadyReleased) {
				Logger().Warn("dispose failed", zap.String("class", c.class), zap.Error(err))
			}
		}
	}
}

// Len returns the number of owned and live observed correlations.
func (b *Bridge) Len() (owned, observed int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, wp := range b.observed {
		if wp.Value() != nil {
			observed++
		}
	}
	return len(b.owned), observed
}

// InstanceFromID returns the shadow for a host instance id.
func (b *Bridge) InstanceFromID(id abi.ObjectID) (Shadow, error) {
	ptr := b.iface.ObjectGetInstanceFromID(id)
	if ptr == 0 {
		return nil, errors.InvalidHandle(errors.PhaseLifecycle, "instance id", uint64(id))
	}
	return b.LookupOrWrap(ptr)
}

// IsInstanceIDValid reports whether the host still has an object for id.
func (b *Bridge) IsInstanceIDValid(id abi.ObjectID) bool {
	return id != 0 && b.iface.ObjectGetInstanceFromID(id) != 0
}

// IsInstanceValid reports whether s is bound to a live native object.
func (b *Bridge) IsInstanceValid(s Shadow) bool {
	return s != nil && s.AsObject().IsValid()
}

// Resolve implements codec.ObjectResolver.
func (b *Bridge) Resolve(ptr abi.ObjectPtr) (any, error) {
	return b.LookupOrWrap(ptr)
}

// Identity implements codec.ObjectResolver. Released shadows encode as the
// null object.
func (b *Bridge) Identity(v any) (abi.ObjectPtr, abi.ObjectID, bool) {
	s, ok := v.(Shadow)
	if !ok {
		return 0, 0, false
	}
	o := s.AsObject()
	ptr, err := o.Ptr()
	if err != nil {
		return 0, 0, true
	}
	return ptr, o.InstanceID(), true
}
