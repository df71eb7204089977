package object

import (
	"sync/atomic"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/errors"
)

// State is the lifecycle state of a shadow.
type State uint32

const (
	StateAlive State = iota
	StateFreed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateFreed:
		return "freed"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// ErrAlreadyReleased is returned by the losing side of a free/dispose race.
var ErrAlreadyReleased = errors.New(errors.PhaseLifecycle, errors.KindDoubleFree).
	Detail("object already released").
	Build()

// Shadow is implemented by every Go value correlated with a native object,
// usually by embedding Object.
type Shadow interface {
	AsObject() *Object
}

// core is allocated separately from the shadow so the bridge can track it
// weakly. The cycle core.self <-> Object.core keeps both alive exactly as
// long as the shadow is reachable.
type core struct {
	bridge *Bridge
	self   Shadow
	class  string
	ptr    atomic.Uintptr
	id     abi.ObjectID
	state  atomic.Uint32
	owned  bool
}

func (c *core) transition(to State) bool {
	return c.state.CompareAndSwap(uint32(StateAlive), uint32(to))
}

// Object is the identity part of a shadow. Embed it by value:
//
//	type Player struct {
//	    object.Object
//	    health int64
//	}
type Object struct {
	core *core
}

// AsObject returns o. It makes every embedding type a Shadow.
func (o *Object) AsObject() *Object { return o }

// Bound reports whether o has been attached to a native object.
func (o *Object) Bound() bool { return o.core != nil }

// State returns the lifecycle state. An unbound object reports freed.
func (o *Object) State() State {
	if o.core == nil {
		return StateFreed
	}
	return State(o.core.state.Load())
}

// IsValid reports whether the native object is still alive. Observed
// objects are checked against the host.
func (o *Object) IsValid() bool {
	_, err := o.Ptr()
	return err == nil
}

// Owned reports whether the shadow was created by the class factory.
func (o *Object) Owned() bool { return o.core != nil && o.core.owned }

// ClassName returns the native class name the shadow was bound with.
func (o *Object) ClassName() string {
	if o.core == nil {
		return ""
	}
	return o.core.class
}

// InstanceID returns the host instance id. It stays readable after release.
func (o *Object) InstanceID() abi.ObjectID {
	if o.core == nil {
		return 0
	}
	return o.core.id
}

// Ptr returns the native identity. It fails once the object is released.
func (o *Object) Ptr() (abi.ObjectPtr, error) {
	c := o.core
	if c == nil {
		return 0, errors.NotInitialized(errors.PhaseLifecycle, "object shadow")
	}
	ptr := abi.ObjectPtr(c.ptr.Load())
	if State(c.state.Load()) != StateAlive || ptr == 0 {
		return 0, errors.InvalidHandle(errors.PhaseLifecycle, "object", uint64(c.id))
	}
	if !c.owned && !c.bridge.hostHas(ptr, c.id) {
		c.bridge.expire(c, ptr)
		return 0, errors.InvalidHandle(errors.PhaseLifecycle, "object", uint64(c.id))
	}
	return ptr, nil
}

// Native is the shadow used for engine classes that have no Go type.
type Native struct {
	Object
}

// NewNative returns an unbound Native shadow.
func NewNative() Shadow { return &Native{} }
