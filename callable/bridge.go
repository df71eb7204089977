package callable

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/codec"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/handle"
	"github.com/wippyai/gdext/object"
	"github.com/wippyai/gdext/variant"
)

// Options wires a Bridge. Interface is required.
type Options struct {
	Interface *abi.Interface
	Codecs    *codec.Registry
	Guard     *dispatch.Guard
	Library   abi.LibraryPtr
}

// Bridge creates native callables and serves their callbacks.
type Bridge struct {
	iface    *abi.Interface
	codecs   *codec.Registry
	marshal  *codec.Marshaller
	guard    *dispatch.Guard
	wrappers *handle.Table[*wrapper]
	lib      abi.LibraryPtr
	closed   atomic.Bool
}

// wrapper is one live callable. Its handle is the userdata the host passes
// to every callable callback.
type wrapper struct {
	custom Custom
	owner  object.Shadow
	hash   uint32
	h      handle.Handle
}

// Drop disposes resources held by the closure.
func (w *wrapper) Drop() {
	if d, ok := w.custom.(handle.Dropper); ok {
		d.Drop()
	}
}

func (w *wrapper) valid() bool {
	return w.owner == nil || w.owner.AsObject().IsValid()
}

func (w *wrapper) name() string {
	if s, ok := w.custom.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", w.custom)
}

// NewBridge creates a callable bridge.
func NewBridge(o Options) *Bridge {
	b := &Bridge{
		iface:    o.Interface,
		codecs:   o.Codecs,
		guard:    o.Guard,
		lib:      o.Library,
		marshal:  codec.NewMarshaller(o.Interface),
		wrappers: handle.New[*wrapper](),
	}
	if b.codecs == nil {
		b.codecs = codec.NewRegistry()
	}
	if b.guard == nil {
		b.guard = dispatch.NewGuard(dispatch.PolicyDefaultReturn, func(desc, fn string) {
			o.Interface.PrintError(desc, fn, "", 0, false)
		})
	}
	return b
}

// New wraps c as a native callable. owner may be nil; otherwise the
// callable is valid only while owner is.
func (b *Bridge) New(c Custom, owner object.Shadow) (*Callable, error) {
	if c == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "nil callable")
	}
	_, eq := c.(Equaler)
	_, hs := c.(Hasher)
	if eq && !hs {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			GoType(fmt.Sprintf("%T", c)).
			Detail("a callable with custom equality must also provide a hash").
			Build()
	}
	var id abi.ObjectID
	if owner != nil {
		if !owner.AsObject().IsValid() {
			return nil, errors.New(errors.PhaseRegister, errors.KindInvalidHandle).
				Detail("callable owner is not a live object").
				Build()
		}
		id = owner.AsObject().InstanceID()
	}

	w := &wrapper{custom: c, owner: owner}
	h, err := b.wrappers.Insert(w)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindNotInitialized, err, "callable bridge is closed")
	}
	w.h = h
	if hs {
		w.hash = c.(Hasher).Hash()
	} else {
		w.hash = identityHash(h, id)
	}

	info := abi.CallableCustomInfo{
		Userdata:         uintptr(h),
		Token:            b.lib,
		ObjectID:         id,
		Call:             b.call,
		IsValid:          b.isValid,
		Free:             b.free,
		Hash:             b.hashOf,
		Equal:            b.equal,
		LessThan:         b.less,
		ToString:         b.toString,
		GetArgumentCount: b.argumentCount,
	}
	out := &Callable{b: b}
	b.iface.CallableCustomCreate(&out.native, &info)
	Logger().Debug("callable created",
		zap.String("callable", w.name()),
		zap.Uint64("owner", uint64(id)))
	return out, nil
}

// FromFunc compiles fn and wraps it. The arity comes from the signature
// and arguments that do not convert report invalid_argument.
func (b *Bridge) FromFunc(fn any, owner object.Shadow) (*Callable, error) {
	f, err := compileFunc(fn, b.codecs)
	if err != nil {
		return nil, err
	}
	return b.New(f, owner)
}

// Unwrap returns the Custom behind a callable created by this bridge.
func (b *Bridge) Unwrap(c variant.Callable) (Custom, bool) {
	ud := b.iface.CallableCustomGetUserdata(&c.Native, b.lib)
	if ud == 0 {
		return nil, false
	}
	w, ok := b.wrappers.Get(handle.Handle(ud))
	if !ok {
		return nil, false
	}
	return w.custom, true
}

// Len returns the number of live wrappers.
func (b *Bridge) Len() int { return b.wrappers.Len() }

// Close drops every remaining wrapper. Frees the host delivers afterwards
// are ignored.
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if n := b.wrappers.Len(); n > 0 {
		Logger().Warn("closing callable bridge with live callables", zap.Int("callables", n))
	}
	return b.wrappers.Close()
}

func identityHash(h handle.Handle, id abi.ObjectID) uint32 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(h))
	binary.LittleEndian.PutUint64(buf[8:], uint64(id))
	sum := xxh3.Hash(buf[:])
	return uint32(sum ^ sum>>32)
}

func (b *Bridge) lookup(ud uintptr, op string) (*wrapper, bool) {
	w, ok := b.wrappers.Get(handle.Handle(ud))
	if !ok && !b.closed.Load() {
		errors.Invariant(errors.InvalidHandle(errors.PhaseCall, op+" callable", uint64(ud)))
	}
	return w, ok
}

func (b *Bridge) call(ud uintptr, args []*abi.Variant, ret *abi.Variant, cerr *abi.CallError) {
	w, ok := b.lookup(ud, "call")
	if !ok || !w.valid() {
		*cerr = abi.CallError{Error: abi.CallErrorInstanceIsNull}
		return
	}
	*cerr = abi.CallError{Error: abi.CallErrorInvalidMethod}
	name := w.name()
	b.guard.Call("Callable", name, func() error {
		in := make([]variant.Variant, len(args))
		for i, a := range args {
			v, err := b.marshal.FromNative(a)
			if err != nil {
				ce := &CallError{Kind: abi.CallErrorInvalidArgument, Argument: int32(i), Cause: err}
				*cerr = ce.Native()
				b.guard.Report("Callable", name, ce)
				return nil
			}
			in[i] = v
		}
		out, err := w.custom.Call(in)
		if err != nil {
			*cerr = dispatch.ToNative(err)
			b.guard.Report("Callable", name, err)
			return nil
		}
		if err := b.marshal.ToNative(out, ret); err != nil {
			return err
		}
		*cerr = abi.CallError{}
		return nil
	})
}

func (b *Bridge) isValid(ud uintptr) bool {
	w, ok := b.wrappers.Get(handle.Handle(ud))
	return ok && w.valid()
}

func (b *Bridge) free(ud uintptr) {
	w, ok := b.wrappers.Remove(handle.Handle(ud))
	if !ok {
		if !b.closed.Load() {
			errors.Invariant(errors.DoubleFree("callable", uint64(ud)))
		}
		return
	}
	w.Drop()
	Logger().Debug("callable freed", zap.String("callable", w.name()))
}

func (b *Bridge) hashOf(ud uintptr) uint32 {
	w, ok := b.lookup(ud, "hash")
	if !ok {
		return 0
	}
	return w.hash
}

func (b *Bridge) equal(x, y uintptr) bool {
	if x == y {
		return true
	}
	wx, okX := b.wrappers.Get(handle.Handle(x))
	wy, okY := b.wrappers.Get(handle.Handle(y))
	if !okX || !okY || wx.hash != wy.hash {
		return false
	}
	if e, ok := wx.custom.(Equaler); ok {
		return e.Equal(wy.custom)
	}
	return false
}

// less is a strict order consistent with equal: equal callables are never
// less than each other.
func (b *Bridge) less(x, y uintptr) bool {
	wx, okX := b.wrappers.Get(handle.Handle(x))
	wy, okY := b.wrappers.Get(handle.Handle(y))
	if !okX || !okY {
		return x < y
	}
	if l, ok := wx.custom.(Lesser); ok {
		return l.Less(wy.custom)
	}
	if b.equal(x, y) {
		return false
	}
	if wx.hash != wy.hash {
		return wx.hash < wy.hash
	}
	return x < y
}

func (b *Bridge) toString(ud uintptr, valid *bool, out *abi.String) {
	w, ok := b.lookup(ud, "to_string")
	if !ok {
		*valid = false
		return
	}
	b.iface.StringNew(out, w.name())
	*valid = true
}

func (b *Bridge) argumentCount(ud uintptr, valid *bool) int64 {
	w, ok := b.lookup(ud, "get_argument_count")
	if !ok {
		*valid = false
		return 0
	}
	a, ok := w.custom.(Arity)
	if !ok {
		*valid = false
		return 0
	}
	*valid = true
	return int64(a.ArgumentCount())
}
