package hosttest

import (
	"unsafe"

	"github.com/wippyai/gdext/abi"
)

type callableCell struct {
	info abi.CallableCustomInfo
}

func (h *Host) callableCustomCreate(dst *abi.Callable, info *abi.CallableCustomInfo) {
	ptr := h.alloc(abi.TypeCallable, &callableCell{info: *info})
	dst.Data = [2]uint64{uint64(ptr), uint64(info.ObjectID)}
}

func (h *Host) callableCustomGetUserdata(c *abi.Callable, token abi.LibraryPtr) uintptr {
	cc, ok := h.callable(*c)
	if !ok || cc.info.Token != token {
		return 0
	}
	return cc.info.Userdata
}

func (h *Host) callable(c abi.Callable) (*callableCell, bool) {
	cell, ok := h.lookup(uintptr(c.Data[0]), abi.TypeCallable)
	if !ok {
		return nil, false
	}
	return cell.value.(*callableCell), true
}

// CallCallable invokes c with borrowed args. The caller releases the result.
func (h *Host) CallCallable(c abi.Callable, args ...abi.Variant) (abi.Variant, abi.CallError) {
	var ret abi.Variant
	cc, ok := h.callable(c)
	if !ok {
		return ret, abi.CallError{Error: abi.CallErrorInstanceIsNull}
	}
	ptrs := make([]*abi.Variant, len(args))
	for i := range args {
		ptrs[i] = &args[i]
	}
	var cerr abi.CallError
	cc.info.Call(cc.info.Userdata, ptrs, &ret, &cerr)
	return ret, cerr
}

// CallableIsValid reports the callable's own validity.
func (h *Host) CallableIsValid(c abi.Callable) bool {
	cc, ok := h.callable(c)
	if !ok {
		return false
	}
	if cc.info.IsValid == nil {
		return true
	}
	return cc.info.IsValid(cc.info.Userdata)
}

// CallableHash returns the callable's hash.
func (h *Host) CallableHash(c abi.Callable) uint32 {
	cc, ok := h.callable(c)
	if !ok || cc.info.Hash == nil {
		return uint32(c.Data[0])
	}
	return cc.info.Hash(cc.info.Userdata)
}

// CallableEqual compares two callables the way the engine does: identical
// handles are equal; custom callables from the same library defer to the
// extension's equality callback.
func (h *Host) CallableEqual(a, b abi.Callable) bool {
	if a.Data[0] == b.Data[0] {
		return true
	}
	ca, okA := h.callable(a)
	cb, okB := h.callable(b)
	if !okA || !okB || ca.info.Token != cb.info.Token || ca.info.Equal == nil {
		return false
	}
	return ca.info.Equal(ca.info.Userdata, cb.info.Userdata)
}

// CallableLess orders two callables.
func (h *Host) CallableLess(a, b abi.Callable) bool {
	ca, okA := h.callable(a)
	cb, okB := h.callable(b)
	if okA && okB && ca.info.Token == cb.info.Token && ca.info.LessThan != nil {
		return ca.info.LessThan(ca.info.Userdata, cb.info.Userdata)
	}
	return a.Data[0] < b.Data[0]
}

// CallableString returns the extension's text for c.
func (h *Host) CallableString(c abi.Callable) (string, bool) {
	cc, ok := h.callable(c)
	if !ok || cc.info.ToString == nil {
		return "", false
	}
	var valid bool
	var out abi.String
	cc.info.ToString(cc.info.Userdata, &valid, &out)
	if !valid {
		return "", false
	}
	s := h.text(out.Ptr, abi.TypeString)
	h.release(out.Ptr)
	return s, true
}

// CallableArgumentCount returns the declared arity of c.
func (h *Host) CallableArgumentCount(c abi.Callable) (int64, bool) {
	cc, ok := h.callable(c)
	if !ok || cc.info.GetArgumentCount == nil {
		return 0, false
	}
	var valid bool
	n := cc.info.GetArgumentCount(cc.info.Userdata, &valid)
	return n, valid
}

// CallableVariant wraps c into a Callable variant holding a new reference.
func (h *Host) CallableVariant(c abi.Callable) abi.Variant {
	var v abi.Variant
	h.variantFromType(abi.TypeCallable, &v, unsafe.Pointer(&c))
	return v
}

// CallableOf reads the callable out of a Callable variant without taking
// a reference.
func CallableOf(v *abi.Variant) abi.Callable {
	return abi.Callable{Data: v.Data}
}
