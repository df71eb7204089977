package codec

import (
	"unsafe"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/variant"
)

// Typed calling convention.
//
// A ptrcall slot holds the bare native representation of its declared type:
// bool as one byte, int as int64, float as float64, objects as ObjectPtr,
// handle types as their handle, and fixed layouts by value. TypeNil declares
// a slot holding a full Variant.

// ReadPtr decodes the value of type t stored at p. p is borrowed.
func (m *Marshaller) ReadPtr(t variant.Type, p unsafe.Pointer) (variant.Variant, error) {
	switch t {
	case variant.TypeNil:
		return m.FromNative((*abi.Variant)(p))
	case variant.TypeBool:
		return variant.Bool(abi.Load[uint8](p) != 0), nil
	case variant.TypeInt:
		return variant.Int(abi.Load[int64](p)), nil
	case variant.TypeFloat:
		return variant.Float(abi.Load[float64](p)), nil
	case variant.TypeObject:
		ptr := abi.Load[abi.ObjectPtr](p)
		if ptr == 0 {
			return variant.FromObject(variant.Object{}), nil
		}
		return variant.FromObject(variant.Object{Ptr: ptr, ID: m.iface.ObjectGetInstanceID(ptr)}), nil
	case variant.TypeCallable:
		return variant.FromCallable(variant.Callable{Native: abi.Load[abi.Callable](p)}), nil
	}
	if !t.Valid() {
		return variant.Variant{}, errors.InvalidData(errors.PhaseDecode, nil, "invalid ptrcall type "+t.String())
	}

	var tmp abi.Variant
	if t.Inline() {
		// Inline payloads share the variant layout.
		tmp.Type = t
		copy(unsafe.Slice((*byte)(tmp.PayloadPtr()), inlineSize(t)), unsafe.Slice((*byte)(p), inlineSize(t)))
		return m.FromNative(&tmp)
	}
	m.iface.VariantFromType(t, &tmp, p)
	v, err := m.FromNative(&tmp)
	m.Destroy(&tmp)
	return v, err
}

// WritePtr constructs v into the type t slot at p. The slot is treated as
// uninitialized. v must have type t unless t is TypeNil.
func (m *Marshaller) WritePtr(t variant.Type, p unsafe.Pointer, v variant.Variant) error {
	if t == variant.TypeNil {
		return m.ToNative(v, (*abi.Variant)(p))
	}
	if v.Type() != t && !(v.IsNil() && t == variant.TypeObject) {
		return errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
			VariantType(v.Type().String()).
			Detail("ptrcall slot expects %s", t).
			Build()
	}
	switch t {
	case variant.TypeBool:
		var b uint8
		if v.Interface().(bool) {
			b = 1
		}
		abi.Store(p, b)
		return nil
	case variant.TypeInt:
		abi.Store(p, v.Interface().(int64))
		return nil
	case variant.TypeFloat:
		abi.Store(p, v.Interface().(float64))
		return nil
	case variant.TypeObject:
		var ptr abi.ObjectPtr
		if o, ok := variant.As[variant.Object](v); ok {
			ptr = o.Ptr
		}
		abi.Store(p, ptr)
		return nil
	}

	var tmp abi.Variant
	if err := m.ToNative(v, &tmp); err != nil {
		return err
	}
	if t.Inline() {
		copy(unsafe.Slice((*byte)(p), inlineSize(t)), unsafe.Slice((*byte)(tmp.PayloadPtr()), inlineSize(t)))
		return nil
	}
	m.iface.VariantToType(t, p, &tmp)
	m.Destroy(&tmp)
	return nil
}

// inlineSize is the byte size of an inline payload in a ptrcall slot.
func inlineSize(t variant.Type) int {
	switch t {
	case variant.TypeVector2, variant.TypeVector2I, variant.TypeRID:
		return 8
	case variant.TypeVector3, variant.TypeVector3I:
		return 12
	}
	return 16
}
