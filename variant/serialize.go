package variant

import (
	"strconv"
	"unsafe"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/errors"
)

// cborEncMode encodes in canonical mode so equal variants serialize to
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("variant: cbor enc mode: " + err.Error())
	}
	cborEncMode = em
}

type wireOut struct {
	_     struct{} `cbor:",toarray"`
	Type  Type
	Value any
}

type wireIn struct {
	_     struct{} `cbor:",toarray"`
	Type  Type
	Value cbor.RawMessage
}

// Marshal serializes v. Objects, callables and signals are process-local
// and cannot be serialized.
func Marshal(v Variant) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(w)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "variant: marshal")
	}
	return data, nil
}

// Unmarshal parses data produced by Marshal.
func Unmarshal(data []byte) (Variant, error) {
	var w wireIn
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Variant{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "variant: unmarshal")
	}
	return fromWire(w)
}

func toWire(v Variant) (wireOut, error) {
	p, err := payload(v)
	if err != nil {
		return wireOut{}, err
	}
	return wireOut{Type: v.typ, Value: p}, nil
}

// payload returns the serializable form of v's value.
func payload(v Variant) (any, error) {
	switch v.typ {
	case TypeNil:
		return nil, nil
	case TypeBool, TypeInt, TypeFloat, TypeString,
		TypePackedByteArray, TypePackedInt32Array, TypePackedInt64Array,
		TypePackedFloat32Array, TypePackedFloat64Array, TypePackedStringArray:
		return v.val, nil
	case TypeStringName:
		return string(v.val.(StringName)), nil
	case TypeNodePath:
		return string(v.val.(NodePath)), nil
	case TypeRID:
		return uint64(v.val.(RID)), nil
	case TypeVector2:
		return flatten[float32](v.val.(Vector2)), nil
	case TypeVector2I:
		return flatten[int32](v.val.(Vector2i)), nil
	case TypeRect2:
		return flatten[float32](v.val.(Rect2)), nil
	case TypeRect2I:
		return flatten[int32](v.val.(Rect2i)), nil
	case TypeVector3:
		return flatten[float32](v.val.(Vector3)), nil
	case TypeVector3I:
		return flatten[int32](v.val.(Vector3i)), nil
	case TypeTransform2D:
		return flatten[float32](v.val.(Transform2D)), nil
	case TypeVector4:
		return flatten[float32](v.val.(Vector4)), nil
	case TypeVector4I:
		return flatten[int32](v.val.(Vector4i)), nil
	case TypePlane:
		return flatten[float32](v.val.(Plane)), nil
	case TypeQuaternion:
		return flatten[float32](v.val.(Quaternion)), nil
	case TypeAABB:
		return flatten[float32](v.val.(AABB)), nil
	case TypeBasis:
		return flatten[float32](v.val.(Basis)), nil
	case TypeTransform3D:
		return flatten[float32](v.val.(Transform3D)), nil
	case TypeProjection:
		return flatten[float32](v.val.(Projection)), nil
	case TypeColor:
		return flatten[float32](v.val.(Color)), nil
	case TypePackedVector2Array:
		return flattenSlice[float32](v.val.([]Vector2)), nil
	case TypePackedVector3Array:
		return flattenSlice[float32](v.val.([]Vector3)), nil
	case TypePackedColorArray:
		return flattenSlice[float32](v.val.([]Color)), nil
	case TypePackedVector4Array:
		return flattenSlice[float32](v.val.([]Vector4)), nil
	case TypeArray:
		a := v.val.(*Array)
		out := make([]wireOut, 0, a.Len())
		for i, e := range a.elems {
			w, err := toWire(e)
			if err != nil {
				return nil, withIndex(err, i)
			}
			out = append(out, w)
		}
		return out, nil
	case TypeDictionary:
		d := v.val.(*Dictionary)
		out := make([]wireOut, 0, 2*d.Len())
		for i := range d.keys {
			k, err := toWire(d.keys[i])
			if err != nil {
				return nil, withIndex(err, i)
			}
			val, err := toWire(d.values[i])
			if err != nil {
				return nil, withIndex(err, i)
			}
			out = append(out, k, val)
		}
		return out, nil
	}
	return nil, errors.Unsupported(errors.PhaseEncode, "serializing "+v.typ.String())
}

func fromWire(w wireIn) (Variant, error) {
	switch w.Type {
	case TypeNil:
		return Nil(), nil
	case TypeBool:
		return decodeScalar(w, Bool)
	case TypeInt:
		return decodeScalar(w, Int)
	case TypeFloat:
		return decodeScalar(w, Float)
	case TypeString:
		return decodeScalar(w, String)
	case TypeStringName:
		return decodeScalar(w, func(s string) Variant { return Name(StringName(s)) })
	case TypeNodePath:
		return decodeScalar(w, func(s string) Variant { return Path(NodePath(s)) })
	case TypeRID:
		return decodeScalar(w, func(id uint64) Variant { return Variant{typ: TypeRID, val: RID(id)} })
	case TypeVector2:
		return decodeFixed[float32, Vector2](w)
	case TypeVector2I:
		return decodeFixed[int32, Vector2i](w)
	case TypeRect2:
		return decodeFixed[float32, Rect2](w)
	case TypeRect2I:
		return decodeFixed[int32, Rect2i](w)
	case TypeVector3:
		return decodeFixed[float32, Vector3](w)
	case TypeVector3I:
		return decodeFixed[int32, Vector3i](w)
	case TypeTransform2D:
		return decodeFixed[float32, Transform2D](w)
	case TypeVector4:
		return decodeFixed[float32, Vector4](w)
	case TypeVector4I:
		return decodeFixed[int32, Vector4i](w)
	case TypePlane:
		return decodeFixed[float32, Plane](w)
	case TypeQuaternion:
		return decodeFixed[float32, Quaternion](w)
	case TypeAABB:
		return decodeFixed[float32, AABB](w)
	case TypeBasis:
		return decodeFixed[float32, Basis](w)
	case TypeTransform3D:
		return decodeFixed[float32, Transform3D](w)
	case TypeProjection:
		return decodeFixed[float32, Projection](w)
	case TypeColor:
		return decodeFixed[float32, Color](w)
	case TypePackedByteArray:
		return decodePacked[byte](w)
	case TypePackedInt32Array:
		return decodePacked[int32](w)
	case TypePackedInt64Array:
		return decodePacked[int64](w)
	case TypePackedFloat32Array:
		return decodePacked[float32](w)
	case TypePackedFloat64Array:
		return decodePacked[float64](w)
	case TypePackedStringArray:
		return decodePacked[string](w)
	case TypePackedVector2Array:
		return decodePackedFixed[Vector2](w)
	case TypePackedVector3Array:
		return decodePackedFixed[Vector3](w)
	case TypePackedColorArray:
		return decodePackedFixed[Color](w)
	case TypePackedVector4Array:
		return decodePackedFixed[Vector4](w)
	case TypeArray:
		elems, err := decodeList(w)
		if err != nil {
			return Variant{}, err
		}
		return FromArray(&Array{elems: elems}), nil
	case TypeDictionary:
		elems, err := decodeList(w)
		if err != nil {
			return Variant{}, err
		}
		if len(elems)%2 != 0 {
			return Variant{}, errors.InvalidData(errors.PhaseDecode, nil, "dictionary has an odd number of items")
		}
		d := NewDictionary()
		for i := 0; i < len(elems); i += 2 {
			d.Set(elems[i], elems[i+1])
		}
		return FromDictionary(d), nil
	case TypeObject, TypeCallable, TypeSignal:
		return Variant{}, errors.Unsupported(errors.PhaseDecode, "deserializing "+w.Type.String())
	}
	return Variant{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
		VariantType(w.Type.String()).
		Detail("unknown variant type tag").
		Build()
}

func decodeScalar[T any](w wireIn, wrap func(T) Variant) (Variant, error) {
	var x T
	if err := cbor.Unmarshal(w.Value, &x); err != nil {
		return Variant{}, payloadError(w.Type, err)
	}
	return wrap(x), nil
}

func decodeFixed[E, T any](w wireIn) (Variant, error) {
	var elems []E
	if err := cbor.Unmarshal(w.Value, &elems); err != nil {
		return Variant{}, payloadError(w.Type, err)
	}
	t, ok := unflatten[E, T](elems)
	if !ok {
		return Variant{}, errors.InvalidData(errors.PhaseDecode, []string{w.Type.String()}, "wrong component count")
	}
	return Variant{typ: w.Type, val: t}, nil
}

func decodePacked[T any](w wireIn) (Variant, error) {
	var elems []T
	if err := cbor.Unmarshal(w.Value, &elems); err != nil {
		return Variant{}, payloadError(w.Type, err)
	}
	if elems == nil {
		elems = []T{}
	}
	return Variant{typ: w.Type, val: elems}, nil
}

func decodePackedFixed[T any](w wireIn) (Variant, error) {
	var flat []float32
	if err := cbor.Unmarshal(w.Value, &flat); err != nil {
		return Variant{}, payloadError(w.Type, err)
	}
	out, ok := unflattenSlice[float32, T](flat)
	if !ok {
		return Variant{}, errors.InvalidData(errors.PhaseDecode, []string{w.Type.String()}, "wrong component count")
	}
	return Variant{typ: w.Type, val: out}, nil
}

func decodeList(w wireIn) ([]Variant, error) {
	var items []wireIn
	if err := cbor.Unmarshal(w.Value, &items); err != nil {
		return nil, payloadError(w.Type, err)
	}
	out := make([]Variant, 0, len(items))
	for i, item := range items {
		v, err := fromWire(item)
		if err != nil {
			return nil, withIndex(err, i)
		}
		out = append(out, v)
	}
	return out, nil
}

func payloadError(t Type, err error) error {
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		VariantType(t.String()).
		Cause(err).
		Detail("malformed payload").
		Build()
}

func withIndex(err error, i int) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = append([]string{"[" + strconv.Itoa(i) + "]"}, e.Path...)
		return e
	}
	return err
}

// flatten views a fixed-layout value as its components. The result aliases
// a copy of v.
func flatten[E, T any](v T) []E {
	var e E
	return abi.Slice[E](unsafe.Pointer(&v), int64(unsafe.Sizeof(v)/unsafe.Sizeof(e)))
}

func flattenSlice[E, T any](s []T) []E {
	if len(s) == 0 {
		return []E{}
	}
	var e E
	var t T
	return abi.Slice[E](abi.SliceData(s), int64(len(s))*int64(unsafe.Sizeof(t)/unsafe.Sizeof(e)))
}

func unflatten[E, T any](elems []E) (T, bool) {
	var t T
	dst := flattenInto[E](&t)
	if len(elems) != len(dst) {
		return t, false
	}
	copy(dst, elems)
	return t, true
}

func unflattenSlice[E, T any](elems []E) ([]T, bool) {
	var e E
	var t T
	per := int(unsafe.Sizeof(t) / unsafe.Sizeof(e))
	if len(elems)%per != 0 {
		return nil, false
	}
	out := make([]T, len(elems)/per)
	if len(out) > 0 {
		copy(abi.Slice[E](abi.SliceData(out), int64(len(elems))), elems)
	}
	return out, true
}

func flattenInto[E, T any](t *T) []E {
	var e E
	return abi.Slice[E](unsafe.Pointer(t), int64(unsafe.Sizeof(*t)/unsafe.Sizeof(e)))
}
