package variant

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/wippyai/gdext/errors"
)

// Variant is the managed tagged union. The zero Variant is nil.
//
// The payload Go type is fixed per tag:
//
//	Nil          nil
//	Bool         bool
//	Int          int64
//	Float        float64
//	String       string
//	StringName   StringName
//	NodePath     NodePath
//	RID          RID
//	Object       Object
//	Callable     Callable
//	Signal       Signal
//	Array        *Array
//	Dictionary   *Dictionary
//	geometry     the struct of the same name
//	Packed*      []byte, []int32, []int64, []float32, []float64, []string,
//	             []Vector2, []Vector3, []Color, []Vector4
type Variant struct {
	val any
	typ Type
}

// Nil returns the nil variant.
func Nil() Variant { return Variant{} }

func Bool(b bool) Variant { return Variant{typ: TypeBool, val: b} }

func Int(i int64) Variant { return Variant{typ: TypeInt, val: i} }

func Float(f float64) Variant { return Variant{typ: TypeFloat, val: f} }

func String(s string) Variant { return Variant{typ: TypeString, val: s} }

func Name(s StringName) Variant { return Variant{typ: TypeStringName, val: s} }

func Path(p NodePath) Variant { return Variant{typ: TypeNodePath, val: p} }

func FromObject(o Object) Variant { return Variant{typ: TypeObject, val: o} }

func FromCallable(c Callable) Variant { return Variant{typ: TypeCallable, val: c} }

func FromSignal(s Signal) Variant { return Variant{typ: TypeSignal, val: s} }

// FromArray wraps a. A nil a is stored as a new empty array.
func FromArray(a *Array) Variant {
	if a == nil {
		a = NewArray()
	}
	return Variant{typ: TypeArray, val: a}
}

// FromDictionary wraps d. A nil d is stored as a new empty dictionary.
func FromDictionary(d *Dictionary) Variant {
	if d == nil {
		d = NewDictionary()
	}
	return Variant{typ: TypeDictionary, val: d}
}

// From wraps a Go value whose type is one of the payload types listed on
// Variant. A Variant passed to From is returned as is.
func From(v any) (Variant, error) {
	switch x := v.(type) {
	case nil:
		return Nil(), nil
	case Variant:
		return x, nil
	case bool:
		return Bool(x), nil
	case int64:
		return Int(x), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case StringName:
		return Name(x), nil
	case NodePath:
		return Path(x), nil
	case RID:
		return Variant{typ: TypeRID, val: x}, nil
	case Object:
		return FromObject(x), nil
	case Callable:
		return FromCallable(x), nil
	case Signal:
		return FromSignal(x), nil
	case *Array:
		return FromArray(x), nil
	case *Dictionary:
		return FromDictionary(x), nil
	case Vector2:
		return Variant{typ: TypeVector2, val: x}, nil
	case Vector2i:
		return Variant{typ: TypeVector2I, val: x}, nil
	case Rect2:
		return Variant{typ: TypeRect2, val: x}, nil
	case Rect2i:
		return Variant{typ: TypeRect2I, val: x}, nil
	case Vector3:
		return Variant{typ: TypeVector3, val: x}, nil
	case Vector3i:
		return Variant{typ: TypeVector3I, val: x}, nil
	case Transform2D:
		return Variant{typ: TypeTransform2D, val: x}, nil
	case Vector4:
		return Variant{typ: TypeVector4, val: x}, nil
	case Vector4i:
		return Variant{typ: TypeVector4I, val: x}, nil
	case Plane:
		return Variant{typ: TypePlane, val: x}, nil
	case Quaternion:
		return Variant{typ: TypeQuaternion, val: x}, nil
	case AABB:
		return Variant{typ: TypeAABB, val: x}, nil
	case Basis:
		return Variant{typ: TypeBasis, val: x}, nil
	case Transform3D:
		return Variant{typ: TypeTransform3D, val: x}, nil
	case Projection:
		return Variant{typ: TypeProjection, val: x}, nil
	case Color:
		return Variant{typ: TypeColor, val: x}, nil
	case []byte:
		return Variant{typ: TypePackedByteArray, val: x}, nil
	case []int32:
		return Variant{typ: TypePackedInt32Array, val: x}, nil
	case []int64:
		return Variant{typ: TypePackedInt64Array, val: x}, nil
	case []float32:
		return Variant{typ: TypePackedFloat32Array, val: x}, nil
	case []float64:
		return Variant{typ: TypePackedFloat64Array, val: x}, nil
	case []string:
		return Variant{typ: TypePackedStringArray, val: x}, nil
	case []Vector2:
		return Variant{typ: TypePackedVector2Array, val: x}, nil
	case []Vector3:
		return Variant{typ: TypePackedVector3Array, val: x}, nil
	case []Color:
		return Variant{typ: TypePackedColorArray, val: x}, nil
	case []Vector4:
		return Variant{typ: TypePackedVector4Array, val: x}, nil
	}
	return Variant{}, errors.New(errors.PhaseEncode, errors.KindUnsupported).
		GoType(fmt.Sprintf("%T", v)).
		Detail("not a variant payload type").
		Build()
}

// MustFrom is like From but panics on unsupported types.
func MustFrom(v any) Variant {
	out, err := From(v)
	if err != nil {
		panic(err)
	}
	return out
}

// Type returns the tag.
func (v Variant) Type() Type { return v.typ }

// IsNil reports whether v is the nil variant.
func (v Variant) IsNil() bool { return v.typ == TypeNil }

// Interface returns the payload.
func (v Variant) Interface() any { return v.val }

// As returns the payload of v as T.
func As[T any](v Variant) (T, bool) {
	t, ok := v.val.(T)
	return t, ok
}

func (v Variant) String() string {
	switch v.typ {
	case TypeNil:
		return "<null>"
	case TypeObject:
		o := v.val.(Object)
		if o.IsNil() {
			return "<Object#null>"
		}
		return fmt.Sprintf("<Object#%d>", o.ID)
	case TypeArray:
		return fmt.Sprint(v.val.(*Array).elems)
	case TypeDictionary:
		d := v.val.(*Dictionary)
		s := "{"
		for i := range d.keys {
			if i > 0 {
				s += ", "
			}
			s += d.keys[i].String() + ": " + d.values[i].String()
		}
		return s + "}"
	}
	return fmt.Sprint(v.val)
}

// Equal reports whether a and b hold the same tag and payload. Arrays and
// dictionaries compare by content.
func Equal(a, b Variant) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeNil:
		return true
	case TypeArray:
		x, y := a.val.(*Array), b.val.(*Array)
		if x == y {
			return true
		}
		return slices.EqualFunc(x.elems, y.elems, Equal)
	case TypeDictionary:
		x, y := a.val.(*Dictionary), b.val.(*Dictionary)
		if x == y {
			return true
		}
		if x.Len() != y.Len() {
			return false
		}
		for i, k := range x.keys {
			other, ok := y.Get(k)
			if !ok || !Equal(x.values[i], other) {
				return false
			}
		}
		return true
	}
	if a.typ.Packed() {
		return reflect.DeepEqual(a.val, b.val)
	}
	return a.val == b.val
}
