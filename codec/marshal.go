package codec

import (
	"strconv"
	"unsafe"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/variant"
)

// Marshaller moves variant.Variant values in and out of native variants.
type Marshaller struct {
	iface *abi.Interface
}

// NewMarshaller creates a marshaller over the host interface.
func NewMarshaller(iface *abi.Interface) *Marshaller {
	return &Marshaller{iface: iface}
}

// NeedsDestroy reports whether a native value of type t holds host
// resources that must be released.
func NeedsDestroy(t variant.Type) bool {
	return !t.Inline()
}

// Destroy releases a native variant produced by ToNative or by the host and
// resets it to nil. Inline variants are only reset.
func (m *Marshaller) Destroy(v *abi.Variant) {
	if NeedsDestroy(v.Type) {
		m.iface.VariantDestroy(v)
	}
	v.Nil()
}

// ToNative constructs v into dst. dst is treated as uninitialized; on error
// it is left nil and nothing is leaked.
func (m *Marshaller) ToNative(v variant.Variant, dst *abi.Variant) error {
	dst.Nil()
	t := v.Type()
	switch t {
	case variant.TypeNil:
		return nil
	case variant.TypeBool:
		dst.SetBool(v.Interface().(bool))
	case variant.TypeInt:
		dst.SetInt(v.Interface().(int64))
	case variant.TypeFloat:
		dst.SetFloat(v.Interface().(float64))
	case variant.TypeRID:
		dst.SetRID(uint64(v.Interface().(variant.RID)))
	case variant.TypeObject:
		o := v.Interface().(variant.Object)
		dst.SetObject(o.Ptr, o.ID)
	case variant.TypeVector2:
		abi.StoreInline(dst, t, v.Interface().(variant.Vector2))
	case variant.TypeVector2I:
		abi.StoreInline(dst, t, v.Interface().(variant.Vector2i))
	case variant.TypeRect2:
		abi.StoreInline(dst, t, v.Interface().(variant.Rect2))
	case variant.TypeRect2I:
		abi.StoreInline(dst, t, v.Interface().(variant.Rect2i))
	case variant.TypeVector3:
		abi.StoreInline(dst, t, v.Interface().(variant.Vector3))
	case variant.TypeVector3I:
		abi.StoreInline(dst, t, v.Interface().(variant.Vector3i))
	case variant.TypeVector4:
		abi.StoreInline(dst, t, v.Interface().(variant.Vector4))
	case variant.TypeVector4I:
		abi.StoreInline(dst, t, v.Interface().(variant.Vector4i))
	case variant.TypePlane:
		abi.StoreInline(dst, t, v.Interface().(variant.Plane))
	case variant.TypeQuaternion:
		abi.StoreInline(dst, t, v.Interface().(variant.Quaternion))
	case variant.TypeColor:
		abi.StoreInline(dst, t, v.Interface().(variant.Color))
	case variant.TypeTransform2D:
		fromValue(m, t, dst, v.Interface().(variant.Transform2D))
	case variant.TypeAABB:
		fromValue(m, t, dst, v.Interface().(variant.AABB))
	case variant.TypeBasis:
		fromValue(m, t, dst, v.Interface().(variant.Basis))
	case variant.TypeTransform3D:
		fromValue(m, t, dst, v.Interface().(variant.Transform3D))
	case variant.TypeProjection:
		fromValue(m, t, dst, v.Interface().(variant.Projection))
	case variant.TypeString:
		var s abi.String
		m.iface.StringNew(&s, v.Interface().(string))
		m.iface.VariantFromType(t, dst, unsafe.Pointer(&s))
		m.iface.StringDestroy(&s)
	case variant.TypeStringName:
		var s abi.StringName
		m.iface.StringNameNew(&s, string(v.Interface().(variant.StringName)))
		m.iface.VariantFromType(t, dst, unsafe.Pointer(&s))
		m.iface.StringNameDestroy(&s)
	case variant.TypeNodePath:
		var p abi.NodePath
		m.iface.NodePathNew(&p, string(v.Interface().(variant.NodePath)))
		m.iface.VariantFromType(t, dst, unsafe.Pointer(&p))
		m.iface.NodePathDestroy(&p)
	case variant.TypeCallable:
		c := v.Interface().(variant.Callable).Native
		m.iface.VariantFromType(t, dst, unsafe.Pointer(&c))
	case variant.TypeSignal:
		s := v.Interface().(variant.Signal)
		sig := abi.Signal{Owner: s.Owner}
		m.iface.StringNameNew(&sig.Name, string(s.Name))
		m.iface.VariantFromType(t, dst, unsafe.Pointer(&sig))
		m.iface.StringNameDestroy(&sig.Name)
	case variant.TypeArray:
		return m.arrayToNative(v.Interface().(*variant.Array), dst)
	case variant.TypeDictionary:
		return m.dictionaryToNative(v.Interface().(*variant.Dictionary), dst)
	case variant.TypePackedByteArray:
		packedToNative(m, t, dst, v.Interface().([]byte))
	case variant.TypePackedInt32Array:
		packedToNative(m, t, dst, v.Interface().([]int32))
	case variant.TypePackedInt64Array:
		packedToNative(m, t, dst, v.Interface().([]int64))
	case variant.TypePackedFloat32Array:
		packedToNative(m, t, dst, v.Interface().([]float32))
	case variant.TypePackedFloat64Array:
		packedToNative(m, t, dst, v.Interface().([]float64))
	case variant.TypePackedVector2Array:
		packedToNative(m, t, dst, v.Interface().([]variant.Vector2))
	case variant.TypePackedVector3Array:
		packedToNative(m, t, dst, v.Interface().([]variant.Vector3))
	case variant.TypePackedColorArray:
		packedToNative(m, t, dst, v.Interface().([]variant.Color))
	case variant.TypePackedVector4Array:
		packedToNative(m, t, dst, v.Interface().([]variant.Vector4))
	case variant.TypePackedStringArray:
		m.stringsToNative(v.Interface().([]string), dst)
	default:
		return errors.New(errors.PhaseEncode, errors.KindUnsupported).
			VariantType(t.String()).
			Detail("no native encoding").
			Build()
	}
	return nil
}

func fromValue[T any](m *Marshaller, t variant.Type, dst *abi.Variant, value T) {
	m.iface.VariantFromType(t, dst, unsafe.Pointer(&value))
}

func packedToNative[T any](m *Marshaller, t variant.Type, dst *abi.Variant, s []T) {
	var p abi.PackedArray
	m.iface.PackedArrayNew(t, &p, abi.SliceData(s), int64(len(s)))
	m.iface.VariantFromType(t, dst, unsafe.Pointer(&p))
	m.iface.PackedArrayDestroy(t, &p)
}

func (m *Marshaller) stringsToNative(s []string, dst *abi.Variant) {
	cl := NewCleanup()
	defer cl.FreeAndRelease(m.iface)

	strs := make([]abi.String, len(s))
	for i := range s {
		m.iface.StringNew(&strs[i], s[i])
		cl.AddString(strs[i])
	}
	packedToNative(m, variant.TypePackedStringArray, dst, strs)
}

func (m *Marshaller) arrayToNative(a *variant.Array, dst *abi.Variant) error {
	var arr abi.Array
	m.iface.ArrayNew(&arr)
	defer m.iface.ArrayDestroy(&arr)

	for i := 0; i < a.Len(); i++ {
		var elem abi.Variant
		if err := m.ToNative(a.At(i), &elem); err != nil {
			return indexed(err, i)
		}
		m.iface.ArrayPushBack(&arr, &elem)
		m.Destroy(&elem)
	}
	m.iface.VariantFromType(variant.TypeArray, dst, unsafe.Pointer(&arr))
	return nil
}

func (m *Marshaller) dictionaryToNative(d *variant.Dictionary, dst *abi.Variant) error {
	var dict abi.Dictionary
	m.iface.DictionaryNew(&dict)
	defer m.iface.DictionaryDestroy(&dict)

	var err error
	i := 0
	d.Each(func(key, value variant.Variant) bool {
		var k, v abi.Variant
		if err = m.ToNative(key, &k); err != nil {
			err = indexed(err, i)
			return false
		}
		if err = m.ToNative(value, &v); err != nil {
			m.Destroy(&k)
			err = indexed(err, i)
			return false
		}
		m.iface.DictionarySet(&dict, &k, &v)
		m.Destroy(&k)
		m.Destroy(&v)
		i++
		return true
	})
	if err != nil {
		return err
	}
	m.iface.VariantFromType(variant.TypeDictionary, dst, unsafe.Pointer(&dict))
	return nil
}

// FromNative decodes src. src is borrowed and stays owned by the caller.
// A decoded Callable is borrowed from src.
func (m *Marshaller) FromNative(src *abi.Variant) (variant.Variant, error) {
	t := src.Type
	switch t {
	case variant.TypeNil:
		return variant.Nil(), nil
	case variant.TypeBool:
		return variant.Bool(src.Bool()), nil
	case variant.TypeInt:
		return variant.Int(src.Int()), nil
	case variant.TypeFloat:
		return variant.Float(src.Float()), nil
	case variant.TypeRID:
		return variant.MustFrom(variant.RID(src.RID())), nil
	case variant.TypeObject:
		ptr, id := src.Object()
		if ptr == 0 {
			id = 0
		}
		return variant.FromObject(variant.Object{Ptr: ptr, ID: id}), nil
	case variant.TypeVector2:
		return variant.MustFrom(abi.LoadInline[variant.Vector2](src)), nil
	case variant.TypeVector2I:
		return variant.MustFrom(abi.LoadInline[variant.Vector2i](src)), nil
	case variant.TypeRect2:
		return variant.MustFrom(abi.LoadInline[variant.Rect2](src)), nil
	case variant.TypeRect2I:
		return variant.MustFrom(abi.LoadInline[variant.Rect2i](src)), nil
	case variant.TypeVector3:
		return variant.MustFrom(abi.LoadInline[variant.Vector3](src)), nil
	case variant.TypeVector3I:
		return variant.MustFrom(abi.LoadInline[variant.Vector3i](src)), nil
	case variant.TypeVector4:
		return variant.MustFrom(abi.LoadInline[variant.Vector4](src)), nil
	case variant.TypeVector4I:
		return variant.MustFrom(abi.LoadInline[variant.Vector4i](src)), nil
	case variant.TypePlane:
		return variant.MustFrom(abi.LoadInline[variant.Plane](src)), nil
	case variant.TypeQuaternion:
		return variant.MustFrom(abi.LoadInline[variant.Quaternion](src)), nil
	case variant.TypeColor:
		return variant.MustFrom(abi.LoadInline[variant.Color](src)), nil
	case variant.TypeTransform2D:
		return toValue[variant.Transform2D](m, src), nil
	case variant.TypeAABB:
		return toValue[variant.AABB](m, src), nil
	case variant.TypeBasis:
		return toValue[variant.Basis](m, src), nil
	case variant.TypeTransform3D:
		return toValue[variant.Transform3D](m, src), nil
	case variant.TypeProjection:
		return toValue[variant.Projection](m, src), nil
	case variant.TypeString:
		var s abi.String
		m.iface.VariantToType(t, unsafe.Pointer(&s), src)
		text := m.iface.StringToUTF8(&s)
		m.iface.StringDestroy(&s)
		return variant.String(text), nil
	case variant.TypeStringName:
		var s abi.StringName
		m.iface.VariantToType(t, unsafe.Pointer(&s), src)
		text := m.iface.StringNameToUTF8(&s)
		m.iface.StringNameDestroy(&s)
		return variant.Name(variant.StringName(text)), nil
	case variant.TypeNodePath:
		var p abi.NodePath
		m.iface.VariantToType(t, unsafe.Pointer(&p), src)
		text := m.iface.NodePathToUTF8(&p)
		m.iface.NodePathDestroy(&p)
		return variant.Path(variant.NodePath(text)), nil
	case variant.TypeCallable:
		return variant.FromCallable(variant.Callable{Native: abi.LoadInline[abi.Callable](src)}), nil
	case variant.TypeSignal:
		var sig abi.Signal
		m.iface.VariantToType(t, unsafe.Pointer(&sig), src)
		name := m.iface.StringNameToUTF8(&sig.Name)
		m.iface.StringNameDestroy(&sig.Name)
		return variant.FromSignal(variant.Signal{Name: variant.StringName(name), Owner: sig.Owner}), nil
	case variant.TypeArray:
		return m.arrayFromNative(src)
	case variant.TypeDictionary:
		return m.dictionaryFromNative(src)
	case variant.TypePackedByteArray:
		return packedFromNative[byte](m, src), nil
	case variant.TypePackedInt32Array:
		return packedFromNative[int32](m, src), nil
	case variant.TypePackedInt64Array:
		return packedFromNative[int64](m, src), nil
	case variant.TypePackedFloat32Array:
		return packedFromNative[float32](m, src), nil
	case variant.TypePackedFloat64Array:
		return packedFromNative[float64](m, src), nil
	case variant.TypePackedVector2Array:
		return packedFromNative[variant.Vector2](m, src), nil
	case variant.TypePackedVector3Array:
		return packedFromNative[variant.Vector3](m, src), nil
	case variant.TypePackedColorArray:
		return packedFromNative[variant.Color](m, src), nil
	case variant.TypePackedVector4Array:
		return packedFromNative[variant.Vector4](m, src), nil
	case variant.TypePackedStringArray:
		return m.stringsFromNative(src), nil
	}
	return variant.Variant{}, errors.InvalidData(errors.PhaseDecode, nil,
		"unknown variant tag "+strconv.FormatUint(uint64(t), 10))
}

func toValue[T any](m *Marshaller, src *abi.Variant) variant.Variant {
	var out T
	m.iface.VariantToType(src.Type, unsafe.Pointer(&out), src)
	return variant.MustFrom(out)
}

func packedFromNative[T any](m *Marshaller, src *abi.Variant) variant.Variant {
	var p abi.PackedArray
	m.iface.VariantToType(src.Type, unsafe.Pointer(&p), src)
	defer m.iface.PackedArrayDestroy(src.Type, &p)

	n := m.iface.PackedArraySize(src.Type, &p)
	out := make([]T, n)
	copy(out, abi.Slice[T](m.iface.PackedArrayData(src.Type, &p), n))
	return variant.MustFrom(out)
}

func (m *Marshaller) stringsFromNative(src *abi.Variant) variant.Variant {
	var p abi.PackedArray
	m.iface.VariantToType(src.Type, unsafe.Pointer(&p), src)
	defer m.iface.PackedArrayDestroy(src.Type, &p)

	n := m.iface.PackedArraySize(src.Type, &p)
	strs := abi.Slice[abi.String](m.iface.PackedArrayData(src.Type, &p), n)
	out := make([]string, len(strs))
	for i := range strs {
		out[i] = m.iface.StringToUTF8(&strs[i])
	}
	return variant.MustFrom(out)
}

func (m *Marshaller) arrayFromNative(src *abi.Variant) (variant.Variant, error) {
	var arr abi.Array
	m.iface.VariantToType(variant.TypeArray, unsafe.Pointer(&arr), src)
	defer m.iface.ArrayDestroy(&arr)

	n := m.iface.ArraySize(&arr)
	out := variant.NewArray()
	for i := int64(0); i < n; i++ {
		var elem abi.Variant
		m.iface.ArrayGet(&arr, i, &elem)
		v, err := m.FromNative(&elem)
		m.Destroy(&elem)
		if err != nil {
			return variant.Variant{}, indexed(err, int(i))
		}
		out.Append(v)
	}
	return variant.FromArray(out), nil
}

func (m *Marshaller) dictionaryFromNative(src *abi.Variant) (variant.Variant, error) {
	var dict abi.Dictionary
	m.iface.VariantToType(variant.TypeDictionary, unsafe.Pointer(&dict), src)
	defer m.iface.DictionaryDestroy(&dict)

	n := m.iface.DictionarySize(&dict)
	out := variant.NewDictionary()
	for i := int64(0); i < n; i++ {
		var k, v abi.Variant
		m.iface.DictionaryEntry(&dict, i, &k, &v)
		key, kerr := m.FromNative(&k)
		value, verr := m.FromNative(&v)
		m.Destroy(&k)
		m.Destroy(&v)
		if kerr != nil {
			return variant.Variant{}, indexed(kerr, int(i))
		}
		if verr != nil {
			return variant.Variant{}, indexed(verr, int(i))
		}
		out.Set(key, value)
	}
	return variant.FromDictionary(out), nil
}

// indexed prefixes err's path with an element index.
func indexed(err error, i int) error {
	e, ok := err.(*errors.Error)
	if !ok {
		return err
	}
	e.Path = append([]string{"[" + strconv.Itoa(i) + "]"}, e.Path...)
	return e
}
