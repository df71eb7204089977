package codec

import (
	"math"
	"reflect"
	"sync"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/variant"
)

// ObjectResolver maps native object identities to Go values. The object
// bridge implements it.
type ObjectResolver interface {
	// Resolve returns the shadow for ptr, creating one if the class has a
	// registered wrapper.
	Resolve(ptr abi.ObjectPtr) (any, error)
	// Identity returns the native identity of a shadow. ok is false when v
	// is not a shadow.
	Identity(v any) (ptr abi.ObjectPtr, id abi.ObjectID, ok bool)
}

// Dynamic converts one Go type to and from variants.
type Dynamic struct {
	GoType reflect.Type
	// Type is the declared variant type. TypeNil accepts any variant.
	Type      variant.Type
	Metadata  abi.ArgumentMetadata
	ClassName string

	Encode func(rv reflect.Value) (variant.Variant, error)
	Decode func(v variant.Variant) (reflect.Value, error)
}

// NeedsCleanup reports whether encoded values hold native resources.
func (d *Dynamic) NeedsCleanup() bool {
	return d.Type == variant.TypeNil || NeedsDestroy(d.Type)
}

// Registry resolves codecs by Go type. Compiled codecs are cached.
type Registry struct {
	cache   sync.Map // reflect.Type -> *Dynamic
	mu      sync.RWMutex
	objects ObjectResolver
}

// NewRegistry creates a registry holding the built-in codecs.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs a codec, replacing any cached one for its Go type.
func (r *Registry) Register(d *Dynamic) {
	r.cache.Store(d.GoType, d)
}

// SetObjectResolver enables codecs for pointer and interface types that
// denote object shadows.
func (r *Registry) SetObjectResolver(res ObjectResolver) {
	r.mu.Lock()
	r.objects = res
	r.mu.Unlock()
}

func (r *Registry) resolver() ObjectResolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.objects
}

// Lookup returns the codec for t.
func (r *Registry) Lookup(t reflect.Type) (*Dynamic, error) {
	if t == nil {
		return nil, errors.Unsupported(errors.PhaseRegister, "nil type")
	}
	if d, ok := r.cache.Load(t); ok {
		return d.(*Dynamic), nil
	}
	d, err := r.compile(t)
	if err != nil {
		return nil, err
	}
	actual, _ := r.cache.LoadOrStore(t, d)
	return actual.(*Dynamic), nil
}

// EncodeValue encodes rv with the codec for its type.
func (r *Registry) EncodeValue(rv reflect.Value) (variant.Variant, error) {
	if !rv.IsValid() {
		return variant.Nil(), nil
	}
	d, err := r.Lookup(rv.Type())
	if err != nil {
		return variant.Variant{}, err
	}
	return d.Encode(rv)
}

// DecodeValue decodes v into a value of type t.
func (r *Registry) DecodeValue(v variant.Variant, t reflect.Type) (reflect.Value, error) {
	d, err := r.Lookup(t)
	if err != nil {
		return reflect.Value{}, err
	}
	return d.Decode(v)
}

// Codec is a typed view of a Dynamic.
type Codec[T any] struct {
	d *Dynamic
}

// For returns the codec for T.
func For[T any](r *Registry) (Codec[T], error) {
	d, err := r.Lookup(reflect.TypeFor[T]())
	if err != nil {
		return Codec[T]{}, err
	}
	return Codec[T]{d: d}, nil
}

// Dynamic returns the untyped codec.
func (c Codec[T]) Dynamic() *Dynamic { return c.d }

// Encode converts v to a variant.
func (c Codec[T]) Encode(v T) (variant.Variant, error) {
	return c.d.Encode(reflect.ValueOf(&v).Elem())
}

// Decode converts v to a T.
func (c Codec[T]) Decode(v variant.Variant) (T, error) {
	var out T
	rv, err := c.d.Decode(v)
	if err != nil {
		return out, err
	}
	reflect.ValueOf(&out).Elem().Set(rv)
	return out, nil
}

// Encode converts v with the registry's codec for T.
func Encode[T any](r *Registry, v T) (variant.Variant, error) {
	c, err := For[T](r)
	if err != nil {
		return variant.Variant{}, err
	}
	return c.Encode(v)
}

// Decode converts v with the registry's codec for T.
func Decode[T any](r *Registry, v variant.Variant) (T, error) {
	c, err := For[T](r)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Decode(v)
}

var (
	variantType    = reflect.TypeFor[variant.Variant]()
	variantSlice   = reflect.TypeFor[[]variant.Variant]()
	arrayType      = reflect.TypeFor[*variant.Array]()
	dictionaryType = reflect.TypeFor[*variant.Dictionary]()
	exactVariantOf = map[reflect.Type]variant.Type{
		reflect.TypeFor[variant.StringName]():  variant.TypeStringName,
		reflect.TypeFor[variant.NodePath]():    variant.TypeNodePath,
		reflect.TypeFor[variant.RID]():         variant.TypeRID,
		reflect.TypeFor[variant.Object]():      variant.TypeObject,
		reflect.TypeFor[variant.Callable]():    variant.TypeCallable,
		reflect.TypeFor[variant.Signal]():      variant.TypeSignal,
		reflect.TypeFor[*variant.Array]():      variant.TypeArray,
		reflect.TypeFor[*variant.Dictionary](): variant.TypeDictionary,
		reflect.TypeFor[variant.Vector2]():     variant.TypeVector2,
		reflect.TypeFor[variant.Vector2i]():    variant.TypeVector2I,
		reflect.TypeFor[variant.Rect2]():       variant.TypeRect2,
		reflect.TypeFor[variant.Rect2i]():      variant.TypeRect2I,
		reflect.TypeFor[variant.Vector3]():     variant.TypeVector3,
		reflect.TypeFor[variant.Vector3i]():    variant.TypeVector3I,
		reflect.TypeFor[variant.Transform2D](): variant.TypeTransform2D,
		reflect.TypeFor[variant.Vector4]():     variant.TypeVector4,
		reflect.TypeFor[variant.Vector4i]():    variant.TypeVector4I,
		reflect.TypeFor[variant.Plane]():       variant.TypePlane,
		reflect.TypeFor[variant.Quaternion]():  variant.TypeQuaternion,
		reflect.TypeFor[variant.AABB]():        variant.TypeAABB,
		reflect.TypeFor[variant.Basis]():       variant.TypeBasis,
		reflect.TypeFor[variant.Transform3D](): variant.TypeTransform3D,
		reflect.TypeFor[variant.Projection]():  variant.TypeProjection,
		reflect.TypeFor[variant.Color]():       variant.TypeColor,
		reflect.TypeFor[[]byte]():              variant.TypePackedByteArray,
		reflect.TypeFor[[]int32]():             variant.TypePackedInt32Array,
		reflect.TypeFor[[]int64]():             variant.TypePackedInt64Array,
		reflect.TypeFor[[]float32]():           variant.TypePackedFloat32Array,
		reflect.TypeFor[[]float64]():           variant.TypePackedFloat64Array,
		reflect.TypeFor[[]string]():            variant.TypePackedStringArray,
		reflect.TypeFor[[]variant.Vector2]():   variant.TypePackedVector2Array,
		reflect.TypeFor[[]variant.Vector3]():   variant.TypePackedVector3Array,
		reflect.TypeFor[[]variant.Color]():     variant.TypePackedColorArray,
		reflect.TypeFor[[]variant.Vector4]():   variant.TypePackedVector4Array,
	}
)

func (r *Registry) compile(t reflect.Type) (*Dynamic, error) {
	if t == variantType {
		return passthrough(), nil
	}
	if vt, ok := exactVariantOf[t]; ok {
		return exact(t, vt), nil
	}
	if t == variantSlice {
		return r.sliceCodec(t)
	}

	switch t.Kind() {
	case reflect.Bool:
		return boolCodec(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return intCodec(t), nil
	case reflect.Float32, reflect.Float64:
		return floatCodec(t), nil
	case reflect.String:
		return stringCodec(t), nil
	case reflect.Slice:
		return r.sliceCodec(t)
	case reflect.Map:
		return r.mapCodec(t)
	case reflect.Pointer, reflect.Interface:
		if r.resolver() != nil {
			return r.objectCodec(t), nil
		}
	}
	return nil, errors.New(errors.PhaseRegister, errors.KindUnsupported).
		GoType(t.String()).
		Detail("no codec for type").
		Build()
}

func mismatch(phase errors.Phase, t reflect.Type, v variant.Variant) error {
	return errors.TypeMismatch(phase, nil, t.String(), v.Type().String())
}

func passthrough() *Dynamic {
	return &Dynamic{
		GoType: variantType,
		Type:   variant.TypeNil,
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			return rv.Interface().(variant.Variant), nil
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			return reflect.ValueOf(v), nil
		},
	}
}

// exact handles types that are variant payloads as they are.
func exact(t reflect.Type, vt variant.Type) *Dynamic {
	return &Dynamic{
		GoType: t,
		Type:   vt,
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			return variant.From(rv.Interface())
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			switch {
			case v.Type() == vt:
				return reflect.ValueOf(v.Interface()), nil
			case v.IsNil():
				return emptyValue(t), nil
			}
			return reflect.Value{}, mismatch(errors.PhaseDecode, t, v)
		},
	}
}

// emptyValue is the decoded form of nil: empty containers for reference
// types and the zero value otherwise.
func emptyValue(t reflect.Type) reflect.Value {
	switch {
	case t == arrayType:
		return reflect.ValueOf(variant.NewArray())
	case t == dictionaryType:
		return reflect.ValueOf(variant.NewDictionary())
	case t.Kind() == reflect.Slice:
		return reflect.MakeSlice(t, 0, 0)
	}
	return reflect.New(t).Elem()
}

func boolCodec(t reflect.Type) *Dynamic {
	return &Dynamic{
		GoType: t,
		Type:   variant.TypeBool,
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			return variant.Bool(rv.Bool()), nil
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			out := reflect.New(t).Elem()
			switch v.Type() {
			case variant.TypeNil:
			case variant.TypeBool:
				out.SetBool(v.Interface().(bool))
			default:
				return reflect.Value{}, mismatch(errors.PhaseDecode, t, v)
			}
			return out, nil
		},
	}
}

var intMetadata = map[reflect.Kind]abi.ArgumentMetadata{
	reflect.Int8:   abi.MetadataIntIsInt8,
	reflect.Int16:  abi.MetadataIntIsInt16,
	reflect.Int32:  abi.MetadataIntIsInt32,
	reflect.Int64:  abi.MetadataIntIsInt64,
	reflect.Int:    abi.MetadataIntIsInt64,
	reflect.Uint8:  abi.MetadataIntIsUint8,
	reflect.Uint16: abi.MetadataIntIsUint16,
	reflect.Uint32: abi.MetadataIntIsUint32,
	reflect.Uint64: abi.MetadataIntIsUint64,
	reflect.Uint:   abi.MetadataIntIsUint64,
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

// intCodec covers every integer kind, including named enum types. Values
// always travel as a 64-bit int variant.
func intCodec(t reflect.Type) *Dynamic {
	unsigned := isUnsigned(t.Kind())
	return &Dynamic{
		GoType:   t,
		Type:     variant.TypeInt,
		Metadata: intMetadata[t.Kind()],
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			if unsigned {
				return variant.Int(int64(rv.Uint())), nil
			}
			return variant.Int(rv.Int()), nil
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			out := reflect.New(t).Elem()
			switch v.Type() {
			case variant.TypeNil:
				return out, nil
			case variant.TypeInt:
			default:
				return reflect.Value{}, mismatch(errors.PhaseDecode, t, v)
			}
			i := v.Interface().(int64)
			switch {
			case !unsigned:
				if out.OverflowInt(i) {
					return reflect.Value{}, errors.Overflow(errors.PhaseDecode, nil, i, t.String())
				}
				out.SetInt(i)
			case t.Size() == 8:
				out.SetUint(uint64(i))
			default:
				if i < 0 || out.OverflowUint(uint64(i)) {
					return reflect.Value{}, errors.Overflow(errors.PhaseDecode, nil, i, t.String())
				}
				out.SetUint(uint64(i))
			}
			return out, nil
		},
	}
}

func floatCodec(t reflect.Type) *Dynamic {
	meta := abi.MetadataRealIsDouble
	if t.Kind() == reflect.Float32 {
		meta = abi.MetadataRealIsFloat
	}
	return &Dynamic{
		GoType:   t,
		Type:     variant.TypeFloat,
		Metadata: meta,
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			return variant.Float(rv.Float()), nil
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			out := reflect.New(t).Elem()
			var f float64
			switch v.Type() {
			case variant.TypeNil:
				return out, nil
			case variant.TypeFloat:
				f = v.Interface().(float64)
			case variant.TypeInt:
				f = float64(v.Interface().(int64))
			default:
				return reflect.Value{}, mismatch(errors.PhaseDecode, t, v)
			}
			if !math.IsInf(f, 0) && !math.IsNaN(f) && out.OverflowFloat(f) {
				return reflect.Value{}, errors.Overflow(errors.PhaseDecode, nil, f, t.String())
			}
			out.SetFloat(f)
			return out, nil
		},
	}
}

// stringCodec accepts String and StringName variants for any string kind.
func stringCodec(t reflect.Type) *Dynamic {
	return &Dynamic{
		GoType: t,
		Type:   variant.TypeString,
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			return variant.String(rv.String()), nil
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			out := reflect.New(t).Elem()
			switch v.Type() {
			case variant.TypeNil:
			case variant.TypeString:
				out.SetString(v.Interface().(string))
			case variant.TypeStringName:
				out.SetString(string(v.Interface().(variant.StringName)))
			default:
				return reflect.Value{}, mismatch(errors.PhaseDecode, t, v)
			}
			return out, nil
		},
	}
}

// sliceCodec maps Go slices without a packed representation to arrays.
func (r *Registry) sliceCodec(t reflect.Type) (*Dynamic, error) {
	elem, err := r.Lookup(t.Elem())
	if err != nil {
		return nil, err
	}
	return &Dynamic{
		GoType: t,
		Type:   variant.TypeArray,
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			arr := variant.NewArray()
			for i := 0; i < rv.Len(); i++ {
				v, err := elem.Encode(rv.Index(i))
				if err != nil {
					return variant.Variant{}, indexed(err, i)
				}
				arr.Append(v)
			}
			return variant.FromArray(arr), nil
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			switch v.Type() {
			case variant.TypeNil:
				return reflect.MakeSlice(t, 0, 0), nil
			case variant.TypeArray:
			default:
				return reflect.Value{}, mismatch(errors.PhaseDecode, t, v)
			}
			arr := v.Interface().(*variant.Array)
			out := reflect.MakeSlice(t, arr.Len(), arr.Len())
			for i := 0; i < arr.Len(); i++ {
				ev, err := elem.Decode(arr.At(i))
				if err != nil {
					return reflect.Value{}, indexed(err, i)
				}
				out.Index(i).Set(ev)
			}
			return out, nil
		},
	}, nil
}

// mapCodec maps Go maps to dictionaries. Native iteration order is kept on
// decode only in the sense that every entry is visited once.
func (r *Registry) mapCodec(t reflect.Type) (*Dynamic, error) {
	key, err := r.Lookup(t.Key())
	if err != nil {
		return nil, err
	}
	elem, err := r.Lookup(t.Elem())
	if err != nil {
		return nil, err
	}
	return &Dynamic{
		GoType: t,
		Type:   variant.TypeDictionary,
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			d := variant.NewDictionary()
			it := rv.MapRange()
			for it.Next() {
				k, err := key.Encode(it.Key())
				if err != nil {
					return variant.Variant{}, err
				}
				v, err := elem.Encode(it.Value())
				if err != nil {
					return variant.Variant{}, err
				}
				d.Set(k, v)
			}
			return variant.FromDictionary(d), nil
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			switch v.Type() {
			case variant.TypeNil:
				return reflect.MakeMap(t), nil
			case variant.TypeDictionary:
			default:
				return reflect.Value{}, mismatch(errors.PhaseDecode, t, v)
			}
			d := v.Interface().(*variant.Dictionary)
			out := reflect.MakeMapWithSize(t, d.Len())
			var derr error
			i := 0
			d.Each(func(kv, vv variant.Variant) bool {
				k, err := key.Decode(kv)
				if err != nil {
					derr = indexed(err, i)
					return false
				}
				e, err := elem.Decode(vv)
				if err != nil {
					derr = indexed(err, i)
					return false
				}
				out.SetMapIndex(k, e)
				i++
				return true
			})
			if derr != nil {
				return reflect.Value{}, derr
			}
			return out, nil
		},
	}, nil
}

// objectCodec maps shadow pointers and interfaces to object variants.
func (r *Registry) objectCodec(t reflect.Type) *Dynamic {
	return &Dynamic{
		GoType: t,
		Type:   variant.TypeObject,
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			if rv.IsNil() {
				return variant.FromObject(variant.Object{}), nil
			}
			ptr, id, ok := r.resolver().Identity(rv.Interface())
			if !ok {
				return variant.Variant{}, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
					GoType(rv.Type().String()).
					VariantType(variant.TypeObject.String()).
					Detail("value is not an object shadow").
					Build()
			}
			return variant.FromObject(variant.Object{Ptr: ptr, ID: id}), nil
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			switch v.Type() {
			case variant.TypeNil:
				return reflect.New(t).Elem(), nil
			case variant.TypeObject:
			default:
				return reflect.Value{}, mismatch(errors.PhaseDecode, t, v)
			}
			o := v.Interface().(variant.Object)
			if o.IsNil() {
				return reflect.New(t).Elem(), nil
			}
			shadow, err := r.resolver().Resolve(o.Ptr)
			if err != nil {
				return reflect.Value{}, err
			}
			sv := reflect.ValueOf(shadow)
			if !sv.IsValid() || !sv.Type().AssignableTo(t) {
				return reflect.Value{}, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
					GoType(t.String()).
					VariantType(variant.TypeObject.String()).
					Detail("object resolves to %T", shadow).
					Build()
			}
			out := reflect.New(t).Elem()
			out.Set(sv)
			return out, nil
		},
	}
}
