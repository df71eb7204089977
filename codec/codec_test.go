package codec

import (
	"math"
	"reflect"
	"testing"
	"unsafe"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/host/hosttest"
	"github.com/wippyai/gdext/variant"
)

func newMarshaller(t *testing.T) (*Marshaller, *hosttest.Host) {
	t.Helper()
	h := hosttest.New()
	iface, err := abi.LoadInterface(h.GetProcAddress)
	if err != nil {
		t.Fatalf("LoadInterface: %v", err)
	}
	return NewMarshaller(iface), h
}

func checkClean(t *testing.T, h *hosttest.Host) {
	t.Helper()
	if n := h.LiveHandles(); n != 0 {
		t.Errorf("live handles = %d, want 0 (strings: %v)", n, h.LiveStrings())
	}
	for _, e := range h.Errors() {
		t.Errorf("host error: %s", e)
	}
}

func TestMarshaller_RoundTrip(t *testing.T) {
	nested := variant.NewDictionary()
	nested.Set(variant.String("hp"), variant.Int(10))
	nested.Set(variant.Int(3), variant.FromArray(variant.NewArray(variant.String("x"), variant.Float(1.5))))

	tests := []struct {
		name string
		v    variant.Variant
	}{
		{"nil", variant.Nil()},
		{"bool", variant.Bool(true)},
		{"int", variant.Int(-42)},
		{"float", variant.Float(math.Pi)},
		{"string", variant.String("héllo")},
		{"empty string", variant.String("")},
		{"string name", variant.Name("ready")},
		{"node path", variant.Path("Root/Child")},
		{"rid", variant.MustFrom(variant.RID(77))},
		{"vector2", variant.MustFrom(variant.Vector2{X: 1, Y: 2})},
		{"vector3i", variant.MustFrom(variant.Vector3i{X: 1, Y: -2, Z: 3})},
		{"rect2", variant.MustFrom(variant.Rect2{Size: variant.Vector2{X: 4, Y: 5}})},
		{"color", variant.MustFrom(variant.Color{R: 1, A: 0.5})},
		{"plane", variant.MustFrom(variant.Plane{Normal: variant.Vector3{Y: 1}, D: 2})},
		{"transform2d", variant.MustFrom(variant.Transform2D{X: variant.Vector2{X: 1}, Y: variant.Vector2{Y: 1}, Origin: variant.Vector2{X: 9}})},
		{"basis", variant.MustFrom(variant.Basis{X: variant.Vector3{X: 1}, Z: variant.Vector3{Z: 1}})},
		{"transform3d", variant.MustFrom(variant.Transform3D{Origin: variant.Vector3{X: 1, Y: 2, Z: 3}})},
		{"projection", variant.MustFrom(variant.Projection{W: variant.Vector4{W: 1}})},
		{"aabb", variant.MustFrom(variant.AABB{Size: variant.Vector3{X: 1, Y: 1, Z: 1}})},
		{"signal", variant.FromSignal(variant.Signal{Name: "changed", Owner: 1001})},
		{"array", variant.FromArray(variant.NewArray(variant.Int(1), variant.String("two"), variant.Nil()))},
		{"empty array", variant.FromArray(nil)},
		{"dictionary", variant.FromDictionary(nested)},
		{"packed bytes", variant.MustFrom([]byte{1, 2, 3})},
		{"packed int32", variant.MustFrom([]int32{-1, 0, 1})},
		{"packed float64", variant.MustFrom([]float64{0.25, 4})},
		{"packed strings", variant.MustFrom([]string{"a", "", "ç"})},
		{"packed vector3", variant.MustFrom([]variant.Vector3{{X: 1}, {Y: 2}})},
		{"packed colors", variant.MustFrom([]variant.Color{{R: 1}})},
		{"empty packed", variant.MustFrom([]int64{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, h := newMarshaller(t)

			var native abi.Variant
			if err := m.ToNative(tt.v, &native); err != nil {
				t.Fatalf("ToNative: %v", err)
			}
			if native.Type != tt.v.Type() {
				t.Fatalf("native type = %s, want %s", native.Type, tt.v.Type())
			}

			got, err := m.FromNative(&native)
			if err != nil {
				t.Fatalf("FromNative: %v", err)
			}
			m.Destroy(&native)

			if !variant.Equal(got, tt.v) {
				t.Errorf("round trip = %v, want %v", got, tt.v)
			}
			if native.Type != variant.TypeNil {
				t.Errorf("Destroy left type %s", native.Type)
			}
			checkClean(t, h)
		})
	}
}

func TestMarshaller_Object(t *testing.T) {
	m, h := newMarshaller(t)
	ptr := h.NewObject("Node")
	obj, _ := h.Object(ptr)

	var native abi.Variant
	if err := m.ToNative(variant.FromObject(variant.Object{Ptr: ptr, ID: obj.ID}), &native); err != nil {
		t.Fatal(err)
	}
	got, err := m.FromNative(&native)
	if err != nil {
		t.Fatal(err)
	}
	o, _ := variant.As[variant.Object](got)
	if o.Ptr != ptr || o.ID != obj.ID {
		t.Errorf("object = %+v, want ptr %#x id %d", o, ptr, obj.ID)
	}

	// A null object carries no id.
	native.SetObject(0, 55)
	got, _ = m.FromNative(&native)
	if o, _ := variant.As[variant.Object](got); !o.IsNil() || o.ID != 0 {
		t.Errorf("null object = %+v", o)
	}

	h.Destroy(ptr)
	checkClean(t, h)
}

func TestMarshaller_CallableIsBorrowed(t *testing.T) {
	m, h := newMarshaller(t)

	var c abi.Callable
	freed := false
	iface, _ := abi.LoadInterface(h.GetProcAddress)
	iface.CallableCustomCreate(&c, &abi.CallableCustomInfo{
		Userdata: 1,
		Token:    h.Library(),
		Free:     func(uintptr) { freed = true },
	})

	src := h.CallableVariant(c)
	got, err := m.FromNative(&src)
	if err != nil {
		t.Fatal(err)
	}
	cb, _ := variant.As[variant.Callable](got)
	if cb.Native != c {
		t.Errorf("callable = %v, want %v", cb.Native, c)
	}

	// Encoding takes its own reference.
	var copyOut abi.Variant
	if err := m.ToNative(got, &copyOut); err != nil {
		t.Fatal(err)
	}
	m.Destroy(&src)
	iface.CallableDestroy(&c)
	if freed {
		t.Fatal("callable freed while an encoded copy is live")
	}
	m.Destroy(&copyOut)
	if !freed {
		t.Error("callable not freed after the last reference")
	}
	checkClean(t, h)
}

func TestMarshaller_UnknownTag(t *testing.T) {
	m, h := newMarshaller(t)
	bad := abi.Variant{Type: abi.TypeMax + 3}
	if _, err := m.FromNative(&bad); errors.KindOf(err) != errors.KindInvalidData {
		t.Errorf("err = %v, want invalid data", err)
	}
	checkClean(t, h)
}

func TestPtr_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		t    variant.Type
		v    variant.Variant
	}{
		{"bool", variant.TypeBool, variant.Bool(true)},
		{"int", variant.TypeInt, variant.Int(math.MinInt64)},
		{"float", variant.TypeFloat, variant.Float(-0.5)},
		{"vector2", variant.TypeVector2, variant.MustFrom(variant.Vector2{X: 3, Y: 4})},
		{"vector3", variant.TypeVector3, variant.MustFrom(variant.Vector3{X: 1, Y: 2, Z: 3})},
		{"color", variant.TypeColor, variant.MustFrom(variant.Color{R: 0.1, G: 0.2, B: 0.3, A: 1})},
		{"rid", variant.TypeRID, variant.MustFrom(variant.RID(9))},
		{"transform3d", variant.TypeTransform3D, variant.MustFrom(variant.Transform3D{Origin: variant.Vector3{Z: 7}})},
		{"projection", variant.TypeProjection, variant.MustFrom(variant.Projection{X: variant.Vector4{X: 1}})},
		{"variant", variant.TypeNil, variant.Int(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, h := newMarshaller(t)
			var slot [8]uint64
			p := unsafe.Pointer(&slot)

			if err := m.WritePtr(tt.t, p, tt.v); err != nil {
				t.Fatalf("WritePtr: %v", err)
			}
			got, err := m.ReadPtr(tt.t, p)
			if err != nil {
				t.Fatalf("ReadPtr: %v", err)
			}
			if !variant.Equal(got, tt.v) {
				t.Errorf("ptr round trip = %v, want %v", got, tt.v)
			}
			checkClean(t, h)
		})
	}
}

func TestPtr_String(t *testing.T) {
	m, h := newMarshaller(t)
	var s abi.String
	if err := m.WritePtr(variant.TypeString, unsafe.Pointer(&s), variant.String("slot")); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadPtr(variant.TypeString, unsafe.Pointer(&s))
	if err != nil {
		t.Fatal(err)
	}
	if got.Interface() != "slot" {
		t.Errorf("got %v", got)
	}
	m.iface.StringDestroy(&s)
	checkClean(t, h)
}

func TestPtr_Object(t *testing.T) {
	m, h := newMarshaller(t)
	ptr := h.NewObject("Node")
	obj, _ := h.Object(ptr)

	var slot abi.ObjectPtr
	if err := m.WritePtr(variant.TypeObject, unsafe.Pointer(&slot), variant.FromObject(variant.Object{Ptr: ptr, ID: obj.ID})); err != nil {
		t.Fatal(err)
	}
	got, _ := m.ReadPtr(variant.TypeObject, unsafe.Pointer(&slot))
	if o, _ := variant.As[variant.Object](got); o.ID != obj.ID {
		t.Errorf("id = %d, want %d", o.ID, obj.ID)
	}

	// Nil writes a null object.
	if err := m.WritePtr(variant.TypeObject, unsafe.Pointer(&slot), variant.Nil()); err != nil || slot != 0 {
		t.Errorf("nil object slot = %#x, err %v", slot, err)
	}
	h.Destroy(ptr)
}

func TestPtr_TypeMismatch(t *testing.T) {
	m, _ := newMarshaller(t)
	var slot int64
	err := m.WritePtr(variant.TypeInt, unsafe.Pointer(&slot), variant.String("no"))
	if errors.KindOf(err) != errors.KindTypeMismatch {
		t.Errorf("err = %v, want type mismatch", err)
	}
}

func TestCleanup(t *testing.T) {
	m, h := newMarshaller(t)
	cl := NewCleanup()

	for _, s := range []string{"a", "b", "c"} {
		var str abi.String
		m.iface.StringNew(&str, s)
		cl.AddString(str)
	}
	var sn abi.StringName
	m.iface.StringNameNew(&sn, "name")
	cl.AddStringName(sn)

	var v abi.Variant
	_ = m.ToNative(variant.FromArray(variant.NewArray(variant.String("in array"))), &v)
	cl.AddVariant(v)
	cl.AddVariant(abi.Variant{Type: abi.TypeInt})

	if cl.Count() != 5 {
		t.Errorf("Count = %d, want 5 (inline variants are skipped)", cl.Count())
	}
	cl.FreeAndRelease(m.iface)
	checkClean(t, h)
}

type speed int

type label string

type fakeShadow struct{ ptr abi.ObjectPtr }

type fakeResolver struct{ shadows map[abi.ObjectPtr]*fakeShadow }

func (f fakeResolver) Resolve(ptr abi.ObjectPtr) (any, error) {
	if s, ok := f.shadows[ptr]; ok {
		return s, nil
	}
	return nil, errors.UnknownClass("Mystery")
}

func (f fakeResolver) Identity(v any) (abi.ObjectPtr, abi.ObjectID, bool) {
	s, ok := v.(*fakeShadow)
	if !ok {
		return 0, 0, false
	}
	return s.ptr, abi.ObjectID(s.ptr) + 1, true
}

func TestRegistry_Integers(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		typ  reflect.Type
		in   variant.Variant
		want any
		kind errors.Kind
	}{
		{"int32 exact", reflect.TypeFor[int32](), variant.Int(-7), int32(-7), ""},
		{"int32 overflow", reflect.TypeFor[int32](), variant.Int(math.MaxInt64), nil, errors.KindOverflow},
		{"int8 overflow", reflect.TypeFor[int8](), variant.Int(128), nil, errors.KindOverflow},
		{"uint8 negative", reflect.TypeFor[uint8](), variant.Int(-1), nil, errors.KindOverflow},
		{"uint32 max", reflect.TypeFor[uint32](), variant.Int(math.MaxUint32), uint32(math.MaxUint32), ""},
		{"uint64 bit cast", reflect.TypeFor[uint64](), variant.Int(-1), uint64(math.MaxUint64), ""},
		{"enum", reflect.TypeFor[speed](), variant.Int(2), speed(2), ""},
		{"nil is zero", reflect.TypeFor[int16](), variant.Nil(), int16(0), ""},
		{"float to int", reflect.TypeFor[int](), variant.Float(1), nil, errors.KindTypeMismatch},
		{"int to float", reflect.TypeFor[float64](), variant.Int(3), float64(3), ""},
		{"float32 overflow", reflect.TypeFor[float32](), variant.Float(1e39), nil, errors.KindOverflow},
		{"float32 inf", reflect.TypeFor[float32](), variant.Float(math.Inf(1)), float32(math.Inf(1)), ""},
		{"string name to string", reflect.TypeFor[string](), variant.Name("n"), "n", ""},
		{"named string", reflect.TypeFor[label](), variant.String("L"), label("L"), ""},
		{"bool mismatch", reflect.TypeFor[bool](), variant.Int(1), nil, errors.KindTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.DecodeValue(tt.in, tt.typ)
			if tt.kind != "" {
				if errors.KindOf(err) != tt.kind {
					t.Fatalf("err = %v, want %s", err, tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeValue: %v", err)
			}
			if got.Interface() != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got.Interface(), got.Interface(), tt.want, tt.want)
			}
		})
	}
}

func TestRegistry_EnumWidensToInt(t *testing.T) {
	r := NewRegistry()
	c, err := For[speed](r)
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.Encode(speed(3))
	if err != nil {
		t.Fatal(err)
	}
	if v.Type() != variant.TypeInt || v.Interface() != int64(3) {
		t.Errorf("encoded = %v (%s)", v, v.Type())
	}
	if c.Dynamic().Metadata != abi.MetadataIntIsInt64 {
		t.Errorf("metadata = %d", c.Dynamic().Metadata)
	}
}

func TestRegistry_Metadata(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		typ  reflect.Type
		want abi.ArgumentMetadata
	}{
		{reflect.TypeFor[int8](), abi.MetadataIntIsInt8},
		{reflect.TypeFor[uint16](), abi.MetadataIntIsUint16},
		{reflect.TypeFor[float32](), abi.MetadataRealIsFloat},
		{reflect.TypeFor[float64](), abi.MetadataRealIsDouble},
		{reflect.TypeFor[string](), abi.MetadataNone},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			d, err := r.Lookup(tt.typ)
			if err != nil {
				t.Fatal(err)
			}
			if d.Metadata != tt.want {
				t.Errorf("metadata = %d, want %d", d.Metadata, tt.want)
			}
		})
	}
}

func TestRegistry_NilDecodesEmpty(t *testing.T) {
	r := NewRegistry()

	ints, err := Decode[[]int](r, variant.Nil())
	if err != nil || ints == nil || len(ints) != 0 {
		t.Errorf("[]int = %#v, %v", ints, err)
	}
	m, err := Decode[map[string]int](r, variant.Nil())
	if err != nil || m == nil {
		t.Errorf("map = %#v, %v", m, err)
	}
	arr, err := Decode[*variant.Array](r, variant.Nil())
	if err != nil || arr == nil || arr.Len() != 0 {
		t.Errorf("array = %v, %v", arr, err)
	}
	packed, err := Decode[[]byte](r, variant.Nil())
	if err != nil || packed == nil {
		t.Errorf("packed = %#v, %v", packed, err)
	}
	v, err := Decode[variant.Vector3](r, variant.Nil())
	if err != nil || v != (variant.Vector3{}) {
		t.Errorf("vector = %v, %v", v, err)
	}
}

func TestRegistry_Containers(t *testing.T) {
	r := NewRegistry()

	v, err := Encode(r, []int16{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if v.Type() != variant.TypeArray {
		t.Fatalf("[]int16 encodes as %s", v.Type())
	}
	back, err := Decode[[]int16](r, v)
	if err != nil || !reflect.DeepEqual(back, []int16{1, 2, 3}) {
		t.Errorf("back = %v, %v", back, err)
	}

	// An element failure names its index.
	arr := variant.FromArray(variant.NewArray(variant.Int(1), variant.Int(1<<20)))
	_, err = Decode[[]int16](r, arr)
	e, ok := err.(*errors.Error)
	if !ok || e.Kind != errors.KindOverflow || len(e.Path) == 0 || e.Path[0] != "[1]" {
		t.Errorf("err = %v", err)
	}

	mv, err := Encode(r, map[string]float64{"a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	mback, err := Decode[map[string]float64](r, mv)
	if err != nil || mback["a"] != 1 || mback["b"] != 2 || len(mback) != 2 {
		t.Errorf("map back = %v, %v", mback, err)
	}

	// Packed types keep their packed encoding.
	pv, _ := Encode(r, []float32{1})
	if pv.Type() != variant.TypePackedFloat32Array {
		t.Errorf("[]float32 encodes as %s", pv.Type())
	}
}

func TestRegistry_Objects(t *testing.T) {
	r := NewRegistry()
	shadow := &fakeShadow{ptr: 0x100}

	if _, err := r.Lookup(reflect.TypeFor[*fakeShadow]()); errors.KindOf(err) != errors.KindUnsupported {
		t.Fatalf("object codec without resolver: err = %v", err)
	}

	r.SetObjectResolver(fakeResolver{shadows: map[abi.ObjectPtr]*fakeShadow{0x100: shadow}})

	v, err := Encode(r, shadow)
	if err != nil {
		t.Fatal(err)
	}
	o, _ := variant.As[variant.Object](v)
	if o.Ptr != 0x100 || o.ID != 0x101 {
		t.Errorf("encoded object = %+v", o)
	}

	back, err := Decode[*fakeShadow](r, v)
	if err != nil || back != shadow {
		t.Errorf("decoded = %v, %v", back, err)
	}

	var nilShadow *fakeShadow
	nv, err := Encode(r, nilShadow)
	if err != nil {
		t.Fatal(err)
	}
	if o, _ := variant.As[variant.Object](nv); !o.IsNil() {
		t.Errorf("nil shadow encoded as %+v", o)
	}

	unknown := variant.FromObject(variant.Object{Ptr: 0x200, ID: 1})
	if _, err := Decode[*fakeShadow](r, unknown); errors.KindOf(err) != errors.KindUnknownClass {
		t.Errorf("unknown object: err = %v", err)
	}

	// Interfaces decode through the same resolver.
	asAny, err := Decode[any](r, v)
	if err != nil || asAny != shadow {
		t.Errorf("any = %v, %v", asAny, err)
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewRegistry()
	for _, typ := range []reflect.Type{
		reflect.TypeFor[struct{ A int }](),
		reflect.TypeFor[chan int](),
		reflect.TypeFor[[]struct{}](),
	} {
		if _, err := r.Lookup(typ); errors.KindOf(err) != errors.KindUnsupported {
			t.Errorf("%s: err = %v, want unsupported", typ, err)
		}
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	type celsius float64
	custom := &Dynamic{
		GoType: reflect.TypeFor[celsius](),
		Type:   variant.TypeString,
		Encode: func(rv reflect.Value) (variant.Variant, error) {
			return variant.String("warm"), nil
		},
		Decode: func(v variant.Variant) (reflect.Value, error) {
			return reflect.ValueOf(celsius(21)), nil
		},
	}
	r.Register(custom)
	v, _ := Encode(r, celsius(0))
	if v.Interface() != "warm" {
		t.Errorf("custom codec not used: %v", v)
	}
	if !custom.NeedsCleanup() {
		t.Error("String codec must need cleanup")
	}
	iv, _ := r.Lookup(reflect.TypeFor[int]())
	if iv.NeedsCleanup() {
		t.Error("int codec must not need cleanup")
	}
}
