package hosttest

import (
	"fmt"
	"hash/fnv"
	"unsafe"

	"github.com/wippyai/gdext/abi"
)

type arrayCell struct {
	elems []abi.Variant
}

type dictCell struct {
	keys   []abi.Variant
	values []abi.Variant
}

type packedCell struct {
	data  []byte
	strs  []abi.String
	count int64
}

type signalCell struct {
	name  abi.StringName
	owner abi.ObjectID
}

// aggregateSize is the byte size of fixed-layout values stored out of line.
var aggregateSize = map[abi.VariantType]uintptr{
	abi.TypeTransform2D: 24,
	abi.TypeAABB:        24,
	abi.TypeBasis:       36,
	abi.TypeTransform3D: 48,
	abi.TypeProjection:  64,
}

var packedElemSize = map[abi.VariantType]uintptr{
	abi.TypePackedByteArray:    1,
	abi.TypePackedInt32Array:   4,
	abi.TypePackedInt64Array:   8,
	abi.TypePackedFloat32Array: 4,
	abi.TypePackedFloat64Array: 8,
	abi.TypePackedVector2Array: 8,
	abi.TypePackedVector3Array: 12,
	abi.TypePackedColorArray:   16,
	abi.TypePackedVector4Array: 16,
}

func (h *Host) text(ptr uintptr, kind abi.VariantType) string {
	c, ok := h.lookup(ptr, kind)
	if !ok {
		h.failf("%s handle %#x is not live", kind, ptr)
		return ""
	}
	return c.value.(string)
}

func (h *Host) stringNew(dst *abi.String, text string) {
	dst.Ptr = h.alloc(abi.TypeString, text)
}

// stringNameNew interns: equal text yields the same handle.
func (h *Host) stringNameNew(dst *abi.StringName, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ptr, ok := h.stringNames[text]; ok {
		h.cells[ptr].refs++
		dst.Ptr = ptr
		return
	}
	ptr := h.allocLocked(abi.TypeStringName, text)
	h.stringNames[text] = ptr
	dst.Ptr = ptr
}

func (h *Host) variantNewCopy(dst, src *abi.Variant) {
	*dst = *src
	if !src.Type.Inline() && src.Data[0] != 0 {
		h.retain(uintptr(src.Data[0]))
	}
}

func (h *Host) variantDestroy(v *abi.Variant) {
	if !v.Type.Inline() && v.Data[0] != 0 {
		h.release(uintptr(v.Data[0]))
	}
	*v = abi.Variant{}
}

func (h *Host) variantHash(v *abi.Variant) int64 {
	f := fnv.New64a()
	fmt.Fprintf(f, "%d:", v.Type)
	switch v.Type {
	case abi.TypeString:
		f.Write([]byte(h.text(v.Handle(), abi.TypeString)))
	case abi.TypeStringName:
		f.Write([]byte(h.text(v.Handle(), abi.TypeStringName)))
	default:
		fmt.Fprintf(f, "%x", v.Data)
	}
	return int64(f.Sum64())
}

func (h *Host) variantFromType(t abi.VariantType, dst *abi.Variant, src unsafe.Pointer) {
	*dst = abi.Variant{Type: t}
	switch {
	case t == abi.TypeString, t == abi.TypeStringName, t == abi.TypeNodePath,
		t == abi.TypeArray, t == abi.TypeDictionary, t.Packed():
		ptr := *(*uintptr)(src)
		h.retain(ptr)
		dst.Data[0] = uint64(ptr)
	case aggregateSize[t] != 0:
		buf := make([]byte, aggregateSize[t])
		copy(buf, unsafe.Slice((*byte)(src), len(buf)))
		dst.Data[0] = uint64(h.alloc(t, buf))
	case t == abi.TypeCallable:
		c := *(*abi.Callable)(src)
		if c.Data[0] != 0 {
			h.retain(uintptr(c.Data[0]))
		}
		dst.Data = c.Data
	case t == abi.TypeSignal:
		s := *(*abi.Signal)(src)
		if s.Name.Ptr != 0 {
			h.retain(s.Name.Ptr)
		}
		dst.Data[0] = uint64(h.alloc(t, &signalCell{name: s.Name, owner: s.Owner}))
	default:
		h.failf("variant_from_type called for inline type %s", t)
	}
}

func (h *Host) variantToType(t abi.VariantType, dst unsafe.Pointer, src *abi.Variant) {
	if src.Type != t {
		h.failf("variant_to_type(%s) on a %s variant", t, src.Type)
		return
	}
	switch {
	case t == abi.TypeString, t == abi.TypeStringName, t == abi.TypeNodePath,
		t == abi.TypeArray, t == abi.TypeDictionary, t.Packed():
		ptr := src.Handle()
		h.retain(ptr)
		*(*uintptr)(dst) = ptr
	case aggregateSize[t] != 0:
		c, ok := h.lookup(src.Handle(), t)
		if !ok {
			h.failf("%s payload %#x is not live", t, src.Handle())
			return
		}
		buf := c.value.([]byte)
		copy(unsafe.Slice((*byte)(dst), len(buf)), buf)
	case t == abi.TypeCallable:
		if src.Data[0] != 0 {
			h.retain(uintptr(src.Data[0]))
		}
		*(*abi.Callable)(dst) = abi.Callable{Data: src.Data}
	case t == abi.TypeSignal:
		c, ok := h.lookup(src.Handle(), t)
		if !ok {
			h.failf("signal payload %#x is not live", src.Handle())
			return
		}
		s := c.value.(*signalCell)
		if s.name.Ptr != 0 {
			h.retain(s.name.Ptr)
		}
		*(*abi.Signal)(dst) = abi.Signal{Name: s.name, Owner: s.owner}
	default:
		h.failf("variant_to_type called for inline type %s", t)
	}
}

func (h *Host) array(a *abi.Array) *arrayCell {
	c, ok := h.lookup(a.Ptr, abi.TypeArray)
	if !ok {
		h.failf("array %#x is not live", a.Ptr)
		return &arrayCell{}
	}
	return c.value.(*arrayCell)
}

func (h *Host) arraySize(a *abi.Array) int64 {
	return int64(len(h.array(a).elems))
}

func (h *Host) arrayGet(a *abi.Array, index int64, out *abi.Variant) {
	arr := h.array(a)
	if index < 0 || index >= int64(len(arr.elems)) {
		h.failf("array index %d out of range", index)
		*out = abi.Variant{}
		return
	}
	h.variantNewCopy(out, &arr.elems[index])
}

func (h *Host) arrayPushBack(a *abi.Array, value *abi.Variant) {
	var v abi.Variant
	h.variantNewCopy(&v, value)
	arr := h.array(a)
	h.mu.Lock()
	arr.elems = append(arr.elems, v)
	h.mu.Unlock()
}

func (h *Host) dict(d *abi.Dictionary) *dictCell {
	c, ok := h.lookup(d.Ptr, abi.TypeDictionary)
	if !ok {
		h.failf("dictionary %#x is not live", d.Ptr)
		return &dictCell{}
	}
	return c.value.(*dictCell)
}

func (h *Host) dictionarySize(d *abi.Dictionary) int64 {
	return int64(len(h.dict(d).keys))
}

// keyEqual compares keys by text for strings and by payload otherwise.
func (h *Host) keyEqual(a, b *abi.Variant) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case abi.TypeString, abi.TypeStringName, abi.TypeNodePath:
		return h.text(a.Handle(), a.Type) == h.text(b.Handle(), b.Type)
	}
	return a.Data == b.Data
}

func (h *Host) dictionarySet(d *abi.Dictionary, key, value *abi.Variant) {
	dc := h.dict(d)
	for i := range dc.keys {
		if h.keyEqual(&dc.keys[i], key) {
			old := dc.values[i]
			h.variantNewCopy(&dc.values[i], value)
			h.variantDestroy(&old)
			return
		}
	}
	var k, v abi.Variant
	h.variantNewCopy(&k, key)
	h.variantNewCopy(&v, value)
	h.mu.Lock()
	dc.keys = append(dc.keys, k)
	dc.values = append(dc.values, v)
	h.mu.Unlock()
}

func (h *Host) dictionaryEntry(d *abi.Dictionary, index int64, key, value *abi.Variant) {
	dc := h.dict(d)
	if index < 0 || index >= int64(len(dc.keys)) {
		h.failf("dictionary index %d out of range", index)
		return
	}
	h.variantNewCopy(key, &dc.keys[index])
	h.variantNewCopy(value, &dc.values[index])
}

func (h *Host) packedArrayNew(t abi.VariantType, dst *abi.PackedArray, data unsafe.Pointer, count int64) {
	pc := &packedCell{count: count}
	if t == abi.TypePackedStringArray {
		src := abi.Slice[abi.String](data, count)
		pc.strs = make([]abi.String, count)
		for i := range src {
			pc.strs[i].Ptr = h.alloc(abi.TypeString, h.text(src[i].Ptr, abi.TypeString))
		}
	} else {
		size, ok := packedElemSize[t]
		if !ok {
			h.failf("packed_array_new for non-packed type %s", t)
			return
		}
		pc.data = make([]byte, uintptr(count)*size)
		if count > 0 {
			copy(pc.data, unsafe.Slice((*byte)(data), len(pc.data)))
		}
	}
	dst.Ptr = h.alloc(t, pc)
}

func (h *Host) packed(t abi.VariantType, p *abi.PackedArray) *packedCell {
	c, ok := h.lookup(p.Ptr, t)
	if !ok {
		h.failf("%s %#x is not live", t, p.Ptr)
		return &packedCell{}
	}
	return c.value.(*packedCell)
}

func (h *Host) packedArraySize(t abi.VariantType, p *abi.PackedArray) int64 {
	return h.packed(t, p).count
}

func (h *Host) packedArrayData(t abi.VariantType, p *abi.PackedArray) unsafe.Pointer {
	pc := h.packed(t, p)
	if t == abi.TypePackedStringArray {
		return abi.SliceData(pc.strs)
	}
	return abi.SliceData(pc.data)
}

// Value helpers for tests that build native variants directly.

// Int returns an int variant.
func (h *Host) Int(i int64) abi.Variant {
	var v abi.Variant
	v.SetInt(i)
	return v
}

// Float returns a float variant.
func (h *Host) Float(f float64) abi.Variant {
	var v abi.Variant
	v.SetFloat(f)
	return v
}

// String returns a String variant owning a new host string.
func (h *Host) String(s string) abi.Variant {
	var str abi.String
	h.stringNew(&str, s)
	v := abi.Variant{Type: abi.TypeString}
	v.Data[0] = uint64(str.Ptr)
	return v
}

// StringName returns a StringName variant.
func (h *Host) StringName(s string) abi.Variant {
	var sn abi.StringName
	h.stringNameNew(&sn, s)
	v := abi.Variant{Type: abi.TypeStringName}
	v.Data[0] = uint64(sn.Ptr)
	return v
}

// Text returns the text of a String, StringName or NodePath variant.
func (h *Host) Text(v *abi.Variant) string {
	return h.text(v.Handle(), v.Type)
}

// Elements returns borrowed copies of an Array variant's elements.
func (h *Host) Elements(v *abi.Variant) []abi.Variant {
	if v.Type != abi.TypeArray {
		return nil
	}
	arr := h.array(&abi.Array{Ptr: v.Handle()})
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]abi.Variant(nil), arr.elems...)
}

// Release destroys a variant built by the host or returned by a call.
func (h *Host) Release(v *abi.Variant) {
	h.variantDestroy(v)
}
