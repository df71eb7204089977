package abi

import (
	"math"
	"unsafe"
)

// VariantSize is the native size of a Variant in bytes.
const VariantSize = 24

// payloadSize is the number of bytes available for inline values.
const payloadSize = 16

// Variant is the native tagged union. Type always matches the payload.
type Variant struct {
	Type VariantType
	_    uint32
	Data [2]uint64
}

// Nil resets v to the nil variant without releasing anything.
func (v *Variant) Nil() {
	*v = Variant{}
}

// Bool returns the bool payload.
func (v *Variant) Bool() bool {
	return v.Data[0]&0xff != 0
}

// SetBool stores a bool variant.
func (v *Variant) SetBool(b bool) {
	*v = Variant{Type: TypeBool}
	if b {
		v.Data[0] = 1
	}
}

// Int returns the int payload.
func (v *Variant) Int() int64 {
	return int64(v.Data[0])
}

// SetInt stores an int variant.
func (v *Variant) SetInt(i int64) {
	*v = Variant{Type: TypeInt}
	v.Data[0] = uint64(i)
}

// Float returns the float payload.
func (v *Variant) Float() float64 {
	return math.Float64frombits(v.Data[0])
}

// SetFloat stores a float variant.
func (v *Variant) SetFloat(f float64) {
	*v = Variant{Type: TypeFloat}
	v.Data[0] = math.Float64bits(f)
}

// RID returns the RID payload.
func (v *Variant) RID() uint64 {
	return v.Data[0]
}

// SetRID stores an RID variant.
func (v *Variant) SetRID(id uint64) {
	*v = Variant{Type: TypeRID}
	v.Data[0] = id
}

// Object returns the object payload. A nil object has a zero pointer.
func (v *Variant) Object() (ObjectPtr, ObjectID) {
	return ObjectPtr(v.Data[1]), ObjectID(v.Data[0])
}

// SetObject stores an object variant.
func (v *Variant) SetObject(obj ObjectPtr, id ObjectID) {
	*v = Variant{Type: TypeObject}
	v.Data[0] = uint64(id)
	v.Data[1] = uint64(obj)
}

// Handle returns the first payload word, which holds the native handle for
// String, StringName, NodePath, Array, Dictionary and packed arrays.
func (v *Variant) Handle() uintptr {
	return uintptr(v.Data[0])
}

// PayloadPtr returns a pointer to the payload for host constructors that
// copy fixed layouts in and out.
func (v *Variant) PayloadPtr() unsafe.Pointer {
	return unsafe.Pointer(&v.Data)
}

// LoadInline copies an inline fixed-layout payload out of v.
// T must be at most 16 bytes.
func LoadInline[T any](v *Variant) T {
	var zero T
	if unsafe.Sizeof(zero) > payloadSize {
		panic("abi: inline payload larger than variant")
	}
	return *(*T)(unsafe.Pointer(&v.Data))
}

// StoreInline writes an inline fixed-layout payload into v with tag t.
// T must be at most 16 bytes.
func StoreInline[T any](v *Variant, t VariantType, value T) {
	if unsafe.Sizeof(value) > payloadSize {
		panic("abi: inline payload larger than variant")
	}
	*v = Variant{Type: t}
	*(*T)(unsafe.Pointer(&v.Data)) = value
}

// Load reads a T stored at p. Used for ptrcall arguments.
func Load[T any](p unsafe.Pointer) T {
	return *(*T)(p)
}

// Store writes a T at p. Used for ptrcall return slots.
func Store[T any](p unsafe.Pointer, value T) {
	*(*T)(p) = value
}

// Slice views n contiguous T values starting at p.
func Slice[T any](p unsafe.Pointer, n int64) []T {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*T)(p), n)
}

// SliceData returns a pointer to the first element of s, or nil.
func SliceData[T any](s []T) unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(s))
}
