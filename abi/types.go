package abi

import "strconv"

// VariantType is the native variant type tag.
type VariantType uint32

const (
	TypeNil VariantType = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeVector2
	TypeVector2I
	TypeRect2
	TypeRect2I
	TypeVector3
	TypeVector3I
	TypeTransform2D
	TypeVector4
	TypeVector4I
	TypePlane
	TypeQuaternion
	TypeAABB
	TypeBasis
	TypeTransform3D
	TypeProjection
	TypeColor
	TypeStringName
	TypeNodePath
	TypeRID
	TypeObject
	TypeCallable
	TypeSignal
	TypeDictionary
	TypeArray
	TypePackedByteArray
	TypePackedInt32Array
	TypePackedInt64Array
	TypePackedFloat32Array
	TypePackedFloat64Array
	TypePackedStringArray
	TypePackedVector2Array
	TypePackedVector3Array
	TypePackedColorArray
	TypePackedVector4Array
	TypeMax
)

var variantTypeNames = [TypeMax]string{
	"Nil", "bool", "int", "float", "String",
	"Vector2", "Vector2i", "Rect2", "Rect2i", "Vector3", "Vector3i",
	"Transform2D", "Vector4", "Vector4i", "Plane", "Quaternion", "AABB",
	"Basis", "Transform3D", "Projection", "Color", "StringName", "NodePath",
	"RID", "Object", "Callable", "Signal", "Dictionary", "Array",
	"PackedByteArray", "PackedInt32Array", "PackedInt64Array",
	"PackedFloat32Array", "PackedFloat64Array", "PackedStringArray",
	"PackedVector2Array", "PackedVector3Array", "PackedColorArray",
	"PackedVector4Array",
}

func (t VariantType) String() string {
	if t < TypeMax {
		return variantTypeNames[t]
	}
	return "VariantType(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// Valid reports whether t is a known tag.
func (t VariantType) Valid() bool {
	return t < TypeMax
}

// Inline reports whether values of this type live entirely in the variant
// payload. Inline variants never need VariantDestroy.
func (t VariantType) Inline() bool {
	switch t {
	case TypeNil, TypeBool, TypeInt, TypeFloat,
		TypeVector2, TypeVector2I, TypeRect2, TypeRect2I,
		TypeVector3, TypeVector3I, TypeVector4, TypeVector4I,
		TypePlane, TypeQuaternion, TypeColor, TypeRID, TypeObject:
		return true
	}
	return false
}

// Packed reports whether t is one of the packed array types.
func (t VariantType) Packed() bool {
	return t >= TypePackedByteArray && t <= TypePackedVector4Array
}

// ObjectPtr is the host-owned native object identity.
type ObjectPtr uintptr

// ObjectID is the host's stable instance id for an object.
type ObjectID uint64

// InstancePtr is the extension-side instance token the host passes back to
// class callbacks.
type InstancePtr uintptr

// LibraryPtr identifies this extension library to the host.
type LibraryPtr uintptr

// ClassUserdata is the per-class token handed to the host at registration.
type ClassUserdata uintptr

// String is a native string handle.
type String struct{ Ptr uintptr }

// StringName is a native interned string handle.
type StringName struct{ Ptr uintptr }

// NodePath is a native node path handle.
type NodePath struct{ Ptr uintptr }

// Array is a native reference-counted array handle.
type Array struct{ Ptr uintptr }

// Dictionary is a native reference-counted dictionary handle.
type Dictionary struct{ Ptr uintptr }

// PackedArray is a native packed array handle. The element type is carried
// by the variant tag.
type PackedArray struct{ Ptr uintptr }

// Callable is the 16 byte native callable.
type Callable struct{ Data [2]uint64 }

// Signal is the native signal payload: a name and the owning object.
type Signal struct {
	Name  StringName
	Owner ObjectID
}

// CallErrorType is the native call error taxonomy.
type CallErrorType int32

const (
	CallOK CallErrorType = iota
	CallErrorInvalidMethod
	CallErrorInvalidArgument
	CallErrorTooManyArguments
	CallErrorTooFewArguments
	CallErrorInstanceIsNull
	CallErrorMethodNotConst
)

var callErrorNames = [...]string{
	"ok", "invalid_method", "invalid_argument", "too_many_arguments",
	"too_few_arguments", "instance_is_null", "method_not_const",
}

func (e CallErrorType) String() string {
	if e >= 0 && int(e) < len(callErrorNames) {
		return callErrorNames[e]
	}
	return "CallErrorType(" + strconv.Itoa(int(e)) + ")"
}

// CallError is written by the extension when a varcall fails.
type CallError struct {
	Error    CallErrorType
	Argument int32
	Expected int32
}

// InitializationLevel orders the host's staged startup.
type InitializationLevel int32

const (
	LevelCore InitializationLevel = iota
	LevelServers
	LevelScene
	LevelEditor
	LevelMax
)

var levelNames = [LevelMax]string{"core", "servers", "scene", "editor"}

func (l InitializationLevel) String() string {
	if l >= 0 && l < LevelMax {
		return levelNames[l]
	}
	return "InitializationLevel(" + strconv.Itoa(int(l)) + ")"
}

// GodotVersion is the host engine version.
type GodotVersion struct {
	Status string
	Build  string
	Major  uint32
	Minor  uint32
	Patch  uint32
}
