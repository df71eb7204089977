package variant

import "github.com/wippyai/gdext/abi"

// Type is the variant type tag, shared with the native layout.
type Type = abi.VariantType

const (
	TypeNil                = abi.TypeNil
	TypeBool               = abi.TypeBool
	TypeInt                = abi.TypeInt
	TypeFloat              = abi.TypeFloat
	TypeString             = abi.TypeString
	TypeVector2            = abi.TypeVector2
	TypeVector2I           = abi.TypeVector2I
	TypeRect2              = abi.TypeRect2
	TypeRect2I             = abi.TypeRect2I
	TypeVector3            = abi.TypeVector3
	TypeVector3I           = abi.TypeVector3I
	TypeTransform2D        = abi.TypeTransform2D
	TypeVector4            = abi.TypeVector4
	TypeVector4I           = abi.TypeVector4I
	TypePlane              = abi.TypePlane
	TypeQuaternion         = abi.TypeQuaternion
	TypeAABB               = abi.TypeAABB
	TypeBasis              = abi.TypeBasis
	TypeTransform3D        = abi.TypeTransform3D
	TypeProjection         = abi.TypeProjection
	TypeColor              = abi.TypeColor
	TypeStringName         = abi.TypeStringName
	TypeNodePath           = abi.TypeNodePath
	TypeRID                = abi.TypeRID
	TypeObject             = abi.TypeObject
	TypeCallable           = abi.TypeCallable
	TypeSignal             = abi.TypeSignal
	TypeDictionary         = abi.TypeDictionary
	TypeArray              = abi.TypeArray
	TypePackedByteArray    = abi.TypePackedByteArray
	TypePackedInt32Array   = abi.TypePackedInt32Array
	TypePackedInt64Array   = abi.TypePackedInt64Array
	TypePackedFloat32Array = abi.TypePackedFloat32Array
	TypePackedFloat64Array = abi.TypePackedFloat64Array
	TypePackedStringArray  = abi.TypePackedStringArray
	TypePackedVector2Array = abi.TypePackedVector2Array
	TypePackedVector3Array = abi.TypePackedVector3Array
	TypePackedColorArray   = abi.TypePackedColorArray
	TypePackedVector4Array = abi.TypePackedVector4Array
)

// Geometry types use the native single-precision layout.

type Vector2 struct{ X, Y float32 }

type Vector2i struct{ X, Y int32 }

type Rect2 struct{ Position, Size Vector2 }

type Rect2i struct{ Position, Size Vector2i }

type Vector3 struct{ X, Y, Z float32 }

type Vector3i struct{ X, Y, Z int32 }

// Transform2D holds the X and Y axes and the origin.
type Transform2D struct{ X, Y, Origin Vector2 }

type Vector4 struct{ X, Y, Z, W float32 }

type Vector4i struct{ X, Y, Z, W int32 }

type Plane struct {
	Normal Vector3
	D      float32
}

type Quaternion struct{ X, Y, Z, W float32 }

type AABB struct{ Position, Size Vector3 }

// Basis holds three row vectors.
type Basis struct{ X, Y, Z Vector3 }

type Transform3D struct {
	Basis  Basis
	Origin Vector3
}

// Projection holds four column vectors.
type Projection struct{ X, Y, Z, W Vector4 }

type Color struct{ R, G, B, A float32 }

// StringName is the text of an interned name carried by value.
type StringName string

// NodePath is the text of a node path carried by value.
type NodePath string

// RID is an opaque server resource id.
type RID uint64

// Object is a reference to a native object. A zero Ptr is the null object.
type Object struct {
	Ptr abi.ObjectPtr
	ID  abi.ObjectID
}

// IsNil reports whether o is the null object.
func (o Object) IsNil() bool { return o.Ptr == 0 }

// Callable is a borrowed native callable. It stays valid while the value it
// was read from does; encoding it takes a new native reference.
type Callable struct {
	Native abi.Callable
}

// IsNil reports whether c is the empty callable.
func (c Callable) IsNil() bool { return c.Native.Data == [2]uint64{} }

// Signal names a signal on an object.
type Signal struct {
	Name  StringName
	Owner abi.ObjectID
}
