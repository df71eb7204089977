// Package codec converts values across the native boundary.
//
// Three layers are involved:
//
//	┌───────────────┐  Registry   ┌─────────────────┐  Marshaller  ┌─────────────┐
//	│ Go value (T)  │ ←─────────→ │ variant.Variant │ ←──────────→ │ abi.Variant │
//	└───────────────┘             └─────────────────┘              └─────────────┘
//	                                                    Ptr: typed ptrcall slots
//
// The Registry maps Go types to codecs. Built-in codecs cover bool, every
// integer and float width, strings, the geometry and color structs, packed
// arrays, arrays, dictionaries, Go slices and maps, and object references
// through an ObjectResolver. Named integer types (enums) always widen to a
// 64-bit int variant.
//
// # Conversion rules
//
//	source variant   target            result
//	──────────────────────────────────────────────────────────────
//	int              int8..int64       exact, or overflow error
//	int              uint8..uint32     exact, or overflow error
//	int              uint64, uint      bit-cast
//	int              float32/float64   widened
//	float            float32           rounded, overflow error past ±MaxFloat32
//	float            any integer       type mismatch
//	String           StringName        converted; and back
//	nil              any type          the zero or empty value
//
// # Ownership
//
// Marshaller.ToNative constructs a native value the caller owns and must
// release with Marshaller.Destroy (a no-op for inline types). FromNative
// never takes ownership of its argument. Temporaries acquired while
// converting are released in reverse acquisition order, on error paths too.
package codec
