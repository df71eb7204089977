// Package callable exposes Go closures to the host as native Callables.
//
// A Bridge owns the table of live wrappers. Every wrapper is created with
// an optional owner object: once the owner is freed or disposed the
// callable reports itself invalid and calls fail with instance_is_null.
//
//	c, err := callables.FromFunc(func(a, b int64) int64 { return a + b }, nil)
//	...
//	v := c.Variant() // hand to the host
//	c.Release()
//
// Hand-written callables implement Custom and, optionally, the Hasher,
// Equaler, Lesser, Arity and fmt.Stringer interfaces. Equality implies equal
// hashes, so an Equaler must also be a Hasher. Without them a callable is
// equal only to itself.
//
// The host frees a wrapper when its last native reference goes away. A
// second free of the same wrapper is an invariant violation.
package callable
