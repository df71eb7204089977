// Package errors provides structured error types for the extension bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the failing member path, the Go and
// Variant type names involved, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindOverflow).
//		Path("Widget", "Count").
//		GoType("int32").
//		VariantType("int").
//		Detail("value 9223372036854775807 does not fit").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.DuplicateMember("Widget", "constant", "MAX_SPEED")
//	err := errors.Overflow(errors.PhaseDecode, path, v, "int32")
//
// The categories follow the bridge's failure model:
//
//	configuration  extension-code defects raised at registration time
//	marshalling    a value does not fit the target type, unknown classes
//	call           callable call errors, returned as data
//	invariant      double frees and stale handles; see Invariant
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
