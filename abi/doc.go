// Package abi defines the fixed calling convention between the extension and
// the host engine.
//
// Every value that crosses the boundary has a C-compatible layout declared
// here: Variant (24 bytes: type tag plus a 16 byte payload), String,
// StringName, NodePath, Array, Dictionary (pointer-sized opaque handles owned
// by the host), ObjectPtr and ObjectID (native object identities), and the
// fixed-layout geometry payloads that are copied by value.
//
// # Host Interface
//
// The host exposes its functions through a "resolve by name" callback. The
// Interface struct lists every entry the bridge uses; LoadInterface fills it
// by resolving the name in each field's proc tag:
//
//	iface, err := abi.LoadInterface(getProcAddress)
//	if err != nil {
//	    return err // a required function is missing or has the wrong signature
//	}
//
// # Reverse Callbacks
//
// ClassCreationInfo, ClassMethodInfo, CallableCustomInfo and Initialization
// carry the callbacks the host invokes. Their signatures are fixed; a cgo
// entry shim converts the C argument arrays into the slices used here, so
// pointer arithmetic never leaves this package and codec/ptr.go.
package abi
