// Package gdext lets a Go extension library live inside a native game
// engine process through the engine's extension ABI.
//
// The host discovers the library through its init symbol, exchanges
// function tables, and from then on every interaction crosses the boundary
// as variants, interned names, callables and object pointers.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	gdext/
//	├── abi/             C-layout values and the host function table
//	├── variant/         Managed variant union, containers, hashing, CBOR encoding
//	├── names/           Interned, reference-counted StringNames
//	├── handle/          Slot table for instance and callable tokens
//	├── codec/           Per-type value codecs and the native marshaller
//	├── object/          Native identity to Go shadow correlation
//	├── dispatch/        Compiled invokers, virtual tables, the boundary guard
//	├── classdb/         Class registration and reverse callbacks
//	├── callable/        Go closures exposed as host Callables
//	├── config/          gdext.toml settings
//	├── bridge/          Entry point, initialization levels, teardown
//	├── errors/          Structured error types for debugging
//	└── host/hosttest/   In-process simulated engine for tests
//
// # Quick Start
//
// Register a class from the library entry point:
//
//	func libraryInit(getProc abi.GetProcAddress, lib abi.LibraryPtr, init *abi.Initialization) bool {
//	    _, err := bridge.Initialize(getProc, lib, init, func(c *bridge.Configuration) error {
//	        c.RegisterInitializer(func(rt *bridge.Runtime, l bridge.Level) error {
//	            if l != bridge.LevelScene {
//	                return nil
//	            }
//	            return classdb.RegisterClass[Widget](rt.Classes(), "Widget", "Node", configure)
//	        })
//	        return nil
//	    })
//	    return err == nil
//	}
//
// See examples/widget for a complete class.
//
// # Thread Safety
//
// The host calls back from threads it controls. The object bridge, the
// class registry and the callable table are safe for concurrent use.
// Teardown runs after the host has stopped per-frame callbacks.
//
// # Object Lifetime
//
// A native object has two authorities: the host, which frees it, and Go
// code, which may dispose it. Whichever acts first wins; the other sees
// ErrAlreadyReleased. Finalizers play no part in correctness.
package gdext
