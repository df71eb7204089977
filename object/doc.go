// Package object correlates native object identities with Go shadows.
//
// Every native object seen by the extension has at most one shadow: a Go
// value embedding Object. The correlation has two flavours:
//
//	owned     created by the class factory (RegisterNative); held strongly
//	          until the host frees the object or Go disposes it
//	observed  created lazily for an existing engine object (LookupOrWrap);
//	          held weakly so an unreferenced shadow can be collected
//
// Destruction has two authorities. The host frees an object (Free,
// FreeShadow) and Go code disposes a shadow (Dispose). Each shadow moves out
// of the alive state exactly once; the first caller wins and later callers
// get ErrAlreadyReleased. Disposing an owned shadow asks the host to destroy
// the native object. Garbage collection only prunes dead weak entries and is
// never needed for correctness.
//
// A released shadow fails every identity access with an invalid handle
// error instead of handing out a dangling pointer.
package object
