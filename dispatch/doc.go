// Package dispatch invokes Go code from native call sites.
//
// A Func is a Go function compiled once against the codec registry: its
// parameter and result codecs are resolved at bind time so the call path
// does no type lookups. Funcs run under both calling conventions:
//
//	Call     variant arguments, variant result, CallError taxonomy
//	PtrCall  typed argument slots and a typed return slot
//
// A Table maps interned virtual method names to invokers for one class.
//
// Guard wraps every entry from native code. A panic or error never unwinds
// into the host: it is logged, reported through print_error, and the call
// either returns its default value or terminates the process, depending on
// the configured Policy.
package dispatch
