package callable

import (
	"fmt"
	"reflect"
	"runtime"
	"sync/atomic"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/codec"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/variant"
)

// CallError is the fixed call-error taxonomy shared with bound methods.
type CallError = dispatch.CallError

// Custom is a hand-written callable. A returned *CallError is reported with
// its kind; any other error reports invalid_method.
type Custom interface {
	Call(args []variant.Variant) (variant.Variant, error)
}

// Hasher supplies the hash of a custom callable.
type Hasher interface {
	Hash() uint32
}

// Equaler compares a custom callable with another one.
type Equaler interface {
	Equal(other Custom) bool
}

// Lesser orders custom callables.
type Lesser interface {
	Less(other Custom) bool
}

// Arity reports the number of arguments a callable expects.
type Arity interface {
	ArgumentCount() int
}

// Callable is the Go side of one native callable reference.
type Callable struct {
	b        *Bridge
	native   abi.Callable
	released atomic.Bool
}

// Native returns the native callable.
func (c *Callable) Native() abi.Callable { return c.native }

// Variant returns the callable as a value. Encoding it takes a new native
// reference, so it stays usable after Release only while the host holds
// one.
func (c *Callable) Variant() variant.Variant {
	return variant.FromCallable(variant.Callable{Native: c.native})
}

// Release drops the reference taken at creation. The wrapper is freed
// when the host drops its last reference.
func (c *Callable) Release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	c.b.iface.CallableDestroy(&c.native)
}

// funcCallable adapts a compiled Go function.
type funcCallable struct {
	fn   *dispatch.Func
	name string
}

func compileFunc(fn any, codecs *codec.Registry) (*funcCallable, error) {
	f, err := dispatch.Compile(fn, true, codecs)
	if err != nil {
		return nil, errors.New(errors.PhaseRegister, errors.KindRegistration).
			Path("callable").
			GoType(fmt.Sprintf("%T", fn)).
			Cause(err).
			Build()
	}
	name := "func"
	if rf := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); rf != nil {
		name = rf.Name()
	}
	return &funcCallable{fn: f, name: name}, nil
}

func (f *funcCallable) Call(args []variant.Variant) (variant.Variant, error) {
	return f.fn.Call(nil, args)
}

func (f *funcCallable) ArgumentCount() int { return f.fn.NumParams() }

func (f *funcCallable) String() string { return f.name }
