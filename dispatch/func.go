package dispatch

import (
	"fmt"
	"reflect"
	"strconv"
	"unsafe"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/codec"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/variant"
)

var errorType = reflect.TypeFor[error]()

// Func is a Go function prepared for native calls.
type Func struct {
	fn     reflect.Value
	recv   reflect.Type
	params []*codec.Dynamic
	result *codec.Dynamic
	hasErr bool
}

// Compile prepares fn. Unless static is set, the first parameter of fn is
// the receiver, as with a method expression such as (*Player).Heal. fn may
// return nothing, a value, an error, or a value and an error.
func Compile(fn any, static bool, r *codec.Registry) (*Func, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			GoType(fmt.Sprintf("%T", fn)).
			Detail("not a function").
			Build()
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, errors.Unsupported(errors.PhaseRegister, "variadic functions")
	}

	f := &Func{fn: fv}
	first := 0
	if !static {
		if ft.NumIn() == 0 {
			return nil, errors.InvalidInput(errors.PhaseRegister, "method needs a receiver parameter")
		}
		f.recv = ft.In(0)
		first = 1
	}
	for i := first; i < ft.NumIn(); i++ {
		d, err := r.Lookup(ft.In(i))
		if err != nil {
			return nil, errors.New(errors.PhaseRegister, errors.KindUnsupported).
				Path("param[" + strconv.Itoa(i-first) + "]").
				GoType(ft.In(i).String()).
				Cause(err).
				Build()
		}
		f.params = append(f.params, d)
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			f.hasErr = true
			break
		}
		d, err := resultCodec(r, ft.Out(0))
		if err != nil {
			return nil, err
		}
		f.result = d
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.InvalidInput(errors.PhaseRegister, "second result must be error")
		}
		d, err := resultCodec(r, ft.Out(0))
		if err != nil {
			return nil, err
		}
		f.result = d
		f.hasErr = true
	default:
		return nil, errors.InvalidInput(errors.PhaseRegister, "too many results")
	}
	return f, nil
}

func resultCodec(r *codec.Registry, t reflect.Type) (*codec.Dynamic, error) {
	d, err := r.Lookup(t)
	if err != nil {
		return nil, errors.New(errors.PhaseRegister, errors.KindUnsupported).
			Path("result").
			GoType(t.String()).
			Cause(err).
			Build()
	}
	return d, nil
}

// Static reports whether f takes no receiver.
func (f *Func) Static() bool { return f.recv == nil }

// Receiver returns the receiver type, or nil.
func (f *Func) Receiver() reflect.Type { return f.recv }

// NumParams returns the number of parameters excluding the receiver.
func (f *Func) NumParams() int { return len(f.params) }

// Param returns the codec of parameter i.
func (f *Func) Param(i int) *codec.Dynamic { return f.params[i] }

// Result returns the result codec, or nil when f returns no value.
func (f *Func) Result() *codec.Dynamic { return f.result }

func (f *Func) receiver(recv any) (reflect.Value, error) {
	rv := reflect.ValueOf(recv)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return reflect.Value{}, &CallError{Kind: abi.CallErrorInstanceIsNull}
	}
	if !rv.Type().AssignableTo(f.recv) {
		return reflect.Value{}, &CallError{
			Kind:  abi.CallErrorInstanceIsNull,
			Cause: errors.TypeMismatch(errors.PhaseCall, nil,
				f.recv.String(), rv.Type().String()),
		}
	}
	return rv, nil
}

// Call invokes f with variant arguments.
func (f *Func) Call(recv any, args []variant.Variant) (variant.Variant, error) {
	in := make([]reflect.Value, 0, len(f.params)+1)
	if f.recv != nil {
		rv, err := f.receiver(recv)
		if err != nil {
			return variant.Nil(), err
		}
		in = append(in, rv)
	}
	if err := f.checkArity(len(args)); err != nil {
		return variant.Nil(), err
	}
	for i, a := range args {
		v, err := f.params[i].Decode(a)
		if err != nil {
			return variant.Nil(), &CallError{
				Kind:     abi.CallErrorInvalidArgument,
				Argument: int32(i),
				Expected: int32(f.params[i].Type),
				Cause:    err,
			}
		}
		in = append(in, v)
	}
	return f.finish(f.fn.Call(in))
}

func (f *Func) checkArity(n int) error {
	switch {
	case n < len(f.params):
		return &CallError{Kind: abi.CallErrorTooFewArguments, Expected: int32(len(f.params))}
	case n > len(f.params):
		return &CallError{Kind: abi.CallErrorTooManyArguments, Expected: int32(len(f.params))}
	}
	return nil
}

func (f *Func) finish(out []reflect.Value) (variant.Variant, error) {
	if f.hasErr {
		if err, _ := out[len(out)-1].Interface().(error); err != nil {
			return variant.Nil(), err
		}
	}
	if f.result == nil {
		return variant.Nil(), nil
	}
	v, err := f.result.Encode(out[0])
	if err != nil {
		return variant.Nil(), errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
			Path("result").
			Cause(err).
			Build()
	}
	return v, nil
}

// PtrCall invokes f with typed argument slots and writes the result into
// ret. ret may be nil when f returns no value.
func (f *Func) PtrCall(m *codec.Marshaller, recv any, args []unsafe.Pointer, ret unsafe.Pointer) error {
	if err := f.checkArity(len(args)); err != nil {
		return err
	}
	vals := make([]variant.Variant, len(args))
	for i, p := range args {
		v, err := m.ReadPtr(f.params[i].Type, p)
		if err != nil {
			return &CallError{Kind: abi.CallErrorInvalidArgument, Argument: int32(i), Cause: err}
		}
		vals[i] = v
	}
	out, err := f.Call(recv, vals)
	if err != nil {
		return err
	}
	if f.result == nil || ret == nil {
		return nil
	}
	return m.WritePtr(f.result.Type, ret, out)
}

// Invoker adapts f to the virtual dispatch signature.
func (f *Func) Invoker(m *codec.Marshaller) Invoker {
	return func(recv any, args []unsafe.Pointer, ret unsafe.Pointer) error {
		return f.PtrCall(m, recv, args, ret)
	}
}
