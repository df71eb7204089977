package classdb

import (
	"reflect"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/object"
)

// adapt returns the receiver of type want for shadow s. Methods bound on a
// base class receive the embedded base of a derived shadow.
func adapt(s object.Shadow, want reflect.Type) (any, error) {
	if s == nil {
		return nil, &dispatch.CallError{Kind: abi.CallErrorInstanceIsNull}
	}
	if want == nil {
		return s, nil
	}
	rv := reflect.ValueOf(s)
	if rv.Type().AssignableTo(want) {
		return s, nil
	}
	if ev, ok := embedded(rv, want, 0); ok {
		return ev.Interface(), nil
	}
	return nil, &dispatch.CallError{
		Kind:  abi.CallErrorInstanceIsNull,
		Cause: errors.TypeMismatch(errors.PhaseCall, nil, want.String(), rv.Type().String()),
	}
}

// embedded searches the anonymous fields of v for a value assignable to
// want.
func embedded(v reflect.Value, want reflect.Type, depth int) (reflect.Value, bool) {
	if depth > 8 {
		return reflect.Value{}, false
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous || !f.IsExported() {
			continue
		}
		fv := v.Field(i)
		cand := fv
		if fv.Kind() == reflect.Struct && fv.CanAddr() {
			cand = fv.Addr()
		}
		if cand.Type().AssignableTo(want) {
			if cand.Kind() == reflect.Pointer && cand.IsNil() {
				continue
			}
			return cand, true
		}
		if r, ok := embedded(cand, want, depth+1); ok {
			return r, true
		}
	}
	return reflect.Value{}, false
}
