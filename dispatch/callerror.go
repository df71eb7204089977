package dispatch

import (
	"fmt"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/variant"
)

// CallError is a failed call, reported to the host as data.
type CallError struct {
	Cause    error
	Kind     abi.CallErrorType
	Argument int32
	Expected int32
}

func (e *CallError) Error() string {
	switch e.Kind {
	case abi.CallErrorInvalidArgument:
		msg := fmt.Sprintf("invalid argument %d", e.Argument)
		if t := variant.Type(e.Expected); t.Valid() && t != variant.TypeNil {
			msg += ", expected " + t.String()
		}
		if e.Cause != nil {
			msg += ": " + e.Cause.Error()
		}
		return msg
	case abi.CallErrorTooFewArguments, abi.CallErrorTooManyArguments:
		return fmt.Sprintf("%s: expected %d", e.Kind, e.Expected)
	}
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Cause.Error()
	}
	return e.Kind.String()
}

func (e *CallError) Unwrap() error { return e.Cause }

// Native returns the ABI form of e.
func (e *CallError) Native() abi.CallError {
	return abi.CallError{Error: e.Kind, Argument: e.Argument, Expected: e.Expected}
}

// ToNative converts err to the ABI form. The first *CallError in the chain
// decides; other errors report invalid_method, the only kind left for a
// failed body.
func ToNative(err error) abi.CallError {
	if err == nil {
		return abi.CallError{}
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Native()
	}
	return abi.CallError{Error: abi.CallErrorInvalidMethod}
}
