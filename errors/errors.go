package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister  Phase = "register"  // class and member registration
	PhaseEncode    Phase = "encode"    // Go to native
	PhaseDecode    Phase = "decode"    // native to Go
	PhaseCall      Phase = "call"      // method, virtual and callable invocation
	PhaseLifecycle Phase = "lifecycle" // object creation, free and dispose
	PhaseInit      Phase = "init"      // bridge initialization and configuration
)

// Kind categorizes the error
type Kind string

const (
	// configuration errors
	KindDuplicateMember    Kind = "duplicate_member"
	KindMissingConstructor Kind = "missing_constructor"
	KindAbstractMismatch   Kind = "abstract_mismatch"
	KindInvalidInput       Kind = "invalid_input"
	KindRegistration       Kind = "registration"

	// marshalling errors
	KindTypeMismatch Kind = "type_mismatch"
	KindOverflow     Kind = "overflow"
	KindUnknownClass Kind = "unknown_class"
	KindUnsupported  Kind = "unsupported"
	KindInvalidData  Kind = "invalid_data"

	// call errors
	KindCallFailed Kind = "call_failed"

	// invariant violations
	KindDoubleFree     Kind = "double_free"
	KindInvalidHandle  Kind = "invalid_handle"
	KindNotInitialized Kind = "not_initialized"
	KindNotFound       Kind = "not_found"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value       any
	Cause       error
	Phase       Phase
	Kind        Kind
	GoType      string
	VariantType string
	Detail      string
	Path        []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.VariantType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.VariantType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", variant type ")
			b.WriteString(e.VariantType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("variant type ")
			b.WriteString(e.VariantType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.VariantType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// VariantType sets the variant type name
func (b *Builder) VariantType(t string) *Builder {
	b.err.VariantType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Configuration errors

// DuplicateMember reports a member registered twice in the same class.
func DuplicateMember(className, memberKind, name string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindDuplicateMember,
		Path:   []string{className, name},
		Detail: fmt.Sprintf("%s %q already registered in class %q", memberKind, name, className),
		Value:  name,
	}
}

// MissingConstructor reports an instantiation request for a class without a constructor.
func MissingConstructor(className string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindMissingConstructor,
		Path:   []string{className},
		Detail: fmt.Sprintf("can't instantiate type %q: a constructor has not been registered for the type", className),
	}
}

// AbstractMismatch reports an abstract type registered as a non-abstract class.
func AbstractMismatch(className string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindAbstractMismatch,
		Path:   []string{className},
		Detail: fmt.Sprintf("can't register abstract type %q as a non-abstract class", className),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration wraps a failure that happened while registering a class member.
func Registration(className, member string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistration,
		Path:   []string{className, member},
		Detail: fmt.Sprintf("register %s.%s", className, member),
		Cause:  cause,
	}
}

// Marshalling errors

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, variantType string) *Error {
	return &Error{
		Phase:       phase,
		Kind:        KindTypeMismatch,
		Path:        path,
		GoType:      goType,
		VariantType: variantType,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		GoType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// UnknownClass reports a native object whose dynamic class has no registered wrapper.
func UnknownClass(className string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindUnknownClass,
		Path:   []string{className},
		Detail: fmt.Sprintf("no wrapper registered for native class %q", className),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Invariant violations

// DoubleFree reports a second release of an identity or wrapper.
func DoubleFree(what string, id uint64) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindDoubleFree,
		Detail: fmt.Sprintf("%s %#x already released", what, id),
		Value:  id,
	}
}

// InvalidHandle reports use of a handle or identity that is no longer valid.
func InvalidHandle(phase Phase, what string, id uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("%s %#x is not valid", what, id),
		Value:  id,
	}
}

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
