package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:       PhaseDecode,
				Kind:        KindOverflow,
				Path:        []string{"Widget", "Count"},
				GoType:      "int32",
				VariantType: "int",
				Detail:      "does not fit",
			},
			contains: []string{"[decode]", "overflow", "Widget.Count", "int32", "int", "does not fit"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseCall,
				Kind:  KindCallFailed,
			},
			contains: []string{"[call]", "call_failed"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseInit,
				Kind:   KindNotFound,
				Detail: "interface function",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[init]", "not_found", "interface function", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseRegister,
		Kind:  KindDuplicateMember,
		Path:  []string{"Widget"},
	}

	if !errors.Is(err, &Error{Phase: PhaseRegister, Kind: KindDuplicateMember}) {
		t.Error("errors.Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindDuplicateMember}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseRegister, Kind: KindOverflow}) {
		t.Error("Is should not match different kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseDecode, KindTypeMismatch).
		Path("args", "0").
		GoType("string").
		VariantType("int").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "string", "int").
		Build()

	if err.Phase != PhaseDecode || err.Kind != KindTypeMismatch {
		t.Errorf("phase/kind = %v/%v", err.Phase, err.Kind)
	}
	if len(err.Path) != 2 || err.Path[1] != "0" {
		t.Errorf("Path = %v", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if err.Detail != "expected string, got int" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through errors.Is")
	}
}

func TestDuplicateMember(t *testing.T) {
	err := DuplicateMember("Widget", "constant", "MAX_SPEED")
	msg := err.Error()
	for _, s := range []string{"Widget", "MAX_SPEED", "duplicate_member"} {
		if !strings.Contains(msg, s) {
			t.Errorf("message %q does not contain %q", msg, s)
		}
	}
	if err.Phase != PhaseRegister {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseRegister)
	}
}

func TestInvariant(t *testing.T) {
	t.Cleanup(func() { SetDebug(false) })

	t.Run("release is a no-op", func(t *testing.T) {
		SetDebug(false)
		Invariant(DoubleFree("object", 0x10))
		Invariant(nil)
	})

	t.Run("debug panics", func(t *testing.T) {
		SetDebug(true)
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected panic with debug assertions enabled")
			}
			e, ok := r.(*Error)
			if !ok || e.Kind != KindDoubleFree {
				t.Fatalf("recovered %v, want double_free error", r)
			}
		}()
		Invariant(DoubleFree("object", 0x10))
	})
}

func TestKindOf(t *testing.T) {
	wrapped := Wrap(PhaseCall, KindCallFailed, Overflow(PhaseDecode, nil, 1, "int8"), "call")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"direct", DoubleFree("object", 1), KindDoubleFree},
		{"outermost wins", wrapped, KindCallFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
	if !Is(wrapped, &Error{Phase: PhaseDecode, Kind: KindOverflow}) {
		t.Error("Is should match the wrapped cause")
	}
}
