package dispatch

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"unsafe"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/codec"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/host/hosttest"
	"github.com/wippyai/gdext/names"
	"github.com/wippyai/gdext/variant"
)

type counter struct{ n int64 }

func (c *counter) Add(by int32) int64 { c.n += int64(by); return c.n }

func (c *counter) Name(prefix string) (string, error) {
	if prefix == "" {
		return "", stderrors.New("empty prefix")
	}
	return prefix + "-counter", nil
}

func (c *counter) Reset() { c.n = 0 }

func sum(a, b int64) int64 { return a + b }

func TestCompile(t *testing.T) {
	r := codec.NewRegistry()

	f, err := Compile((*counter).Add, false, r)
	if err != nil {
		t.Fatal(err)
	}
	if f.Static() || f.NumParams() != 1 || f.Result().Type != variant.TypeInt {
		t.Errorf("static=%v params=%d", f.Static(), f.NumParams())
	}
	if f.Param(0).Metadata != abi.MetadataIntIsInt32 {
		t.Errorf("param metadata = %d", f.Param(0).Metadata)
	}

	tests := []struct {
		name   string
		fn     any
		static bool
	}{
		{"not a func", 42, false},
		{"nil", nil, false},
		{"no receiver", func() {}, false},
		{"variadic", func(...int) {}, true},
		{"bad result", func() (int, int) { return 0, 0 }, true},
		{"unsupported param", func(chan int) {}, true},
		{"three results", func() (int, int, error) { return 0, 0, nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.fn, tt.static, r); err == nil {
				t.Error("Compile succeeded")
			}
		})
	}
}

func TestFunc_Call(t *testing.T) {
	r := codec.NewRegistry()
	add, _ := Compile((*counter).Add, false, r)
	name, _ := Compile((*counter).Name, false, r)
	static, _ := Compile(sum, true, r)
	c := &counter{n: 1}

	tests := []struct {
		name     string
		f        *Func
		recv     any
		args     []variant.Variant
		want     variant.Variant
		kind     abi.CallErrorType
		argument int32
	}{
		{"ok", add, c, []variant.Variant{variant.Int(2)}, variant.Int(3), abi.CallOK, 0},
		{"too few", add, c, nil, variant.Nil(), abi.CallErrorTooFewArguments, 0},
		{"too many", add, c, []variant.Variant{variant.Int(1), variant.Int(2)}, variant.Nil(), abi.CallErrorTooManyArguments, 0},
		{"overflow", add, c, []variant.Variant{variant.Int(1 << 40)}, variant.Nil(), abi.CallErrorInvalidArgument, 0},
		{"wrong type", static, nil, []variant.Variant{variant.Int(1), variant.String("x")}, variant.Nil(), abi.CallErrorInvalidArgument, 1},
		{"nil receiver", add, (*counter)(nil), []variant.Variant{variant.Int(1)}, variant.Nil(), abi.CallErrorInstanceIsNull, 0},
		{"wrong receiver", add, "str", []variant.Variant{variant.Int(1)}, variant.Nil(), abi.CallErrorInstanceIsNull, 0},
		{"static", static, nil, []variant.Variant{variant.Int(4), variant.Int(5)}, variant.Int(9), abi.CallOK, 0},
		{"string result", name, c, []variant.Variant{variant.String("p")}, variant.String("p-counter"), abi.CallOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.f.Call(tt.recv, tt.args)
			ce := ToNative(err)
			if ce.Error != tt.kind {
				t.Fatalf("call error = %s (%v), want %s", ce.Error, err, tt.kind)
			}
			if ce.Argument != tt.argument {
				t.Errorf("argument = %d, want %d", ce.Argument, tt.argument)
			}
			if tt.kind == abi.CallOK && !variant.Equal(got, tt.want) {
				t.Errorf("result = %v, want %v", got, tt.want)
			}
		})
	}

	// Errors returned by the body pass through unchanged.
	_, err := name.Call(c, []variant.Variant{variant.String("")})
	if err == nil || err.Error() != "empty prefix" {
		t.Errorf("body error = %v", err)
	}
	if ToNative(err).Error != abi.CallErrorInvalidMethod {
		t.Errorf("body error maps to %s", ToNative(err).Error)
	}
}

func TestCallError_Message(t *testing.T) {
	err := &CallError{
		Kind:     abi.CallErrorInvalidArgument,
		Argument: 2,
		Expected: int32(variant.TypeString),
		Cause:    errors.Overflow(errors.PhaseDecode, nil, 1, "int8"),
	}
	msg := err.Error()
	for _, want := range []string{"invalid argument 2", "expected String", "overflow"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q lacks %q", msg, want)
		}
	}
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindOverflow}) {
		t.Error("cause not unwrapped")
	}
}

func TestToNative_WrappedCallError(t *testing.T) {
	ce := &CallError{Kind: abi.CallErrorTooFewArguments, Expected: 2}
	tests := []struct {
		name string
		err  error
		want abi.CallErrorType
	}{
		{"nil", nil, abi.CallOK},
		{"direct", ce, abi.CallErrorTooFewArguments},
		{"fmt wrapped", fmt.Errorf("bind: %w", ce), abi.CallErrorTooFewArguments},
		{"structured wrap", errors.Wrap(errors.PhaseCall, errors.KindCallFailed, ce, "callable"), abi.CallErrorTooFewArguments},
		{"plain error", stderrors.New("nope"), abi.CallErrorInvalidMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToNative(tt.err)
			if got.Error != tt.want {
				t.Fatalf("kind = %s, want %s", got.Error, tt.want)
			}
			if tt.want == abi.CallErrorTooFewArguments && got.Expected != 2 {
				t.Errorf("expected = %d, want 2", got.Expected)
			}
		})
	}
}

func newMarshaller(t *testing.T) (*codec.Marshaller, *abi.Interface, *hosttest.Host) {
	t.Helper()
	h := hosttest.New()
	iface, err := abi.LoadInterface(h.GetProcAddress)
	if err != nil {
		t.Fatal(err)
	}
	return codec.NewMarshaller(iface), iface, h
}

func TestFunc_PtrCall(t *testing.T) {
	m, iface, h := newMarshaller(t)
	r := codec.NewRegistry()
	c := &counter{}

	add, _ := Compile((*counter).Add, false, r)
	by := int64(5)
	var ret int64
	if err := add.PtrCall(m, c, []unsafe.Pointer{unsafe.Pointer(&by)}, unsafe.Pointer(&ret)); err != nil {
		t.Fatal(err)
	}
	if ret != 5 || c.n != 5 {
		t.Errorf("ret = %d, n = %d", ret, c.n)
	}

	name, _ := Compile((*counter).Name, false, r)
	var in, out abi.String
	iface.StringNew(&in, "ptr")
	if err := name.PtrCall(m, c, []unsafe.Pointer{unsafe.Pointer(&in)}, unsafe.Pointer(&out)); err != nil {
		t.Fatal(err)
	}
	if got := iface.StringToUTF8(&out); got != "ptr-counter" {
		t.Errorf("string result = %q", got)
	}
	iface.StringDestroy(&in)
	iface.StringDestroy(&out)

	reset, _ := Compile((*counter).Reset, false, r)
	if err := reset.Invoker(m)(c, nil, nil); err != nil || c.n != 0 {
		t.Errorf("reset: n = %d, err = %v", c.n, err)
	}
	if err := reset.PtrCall(m, c, []unsafe.Pointer{nil}, nil); ToNative(err).Error != abi.CallErrorTooManyArguments {
		t.Errorf("arity: err = %v", err)
	}

	if n := h.LiveHandles(); n != 0 {
		t.Errorf("live handles = %d", n)
	}
}

func TestTable(t *testing.T) {
	_, iface, h := newMarshaller(t)
	nt := names.NewTable(iface)
	defer nt.Close()

	table := NewTable("Widget")
	process := nt.Intern("_process")
	ready := nt.Intern("_ready")
	called := ""
	inv := func(name string) Invoker {
		return func(any, []unsafe.Pointer, unsafe.Pointer) error { called = name; return nil }
	}

	if err := table.Add(process, inv("_process")); err != nil {
		t.Fatal(err)
	}
	if err := table.Add(ready, inv("_ready")); err != nil {
		t.Fatal(err)
	}
	if err := table.Add(nt.Intern("_process"), inv("again")); errors.KindOf(err) != errors.KindDuplicateMember {
		t.Errorf("duplicate: err = %v", err)
	}

	got, ok := table.Resolve(process)
	if !ok {
		t.Fatal("_process not resolved")
	}
	_ = got(nil, nil, nil)
	if called != "_process" {
		t.Errorf("called %q", called)
	}
	if _, ok := table.Resolve(nt.Intern("_input")); ok {
		t.Error("unknown override resolved")
	}
	if _, ok := table.Resolve(nil); ok {
		t.Error("nil name resolved")
	}
	if table.Len() != 2 || strings.Join(table.Names(), ",") != "_process,_ready" {
		t.Errorf("Len = %d, Names = %v", table.Len(), table.Names())
	}

	table.Clear()
	if table.Len() != 0 {
		t.Errorf("Len after Clear = %d", table.Len())
	}
	_ = h
}

func withObservedLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })
	return logs
}

func TestGuard_RecoversPanic(t *testing.T) {
	logs := withObservedLogs(t)

	var reported []string
	g := NewGuard(PolicyDefaultReturn, func(desc, fn string) { reported = append(reported, fn+": "+desc) })
	exited := false
	g.SetExit(func(int) { exited = true })

	ok := g.Call("Widget", "_process", func() error { panic("boom") })
	if ok || exited {
		t.Errorf("ok = %v, exited = %v", ok, exited)
	}
	if len(reported) != 1 || reported[0] != "Widget._process: panic: boom" {
		t.Errorf("reported = %v", reported)
	}
	entries := logs.FilterMessage("panic at native boundary").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["class"] != "Widget" || fields["method"] != "_process" || fields["panic"] != "boom" {
		t.Errorf("fields = %v", fields)
	}
}

func TestGuard_Policies(t *testing.T) {
	withObservedLogs(t)

	tests := []struct {
		name   string
		policy Policy
		fn     func() error
		ok     bool
		exit   bool
	}{
		{"success", PolicyTerminate, func() error { return nil }, true, false},
		{"error default", PolicyDefaultReturn, func() error { return stderrors.New("bad") }, false, false},
		{"error terminate", PolicyTerminate, func() error { return stderrors.New("bad") }, false, true},
		{"panic terminate", PolicyTerminate, func() error { panic(stderrors.New("worse")) }, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(tt.policy, nil)
			code := -1
			g.SetExit(func(c int) { code = c })
			if ok := g.Call("C", "m", tt.fn); ok != tt.ok {
				t.Errorf("ok = %v", ok)
			}
			if (code == 1) != tt.exit {
				t.Errorf("exit code = %d, want exit %v", code, tt.exit)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Policy
		ok   bool
	}{
		{"", PolicyDefaultReturn, true},
		{"default", PolicyDefaultReturn, true},
		{"terminate", PolicyTerminate, true},
		{"abort", PolicyDefaultReturn, false},
	} {
		got, ok := ParsePolicy(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParsePolicy(%q) = %s, %v", tt.in, got, ok)
		}
	}
}
