package bridge

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/classdb"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/host/hosttest"
	"github.com/wippyai/gdext/object"
)

type counter struct {
	object.Object
	n int64
}

func (c *counter) Bump() int64 {
	c.n++
	return c.n
}

func newHost(t *testing.T, opts ...hosttest.Option) (*hosttest.Host, *observer.ObservedLogs, zapcore.Core) {
	t.Helper()
	h := hosttest.New(opts...)
	core, logs := observer.New(zap.DebugLevel)
	t.Cleanup(func() {
		unclaim(h.Library())
		installLoggers(zap.NewNop())
		errors.SetDebug(false)
	})
	return h, logs, core
}

func TestLifecycle(t *testing.T) {
	h, logs, core := newHost(t)
	var trace []string
	var init abi.Initialization

	rt, err := Initialize(h.GetProcAddress, h.Library(), &init, func(c *Configuration) error {
		c.SetLogger(zap.New(core))
		c.SetMinimumLevel(LevelScene)
		c.RegisterInitializer(func(rt *Runtime, l Level) error {
			trace = append(trace, "init "+l.String())
			if l != LevelScene {
				return nil
			}
			return classdb.RegisterClass[counter](rt.Classes(), "Counter", "Node", func(c *classdb.Context) error {
				return c.BindMethod("Bump", (*counter).Bump)
			})
		})
		c.RegisterTerminator(func(_ *Runtime, l Level) { trace = append(trace, "a "+l.String()) })
		c.RegisterTerminator(func(_ *Runtime, l Level) { trace = append(trace, "b "+l.String()) })
		return nil
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if init.MinimumLevel != LevelScene || rt.MinimumLevel() != LevelScene {
		t.Fatalf("minimum level = %s", init.MinimumLevel)
	}

	h.Initialize(&init)
	if !rt.Initialized(LevelScene) || !rt.Initialized(LevelEditor) || rt.Initialized(LevelCore) {
		t.Error("initialized levels mismatch")
	}
	if got := h.Classes(); !slices.Equal(got, []string{"Counter"}) {
		t.Fatalf("classes = %v", got)
	}

	obj, err := h.Instantiate("Counter")
	if err != nil {
		t.Fatal(err)
	}
	ret, cerr := h.Call(obj, "Bump")
	if cerr.Error != abi.CallOK || ret.Int() != 1 {
		t.Errorf("Bump = %d (%s)", ret.Int(), cerr.Error)
	}
	// Left for teardown to drop.
	if _, err := rt.Callables().FromFunc(func() {}, nil); err != nil {
		t.Fatal(err)
	}

	h.Deinitialize(&init)

	want := []string{"init scene", "init editor", "b editor", "a editor", "b scene", "a scene"}
	if !slices.Equal(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
	if !rt.Closed() {
		t.Error("runtime not torn down")
	}
	if got := h.Unregistered(); !slices.Equal(got, []string{"Counter"}) {
		t.Errorf("unregistered = %v", got)
	}
	if h.Objects() != 0 {
		t.Errorf("%d objects survived teardown", h.Objects())
	}
	if rt.Callables().Len() != 0 {
		t.Errorf("%d callables survived teardown", rt.Callables().Len())
	}
	if errs := h.Errors(); len(errs) != 0 {
		t.Errorf("host errors: %v", errs)
	}
	for _, msg := range []string{"bridge initialized", "bridge terminated", "class registered"} {
		if logs.FilterMessage(msg).Len() != 1 {
			t.Errorf("log %q missing", msg)
		}
	}
	if e := logs.FilterMessage("bridge initialized").All(); len(e) == 1 {
		if e[0].ContextMap()["extension"] != "extension" {
			t.Errorf("context = %v", e[0].ContextMap())
		}
	}
}

func TestInitialize_Once(t *testing.T) {
	h, _, core := newHost(t)
	configure := func(c *Configuration) error {
		c.SetLogger(zap.New(core))
		c.SetMinimumLevel(LevelCore)
		return nil
	}

	var init abi.Initialization
	if _, err := Initialize(h.GetProcAddress, h.Library(), &init, configure); err != nil {
		t.Fatal(err)
	}
	var again abi.Initialization
	if _, err := Initialize(h.GetProcAddress, h.Library(), &again, configure); errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("second Initialize: %v", err)
	}

	// A torn down library may be loaded again.
	h.Initialize(&init)
	h.Deinitialize(&init)
	if _, err := Initialize(h.GetProcAddress, h.Library(), &again, configure); err != nil {
		t.Errorf("Initialize after teardown: %v", err)
	}
}

func TestInitialize_Errors(t *testing.T) {
	tests := []struct {
		name      string
		opts      []hosttest.Option
		nilInit   bool
		configure func(*Configuration) error
		kind      errors.Kind
	}{
		{
			name:    "nil initialization",
			nilInit: true,
			kind:    errors.KindInvalidInput,
		},
		{
			name: "missing host function",
			opts: []hosttest.Option{hosttest.WithoutProc("classdb_register_extension_class")},
			kind: errors.KindNotFound,
		},
		{
			name: "configure fails",
			configure: func(*Configuration) error {
				return errors.InvalidInput(errors.PhaseInit, "no")
			},
			kind: errors.KindInvalidInput,
		},
		{
			name: "invalid settings",
			configure: func(c *Configuration) error {
				c.Config().Runtime.VirtualFailure = "shrug"
				return nil
			},
			kind: errors.KindInvalidInput,
		},
		{
			name: "missing file",
			configure: func(c *Configuration) error {
				return c.LoadFile(filepath.Join(os.TempDir(), "no-such-dir", "gdext.toml"))
			},
			kind: errors.KindNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, core := newHost(t, tt.opts...)
			init := &abi.Initialization{}
			if tt.nilInit {
				init = nil
			}
			configure := func(c *Configuration) error {
				c.SetLogger(zap.New(core))
				if tt.configure != nil {
					return tt.configure(c)
				}
				return nil
			}
			_, err := Initialize(h.GetProcAddress, h.Library(), init, configure)
			if got := errors.KindOf(err); got != tt.kind {
				t.Fatalf("kind = %q, want %q (%v)", got, tt.kind, err)
			}
			// A failed Initialize leaves the library free.
			if !tt.nilInit && !claim(h.Library()) {
				t.Error("library still claimed")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	h, _, core := newHost(t)
	path := filepath.Join(t.TempDir(), "gdext.toml")
	content := "[extension]\nname = \"probe\"\nminimum_level = \"core\"\n[runtime]\nvirtual_failure = \"terminate\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	var init abi.Initialization
	rt, err := Initialize(h.GetProcAddress, h.Library(), &init, func(c *Configuration) error {
		c.SetLogger(zap.New(core))
		c.SetMinimumLevel(LevelEditor)
		return c.LoadFile(path)
	})
	if err != nil {
		t.Fatal(err)
	}
	if rt.MinimumLevel() != LevelCore || init.MinimumLevel != LevelCore {
		t.Errorf("minimum level = %s, want core from the file", rt.MinimumLevel())
	}
	if rt.Guard().Policy() != dispatch.PolicyTerminate {
		t.Errorf("policy = %s", rt.Guard().Policy())
	}
	if rt.Config().Extension.Name != "probe" {
		t.Errorf("name = %q", rt.Config().Extension.Name)
	}
	if v := rt.Version(); v.Major != 4 {
		t.Errorf("version = %+v", v)
	}
}

func TestInitializer_FailuresContained(t *testing.T) {
	h, logs, core := newHost(t)
	ran := 0
	var init abi.Initialization
	_, err := Initialize(h.GetProcAddress, h.Library(), &init, func(c *Configuration) error {
		c.SetLogger(zap.New(core))
		c.SetMinimumLevel(LevelEditor)
		c.RegisterInitializer(func(*Runtime, Level) error { return stderrors.New("bad setup") })
		c.RegisterInitializer(func(*Runtime, Level) error { panic("worse setup") })
		c.RegisterInitializer(func(*Runtime, Level) error { ran++; return nil })
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	h.Initialize(&init)
	// Repeated initialization of a live level is ignored.
	init.Initialize(init.Userdata, LevelEditor)

	if ran != 1 {
		t.Errorf("later initializer ran %d times", ran)
	}
	errs := strings.Join(h.Errors(), "\n")
	if !strings.Contains(errs, "bad setup") || !strings.Contains(errs, "panic: worse setup") {
		t.Errorf("failures not reported: %s", errs)
	}
	if logs.FilterMessage("panic at native boundary").Len() != 1 {
		t.Error("panic not logged")
	}
	if logs.FilterMessage("level initialized twice").Len() != 1 {
		t.Error("repeat not logged")
	}
	h.Deinitialize(&init)
}

func TestDebugAssertsFromConfig(t *testing.T) {
	h, _, core := newHost(t)
	var init abi.Initialization
	_, err := Initialize(h.GetProcAddress, h.Library(), &init, func(c *Configuration) error {
		c.SetLogger(zap.New(core))
		c.Config().Runtime.DebugAsserts = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Debug() {
		t.Error("debug asserts not enabled")
	}
}
