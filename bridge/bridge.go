package bridge

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/callable"
	"github.com/wippyai/gdext/classdb"
	"github.com/wippyai/gdext/codec"
	"github.com/wippyai/gdext/config"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/names"
	"github.com/wippyai/gdext/object"
)

// libraries holds the tokens of initialized libraries.
var (
	libraries   = make(map[abi.LibraryPtr]struct{})
	librariesMu sync.Mutex
)

func claim(lib abi.LibraryPtr) bool {
	librariesMu.Lock()
	defer librariesMu.Unlock()
	if _, ok := libraries[lib]; ok {
		return false
	}
	libraries[lib] = struct{}{}
	return true
}

func unclaim(lib abi.LibraryPtr) {
	librariesMu.Lock()
	delete(libraries, lib)
	librariesMu.Unlock()
}

// Runtime is the state of one initialized library.
type Runtime struct {
	iface     *abi.Interface
	cfg       *config.Config
	logger    *zap.Logger
	names     *names.Table
	objects   *object.Bridge
	codecs    *codec.Registry
	guard     *dispatch.Guard
	classes   *classdb.Registry
	callables *callable.Bridge
	version   abi.GodotVersion

	initializers []Initializer
	terminators  []Terminator

	lib     abi.LibraryPtr
	minimum Level
	up      [abi.LevelMax]bool
	closed  bool
	mu      sync.Mutex
}

// Initialize sets up the bridge for library lib and fills init for the
// host. It may be called once per library until the library is torn down.
func Initialize(getProc abi.GetProcAddress, lib abi.LibraryPtr, init *abi.Initialization, configure func(*Configuration) error) (*Runtime, error) {
	if init == nil {
		return nil, errors.InvalidInput(errors.PhaseInit, "nil initialization struct")
	}
	if !claim(lib) {
		return nil, errors.New(errors.PhaseInit, errors.KindInvalidInput).
			Value(uint64(lib)).
			Detail("library %#x is already initialized", uint64(lib)).
			Build()
	}
	rt, err := newRuntime(getProc, lib, configure)
	if err != nil {
		unclaim(lib)
		return nil, err
	}
	*init = abi.Initialization{
		MinimumLevel: rt.minimum,
		Initialize:   rt.initialize,
		Deinitialize: rt.deinitialize,
	}
	return rt, nil
}

func newRuntime(getProc abi.GetProcAddress, lib abi.LibraryPtr, configure func(*Configuration) error) (*Runtime, error) {
	iface, err := abi.LoadInterface(getProc)
	if err != nil {
		return nil, err
	}

	c := newConfiguration()
	if configure != nil {
		if err := configure(c); err != nil {
			return nil, err
		}
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	minimum, _ := c.cfg.Level()
	policy, _ := c.cfg.Policy()

	logger := c.logger
	if logger == nil {
		logger, err = c.cfg.ZapConfig().Build()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "cannot build logger")
		}
	}
	logger = logger.With(zap.String("extension", c.cfg.Extension.Name))
	installLoggers(logger)
	errors.SetDebug(c.cfg.Runtime.DebugAsserts)

	rt := &Runtime{
		iface:        iface,
		cfg:          c.cfg,
		logger:       logger,
		lib:          lib,
		minimum:      minimum,
		initializers: c.initializers,
		terminators:  c.terminators,
	}
	rt.guard = dispatch.NewGuard(policy, func(desc, fn string) {
		iface.PrintError(desc, fn, "", 0, false)
	})
	rt.names = names.NewTable(iface)
	rt.objects = object.NewBridge(iface, lib)
	rt.codecs = codec.NewRegistry()
	rt.codecs.SetObjectResolver(rt.objects)
	rt.classes = classdb.NewRegistry(classdb.Options{
		Interface: iface,
		Names:     rt.names,
		Objects:   rt.objects,
		Codecs:    rt.codecs,
		Guard:     rt.guard,
		Library:   lib,
	})
	rt.callables = callable.NewBridge(callable.Options{
		Interface: iface,
		Codecs:    rt.codecs,
		Guard:     rt.guard,
		Library:   lib,
	})
	iface.GetGodotVersion(&rt.version)

	logger.Info("bridge initialized",
		zap.String("host", versionString(rt.version)),
		zap.Stringer("minimum_level", minimum),
		zap.Stringer("virtual_failure", policy),
		zap.Bool("debug_asserts", c.cfg.Runtime.DebugAsserts))
	return rt, nil
}

func installLoggers(l *zap.Logger) {
	errors.SetLogger(l.Named("errors"))
	object.SetLogger(l.Named("object"))
	dispatch.SetLogger(l.Named("dispatch"))
	classdb.SetLogger(l.Named("classdb"))
	callable.SetLogger(l.Named("callable"))
}

func versionString(v abi.GodotVersion) string {
	s := fmt.Sprintf("%d.%d", v.Major, v.Minor)
	if v.Patch > 0 {
		s += fmt.Sprintf(".%d", v.Patch)
	}
	if v.Status != "" {
		s += "." + v.Status
	}
	return s
}

func (rt *Runtime) initialize(_ uintptr, level Level) {
	if level < rt.minimum || level >= abi.LevelMax {
		return
	}
	rt.mu.Lock()
	if rt.closed || rt.up[level] {
		rt.mu.Unlock()
		rt.logger.Warn("level initialized twice", zap.Stringer("level", level))
		return
	}
	rt.up[level] = true
	rt.mu.Unlock()

	rt.logger.Debug("initializing level", zap.Stringer("level", level))
	for _, fn := range rt.initializers {
		rt.guard.Call("", "initialize "+level.String(), func() error {
			return fn(rt, level)
		})
	}
}

func (rt *Runtime) deinitialize(_ uintptr, level Level) {
	if level < rt.minimum || level >= abi.LevelMax {
		return
	}
	rt.mu.Lock()
	if !rt.up[level] {
		rt.mu.Unlock()
		return
	}
	rt.up[level] = false
	rt.mu.Unlock()

	rt.logger.Debug("deinitializing level", zap.Stringer("level", level))
	for i := len(rt.terminators) - 1; i >= 0; i-- {
		fn := rt.terminators[i]
		rt.guard.Call("", "deinitialize "+level.String(), func() error {
			fn(rt, level)
			return nil
		})
	}
	if level == rt.minimum {
		rt.teardown()
	}
}

// teardown releases everything the runtime owns. Objects go first: the
// host frees extension instances through their class callbacks, so the
// classes must still be registered.
func (rt *Runtime) teardown() {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return
	}
	rt.closed = true
	rt.mu.Unlock()

	rt.objects.DisposeAll()
	rt.classes.UnregisterAll()
	if err := rt.callables.Close(); err != nil {
		rt.logger.Warn("closing callables", zap.Error(err))
	}
	rt.names.Close()
	unclaim(rt.lib)
	rt.logger.Info("bridge terminated")
	_ = rt.logger.Sync()
}

// Interface returns the host interface.
func (rt *Runtime) Interface() *abi.Interface { return rt.iface }

// Library returns the library token.
func (rt *Runtime) Library() abi.LibraryPtr { return rt.lib }

// Version returns the host version.
func (rt *Runtime) Version() abi.GodotVersion { return rt.version }

// Config returns the settings the runtime was built with.
func (rt *Runtime) Config() *config.Config { return rt.cfg }

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *zap.Logger { return rt.logger }

// MinimumLevel returns the lowest level the extension runs at.
func (rt *Runtime) MinimumLevel() Level { return rt.minimum }

// Initialized reports whether level is currently initialized.
func (rt *Runtime) Initialized(level Level) bool {
	if level < 0 || level >= abi.LevelMax {
		return false
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.up[level]
}

// Closed reports whether the runtime has been torn down.
func (rt *Runtime) Closed() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.closed
}

func (rt *Runtime) Names() *names.Table         { return rt.names }
func (rt *Runtime) Objects() *object.Bridge     { return rt.objects }
func (rt *Runtime) Codecs() *codec.Registry     { return rt.codecs }
func (rt *Runtime) Classes() *classdb.Registry  { return rt.classes }
func (rt *Runtime) Callables() *callable.Bridge { return rt.callables }
func (rt *Runtime) Guard() *dispatch.Guard      { return rt.guard }
