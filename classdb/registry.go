package classdb

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/codec"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/handle"
	"github.com/wippyai/gdext/names"
	"github.com/wippyai/gdext/object"
)

// Options wires a Registry to the rest of the bridge. Interface is
// required; missing components are created over it.
type Options struct {
	Interface *abi.Interface
	Names     *names.Table
	Objects   *object.Bridge
	Codecs    *codec.Registry
	Guard     *dispatch.Guard
	Library   abi.LibraryPtr
}

// Registry is the class database of one extension library.
type Registry struct {
	iface     *abi.Interface
	names     *names.Table
	objects   *object.Bridge
	codecs    *codec.Registry
	marshal   *codec.Marshaller
	guard     *dispatch.Guard
	classes   map[string]*Descriptor
	stack     []*Descriptor
	instances *handle.Table[*instance]
	userdata  *handle.Table[*Descriptor]
	methods   *handle.Table[*method]
	lib       abi.LibraryPtr
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(o Options) *Registry {
	r := &Registry{
		iface:     o.Interface,
		lib:       o.Library,
		names:     o.Names,
		objects:   o.Objects,
		codecs:    o.Codecs,
		guard:     o.Guard,
		marshal:   codec.NewMarshaller(o.Interface),
		classes:   make(map[string]*Descriptor, 16),
		instances: handle.New[*instance](),
		userdata:  handle.New[*Descriptor](),
		methods:   handle.New[*method](),
	}
	if r.names == nil {
		r.names = names.NewTable(o.Interface)
	}
	if r.objects == nil {
		r.objects = object.NewBridge(o.Interface, o.Library)
	}
	if r.codecs == nil {
		r.codecs = codec.NewRegistry()
		r.codecs.SetObjectResolver(r.objects)
	}
	if r.guard == nil {
		r.guard = dispatch.NewGuard(dispatch.PolicyDefaultReturn, func(desc, fn string) {
			o.Interface.PrintError(desc, fn, "", 0, false)
		})
	}
	return r
}

// Names returns the interned name table.
func (r *Registry) Names() *names.Table { return r.names }

// Objects returns the object bridge.
func (r *Registry) Objects() *object.Bridge { return r.objects }

// Codecs returns the codec registry used for bound members.
func (r *Registry) Codecs() *codec.Registry { return r.codecs }

// Register announces class typeName deriving from base, then runs
// configure against its descriptor. Repeated calls for the same name reuse
// the descriptor and only run configure; they must agree on base and
// flags. configure may be nil.
func (r *Registry) Register(typeName, base string, flags Flags, configure func(*Context) error) error {
	return r.register(typeName, base, flags, nil, configure)
}

func (r *Registry) register(typeName, base string, flags Flags, goType reflect.Type, configure func(*Context) error) error {
	if typeName == "" || base == "" {
		return errors.InvalidInput(errors.PhaseRegister, "class and base names are required")
	}
	if typeName == base {
		return errors.InvalidInput(errors.PhaseRegister, "class "+typeName+" can't derive from itself")
	}

	d, err := r.descriptor(typeName, base, flags, goType)
	if err != nil {
		return err
	}
	if configure == nil {
		return nil
	}
	// configure runs without the registry lock so it may register other
	// classes.
	return configure(&Context{r: r, d: d})
}

// descriptor returns the descriptor for typeName, creating and announcing
// it on first use.
func (r *Registry) descriptor(typeName, base string, flags Flags, goType reflect.Type) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.classes[typeName]; ok {
		if d.Base() != base || d.flags != flags {
			return nil, errors.New(errors.PhaseRegister, errors.KindRegistration).
				Path(typeName).
				Detail("class %q already registered as %s deriving from %q", typeName, d.flags, d.Base()).
				Build()
		}
		if goType != nil && d.goType != nil && goType != d.goType {
			return nil, errors.New(errors.PhaseRegister, errors.KindRegistration).
				Path(typeName).
				GoType(goType.String()).
				Detail("class %q is bound to %s", typeName, d.goType).
				Build()
		}
		if d.goType == nil {
			d.goType = goType
		}
		return d, nil
	}

	d := &Descriptor{
		name:     r.names.Intern(typeName),
		base:     r.names.Intern(base),
		parent:   r.classes[base],
		goType:   goType,
		flags:    flags,
		virtuals: dispatch.NewTable(typeName),
		members:  make(map[string]map[string]struct{}, 4),
		methods:  make(map[string]*method, 8),
	}
	if d.parent != nil {
		d.nativeBase = d.parent.nativeBase.Retain()
	} else {
		d.nativeBase = d.base.Retain()
	}

	h, err := r.userdata.Insert(d)
	if err != nil {
		r.releaseNames(d)
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindNotInitialized, err, "class registry is closed")
	}
	d.userdata = h

	info := r.creationInfo(d)
	r.iface.ClassDBRegisterExtensionClass(r.lib, d.name.Native(), d.base.Native(), &info)

	r.classes[typeName] = d
	r.stack = append(r.stack, d)
	Logger().Debug("class registered",
		zap.String("class", typeName),
		zap.String("base", base),
		zap.Stringer("flags", flags))
	return d, nil
}

func (r *Registry) creationInfo(d *Descriptor) abi.ClassCreationInfo {
	return abi.ClassCreationInfo{
		IsVirtual:  d.flags.Has(FlagVirtual),
		IsAbstract: d.flags.Has(FlagAbstract),
		IsExposed:  !d.flags.Has(FlagInternal),
		IsRuntime:  d.flags.Has(FlagRuntime),

		Set:               r.set,
		Get:               r.get,
		GetPropertyList:   r.propertyList,
		FreePropertyList:  r.freePropertyList,
		PropertyCanRevert: r.canRevert,
		PropertyGetRevert: r.getRevert,
		ValidateProperty:  r.validateProperty,
		Notification:      r.notification,
		ToString:          r.toString,
		CreateInstance:    r.createInstance,
		FreeInstance:      r.freeInstance,
		GetVirtual:        r.getVirtual,

		ClassUserdata: abi.ClassUserdata(d.userdata),
	}
}

// Class returns the descriptor registered under name.
func (r *Registry) Class(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.classes[name]
	return d, ok
}

// Classes returns the registered class names in registration order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.stack))
	for i, d := range r.stack {
		out[i] = d.Name()
	}
	return out
}

// Instantiate asks the host to construct class and returns its shadow.
func (r *Registry) Instantiate(class string) (object.Shadow, error) {
	d, ok := r.Class(class)
	if !ok {
		return nil, errors.UnknownClass(class)
	}
	if d.flags.Has(FlagAbstract) {
		return nil, errors.New(errors.PhaseLifecycle, errors.KindAbstractMismatch).
			Path(class).
			Detail("can't instantiate abstract class %q", class).
			Build()
	}
	if !d.HasConstructor() {
		return nil, errors.MissingConstructor(class)
	}
	ptr := r.iface.ClassDBConstructObject(d.name.Native())
	if ptr == 0 {
		return nil, errors.New(errors.PhaseLifecycle, errors.KindInvalidHandle).
			Path(class).
			Detail("host returned a null object").
			Build()
	}
	s, ok := r.objects.Lookup(ptr)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseLifecycle, "object", uint64(ptr))
	}
	return s, nil
}

// UnregisterAll unregisters every class in reverse registration order and
// drops the descriptors. Instances should be disposed first: the host frees
// them through the class callbacks.
func (r *Registry) UnregisterAll() {
	r.mu.Lock()
	stack := r.stack
	r.stack = nil
	r.classes = make(map[string]*Descriptor, 16)
	r.mu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		d := stack[i]
		if n := d.Instances(); n > 0 {
			Logger().Warn("unregistering class with live instances",
				zap.String("class", d.Name()),
				zap.Int("instances", n))
		}
		r.iface.ClassDBUnregisterExtensionClass(r.lib, d.name.Native())
		r.drop(d)
		Logger().Debug("class unregistered", zap.String("class", d.Name()))
	}
}

// drop releases everything a descriptor holds.
func (r *Registry) drop(d *Descriptor) {
	d.mu.Lock()
	methods := d.methods
	d.methods = make(map[string]*method)
	d.order = nil
	d.properties = nil
	d.constants = nil
	d.signals = nil
	d.declared = nil
	clear(d.members)
	d.mu.Unlock()

	for _, m := range methods {
		r.methods.Remove(m.handle)
		m.name.Release()
	}
	d.virtuals.Clear()
	r.userdata.Remove(d.userdata)
	r.releaseNames(d)
}

func (r *Registry) releaseNames(d *Descriptor) {
	for _, n := range []*names.Name{d.name, d.base, d.nativeBase} {
		if n != nil {
			n.Release()
		}
	}
}

// RegisterClass registers T as an instantiable class.
func RegisterClass[T any, PT shadowPtr[T]](r *Registry, name, base string, configure func(*Context) error) error {
	return registerTyped[T, PT](r, name, base, 0, configure)
}

// RegisterRuntimeClass registers T as a class whose logic only runs
// outside the editor.
func RegisterRuntimeClass[T any, PT shadowPtr[T]](r *Registry, name, base string, configure func(*Context) error) error {
	return registerTyped[T, PT](r, name, base, FlagRuntime, configure)
}

// RegisterVirtualClass registers T as a class scripts may extend.
func RegisterVirtualClass[T any, PT shadowPtr[T]](r *Registry, name, base string, configure func(*Context) error) error {
	return registerTyped[T, PT](r, name, base, FlagVirtual, configure)
}

// RegisterAbstractClass registers T as a class that is never instantiated.
// No constructor is bound.
func RegisterAbstractClass[T any, PT shadowPtr[T]](r *Registry, name, base string, configure func(*Context) error) error {
	return registerTyped[T, PT](r, name, base, FlagAbstract, configure)
}

// RegisterInternalClass registers T hidden from the editor.
func RegisterInternalClass[T any, PT shadowPtr[T]](r *Registry, name, base string, configure func(*Context) error) error {
	return registerTyped[T, PT](r, name, base, FlagInternal, configure)
}

type shadowPtr[T any] interface {
	*T
	object.Shadow
}

func registerTyped[T any, PT shadowPtr[T]](r *Registry, name, base string, flags Flags, configure func(*Context) error) error {
	goType := reflect.TypeFor[PT]()
	abstract := flags.Has(FlagAbstract)
	if _, marked := any(PT(new(T))).(AbstractType); marked && !abstract {
		return errors.AbstractMismatch(name)
	}
	return r.register(name, base, flags, goType, func(c *Context) error {
		var err error
		if configure != nil {
			err = configure(c)
		}
		// A constructor bound by configure wins over the zero value.
		if !abstract {
			c.bindDefaultConstructor(func() object.Shadow { return PT(new(T)) })
		}
		return err
	})
}
