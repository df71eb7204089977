package classdb

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/handle"
	"github.com/wippyai/gdext/names"
	"github.com/wippyai/gdext/object"
	"github.com/wippyai/gdext/variant"
)

// Member kinds. Names are unique per class within a kind.
const (
	memberConstant = "constant"
	memberProperty = "property"
	memberMethod   = "method"
	memberSignal   = "signal"
)

type method struct {
	class    *Descriptor
	name     *names.Name
	fn       *dispatch.Func
	args     []Arg
	defaults []variant.Variant // trailing, aligned to the last parameters
	flags    abi.MethodFlags
	handle   handle.Handle
}

type property struct {
	info   PropertyInfo
	getter *method
	setter *method
}

// Descriptor is the registration record of one class.
type Descriptor struct {
	name       *names.Name
	base       *names.Name
	nativeBase *names.Name
	parent     *Descriptor
	goType     reflect.Type
	ctor       func() object.Shadow
	virtuals   *dispatch.Table

	members    map[string]map[string]struct{}
	constants  []Constant
	properties []*property
	methods    map[string]*method
	order      []string
	signals    []Signal
	declared   []VirtualMethod

	userdata  handle.Handle
	instances atomic.Int64
	flags     Flags
	mu        sync.RWMutex
}

// Name returns the class name.
func (d *Descriptor) Name() string { return d.name.String() }

// Base returns the name of the direct base class.
func (d *Descriptor) Base() string { return d.base.String() }

// NativeBase returns the nearest engine class in the ancestry.
func (d *Descriptor) NativeBase() string { return d.nativeBase.String() }

// Flags returns the registration flags.
func (d *Descriptor) Flags() Flags { return d.flags }

// GoType returns the shadow type, or nil for classes registered by name.
func (d *Descriptor) GoType() reflect.Type { return d.goType }

// Instances returns the number of live instances.
func (d *Descriptor) Instances() int { return int(d.instances.Load()) }

// HasConstructor reports whether a constructor is bound.
func (d *Descriptor) HasConstructor() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ctor != nil
}

// Constants returns the bound constants in binding order.
func (d *Descriptor) Constants() []Constant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Constant(nil), d.constants...)
}

// Properties returns the bound properties in binding order.
func (d *Descriptor) Properties() []PropertyInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PropertyInfo, len(d.properties))
	for i, p := range d.properties {
		out[i] = p.info
	}
	return out
}

// Methods returns the bound method names in binding order.
func (d *Descriptor) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// Signals returns the bound signals in binding order.
func (d *Descriptor) Signals() []Signal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Signal(nil), d.signals...)
}

// VirtualMethods returns the declared virtual methods.
func (d *Descriptor) VirtualMethods() []VirtualMethod {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]VirtualMethod(nil), d.declared...)
}

// Overrides returns the names of bound virtual overrides.
func (d *Descriptor) Overrides() []string { return d.virtuals.Names() }

// claim reserves name in kind. Callers hold d.mu.
func (d *Descriptor) claim(kind, name string) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseRegister, kind+" name is empty")
	}
	set := d.members[kind]
	if set == nil {
		set = make(map[string]struct{})
		d.members[kind] = set
	}
	if _, dup := set[name]; dup {
		return errors.DuplicateMember(d.Name(), kind, name)
	}
	set[name] = struct{}{}
	return nil
}

func (d *Descriptor) unclaim(kind, name string) {
	delete(d.members[kind], name)
}

// findMethod looks name up along the extension class chain.
func (d *Descriptor) findMethod(name string) *method {
	for c := d; c != nil; c = c.parent {
		c.mu.RLock()
		m := c.methods[name]
		c.mu.RUnlock()
		if m != nil {
			return m
		}
	}
	return nil
}

func (d *Descriptor) findProperty(name string) *property {
	for c := d; c != nil; c = c.parent {
		c.mu.RLock()
		for _, p := range c.properties {
			if p.info.Name == name {
				c.mu.RUnlock()
				return p
			}
		}
		c.mu.RUnlock()
	}
	return nil
}

// constructor returns the bound constructor. Constructors are not inherited.
func (d *Descriptor) constructor() func() object.Shadow {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ctor
}

// resolveVirtual finds an override for name along the class chain.
func (d *Descriptor) resolveVirtual(name *names.Name) (dispatch.Invoker, bool) {
	for c := d; c != nil; c = c.parent {
		if inv, ok := c.virtuals.Resolve(name); ok {
			return inv, true
		}
	}
	return nil, false
}
