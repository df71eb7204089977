package classdb

import (
	"reflect"
	"slices"
	"strconv"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/codec"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/object"
	"github.com/wippyai/gdext/variant"
)

// Context binds members to one class during configure.
type Context struct {
	r *Registry
	d *Descriptor
}

// Class returns the descriptor being configured.
func (c *Context) Class() *Descriptor { return c.d }

// Registry returns the registry the class belongs to.
func (c *Context) Registry() *Registry { return c.r }

// BindConstant binds an integer constant.
func (c *Context) BindConstant(k Constant) error {
	if k.IsFlags && k.Enum == "" {
		return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Path(c.d.Name(), k.Name).
			Detail("flags constant %q must belong to an enum", k.Name).
			Build()
	}
	c.d.mu.Lock()
	if err := c.d.claim(memberConstant, k.Name); err != nil {
		c.d.mu.Unlock()
		return err
	}
	c.d.constants = append(c.d.constants, k)
	c.d.mu.Unlock()

	name := c.r.names.Intern(k.Name)
	defer name.Release()
	var enum *abi.StringName
	if k.Enum != "" {
		e := c.r.names.Intern(k.Enum)
		defer e.Release()
		enum = e.Native()
	}
	c.r.iface.ClassDBRegisterExtensionClassIntegerConstant(c.r.lib, c.d.name.Native(), enum, name.Native(), k.Value, k.IsFlags)
	return nil
}

// BindConstructor sets the function creating new shadows. Constructors
// are local: the host only sees them through instantiation.
func (c *Context) BindConstructor(ctor func() object.Shadow) error {
	if ctor == nil {
		return errors.InvalidInput(errors.PhaseRegister, "constructor is nil")
	}
	if c.d.flags.Has(FlagAbstract) {
		return errors.AbstractMismatch(c.d.Name())
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.d.ctor != nil {
		return errors.DuplicateMember(c.d.Name(), "constructor", c.d.Name())
	}
	c.d.ctor = ctor
	return nil
}

func (c *Context) bindDefaultConstructor(ctor func() object.Shadow) {
	c.d.mu.Lock()
	if c.d.ctor == nil {
		c.d.ctor = ctor
	}
	c.d.mu.Unlock()
}

// BindMethod binds fn as an instance method. fn takes the receiver first,
// as a method expression does: (*Widget).Increment. args name the
// parameters and give trailing defaults.
func (c *Context) BindMethod(name string, fn any, args ...Arg) error {
	return c.bindMethod(name, fn, false, abi.MethodFlagsDefault, args)
}

// BindConstMethod binds a method that does not modify its receiver.
func (c *Context) BindConstMethod(name string, fn any, args ...Arg) error {
	return c.bindMethod(name, fn, false, abi.MethodFlagsDefault|abi.MethodFlagConst, args)
}

// BindStaticMethod binds fn as a static method. fn takes no receiver.
func (c *Context) BindStaticMethod(name string, fn any, args ...Arg) error {
	return c.bindMethod(name, fn, true, abi.MethodFlagsDefault|abi.MethodFlagStatic, args)
}

func (c *Context) bindMethod(name string, fn any, static bool, flags abi.MethodFlags, args []Arg) error {
	m, err := c.prepare(name, fn, static, args)
	if err != nil {
		return err
	}
	m.flags = flags

	c.d.mu.Lock()
	if err := c.d.claim(memberMethod, name); err != nil {
		c.d.mu.Unlock()
		return err
	}
	h, err := c.r.methods.Insert(m)
	if err != nil {
		c.d.unclaim(memberMethod, name)
		c.d.mu.Unlock()
		return errors.Wrap(errors.PhaseRegister, errors.KindNotInitialized, err, "class registry is closed")
	}
	m.handle = h
	m.name = c.r.names.Intern(name)
	c.d.methods[name] = m
	c.d.order = append(c.d.order, name)
	c.d.mu.Unlock()

	if err := c.announce(m); err != nil {
		c.discard(m)
		return err
	}
	Logger().Debug("method bound",
		zap.String("class", c.d.Name()),
		zap.String("method", name),
		zap.Int("params", m.fn.NumParams()))
	return nil
}

// discard undoes the local half of a binding the host never saw.
func (c *Context) discard(m *method) {
	name := m.name.String()
	c.d.mu.Lock()
	c.d.unclaim(memberMethod, name)
	delete(c.d.methods, name)
	if i := slices.Index(c.d.order, name); i >= 0 {
		c.d.order = slices.Delete(c.d.order, i, i+1)
	}
	c.d.mu.Unlock()
	c.r.methods.Remove(m.handle)
	m.name.Release()
}

// prepare compiles fn and checks its arguments against the class.
func (c *Context) prepare(name string, fn any, static bool, args []Arg) (*method, error) {
	f, err := dispatch.Compile(fn, static, c.r.codecs)
	if err != nil {
		return nil, errors.Registration(c.d.Name(), name, err)
	}
	if !static {
		if err := c.checkReceiver(name, f.Receiver()); err != nil {
			return nil, err
		}
	}
	if len(args) > f.NumParams() {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Path(c.d.Name(), name).
			Detail("%d argument names for %d parameters", len(args), f.NumParams()).
			Build()
	}

	m := &method{class: c.d, fn: f, args: make([]Arg, f.NumParams())}
	copy(m.args, args)
	optional := false
	for i := range m.args {
		a := &m.args[i]
		if a.Name == "" {
			a.Name = "arg" + strconv.Itoa(i)
		}
		if !a.HasDefault {
			if optional {
				return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
					Path(c.d.Name(), name, a.Name).
					Detail("required parameter %q follows an optional one", a.Name).
					Build()
			}
			continue
		}
		optional = true
		def, err := defaultValue(f.Param(i), a.Default)
		if err != nil {
			return nil, errors.Registration(c.d.Name(), name+"."+a.Name, err)
		}
		m.defaults = append(m.defaults, def)
	}
	return m, nil
}

// checkReceiver rejects receivers the class shadow can't provide.
func (c *Context) checkReceiver(name string, recv reflect.Type) error {
	gt := c.d.GoType()
	if gt == nil || gt.AssignableTo(recv) {
		return nil
	}
	if gt.Kind() == reflect.Pointer {
		if _, ok := embeddedType(gt.Elem(), recv, 0); ok {
			return nil
		}
	}
	return errors.Registration(c.d.Name(), name,
		errors.TypeMismatch(errors.PhaseRegister, nil, recv.String(), gt.String()))
}

func embeddedType(t, want reflect.Type, depth int) (reflect.Type, bool) {
	if depth > 8 || t.Kind() != reflect.Struct {
		return nil, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous || !f.IsExported() {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Struct {
			ft = reflect.PointerTo(ft)
		}
		if ft.AssignableTo(want) {
			return ft, true
		}
		if ft.Kind() != reflect.Pointer {
			continue
		}
		if r, ok := embeddedType(ft.Elem(), want, depth+1); ok {
			return r, true
		}
	}
	return nil, false
}

func defaultValue(d *codec.Dynamic, def any) (variant.Variant, error) {
	if v, ok := def.(variant.Variant); ok {
		return v, nil
	}
	rv := reflect.ValueOf(def)
	if !rv.IsValid() {
		return variant.Nil(), nil
	}
	if rv.Type() != d.GoType {
		if !rv.Type().ConvertibleTo(d.GoType) {
			return variant.Nil(), errors.TypeMismatch(errors.PhaseRegister, []string{"default"},
				rv.Type().String(), d.GoType.String())
		}
		rv = rv.Convert(d.GoType)
	}
	return d.Encode(rv)
}

// announce sends the method registration to the host.
func (c *Context) announce(m *method) error {
	cl := codec.NewCleanup()
	defer cl.FreeAndRelease(c.r.iface)

	f := m.fn
	info := abi.ClassMethodInfo{
		Name:           m.name.Native(),
		MethodUserdata: uintptr(m.handle),
		Call:           c.r.call,
		PtrCall:        c.r.ptrcall,
		Flags:          m.flags,
	}
	if res := f.Result(); res != nil {
		ret := c.r.nativeProperty(PropertyInfo{Type: res.Type, ClassName: res.ClassName}, cl)
		info.HasReturn = true
		info.ReturnInfo = &ret
		info.ReturnMetadata = res.Metadata
	}
	info.Arguments = make([]abi.PropertyInfo, f.NumParams())
	info.ArgumentsMetadata = make([]abi.ArgumentMetadata, f.NumParams())
	for i := range info.Arguments {
		p := f.Param(i)
		info.Arguments[i] = c.r.nativeProperty(PropertyInfo{
			Name:      m.args[i].Name,
			Type:      p.Type,
			ClassName: p.ClassName,
		}, cl)
		info.ArgumentsMetadata[i] = p.Metadata
	}
	defs := make([]abi.Variant, len(m.defaults))
	for i, v := range m.defaults {
		if err := c.r.marshal.ToNative(v, &defs[i]); err != nil {
			return errors.Registration(c.d.Name(), m.name.String(), err)
		}
		cl.AddVariant(defs[i])
		info.DefaultArguments = append(info.DefaultArguments, &defs[i])
	}
	c.r.iface.ClassDBRegisterExtensionClassMethod(c.r.lib, c.d.name.Native(), &info)
	return nil
}

// BindPropertyWithAccessors binds a property to existing methods of the
// class or its bases. setter may be empty for a read-only property.
func (c *Context) BindPropertyWithAccessors(info PropertyInfo, getter, setter string) error {
	p := &property{info: info}
	if p.getter = c.d.findMethod(getter); p.getter == nil {
		return errors.Registration(c.d.Name(), info.Name,
			errors.NotFound(errors.PhaseRegister, "getter", getter))
	}
	if setter != "" {
		if p.setter = c.d.findMethod(setter); p.setter == nil {
			return errors.Registration(c.d.Name(), info.Name,
				errors.NotFound(errors.PhaseRegister, "setter", setter))
		}
	}
	if p.info.Type == variant.TypeNil {
		if res := p.getter.fn.Result(); res != nil {
			p.info.Type = res.Type
			if p.info.ClassName == "" {
				p.info.ClassName = res.ClassName
			}
		}
	}

	c.d.mu.Lock()
	if err := c.d.claim(memberProperty, info.Name); err != nil {
		c.d.mu.Unlock()
		return err
	}
	c.d.properties = append(c.d.properties, p)
	c.d.mu.Unlock()

	cl := codec.NewCleanup()
	defer cl.FreeAndRelease(c.r.iface)
	native := c.r.nativeProperty(p.info, cl)
	var set *abi.StringName
	if p.setter != nil {
		set = p.setter.name.Native()
	}
	c.r.iface.ClassDBRegisterExtensionClassProperty(c.r.lib, c.d.name.Native(), &native, set, p.getter.name.Native())
	return nil
}

// BindProperty binds a property backed by Go accessors. It generates the
// methods get_<name> and set_<name>; a nil set makes the property
// read-only. A zero info.Type is taken from the getter result.
func BindProperty[R any, V any](c *Context, info PropertyInfo, get func(R) V, set func(R, V)) error {
	if get == nil {
		return errors.InvalidInput(errors.PhaseRegister, "property "+info.Name+" needs a getter")
	}
	getter, setter := "get_"+info.Name, ""
	if err := c.BindConstMethod(getter, get); err != nil {
		return err
	}
	if set != nil {
		setter = "set_" + info.Name
		if err := c.BindMethod(setter, set, Param("value")); err != nil {
			return err
		}
	}
	return c.BindPropertyWithAccessors(info, getter, setter)
}

// BindSignal binds a signal with ordered parameters.
func (c *Context) BindSignal(name string, params ...PropertyInfo) error {
	c.d.mu.Lock()
	if err := c.d.claim(memberSignal, name); err != nil {
		c.d.mu.Unlock()
		return err
	}
	c.d.signals = append(c.d.signals, Signal{Name: name, Params: append([]PropertyInfo(nil), params...)})
	c.d.mu.Unlock()

	cl := codec.NewCleanup()
	defer cl.FreeAndRelease(c.r.iface)
	args := make([]abi.PropertyInfo, len(params))
	for i, p := range params {
		args[i] = c.r.nativeProperty(p, cl)
	}
	n := c.r.names.Intern(name)
	defer n.Release()
	c.r.iface.ClassDBRegisterExtensionClassSignal(c.r.lib, c.d.name.Native(), n.Native(), args)
	return nil
}

// BindVirtualMethodOverride installs fn as this class's implementation of
// an engine virtual method such as _process. fn takes the receiver first.
// Overrides share the method namespace.
func (c *Context) BindVirtualMethodOverride(name string, fn any) error {
	f, err := dispatch.Compile(fn, false, c.r.codecs)
	if err != nil {
		return errors.Registration(c.d.Name(), name, err)
	}
	if err := c.checkReceiver(name, f.Receiver()); err != nil {
		return err
	}

	c.d.mu.Lock()
	if err := c.d.claim(memberMethod, name); err != nil {
		c.d.mu.Unlock()
		return err
	}
	c.d.mu.Unlock()

	recv := f.Receiver()
	m := c.r.marshal
	inv := func(s any, args []unsafe.Pointer, ret unsafe.Pointer) error {
		sh, _ := s.(object.Shadow)
		rv, err := adapt(sh, recv)
		if err != nil {
			return err
		}
		return f.PtrCall(m, rv, args, ret)
	}

	n := c.r.names.Intern(name)
	defer n.Release()
	if err := c.d.virtuals.Add(n, inv); err != nil {
		c.d.mu.Lock()
		c.d.unclaim(memberMethod, name)
		c.d.mu.Unlock()
		return err
	}
	return nil
}

// BindVirtualMethod declares a virtual method scripts may implement.
func (c *Context) BindVirtualMethod(vm VirtualMethod) error {
	c.d.mu.Lock()
	if err := c.d.claim(memberMethod, vm.Name); err != nil {
		c.d.mu.Unlock()
		return err
	}
	c.d.declared = append(c.d.declared, vm)
	c.d.mu.Unlock()

	cl := codec.NewCleanup()
	defer cl.FreeAndRelease(c.r.iface)
	n := c.r.names.Intern(vm.Name)
	defer n.Release()

	flags := abi.MethodFlagsDefault | abi.MethodFlagVirtual
	if vm.Const {
		flags |= abi.MethodFlagConst
	}
	info := abi.ClassVirtualMethodInfo{
		Name:              n.Native(),
		Flags:             flags,
		Return:            c.r.nativeProperty(vm.Return, cl),
		Arguments:         make([]abi.PropertyInfo, len(vm.Params)),
		ArgumentsMetadata: make([]abi.ArgumentMetadata, len(vm.Params)),
	}
	for i, p := range vm.Params {
		info.Arguments[i] = c.r.nativeProperty(p, cl)
	}
	c.r.iface.ClassDBRegisterExtensionClassVirtualMethod(c.r.lib, c.d.name.Native(), &info)
	return nil
}

// AddPropertyGroup starts a property group. Properties bound afterwards
// whose names start with prefix are shown in it.
func (c *Context) AddPropertyGroup(name, prefix string) error {
	return c.group(name, prefix, false)
}

// AddPropertySubgroup starts a subgroup within the current group.
func (c *Context) AddPropertySubgroup(name, prefix string) error {
	return c.group(name, prefix, true)
}

func (c *Context) group(name, prefix string, sub bool) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseRegister, "property group name is empty")
	}
	var gn, gp abi.String
	c.r.iface.StringNew(&gn, name)
	c.r.iface.StringNew(&gp, prefix)
	if sub {
		c.r.iface.ClassDBRegisterExtensionClassPropertySubgroup(c.r.lib, c.d.name.Native(), &gn, &gp)
	} else {
		c.r.iface.ClassDBRegisterExtensionClassPropertyGroup(c.r.lib, c.d.name.Native(), &gn, &gp)
	}
	c.r.iface.StringDestroy(&gn)
	c.r.iface.StringDestroy(&gp)
	return nil
}

// nativeProperty builds a native PropertyInfo. The strings are added to cl
// when it is non-nil; otherwise the caller destroys them with
// destroyProperty.
func (r *Registry) nativeProperty(p PropertyInfo, cl *codec.Cleanup) abi.PropertyInfo {
	out := abi.PropertyInfo{Type: p.Type, Hint: p.Hint, Usage: p.usage()}
	r.iface.StringNameNew(&out.Name, p.Name)
	if p.ClassName != "" {
		r.iface.StringNameNew(&out.ClassName, p.ClassName)
	}
	r.iface.StringNew(&out.HintString, p.HintString)
	if cl != nil {
		cl.AddStringName(out.Name)
		if out.ClassName.Ptr != 0 {
			cl.AddStringName(out.ClassName)
		}
		cl.AddString(out.HintString)
	}
	return out
}

func (r *Registry) destroyProperty(p *abi.PropertyInfo) {
	if p.Name.Ptr != 0 {
		r.iface.StringNameDestroy(&p.Name)
	}
	if p.ClassName.Ptr != 0 {
		r.iface.StringNameDestroy(&p.ClassName)
	}
	if p.HintString.Ptr != 0 {
		r.iface.StringDestroy(&p.HintString)
	}
}
