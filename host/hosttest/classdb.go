package hosttest

import (
	"fmt"

	"github.com/wippyai/gdext/abi"
)

// PropertyDesc is a PropertyInfo with its names resolved to text.
type PropertyDesc struct {
	Name       string
	ClassName  string
	HintString string
	Type       abi.VariantType
	Hint       abi.PropertyHint
	Usage      abi.PropertyUsage
}

// Property is a registered class property.
type Property struct {
	Setter string
	Getter string
	PropertyDesc
}

// Method is a registered class method.
type Method struct {
	Info     abi.ClassMethodInfo
	Return   *PropertyDesc
	Name     string
	Args     []PropertyDesc
	Defaults []abi.Variant
}

// Constant is a registered integer constant.
type Constant struct {
	Enum     string
	Name     string
	Value    int64
	Bitfield bool
}

// Signal is a registered signal.
type Signal struct {
	Name string
	Args []PropertyDesc
}

// Group is a registered property group or subgroup.
type Group struct {
	Name     string
	Prefix   string
	Subgroup bool
}

// VirtualMethod is a virtual method declared by the extension.
type VirtualMethod struct {
	Name   string
	Return PropertyDesc
	Args   []PropertyDesc
	Flags  abi.MethodFlags
}

// Class is a registered extension class.
type Class struct {
	Methods        map[string]*Method
	Name           string
	Parent         string
	MethodOrder    []string
	Properties     []Property
	Constants      []Constant
	Signals        []Signal
	Groups         []Group
	VirtualMethods []VirtualMethod
	Info           abi.ClassCreationInfo
}

func (h *Host) desc(pi *abi.PropertyInfo) PropertyDesc {
	d := PropertyDesc{Type: pi.Type, Hint: pi.Hint, Usage: pi.Usage}
	if pi.Name.Ptr != 0 {
		d.Name = h.text(pi.Name.Ptr, abi.TypeStringName)
	}
	if pi.ClassName.Ptr != 0 {
		d.ClassName = h.text(pi.ClassName.Ptr, abi.TypeStringName)
	}
	if pi.HintString.Ptr != 0 {
		d.HintString = h.text(pi.HintString.Ptr, abi.TypeString)
	}
	return d
}

func (h *Host) descs(list []abi.PropertyInfo) []PropertyDesc {
	out := make([]PropertyDesc, len(list))
	for i := range list {
		out[i] = h.desc(&list[i])
	}
	return out
}

func (h *Host) classFor(lib abi.LibraryPtr, class *abi.StringName, op string) *Class {
	if lib != h.lib {
		h.failf("%s: wrong library token %#x", op, lib)
		return nil
	}
	name := h.text(class.Ptr, abi.TypeStringName)
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.classes[name]
	if !ok {
		h.errs = append(h.errs, fmt.Sprintf("hosttest: %s: class %s is not registered", op, name))
		return nil
	}
	return c
}

func (h *Host) registerClass(lib abi.LibraryPtr, class, parent *abi.StringName, info *abi.ClassCreationInfo) {
	if lib != h.lib {
		h.failf("register class: wrong library token %#x", lib)
		return
	}
	name := h.text(class.Ptr, abi.TypeStringName)
	parentName := h.text(parent.Ptr, abi.TypeStringName)

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.classes[name]; ok {
		h.errs = append(h.errs, "hosttest: class registered twice: "+name)
		return
	}
	if _, ok := h.native[name]; ok {
		h.errs = append(h.errs, "hosttest: class shadows engine class: "+name)
		return
	}
	_, native := h.native[parentName]
	_, ext := h.classes[parentName]
	if !native && !ext {
		h.errs = append(h.errs, fmt.Sprintf("hosttest: class %s has unknown parent %s", name, parentName))
		return
	}

	h.classes[name] = &Class{
		Name:    name,
		Parent:  parentName,
		Info:    *info,
		Methods: make(map[string]*Method),
	}
	h.classOrder = append(h.classOrder, name)
}

func (h *Host) registerMethod(lib abi.LibraryPtr, class *abi.StringName, info *abi.ClassMethodInfo) {
	c := h.classFor(lib, class, "register method")
	if c == nil {
		return
	}
	m := &Method{
		Name: h.text(info.Name.Ptr, abi.TypeStringName),
		Info: *info,
		Args: h.descs(info.Arguments),
	}
	if info.HasReturn && info.ReturnInfo != nil {
		d := h.desc(info.ReturnInfo)
		m.Return = &d
	}
	for _, def := range info.DefaultArguments {
		var v abi.Variant
		h.variantNewCopy(&v, def)
		m.Defaults = append(m.Defaults, v)
	}
	m.Info.Name = nil
	m.Info.ReturnInfo = nil
	m.Info.Arguments = nil
	m.Info.DefaultArguments = nil

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := c.Methods[m.Name]; dup {
		h.errs = append(h.errs, fmt.Sprintf("hosttest: method %s.%s registered twice", c.Name, m.Name))
		return
	}
	c.Methods[m.Name] = m
	c.MethodOrder = append(c.MethodOrder, m.Name)
}

func (h *Host) registerVirtualMethod(lib abi.LibraryPtr, class *abi.StringName, info *abi.ClassVirtualMethodInfo) {
	c := h.classFor(lib, class, "register virtual method")
	if c == nil {
		return
	}
	vm := VirtualMethod{
		Name:   h.text(info.Name.Ptr, abi.TypeStringName),
		Return: h.desc(&info.Return),
		Args:   h.descs(info.Arguments),
		Flags:  info.Flags,
	}
	h.mu.Lock()
	c.VirtualMethods = append(c.VirtualMethods, vm)
	h.mu.Unlock()
}

func (h *Host) registerConstant(lib abi.LibraryPtr, class, enum, name *abi.StringName, value int64, isBitfield bool) {
	c := h.classFor(lib, class, "register constant")
	if c == nil {
		return
	}
	k := Constant{Name: h.text(name.Ptr, abi.TypeStringName), Value: value, Bitfield: isBitfield}
	if enum != nil && enum.Ptr != 0 {
		k.Enum = h.text(enum.Ptr, abi.TypeStringName)
	}
	h.mu.Lock()
	c.Constants = append(c.Constants, k)
	h.mu.Unlock()
}

func (h *Host) registerProperty(lib abi.LibraryPtr, class *abi.StringName, info *abi.PropertyInfo, setter, getter *abi.StringName) {
	c := h.classFor(lib, class, "register property")
	if c == nil {
		return
	}
	p := Property{PropertyDesc: h.desc(info)}
	if setter != nil && setter.Ptr != 0 {
		p.Setter = h.text(setter.Ptr, abi.TypeStringName)
	}
	if getter != nil && getter.Ptr != 0 {
		p.Getter = h.text(getter.Ptr, abi.TypeStringName)
	}
	h.mu.Lock()
	c.Properties = append(c.Properties, p)
	h.mu.Unlock()
}

func (h *Host) registerGroup(lib abi.LibraryPtr, class *abi.StringName, name, prefix *abi.String) {
	h.addGroup(lib, class, name, prefix, false)
}

func (h *Host) registerSubgroup(lib abi.LibraryPtr, class *abi.StringName, name, prefix *abi.String) {
	h.addGroup(lib, class, name, prefix, true)
}

func (h *Host) addGroup(lib abi.LibraryPtr, class *abi.StringName, name, prefix *abi.String, sub bool) {
	c := h.classFor(lib, class, "register property group")
	if c == nil {
		return
	}
	g := Group{Name: h.text(name.Ptr, abi.TypeString), Subgroup: sub}
	if prefix != nil && prefix.Ptr != 0 {
		g.Prefix = h.text(prefix.Ptr, abi.TypeString)
	}
	h.mu.Lock()
	c.Groups = append(c.Groups, g)
	h.mu.Unlock()
}

func (h *Host) registerSignal(lib abi.LibraryPtr, class, signal *abi.StringName, args []abi.PropertyInfo) {
	c := h.classFor(lib, class, "register signal")
	if c == nil {
		return
	}
	s := Signal{Name: h.text(signal.Ptr, abi.TypeStringName), Args: h.descs(args)}
	h.mu.Lock()
	c.Signals = append(c.Signals, s)
	h.mu.Unlock()
}

func (h *Host) unregisterClass(lib abi.LibraryPtr, class *abi.StringName) {
	c := h.classFor(lib, class, "unregister class")
	if c == nil {
		return
	}

	h.mu.Lock()
	for _, other := range h.classes {
		if other.Parent == c.Name {
			h.errs = append(h.errs, fmt.Sprintf("hosttest: unregistering %s while derived %s is registered", c.Name, other.Name))
		}
	}
	delete(h.classes, c.Name)
	for i, n := range h.classOrder {
		if n == c.Name {
			h.classOrder = append(h.classOrder[:i], h.classOrder[i+1:]...)
			break
		}
	}
	h.unregistered = append(h.unregistered, c.Name)
	h.mu.Unlock()

	for _, m := range c.Methods {
		for i := range m.Defaults {
			h.variantDestroy(&m.Defaults[i])
		}
	}
}

// Classes returns the registered extension classes in registration order.
func (h *Host) Classes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.classOrder...)
}

// Class returns the registration record for an extension class.
func (h *Host) Class(name string) (*Class, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.classes[name]
	return c, ok
}

// Unregistered returns extension class names in the order they were
// unregistered.
func (h *Host) Unregistered() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.unregistered...)
}

// findMethod looks a method up along the extension class chain.
func (h *Host) findMethod(class, method string) (*Method, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := h.classes[class]; c != nil; c = h.classes[c.Parent] {
		if m, ok := c.Methods[method]; ok {
			return m, true
		}
	}
	return nil, false
}

func (h *Host) findProperty(class, prop string) (Property, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := h.classes[class]; c != nil; c = h.classes[c.Parent] {
		for _, p := range c.Properties {
			if p.Name == prop {
				return p, true
			}
		}
	}
	return Property{}, false
}
