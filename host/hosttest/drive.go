package hosttest

import (
	"fmt"
	"unsafe"

	"github.com/wippyai/gdext/abi"
)

// Instantiate creates an instance of an extension or engine class.
func (h *Host) Instantiate(class string) (abi.ObjectPtr, error) {
	h.mu.Lock()
	c, ext := h.classes[class]
	_, native := h.native[class]
	h.mu.Unlock()

	switch {
	case native:
		return h.NewObject(class), nil
	case !ext:
		return 0, fmt.Errorf("hosttest: unknown class %s", class)
	case c.Info.IsAbstract:
		return 0, fmt.Errorf("hosttest: class %s is abstract", class)
	case c.Info.CreateInstance == nil:
		return 0, fmt.Errorf("hosttest: class %s has no create_instance", class)
	}

	obj := c.Info.CreateInstance(c.Info.ClassUserdata)
	if obj == 0 {
		return 0, fmt.Errorf("hosttest: create_instance for %s returned null", class)
	}
	return obj, nil
}

// instance resolves an object to its extension instance and class record.
func (h *Host) instance(obj abi.ObjectPtr) (abi.InstancePtr, *Class, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.objects[obj]
	if !ok {
		return 0, nil, fmt.Errorf("hosttest: object %#x is not live", obj)
	}
	c, ok := h.classes[o.ExtClass]
	if !ok {
		return 0, nil, fmt.Errorf("hosttest: object %#x has no extension instance", obj)
	}
	return o.Instance, c, nil
}

// Call invokes a bound method through the variant calling convention. args
// are borrowed; the caller releases the result.
func (h *Host) Call(obj abi.ObjectPtr, method string, args ...abi.Variant) (abi.Variant, abi.CallError) {
	inst, c, err := h.instance(obj)
	if err != nil {
		return abi.Variant{}, abi.CallError{Error: abi.CallErrorInstanceIsNull}
	}
	return h.call(c.Name, inst, method, args)
}

// CallStatic invokes a static method of class.
func (h *Host) CallStatic(class, method string, args ...abi.Variant) (abi.Variant, abi.CallError) {
	return h.call(class, 0, method, args)
}

func (h *Host) call(class string, inst abi.InstancePtr, method string, args []abi.Variant) (abi.Variant, abi.CallError) {
	var ret abi.Variant
	m, ok := h.findMethod(class, method)
	if !ok {
		return ret, abi.CallError{Error: abi.CallErrorInvalidMethod}
	}
	if m.Info.Flags&abi.MethodFlagStatic != 0 {
		inst = 0
	}

	// Missing trailing arguments take their registered defaults.
	if missing := len(m.Args) - len(args); missing > 0 && missing <= len(m.Defaults) {
		args = append(append([]abi.Variant(nil), args...), m.Defaults[len(m.Defaults)-missing:]...)
	}

	ptrs := make([]*abi.Variant, len(args))
	for i := range args {
		ptrs[i] = &args[i]
	}
	var cerr abi.CallError
	m.Info.Call(m.Info.MethodUserdata, inst, ptrs, &ret, &cerr)
	return ret, cerr
}

// PtrCall invokes a bound method through the typed calling convention.
func (h *Host) PtrCall(obj abi.ObjectPtr, method string, args []unsafe.Pointer, ret unsafe.Pointer) error {
	inst, c, err := h.instance(obj)
	if err != nil {
		return err
	}
	m, ok := h.findMethod(c.Name, method)
	if !ok {
		return fmt.Errorf("hosttest: %s has no method %s", c.Name, method)
	}
	if m.Info.PtrCall == nil {
		return fmt.Errorf("hosttest: %s.%s has no ptrcall", c.Name, method)
	}
	m.Info.PtrCall(m.Info.MethodUserdata, inst, args, ret)
	return nil
}

func (h *Host) withName(name string, fn func(*abi.StringName)) {
	var sn abi.StringName
	h.stringNameNew(&sn, name)
	fn(&sn)
	h.release(sn.Ptr)
}

// Set assigns a property. Registered properties go through their setter
// method; anything else goes to the class set callback.
func (h *Host) Set(obj abi.ObjectPtr, prop string, value abi.Variant) bool {
	inst, c, err := h.instance(obj)
	if err != nil {
		return false
	}
	if p, ok := h.findProperty(c.Name, prop); ok && p.Setter != "" {
		ret, cerr := h.call(c.Name, inst, p.Setter, []abi.Variant{value})
		h.variantDestroy(&ret)
		return cerr.Error == abi.CallOK
	}
	if c.Info.Set == nil {
		return false
	}
	var ok bool
	h.withName(prop, func(sn *abi.StringName) { ok = c.Info.Set(inst, sn, &value) })
	return ok
}

// Get reads a property. The caller releases the result.
func (h *Host) Get(obj abi.ObjectPtr, prop string) (abi.Variant, bool) {
	inst, c, err := h.instance(obj)
	if err != nil {
		return abi.Variant{}, false
	}
	if p, ok := h.findProperty(c.Name, prop); ok && p.Getter != "" {
		ret, cerr := h.call(c.Name, inst, p.Getter, nil)
		return ret, cerr.Error == abi.CallOK
	}
	if c.Info.Get == nil {
		return abi.Variant{}, false
	}
	var ret abi.Variant
	var ok bool
	h.withName(prop, func(sn *abi.StringName) { ok = c.Info.Get(inst, sn, &ret) })
	return ret, ok
}

// HasVirtual reports whether class resolves an override for method.
func (h *Host) HasVirtual(class, method string) bool {
	h.mu.Lock()
	c, ok := h.classes[class]
	h.mu.Unlock()
	if !ok || c.Info.GetVirtual == nil {
		return false
	}
	var fn abi.ClassCallVirtual
	h.withName(method, func(sn *abi.StringName) { fn = c.Info.GetVirtual(c.Info.ClassUserdata, sn) })
	return fn != nil
}

// CallVirtual resolves and invokes a virtual override through the typed
// calling convention. It reports false when the class has no override.
func (h *Host) CallVirtual(obj abi.ObjectPtr, method string, args []unsafe.Pointer, ret unsafe.Pointer) bool {
	inst, c, err := h.instance(obj)
	if err != nil || c.Info.GetVirtual == nil {
		return false
	}
	var fn abi.ClassCallVirtual
	h.withName(method, func(sn *abi.StringName) { fn = c.Info.GetVirtual(c.Info.ClassUserdata, sn) })
	if fn == nil {
		return false
	}
	fn(inst, args, ret)
	return true
}

// PropertyList fetches and releases the dynamic property list of obj.
func (h *Host) PropertyList(obj abi.ObjectPtr) []PropertyDesc {
	inst, c, err := h.instance(obj)
	if err != nil || c.Info.GetPropertyList == nil {
		return nil
	}
	list := c.Info.GetPropertyList(inst)
	out := h.descs(list)
	if c.Info.FreePropertyList != nil {
		c.Info.FreePropertyList(inst, list)
	}
	return out
}

// ValidateProperty passes d through the class validate callback and returns
// the possibly modified descriptor.
func (h *Host) ValidateProperty(obj abi.ObjectPtr, d PropertyDesc) (PropertyDesc, bool) {
	inst, c, err := h.instance(obj)
	if err != nil || c.Info.ValidateProperty == nil {
		return d, false
	}
	pi := abi.PropertyInfo{Type: d.Type, Hint: d.Hint, Usage: d.Usage}
	h.stringNameNew(&pi.Name, d.Name)
	if d.ClassName != "" {
		h.stringNameNew(&pi.ClassName, d.ClassName)
	}
	h.stringNew(&pi.HintString, d.HintString)

	ok := c.Info.ValidateProperty(inst, &pi)
	out := h.desc(&pi)

	for _, ptr := range []uintptr{pi.Name.Ptr, pi.ClassName.Ptr, pi.HintString.Ptr} {
		if ptr != 0 {
			h.release(ptr)
		}
	}
	return out, ok
}

// CanRevert asks whether prop has a revert value.
func (h *Host) CanRevert(obj abi.ObjectPtr, prop string) bool {
	inst, c, err := h.instance(obj)
	if err != nil || c.Info.PropertyCanRevert == nil {
		return false
	}
	var ok bool
	h.withName(prop, func(sn *abi.StringName) { ok = c.Info.PropertyCanRevert(inst, sn) })
	return ok
}

// Revert fetches the revert value of prop. The caller releases the result.
func (h *Host) Revert(obj abi.ObjectPtr, prop string) (abi.Variant, bool) {
	inst, c, err := h.instance(obj)
	if err != nil || c.Info.PropertyGetRevert == nil {
		return abi.Variant{}, false
	}
	var ret abi.Variant
	var ok bool
	h.withName(prop, func(sn *abi.StringName) { ok = c.Info.PropertyGetRevert(inst, sn, &ret) })
	return ret, ok
}

// Notify sends a notification to obj.
func (h *Host) Notify(obj abi.ObjectPtr, what int32, reversed bool) {
	inst, c, err := h.instance(obj)
	if err != nil || c.Info.Notification == nil {
		return
	}
	c.Info.Notification(inst, what, reversed)
}

// ToString returns the extension's text for obj.
func (h *Host) ToString(obj abi.ObjectPtr) (string, bool) {
	inst, c, err := h.instance(obj)
	if err != nil || c.Info.ToString == nil {
		return "", false
	}
	var valid bool
	var out abi.String
	c.Info.ToString(inst, &valid, &out)
	if !valid {
		return "", false
	}
	s := h.text(out.Ptr, abi.TypeString)
	h.release(out.Ptr)
	return s, true
}
