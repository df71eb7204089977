package classdb

import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/dispatch"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/handle"
	"github.com/wippyai/gdext/object"
	"github.com/wippyai/gdext/variant"
)

// instance is the extension half of a native object. Its handle is the
// InstancePtr the host passes back to every instance callback.
type instance struct {
	shadow object.Shadow
	class  *Descriptor
	list   []abi.PropertyInfo // property list handed to the host
	mu     sync.Mutex
}

// lookup resolves an instance handle. A stale handle is a host contract
// violation.
func (r *Registry) lookup(inst abi.InstancePtr, op string) (*instance, bool) {
	in, ok := r.instances.Get(handle.Handle(inst))
	if !ok {
		errors.Invariant(errors.InvalidHandle(errors.PhaseCall, op+" instance", uint64(inst)))
	}
	return in, ok
}

func (r *Registry) createInstance(ud abi.ClassUserdata) abi.ObjectPtr {
	d, ok := r.userdata.Get(handle.Handle(ud))
	if !ok {
		errors.Invariant(errors.InvalidHandle(errors.PhaseLifecycle, "class userdata", uint64(ud)))
		return 0
	}
	var ptr abi.ObjectPtr
	r.guard.Call(d.Name(), "create_instance", func() error {
		p, err := r.construct(d)
		ptr = p
		return err
	})
	return ptr
}

// construct creates a shadow, the native object for it, and binds the two.
func (r *Registry) construct(d *Descriptor) (abi.ObjectPtr, error) {
	ctor := d.constructor()
	if ctor == nil {
		return 0, errors.MissingConstructor(d.Name())
	}
	s := ctor()
	if s == nil {
		return 0, errors.New(errors.PhaseLifecycle, errors.KindInvalidInput).
			Path(d.Name()).
			Detail("constructor returned nil").
			Build()
	}

	ptr := r.iface.ClassDBConstructObject(d.nativeBase.Native())
	if ptr == 0 {
		return 0, errors.New(errors.PhaseLifecycle, errors.KindInvalidHandle).
			Path(d.Name()).
			Detail("host could not construct base %q", d.NativeBase()).
			Build()
	}
	if err := r.objects.RegisterNative(ptr, d.Name(), s); err != nil {
		r.iface.ObjectDestroy(ptr)
		return 0, err
	}
	h, err := r.instances.Insert(&instance{shadow: s, class: d})
	if err != nil {
		_ = r.objects.FreeShadow(s)
		r.iface.ObjectDestroy(ptr)
		return 0, errors.Wrap(errors.PhaseLifecycle, errors.KindNotInitialized, err, "class registry is closed")
	}
	r.iface.ObjectSetInstance(ptr, d.name.Native(), abi.InstancePtr(h))
	d.instances.Add(1)
	Logger().Debug("instance created",
		zap.String("class", d.Name()),
		zap.Uint64("id", uint64(s.AsObject().InstanceID())))
	return ptr, nil
}

func (r *Registry) freeInstance(_ abi.ClassUserdata, inst abi.InstancePtr) {
	in, ok := r.instances.Remove(handle.Handle(inst))
	if !ok {
		errors.Invariant(errors.DoubleFree("instance", uint64(inst)))
		return
	}
	in.class.instances.Add(-1)
	r.releaseList(in)

	// A shadow disposed from Go is already released; the host free that
	// follows is expected.
	if err := r.objects.FreeShadow(in.shadow); err != nil && !errors.Is(err, object.ErrAlreadyReleased) {
		errors.Invariant(err)
	}
}

// receiver returns the receiver for m on inst. Static methods have none.
func (r *Registry) receiver(m *method, inst abi.InstancePtr) (any, error) {
	if m.fn.Static() {
		return nil, nil
	}
	in, ok := r.instances.Get(handle.Handle(inst))
	if !ok || !in.shadow.AsObject().IsValid() {
		return nil, &dispatch.CallError{Kind: abi.CallErrorInstanceIsNull}
	}
	return adapt(in.shadow, m.fn.Receiver())
}

func (r *Registry) call(ud uintptr, inst abi.InstancePtr, args []*abi.Variant, ret *abi.Variant, cerr *abi.CallError) {
	m, ok := r.methods.Get(handle.Handle(ud))
	if !ok {
		*cerr = abi.CallError{Error: abi.CallErrorInvalidMethod}
		errors.Invariant(errors.InvalidHandle(errors.PhaseCall, "method", uint64(ud)))
		return
	}
	class, name := m.class.Name(), m.name.String()

	// Stays invalid_method if the body panics.
	*cerr = abi.CallError{Error: abi.CallErrorInvalidMethod}
	r.guard.Call(class, name, func() error {
		err := r.varcall(m, inst, args, ret)
		*cerr = dispatch.ToNative(err)
		if err != nil {
			r.guard.Report(class, name, err)
		}
		return nil
	})
}

func (r *Registry) varcall(m *method, inst abi.InstancePtr, args []*abi.Variant, ret *abi.Variant) error {
	recv, err := r.receiver(m, inst)
	if err != nil {
		return err
	}
	n := m.fn.NumParams()
	vals := make([]variant.Variant, len(args), max(len(args), n))
	for i, a := range args {
		v, err := r.marshal.FromNative(a)
		if err != nil {
			ce := &dispatch.CallError{Kind: abi.CallErrorInvalidArgument, Argument: int32(i), Cause: err}
			if i < n {
				ce.Expected = int32(m.fn.Param(i).Type)
			}
			return ce
		}
		vals[i] = v
	}
	// The host fills defaults; this covers callers that don't.
	if missing := n - len(vals); missing > 0 && missing <= len(m.defaults) {
		vals = append(vals, m.defaults[len(m.defaults)-missing:]...)
	}

	out, err := m.fn.Call(recv, vals)
	if err != nil {
		return err
	}
	if m.fn.Result() == nil {
		return nil
	}
	return r.marshal.ToNative(out, ret)
}

func (r *Registry) ptrcall(ud uintptr, inst abi.InstancePtr, args []unsafe.Pointer, ret unsafe.Pointer) {
	m, ok := r.methods.Get(handle.Handle(ud))
	if !ok {
		errors.Invariant(errors.InvalidHandle(errors.PhaseCall, "method", uint64(ud)))
		return
	}
	r.guard.Call(m.class.Name(), m.name.String(), func() error {
		recv, err := r.receiver(m, inst)
		if err != nil {
			return err
		}
		return m.fn.PtrCall(r.marshal, recv, args, ret)
	})
}

func (r *Registry) getVirtual(ud abi.ClassUserdata, name *abi.StringName) abi.ClassCallVirtual {
	d, ok := r.userdata.Get(handle.Handle(ud))
	if !ok {
		errors.Invariant(errors.InvalidHandle(errors.PhaseCall, "class userdata", uint64(ud)))
		return nil
	}
	n, ok := r.names.Find(name)
	if !ok {
		return nil
	}
	inv, ok := d.resolveVirtual(n)
	if !ok {
		return nil
	}
	class, method := d.Name(), n.String()
	return func(inst abi.InstancePtr, args []unsafe.Pointer, ret unsafe.Pointer) {
		in, ok := r.lookup(inst, method)
		if !ok {
			return
		}
		r.guard.Call(class, method, func() error {
			return inv(in.shadow, args, ret)
		})
	}
}

// invoke calls a bound accessor on shadow s with managed arguments.
func (r *Registry) invoke(m *method, s object.Shadow, args ...variant.Variant) (variant.Variant, error) {
	recv, err := adapt(s, m.fn.Receiver())
	if err != nil {
		return variant.Nil(), err
	}
	return m.fn.Call(recv, args)
}

// attempt runs fn under the guard. A returned error fails only this
// operation and is reported without the failure policy; panics still apply it.
func (r *Registry) attempt(class, method string, fn func() error) {
	var failure error
	r.guard.Call(class, method, func() error {
		failure = fn()
		return nil
	})
	if failure != nil {
		r.guard.Report(class, method, failure)
	}
}

func (r *Registry) set(inst abi.InstancePtr, name *abi.StringName, value *abi.Variant) bool {
	in, ok := r.lookup(inst, "set")
	if !ok {
		return false
	}
	prop := r.names.Text(name)
	handled := false
	r.attempt(in.class.Name(), "_set", func() error {
		v, err := r.marshal.FromNative(value)
		if err != nil {
			return err
		}
		if s, ok := in.shadow.(Setter); ok && s.SetProperty(prop, v) {
			handled = true
			return nil
		}
		p := in.class.findProperty(prop)
		if p == nil || p.setter == nil {
			return nil
		}
		if _, err := r.invoke(p.setter, in.shadow, v); err != nil {
			return err
		}
		handled = true
		return nil
	})
	return handled
}

func (r *Registry) get(inst abi.InstancePtr, name *abi.StringName, ret *abi.Variant) bool {
	in, ok := r.lookup(inst, "get")
	if !ok {
		return false
	}
	prop := r.names.Text(name)
	handled := false
	r.attempt(in.class.Name(), "_get", func() error {
		var v variant.Variant
		if g, ok := in.shadow.(Getter); ok {
			v, handled = g.GetProperty(prop)
		}
		if !handled {
			p := in.class.findProperty(prop)
			if p == nil {
				return nil
			}
			out, err := r.invoke(p.getter, in.shadow)
			if err != nil {
				return err
			}
			v = out
		}
		if err := r.marshal.ToNative(v, ret); err != nil {
			handled = false
			return err
		}
		handled = true
		return nil
	})
	return handled
}

func (r *Registry) propertyList(inst abi.InstancePtr) []abi.PropertyInfo {
	in, ok := r.lookup(inst, "get_property_list")
	if !ok {
		return nil
	}
	lister, ok := in.shadow.(PropertyLister)
	if !ok {
		return nil
	}
	var out []abi.PropertyInfo
	r.guard.Call(in.class.Name(), "_get_property_list", func() error {
		props := lister.PropertyList()
		in.mu.Lock()
		defer in.mu.Unlock()
		if in.list != nil {
			// The previous list was never freed.
			errors.Invariant(errors.New(errors.PhaseCall, errors.KindInvalidInput).
				Path(in.class.Name()).
				Detail("property list requested before the previous one was freed").
				Build())
			r.clearListLocked(in)
		}
		in.list = make([]abi.PropertyInfo, len(props))
		for i, p := range props {
			in.list[i] = r.nativeProperty(p, nil)
		}
		out = in.list
		return nil
	})
	return out
}

func (r *Registry) freePropertyList(inst abi.InstancePtr, list []abi.PropertyInfo) {
	in, ok := r.lookup(inst, "free_property_list")
	if !ok {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(list) > 0 && (len(in.list) == 0 || &list[0] != &in.list[0]) {
		errors.Invariant(errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(in.class.Name()).
			Detail("freeing a property list this instance did not hand out").
			Build())
		return
	}
	r.clearListLocked(in)
}

func (r *Registry) releaseList(in *instance) {
	in.mu.Lock()
	r.clearListLocked(in)
	in.mu.Unlock()
}

// clearListLocked destroys and zeroes every entry so a re-entrant reader
// never sees stale names.
func (r *Registry) clearListLocked(in *instance) {
	for i := range in.list {
		r.destroyProperty(&in.list[i])
	}
	clear(in.list)
	in.list = nil
}

func (r *Registry) canRevert(inst abi.InstancePtr, name *abi.StringName) bool {
	in, ok := r.lookup(inst, "property_can_revert")
	if !ok {
		return false
	}
	rev, ok := in.shadow.(Reverter)
	if !ok {
		return false
	}
	var can bool
	r.guard.Call(in.class.Name(), "_property_can_revert", func() error {
		can = rev.PropertyCanRevert(r.names.Text(name))
		return nil
	})
	return can
}

func (r *Registry) getRevert(inst abi.InstancePtr, name *abi.StringName, ret *abi.Variant) bool {
	in, ok := r.lookup(inst, "property_get_revert")
	if !ok {
		return false
	}
	rev, ok := in.shadow.(Reverter)
	if !ok {
		return false
	}
	var found bool
	r.attempt(in.class.Name(), "_property_get_revert", func() error {
		v, ok := rev.PropertyGetRevert(r.names.Text(name))
		if !ok {
			return nil
		}
		if err := r.marshal.ToNative(v, ret); err != nil {
			return err
		}
		found = true
		return nil
	})
	return found
}

func (r *Registry) validateProperty(inst abi.InstancePtr, info *abi.PropertyInfo) bool {
	in, ok := r.lookup(inst, "validate_property")
	if !ok {
		return false
	}
	v, ok := in.shadow.(PropertyValidator)
	if !ok {
		return false
	}
	var valid bool
	r.guard.Call(in.class.Name(), "_validate_property", func() error {
		p := r.managedProperty(info)
		before := p
		valid = v.ValidateProperty(&p)
		r.copyBack(info, before, p)
		return nil
	})
	return valid
}

func (r *Registry) managedProperty(info *abi.PropertyInfo) PropertyInfo {
	p := PropertyInfo{
		Name:  r.names.Text(&info.Name),
		Type:  info.Type,
		Hint:  info.Hint,
		Usage: info.Usage,
	}
	if info.ClassName.Ptr != 0 {
		p.ClassName = r.names.Text(&info.ClassName)
	}
	if info.HintString.Ptr != 0 {
		p.HintString = r.iface.StringToUTF8(&info.HintString)
	}
	return p
}

// copyBack writes changed fields into the host-owned info. Replaced strings
// are destroyed first so the host releases only what it now holds.
func (r *Registry) copyBack(info *abi.PropertyInfo, before, after PropertyInfo) {
	info.Type = after.Type
	info.Hint = after.Hint
	info.Usage = after.Usage
	if after.Name != before.Name {
		if info.Name.Ptr != 0 {
			r.iface.StringNameDestroy(&info.Name)
		}
		r.iface.StringNameNew(&info.Name, after.Name)
	}
	if after.ClassName != before.ClassName {
		if info.ClassName.Ptr != 0 {
			r.iface.StringNameDestroy(&info.ClassName)
		}
		if after.ClassName != "" {
			r.iface.StringNameNew(&info.ClassName, after.ClassName)
		}
	}
	if after.HintString != before.HintString {
		if info.HintString.Ptr != 0 {
			r.iface.StringDestroy(&info.HintString)
		}
		r.iface.StringNew(&info.HintString, after.HintString)
	}
}

func (r *Registry) notification(inst abi.InstancePtr, what int32, reversed bool) {
	in, ok := r.lookup(inst, "notification")
	if !ok {
		return
	}
	n, ok := in.shadow.(Notifier)
	if !ok {
		return
	}
	r.guard.Call(in.class.Name(), "_notification", func() error {
		n.Notification(what, reversed)
		return nil
	})
}

func (r *Registry) toString(inst abi.InstancePtr, valid *bool, out *abi.String) {
	in, ok := r.lookup(inst, "to_string")
	if !ok {
		*valid = false
		return
	}
	text := fmt.Sprintf("<%s#%d>", in.class.Name(), in.shadow.AsObject().InstanceID())
	if s, ok := in.shadow.(fmt.Stringer); ok {
		r.guard.Call(in.class.Name(), "_to_string", func() error {
			text = s.String()
			return nil
		})
	}
	r.iface.StringNew(out, text)
	*valid = true
}
