package hosttest

import (
	"github.com/wippyai/gdext/abi"
)

// Object is the host's record of a live native object.
type Object struct {
	Class    string
	ExtClass string
	Ptr      abi.ObjectPtr
	ID       abi.ObjectID
	Instance abi.InstancePtr
}

// NewObject constructs a native object of an engine class, as if an engine
// API had returned it.
func (h *Host) NewObject(class string) abi.ObjectPtr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.native[class]; !ok {
		h.errs = append(h.errs, "hosttest: unknown native class "+class)
		return 0
	}
	return h.newObjectLocked(class)
}

func (h *Host) newObjectLocked(class string) abi.ObjectPtr {
	h.next += 16
	h.nextID++
	ptr := abi.ObjectPtr(h.next)
	h.objects[ptr] = &Object{Class: class, Ptr: ptr, ID: h.nextID}
	h.ids[h.nextID] = ptr
	return ptr
}

// Object returns a copy of the record for obj.
func (h *Host) Object(obj abi.ObjectPtr) (Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.objects[obj]
	if !ok {
		return Object{}, false
	}
	return *o, true
}

// Objects returns the number of live objects.
func (h *Host) Objects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// Destroy frees obj the way the engine does: the extension instance, if
// any, is freed through its class callbacks before the object disappears.
func (h *Host) Destroy(obj abi.ObjectPtr) {
	h.mu.Lock()
	o, ok := h.objects[obj]
	if !ok {
		h.errs = append(h.errs, "hosttest: destroy of unknown object")
		h.mu.Unlock()
		return
	}
	delete(h.objects, obj)
	delete(h.ids, o.ID)
	cls := h.classes[o.ExtClass]
	h.mu.Unlock()

	if cls != nil && cls.Info.FreeInstance != nil {
		cls.Info.FreeInstance(cls.Info.ClassUserdata, o.Instance)
	}
}

func (h *Host) objectGetClassName(obj abi.ObjectPtr, _ abi.LibraryPtr, out *abi.StringName) bool {
	h.mu.Lock()
	o, ok := h.objects[obj]
	h.mu.Unlock()
	if !ok {
		return false
	}
	name := o.Class
	if o.ExtClass != "" {
		name = o.ExtClass
	}
	h.stringNameNew(out, name)
	return true
}

func (h *Host) objectGetInstanceID(obj abi.ObjectPtr) abi.ObjectID {
	h.mu.Lock()
	defer h.mu.Unlock()
	if o, ok := h.objects[obj]; ok {
		return o.ID
	}
	return 0
}

func (h *Host) objectGetInstanceFromID(id abi.ObjectID) abi.ObjectPtr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ids[id]
}

func (h *Host) objectSetInstance(obj abi.ObjectPtr, class *abi.StringName, inst abi.InstancePtr) {
	name := h.text(class.Ptr, abi.TypeStringName)
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.objects[obj]
	if !ok {
		h.errs = append(h.errs, "hosttest: object_set_instance on unknown object")
		return
	}
	if _, ok := h.classes[name]; !ok {
		h.errs = append(h.errs, "hosttest: object_set_instance with unregistered class "+name)
		return
	}
	o.ExtClass = name
	o.Instance = inst
}

func (h *Host) classDBConstructObject(class *abi.StringName) abi.ObjectPtr {
	name := h.text(class.Ptr, abi.TypeStringName)

	h.mu.Lock()
	if _, ok := h.native[name]; ok {
		defer h.mu.Unlock()
		return h.newObjectLocked(name)
	}
	_, ext := h.classes[name]
	h.mu.Unlock()

	if ext {
		obj, err := h.Instantiate(name)
		if err != nil {
			h.failf("%v", err)
		}
		return obj
	}
	h.failf("classdb_construct_object: unknown class %s", name)
	return 0
}
