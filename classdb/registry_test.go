package classdb

import (
	"slices"
	"strings"
	"testing"

	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/errors"
	"github.com/wippyai/gdext/host/hosttest"
	"github.com/wippyai/gdext/object"
)

type Widget struct {
	object.Object
	count     int64
	processed float64
}

func (w *Widget) Count() int64          { return w.count }
func (w *Widget) SetCount(v int64)      { w.count = v }
func (w *Widget) Increment()            { w.count++ }
func (w *Widget) Process(delta float64) { w.processed += delta }

func (w *Widget) Add(n int64, times int64) int64 {
	w.count += n * times
	return w.count
}

type FastWidget struct {
	Widget
	boost int64
}

type Shape struct{ object.Object }

func (*Shape) Abstract() {}

func newRegistry(t *testing.T) (*Registry, *hosttest.Host) {
	t.Helper()
	h := hosttest.New()
	iface, err := abi.LoadInterface(h.GetProcAddress)
	if err != nil {
		t.Fatalf("LoadInterface: %v", err)
	}
	return NewRegistry(Options{Interface: iface, Library: h.Library()}), h
}

func configureWidget(c *Context) error {
	if err := BindProperty(c, PropertyInfo{Name: "Count"}, (*Widget).Count, (*Widget).SetCount); err != nil {
		return err
	}
	if err := c.BindMethod("Increment", (*Widget).Increment); err != nil {
		return err
	}
	if err := c.BindMethod("Add", (*Widget).Add, Param("n"), Optional("times", 2)); err != nil {
		return err
	}
	if err := c.BindConstant(Constant{Enum: "Speed", Name: "MAX_SPEED", Value: 100}); err != nil {
		return err
	}
	return c.BindVirtualMethodOverride("_process", (*Widget).Process)
}

func registerWidget(t *testing.T, r *Registry) {
	t.Helper()
	if err := RegisterClass[Widget](r, "Widget", "Node", configureWidget); err != nil {
		t.Fatalf("register Widget: %v", err)
	}
}

func instantiate[T any](t *testing.T, r *Registry, h *hosttest.Host, class string) (abi.ObjectPtr, *T) {
	t.Helper()
	ptr, err := h.Instantiate(class)
	if err != nil {
		t.Fatalf("Instantiate(%s): %v", class, err)
	}
	s, ok := r.Objects().Lookup(ptr)
	if !ok {
		t.Fatalf("no shadow for %s", class)
	}
	v, ok := any(s).(*T)
	if !ok {
		t.Fatalf("shadow is %T", s)
	}
	return ptr, v
}

func TestWidgetScenario(t *testing.T) {
	r, h := newRegistry(t)
	registerWidget(t, r)

	obj, w := instantiate[Widget](t, r, h, "Widget")

	if !h.Set(obj, "Count", h.Int(5)) {
		t.Fatal("Set(Count) failed")
	}
	v, ok := h.Get(obj, "Count")
	if !ok || v.Type != abi.TypeInt || v.Int() != 5 {
		t.Fatalf("Get(Count) = %v %d, %v", v.Type, v.Int(), ok)
	}

	for range 2 {
		ret, cerr := h.Call(obj, "Increment")
		if cerr.Error != abi.CallOK {
			t.Fatalf("Increment: %s", cerr.Error)
		}
		h.Release(&ret)
	}
	if w.count != 7 {
		t.Errorf("Count = %d, want 7", w.count)
	}
	if errs := h.Errors(); len(errs) != 0 {
		t.Errorf("host errors: %v", errs)
	}
}

func TestRegister_HostRecord(t *testing.T) {
	r, h := newRegistry(t)
	registerWidget(t, r)

	c, ok := h.Class("Widget")
	if !ok {
		t.Fatal("Widget not registered with host")
	}
	if c.Parent != "Node" || !c.Info.IsExposed || c.Info.IsAbstract {
		t.Errorf("parent=%q exposed=%v abstract=%v", c.Parent, c.Info.IsExposed, c.Info.IsAbstract)
	}
	if want := []string{"get_Count", "set_Count", "Increment", "Add"}; !slices.Equal(c.MethodOrder, want) {
		t.Errorf("methods = %v, want %v", c.MethodOrder, want)
	}
	add := c.Methods["Add"]
	if len(add.Args) != 2 || add.Args[0].Name != "n" || add.Args[1].Name != "times" {
		t.Errorf("Add args = %+v", add.Args)
	}
	if len(add.Defaults) != 1 || add.Defaults[0].Int() != 2 {
		t.Errorf("Add defaults = %+v", add.Defaults)
	}
	if add.Return == nil || add.Return.Type != abi.TypeInt {
		t.Errorf("Add return = %+v", add.Return)
	}
	if len(c.Properties) != 1 {
		t.Fatalf("properties = %+v", c.Properties)
	}
	p := c.Properties[0]
	if p.Name != "Count" || p.Type != abi.TypeInt || p.Getter != "get_Count" || p.Setter != "set_Count" || p.Usage != abi.UsageDefault {
		t.Errorf("property = %+v", p)
	}
	if len(c.Constants) != 1 || c.Constants[0] != (hosttest.Constant{Enum: "Speed", Name: "MAX_SPEED", Value: 100}) {
		t.Errorf("constants = %+v", c.Constants)
	}

	d, _ := r.Class("Widget")
	if d.NativeBase() != "Node" || d.GoType().String() != "*classdb.Widget" || !d.HasConstructor() {
		t.Errorf("descriptor: base=%s type=%v ctor=%v", d.NativeBase(), d.GoType(), d.HasConstructor())
	}
	if got := d.Overrides(); !slices.Equal(got, []string{"_process"}) {
		t.Errorf("overrides = %v", got)
	}
}

func TestBindConstant_Duplicate(t *testing.T) {
	r, h := newRegistry(t)
	registerWidget(t, r)

	err := r.Register("Widget", "Node", 0, func(c *Context) error {
		return c.BindConstant(Constant{Enum: "Speed", Name: "MAX_SPEED", Value: 100})
	})
	if errors.KindOf(err) != errors.KindDuplicateMember {
		t.Fatalf("err = %v, want duplicate member", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "Widget") || !strings.Contains(msg, "MAX_SPEED") {
		t.Errorf("message %q should name the class and constant", msg)
	}
	c, _ := h.Class("Widget")
	if len(c.Constants) != 1 {
		t.Errorf("host saw %d constants", len(c.Constants))
	}
}

func TestBind_Errors(t *testing.T) {
	tests := []struct {
		name string
		bind func(c *Context) error
		want errors.Kind
	}{
		{
			name: "flags constant outside enum",
			bind: func(c *Context) error {
				return c.BindConstant(Constant{Name: "FLAG_A", Value: 1, IsFlags: true})
			},
			want: errors.KindInvalidInput,
		},
		{
			name: "duplicate method",
			bind: func(c *Context) error {
				return c.BindMethod("Increment", (*Widget).Increment)
			},
			want: errors.KindDuplicateMember,
		},
		{
			name: "override shares method names",
			bind: func(c *Context) error {
				return c.BindVirtualMethodOverride("Add", (*Widget).Process)
			},
			want: errors.KindDuplicateMember,
		},
		{
			name: "duplicate override",
			bind: func(c *Context) error {
				return c.BindVirtualMethodOverride("_process", (*Widget).Process)
			},
			want: errors.KindDuplicateMember,
		},
		{
			name: "duplicate property",
			bind: func(c *Context) error {
				return c.BindPropertyWithAccessors(PropertyInfo{Name: "Count"}, "get_Count", "")
			},
			want: errors.KindDuplicateMember,
		},
		{
			name: "duplicate signal",
			bind: func(c *Context) error {
				if err := c.BindSignal("changed"); err != nil {
					return err
				}
				return c.BindSignal("changed")
			},
			want: errors.KindDuplicateMember,
		},
		{
			name: "missing getter",
			bind: func(c *Context) error {
				return c.BindPropertyWithAccessors(PropertyInfo{Name: "Speed"}, "get_Speed", "")
			},
			want: errors.KindRegistration,
		},
		{
			name: "optional before required",
			bind: func(c *Context) error {
				return c.BindMethod("Mix", func(*Widget, int64, int64) {}, Optional("a", 1), Param("b"))
			},
			want: errors.KindInvalidInput,
		},
		{
			name: "too many argument names",
			bind: func(c *Context) error {
				return c.BindMethod("One", func(*Widget, int64) {}, Param("a"), Param("b"))
			},
			want: errors.KindInvalidInput,
		},
		{
			name: "default of the wrong type",
			bind: func(c *Context) error {
				return c.BindMethod("Def", func(*Widget, int64) {}, Optional("a", "x"))
			},
			want: errors.KindRegistration,
		},
		{
			name: "receiver of another type",
			bind: func(c *Context) error {
				return c.BindMethod("Foreign", func(*Shape) {})
			},
			want: errors.KindRegistration,
		},
		{
			name: "unsupported parameter",
			bind: func(c *Context) error {
				return c.BindMethod("Chan", func(*Widget, chan int) {})
			},
			want: errors.KindRegistration,
		},
		{
			name: "second constructor",
			bind: func(c *Context) error {
				return c.BindConstructor(func() object.Shadow { return &Widget{} })
			},
			want: errors.KindDuplicateMember,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRegistry(t)
			registerWidget(t, r)
			err := RegisterClass[Widget](r, "Widget", "Node", tt.bind)
			if got := errors.KindOf(err); got != tt.want {
				t.Errorf("kind = %q, want %q (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestRegister_MergesConfigure(t *testing.T) {
	r, h := newRegistry(t)
	var calls []string

	err := r.Register("Merged", "Node", 0, func(c *Context) error {
		calls = append(calls, "first")
		if err := c.BindConstructor(func() object.Shadow { return &Widget{} }); err != nil {
			return err
		}
		return c.BindConstant(Constant{Name: "A", Value: 1})
	})
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}

	// An instance created before the second contribution sees its members.
	obj, w := instantiate[Widget](t, r, h, "Merged")

	err = r.Register("Merged", "Node", 0, func(c *Context) error {
		calls = append(calls, "second")
		return c.BindMethod("Increment", (*Widget).Increment)
	})
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}

	ret, cerr := h.Call(obj, "Increment")
	h.Release(&ret)
	if cerr.Error != abi.CallOK || w.count != 1 {
		t.Errorf("Increment on live instance: %s, count=%d", cerr.Error, w.count)
	}
	if !slices.Equal(calls, []string{"first", "second"}) {
		t.Errorf("configure order = %v", calls)
	}
	if got := h.Classes(); !slices.Equal(got, []string{"Merged"}) {
		t.Errorf("host classes = %v", got)
	}
	c, _ := h.Class("Merged")
	if len(c.Constants) != 1 || len(c.Methods) != 1 {
		t.Errorf("host record: %d constants, %d methods", len(c.Constants), len(c.Methods))
	}

	if err := r.Register("Merged", "Node2D", 0, nil); errors.KindOf(err) != errors.KindRegistration {
		t.Errorf("re-register with another base: %v", err)
	}
	if err := r.Register("Merged", "Node", FlagRuntime, nil); errors.KindOf(err) != errors.KindRegistration {
		t.Errorf("re-register with other flags: %v", err)
	}
}

func TestRegisterClass_Constructor(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*Context) error
		want      int64
	}{
		{"zero value", nil, 0},
		{"custom", func(c *Context) error {
			return c.BindConstructor(func() object.Shadow { return &Widget{count: 42} })
		}, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, h := newRegistry(t)
			if err := RegisterClass[Widget](r, "Widget", "Node", tt.configure); err != nil {
				t.Fatalf("RegisterClass: %v", err)
			}
			_, w := instantiate[Widget](t, r, h, "Widget")
			if w.count != tt.want {
				t.Errorf("count = %d, want %d", w.count, tt.want)
			}
		})
	}
}

func TestBindMethod_DiscardRollsBack(t *testing.T) {
	r, _ := newRegistry(t)
	var before int
	err := RegisterClass[Widget](r, "Widget", "Node", func(c *Context) error {
		if err := c.BindMethod("Increment", (*Widget).Increment); err != nil {
			return err
		}
		before = r.methods.Len()
		if err := c.BindMethod("Temp", (*Widget).Increment); err != nil {
			return err
		}
		c.discard(c.d.methods["Temp"])

		c.d.mu.Lock()
		defer c.d.mu.Unlock()
		if err := c.d.claim(memberMethod, "Temp"); err != nil {
			t.Errorf("name still claimed: %v", err)
		}
		c.d.unclaim(memberMethod, "Temp")
		return nil
	})
	if err != nil {
		t.Fatalf("RegisterClass: %v", err)
	}

	d, _ := r.Class("Widget")
	if got := r.methods.Len(); got != before {
		t.Errorf("method handles = %d, want %d", got, before)
	}
	if d.findMethod("Temp") != nil {
		t.Error("discarded method still resolvable")
	}
	if got := d.Methods(); !slices.Equal(got, []string{"Increment"}) {
		t.Errorf("methods = %v", got)
	}
	if _, ok := r.names.Lookup("Temp"); ok {
		t.Error("discarded method name still interned")
	}
}

func TestRegister_InvalidNames(t *testing.T) {
	r, _ := newRegistry(t)
	for _, tc := range [][2]string{{"", "Node"}, {"X", ""}, {"Node2", "Node2"}} {
		if err := r.Register(tc[0], tc[1], 0, nil); errors.KindOf(err) != errors.KindInvalidInput {
			t.Errorf("Register(%q, %q) = %v", tc[0], tc[1], err)
		}
	}
}

func TestUnregisterAll_ReverseOrder(t *testing.T) {
	r, h := newRegistry(t)
	for _, c := range [][2]string{
		{"Base", "Node"},
		{"Other", "Node2D"},
		{"Derived", "Base"},
		{"Leaf", "Derived"},
	} {
		if err := r.Register(c[0], c[1], 0, nil); err != nil {
			t.Fatalf("Register(%s): %v", c[0], err)
		}
	}
	d, _ := r.Class("Leaf")
	if d.NativeBase() != "Node" {
		t.Errorf("Leaf native base = %s", d.NativeBase())
	}

	r.UnregisterAll()

	if got, want := h.Unregistered(), []string{"Leaf", "Derived", "Other", "Base"}; !slices.Equal(got, want) {
		t.Errorf("unregister order = %v, want %v", got, want)
	}
	if errs := h.Errors(); len(errs) != 0 {
		t.Errorf("host errors: %v", errs)
	}
	if len(r.Classes()) != 0 {
		t.Errorf("classes left: %v", r.Classes())
	}
	if _, ok := r.Class("Base"); ok {
		t.Error("descriptor survived UnregisterAll")
	}
}

func TestAbstractClasses(t *testing.T) {
	r, h := newRegistry(t)

	if err := RegisterClass[Shape](r, "Shape", "Node", nil); errors.KindOf(err) != errors.KindAbstractMismatch {
		t.Fatalf("non-abstract registration of abstract type: %v", err)
	}
	if err := RegisterAbstractClass[Shape](r, "Shape", "Node", nil); err != nil {
		t.Fatalf("RegisterAbstractClass: %v", err)
	}
	d, _ := r.Class("Shape")
	if d.HasConstructor() || !d.Flags().Has(FlagAbstract) {
		t.Errorf("abstract descriptor: ctor=%v flags=%s", d.HasConstructor(), d.Flags())
	}
	if _, err := h.Instantiate("Shape"); err == nil {
		t.Error("host instantiated an abstract class")
	}
	if _, err := r.Instantiate("Shape"); errors.KindOf(err) != errors.KindAbstractMismatch {
		t.Errorf("Instantiate(Shape) = %v", err)
	}
	err := r.Register("Shape", "Node", FlagAbstract, func(c *Context) error {
		return c.BindConstructor(func() object.Shadow { return &Shape{} })
	})
	if errors.KindOf(err) != errors.KindAbstractMismatch {
		t.Errorf("constructor on abstract class: %v", err)
	}
}

func TestCreateInstance_MissingConstructor(t *testing.T) {
	r, h := newRegistry(t)
	if err := r.Register("Bare", "Node", 0, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := h.Instantiate("Bare"); err == nil {
		t.Fatal("instantiation without a constructor succeeded")
	}
	found := false
	for _, e := range h.Errors() {
		if strings.Contains(e, "constructor has not been registered") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing constructor not reported: %v", h.Errors())
	}
	if _, err := r.Instantiate("Bare"); errors.KindOf(err) != errors.KindMissingConstructor {
		t.Errorf("Instantiate(Bare) = %v", err)
	}
	if _, err := r.Instantiate("Nope"); errors.KindOf(err) != errors.KindUnknownClass {
		t.Errorf("Instantiate(Nope) = %v", err)
	}
}

func TestFlags_String(t *testing.T) {
	tests := []struct {
		flags Flags
		want  string
	}{
		{0, "exposed"},
		{FlagVirtual, "virtual"},
		{FlagAbstract | FlagInternal, "abstract|internal"},
		{FlagRuntime, "runtime"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.flags, got, tt.want)
		}
	}
}

func TestLifecycle_NoLeaks(t *testing.T) {
	r, h := newRegistry(t)
	registerWidget(t, r)
	if err := RegisterClass[FastWidget](r, "FastWidget", "Widget", nil); err != nil {
		t.Fatalf("register FastWidget: %v", err)
	}

	a, _ := instantiate[Widget](t, r, h, "Widget")
	_, b := instantiate[FastWidget](t, r, h, "FastWidget")

	ret, cerr := h.Call(a, "Add", h.Int(4))
	h.Release(&ret)
	if cerr.Error != abi.CallOK {
		t.Fatalf("Add: %s", cerr.Error)
	}
	if err := r.Objects().Dispose(b); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	r.Objects().DisposeAll()
	r.UnregisterAll()
	r.Names().Close()

	if n := h.LiveHandles(); n != 0 {
		t.Errorf("%d live handles: %v", n, h.LiveStrings())
	}
	if h.Objects() != 0 {
		t.Errorf("%d live objects", h.Objects())
	}
	if errs := h.Errors(); len(errs) != 0 {
		t.Errorf("host errors: %v", errs)
	}
}
