// Package classdb registers Go types as engine classes.
//
// A Registry owns one Descriptor per class name. Register is idempotent:
// the first call announces the class to the host together with the fixed
// reverse-callback table, and every call runs its configure function
// against the same descriptor, so members may be contributed from several
// places.
//
//	err := classdb.RegisterClass[Widget](reg, "Widget", "Node", func(c *classdb.Context) error {
//	    if err := classdb.BindProperty(c, classdb.PropertyInfo{Name: "Count"},
//	        (*Widget).Count, (*Widget).SetCount); err != nil {
//	        return err
//	    }
//	    return c.BindMethod("Increment", (*Widget).Increment)
//	})
//
// Member names are unique per class within their kind: constants,
// properties, methods (including virtual overrides) and signals. A
// duplicate is a configuration error that names the class and the member.
//
// The host drives instances through the reverse callbacks. Optional
// interfaces on the shadow type extend them: Setter, Getter,
// PropertyLister, PropertyValidator, Reverter, Notifier and fmt.Stringer.
// Every callback runs under the dispatch guard, so no panic reaches native
// code.
//
// UnregisterAll removes classes in reverse registration order, which keeps
// a base class registered for as long as any class derived from it.
package classdb
