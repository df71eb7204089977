package classdb

import (
	"github.com/wippyai/gdext/abi"
	"github.com/wippyai/gdext/variant"
)

// Flags select how a class is exposed to the engine.
type Flags uint8

const (
	// FlagVirtual marks a class scripts may extend but the editor does not
	// offer for creation.
	FlagVirtual Flags = 1 << iota
	// FlagAbstract marks a class that is never instantiated.
	FlagAbstract
	// FlagRuntime marks a class that only runs its logic outside the editor.
	FlagRuntime
	// FlagInternal hides the class from the editor and documentation.
	FlagInternal
)

// Has reports whether all bits of o are set.
func (f Flags) Has(o Flags) bool { return f&o == o }

func (f Flags) String() string {
	if f == 0 {
		return "exposed"
	}
	var out string
	for _, b := range []struct {
		flag Flags
		name string
	}{
		{FlagVirtual, "virtual"},
		{FlagAbstract, "abstract"},
		{FlagRuntime, "runtime"},
		{FlagInternal, "internal"},
	} {
		if f.Has(b.flag) {
			if out != "" {
				out += "|"
			}
			out += b.name
		}
	}
	return out
}

// PropertyInfo describes a property, argument or signal parameter. A zero
// Usage means abi.UsageDefault.
type PropertyInfo struct {
	Name       string
	ClassName  string
	HintString string
	Type       variant.Type
	Hint       abi.PropertyHint
	Usage      abi.PropertyUsage
}

func (p PropertyInfo) usage() abi.PropertyUsage {
	if p.Usage == 0 {
		return abi.UsageDefault
	}
	return p.Usage
}

// Constant is an integer constant, optionally grouped in an enum. Flags
// constants must belong to an enum.
type Constant struct {
	Enum    string
	Name    string
	Value   int64
	IsFlags bool
}

// Signal is a registered signal.
type Signal struct {
	Name   string
	Params []PropertyInfo
}

// Arg names a method parameter and optionally gives it a default value.
type Arg struct {
	Default    any
	Name       string
	HasDefault bool
}

// Param declares a required parameter.
func Param(name string) Arg { return Arg{Name: name} }

// Optional declares a parameter with a default value. Optional parameters
// must follow required ones.
func Optional(name string, def any) Arg {
	return Arg{Name: name, Default: def, HasDefault: true}
}

// VirtualMethod declares a virtual method that scripts may implement.
type VirtualMethod struct {
	Name   string
	Return PropertyInfo
	Params []PropertyInfo
	Const  bool
}

// Optional interfaces of shadow types, consulted by the reverse callbacks.
type (
	// Setter handles dynamic properties. It reports whether name was
	// handled; unhandled names fall back to bound properties.
	Setter interface {
		SetProperty(name string, value variant.Variant) bool
	}

	// Getter reads dynamic properties.
	Getter interface {
		GetProperty(name string) (variant.Variant, bool)
	}

	// PropertyLister lists dynamic properties.
	PropertyLister interface {
		PropertyList() []PropertyInfo
	}

	// PropertyValidator may adjust how a property is presented.
	PropertyValidator interface {
		ValidateProperty(p *PropertyInfo) bool
	}

	// Reverter supplies revert values for properties.
	Reverter interface {
		PropertyCanRevert(name string) bool
		PropertyGetRevert(name string) (variant.Variant, bool)
	}

	// Notifier receives engine notifications.
	Notifier interface {
		Notification(what int32, reversed bool)
	}

	// AbstractType marks a Go type that must be registered abstract.
	AbstractType interface {
		Abstract()
	}
)
