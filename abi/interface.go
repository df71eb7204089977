package abi

import (
	"reflect"
	"unsafe"

	"github.com/wippyai/gdext/errors"
)

// GetProcAddress resolves a host function by name. It returns nil when the
// host does not provide the function.
type GetProcAddress func(name string) any

// Interface is the table of host functions used by the bridge. Every field
// is resolved by LoadInterface from the name in its proc tag.
type Interface struct {
	GetGodotVersion func(out *GodotVersion)                                                 `proc:"get_godot_version"`
	PrintError      func(description, function, file string, line int32, notifyEditor bool) `proc:"print_error"`

	VariantNewCopy  func(dst, src *Variant)                               `proc:"variant_new_copy"`
	VariantDestroy  func(v *Variant)                                      `proc:"variant_destroy"`
	VariantHash     func(v *Variant) int64                                `proc:"variant_hash"`
	VariantFromType func(t VariantType, dst *Variant, src unsafe.Pointer) `proc:"variant_from_type"`
	VariantToType   func(t VariantType, dst unsafe.Pointer, src *Variant) `proc:"variant_to_type"`

	StringNew     func(dst *String, text string) `proc:"string_new_with_utf8_chars_and_len"`
	StringToUTF8  func(s *String) string         `proc:"string_to_utf8_chars"`
	StringDestroy func(s *String)                `proc:"string_destroy"`

	StringNameNew     func(dst *StringName, text string) `proc:"string_name_new_with_utf8_chars_and_len"`
	StringNameToUTF8  func(s *StringName) string         `proc:"string_name_to_utf8_chars"`
	StringNameDestroy func(s *StringName)                `proc:"string_name_destroy"`

	NodePathNew     func(dst *NodePath, text string) `proc:"node_path_new_with_utf8_chars_and_len"`
	NodePathToUTF8  func(p *NodePath) string         `proc:"node_path_to_utf8_chars"`
	NodePathDestroy func(p *NodePath)                `proc:"node_path_destroy"`

	ArrayNew      func(dst *Array)                          `proc:"array_new"`
	ArraySize     func(a *Array) int64                      `proc:"array_size"`
	ArrayGet      func(a *Array, index int64, out *Variant) `proc:"array_get"`
	ArrayPushBack func(a *Array, value *Variant)            `proc:"array_push_back"`
	ArrayDestroy  func(a *Array)                            `proc:"array_destroy"`

	DictionaryNew     func(dst *Dictionary)                                 `proc:"dictionary_new"`
	DictionarySize    func(d *Dictionary) int64                             `proc:"dictionary_size"`
	DictionarySet     func(d *Dictionary, key, value *Variant)              `proc:"dictionary_set"`
	DictionaryEntry   func(d *Dictionary, index int64, key, value *Variant) `proc:"dictionary_entry"`
	DictionaryDestroy func(d *Dictionary)                                   `proc:"dictionary_destroy"`

	PackedArrayNew     func(t VariantType, dst *PackedArray, data unsafe.Pointer, count int64) `proc:"packed_array_new"`
	PackedArraySize    func(t VariantType, p *PackedArray) int64                               `proc:"packed_array_size"`
	PackedArrayData    func(t VariantType, p *PackedArray) unsafe.Pointer                      `proc:"packed_array_data"`
	PackedArrayDestroy func(t VariantType, p *PackedArray)                                     `proc:"packed_array_destroy"`

	ObjectGetClassName      func(obj ObjectPtr, lib LibraryPtr, out *StringName) bool `proc:"object_get_class_name"`
	ObjectGetInstanceID     func(obj ObjectPtr) ObjectID                              `proc:"object_get_instance_id"`
	ObjectGetInstanceFromID func(id ObjectID) ObjectPtr                               `proc:"object_get_instance_from_id"`
	ObjectSetInstance       func(obj ObjectPtr, class *StringName, inst InstancePtr)  `proc:"object_set_instance"`
	ObjectDestroy           func(obj ObjectPtr)                                       `proc:"object_destroy"`

	ClassDBConstructObject                        func(class *StringName) ObjectPtr                                                       `proc:"classdb_construct_object"`
	ClassDBRegisterExtensionClass                 func(lib LibraryPtr, class, parent *StringName, info *ClassCreationInfo)                `proc:"classdb_register_extension_class"`
	ClassDBRegisterExtensionClassMethod           func(lib LibraryPtr, class *StringName, info *ClassMethodInfo)                          `proc:"classdb_register_extension_class_method"`
	ClassDBRegisterExtensionClassVirtualMethod    func(lib LibraryPtr, class *StringName, info *ClassVirtualMethodInfo)                   `proc:"classdb_register_extension_class_virtual_method"`
	ClassDBRegisterExtensionClassIntegerConstant  func(lib LibraryPtr, class, enum, name *StringName, value int64, isBitfield bool)       `proc:"classdb_register_extension_class_integer_constant"`
	ClassDBRegisterExtensionClassProperty         func(lib LibraryPtr, class *StringName, info *PropertyInfo, setter, getter *StringName) `proc:"classdb_register_extension_class_property"`
	ClassDBRegisterExtensionClassPropertyGroup    func(lib LibraryPtr, class *StringName, name, prefix *String)                           `proc:"classdb_register_extension_class_property_group"`
	ClassDBRegisterExtensionClassPropertySubgroup func(lib LibraryPtr, class *StringName, name, prefix *String)                           `proc:"classdb_register_extension_class_property_subgroup"`
	ClassDBRegisterExtensionClassSignal           func(lib LibraryPtr, class, signal *StringName, args []PropertyInfo)                    `proc:"classdb_register_extension_class_signal"`
	ClassDBUnregisterExtensionClass               func(lib LibraryPtr, class *StringName)                                                 `proc:"classdb_unregister_extension_class"`

	CallableCustomCreate      func(dst *Callable, info *CallableCustomInfo) `proc:"callable_custom_create"`
	CallableCustomGetUserdata func(c *Callable, token LibraryPtr) uintptr   `proc:"callable_custom_get_userdata"`
	CallableDestroy           func(c *Callable)                             `proc:"callable_destroy"`
}

// LoadInterface resolves every Interface entry through getProc. A missing
// entry or one whose type does not match the field fails the whole load.
func LoadInterface(getProc GetProcAddress) (*Interface, error) {
	if getProc == nil {
		return nil, errors.InvalidInput(errors.PhaseInit, "nil get_proc_address")
	}

	iface := &Interface{}
	rv := reflect.ValueOf(iface).Elem()
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name := field.Tag.Get("proc")
		if name == "" {
			continue
		}

		fn := getProc(name)
		if fn == nil {
			return nil, errors.NotFound(errors.PhaseInit, "interface function", name)
		}

		fv := reflect.ValueOf(fn)
		if !fv.Type().AssignableTo(field.Type) {
			if !fv.Type().ConvertibleTo(field.Type) {
				return nil, errors.New(errors.PhaseInit, errors.KindTypeMismatch).
					Path(name).
					GoType(fv.Type().String()).
					Detail("expected %s", field.Type).
					Build()
			}
			fv = fv.Convert(field.Type)
		}
		rv.Field(i).Set(fv)
	}

	return iface, nil
}

// Procs returns the non-nil entries of i keyed by their proc names. Test hosts
// use it to serve GetProcAddress from a populated Interface.
func (i *Interface) Procs() map[string]any {
	rv := reflect.ValueOf(i).Elem()
	rt := rv.Type()

	out := make(map[string]any, rt.NumField())
	for n := 0; n < rt.NumField(); n++ {
		name := rt.Field(n).Tag.Get("proc")
		if name == "" || rv.Field(n).IsNil() {
			continue
		}
		out[name] = rv.Field(n).Interface()
	}
	return out
}

// ProcNames lists every proc name the bridge requires, in declaration order.
func ProcNames() []string {
	rt := reflect.TypeOf(Interface{})
	names := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		if name := rt.Field(i).Tag.Get("proc"); name != "" {
			names = append(names, name)
		}
	}
	return names
}
