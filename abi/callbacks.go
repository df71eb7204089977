package abi

import "unsafe"

// PropertyHint refines how the editor presents a property.
type PropertyHint uint32

const (
	HintNone PropertyHint = iota
	HintRange
	HintEnum
	HintEnumSuggestion
	HintExpEasing
	HintLink
	HintFlags
	HintLayers2DRender
	HintLayers2DPhysics
	HintLayers2DNavigation
	HintLayers3DRender
	HintLayers3DPhysics
	HintLayers3DNavigation
	HintFile
	HintDir
	HintGlobalFile
	HintGlobalDir
	HintResourceType
	HintMultilineText
	HintExpression
	HintPlaceholderText
	HintColorNoAlpha
)

// PropertyUsage is a bit set describing where a property is used.
type PropertyUsage uint32

const (
	UsageNone            PropertyUsage = 0
	UsageStorage         PropertyUsage = 1 << 1
	UsageEditor          PropertyUsage = 1 << 2
	UsageInternal        PropertyUsage = 1 << 3
	UsageCheckable       PropertyUsage = 1 << 4
	UsageChecked         PropertyUsage = 1 << 5
	UsageGroup           PropertyUsage = 1 << 6
	UsageCategory        PropertyUsage = 1 << 7
	UsageSubgroup        PropertyUsage = 1 << 8
	UsageClassIsBitfield PropertyUsage = 1 << 9
	UsageNoInstanceState PropertyUsage = 1 << 10
	UsageReadOnly        PropertyUsage = 1 << 28

	UsageDefault = UsageStorage | UsageEditor
)

// PropertyInfo describes a property, argument or return value.
// The host owns the strings for infos it passes in; the extension owns the
// strings for infos it hands out until the matching release call.
type PropertyInfo struct {
	Type       VariantType
	Name       StringName
	ClassName  StringName
	Hint       PropertyHint
	HintString String
	Usage      PropertyUsage
}

// MethodFlags describe a bound method.
type MethodFlags uint32

const (
	MethodFlagNormal  MethodFlags = 1
	MethodFlagEditor  MethodFlags = 2
	MethodFlagConst   MethodFlags = 4
	MethodFlagVirtual MethodFlags = 8
	MethodFlagVararg  MethodFlags = 16
	MethodFlagStatic  MethodFlags = 32

	MethodFlagsDefault = MethodFlagNormal
)

// ArgumentMetadata narrows int and float arguments to a storage width.
type ArgumentMetadata int32

const (
	MetadataNone ArgumentMetadata = iota
	MetadataIntIsInt8
	MetadataIntIsInt16
	MetadataIntIsInt32
	MetadataIntIsInt64
	MetadataIntIsUint8
	MetadataIntIsUint16
	MetadataIntIsUint32
	MetadataIntIsUint64
	MetadataRealIsFloat
	MetadataRealIsDouble
)

// ClassMethodCall is the variant calling convention. args holds borrowed
// variants; the result must be constructed into ret.
type ClassMethodCall func(methodUserdata uintptr, inst InstancePtr, args []*Variant, ret *Variant, err *CallError)

// ClassMethodPtrCall is the typed calling convention. Each args element
// points at a native value of the declared argument type; ret points at
// storage of the declared return type.
type ClassMethodPtrCall func(methodUserdata uintptr, inst InstancePtr, args []unsafe.Pointer, ret unsafe.Pointer)

// ClassMethodInfo is passed to the method registration call.
type ClassMethodInfo struct {
	Name              *StringName
	MethodUserdata    uintptr
	Call              ClassMethodCall
	PtrCall           ClassMethodPtrCall
	Flags             MethodFlags
	HasReturn         bool
	ReturnInfo        *PropertyInfo
	ReturnMetadata    ArgumentMetadata
	Arguments         []PropertyInfo
	ArgumentsMetadata []ArgumentMetadata
	DefaultArguments  []*Variant
}

// ClassVirtualMethodInfo declares a virtual method scripts may implement.
type ClassVirtualMethodInfo struct {
	Name              *StringName
	Flags             MethodFlags
	Return            PropertyInfo
	ReturnMetadata    ArgumentMetadata
	Arguments         []PropertyInfo
	ArgumentsMetadata []ArgumentMetadata
}

// Reverse callbacks installed with a class.
type (
	ClassSet               func(inst InstancePtr, name *StringName, value *Variant) bool
	ClassGet               func(inst InstancePtr, name *StringName, ret *Variant) bool
	ClassGetPropertyList   func(inst InstancePtr) []PropertyInfo
	ClassFreePropertyList  func(inst InstancePtr, list []PropertyInfo)
	ClassPropertyCanRevert func(inst InstancePtr, name *StringName) bool
	ClassPropertyGetRevert func(inst InstancePtr, name *StringName, ret *Variant) bool
	ClassValidateProperty  func(inst InstancePtr, info *PropertyInfo) bool
	ClassNotification      func(inst InstancePtr, what int32, reversed bool)
	ClassToString          func(inst InstancePtr, valid *bool, out *String)
	ClassCreateInstance    func(userdata ClassUserdata) ObjectPtr
	ClassFreeInstance      func(userdata ClassUserdata, inst InstancePtr)
	ClassCallVirtual       func(inst InstancePtr, args []unsafe.Pointer, ret unsafe.Pointer)
	ClassGetVirtual        func(userdata ClassUserdata, name *StringName) ClassCallVirtual
)

// ClassCreationInfo is the fixed callback table registered with each class.
type ClassCreationInfo struct {
	IsVirtual  bool
	IsAbstract bool
	IsExposed  bool
	IsRuntime  bool

	Set               ClassSet
	Get               ClassGet
	GetPropertyList   ClassGetPropertyList
	FreePropertyList  ClassFreePropertyList
	PropertyCanRevert ClassPropertyCanRevert
	PropertyGetRevert ClassPropertyGetRevert
	ValidateProperty  ClassValidateProperty
	Notification      ClassNotification
	ToString          ClassToString
	CreateInstance    ClassCreateInstance
	FreeInstance      ClassFreeInstance
	GetVirtual        ClassGetVirtual

	ClassUserdata ClassUserdata
}

// CallableCustomInfo is the callback table for a custom callable.
type CallableCustomInfo struct {
	Userdata uintptr
	Token    LibraryPtr
	ObjectID ObjectID

	Call             func(userdata uintptr, args []*Variant, ret *Variant, err *CallError)
	IsValid          func(userdata uintptr) bool
	Free             func(userdata uintptr)
	Hash             func(userdata uintptr) uint32
	Equal            func(a, b uintptr) bool
	LessThan         func(a, b uintptr) bool
	ToString         func(userdata uintptr, valid *bool, out *String)
	GetArgumentCount func(userdata uintptr, valid *bool) int64
}

// Initialization is filled by the extension entry point.
type Initialization struct {
	MinimumLevel InitializationLevel
	Userdata     uintptr
	Initialize   func(userdata uintptr, level InitializationLevel)
	Deinitialize func(userdata uintptr, level InitializationLevel)
}
