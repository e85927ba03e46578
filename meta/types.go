package meta

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
)

// ElementType is an ECMA-335 signature element type.
type ElementType uint8

// Element types from ECMA-335 II.23.1.16.
const (
	ElemEnd         ElementType = 0x00
	ElemVoid        ElementType = 0x01
	ElemBoolean     ElementType = 0x02
	ElemChar        ElementType = 0x03
	ElemI1          ElementType = 0x04
	ElemU1          ElementType = 0x05
	ElemI2          ElementType = 0x06
	ElemU2          ElementType = 0x07
	ElemI4          ElementType = 0x08
	ElemU4          ElementType = 0x09
	ElemI8          ElementType = 0x0A
	ElemU8          ElementType = 0x0B
	ElemR4          ElementType = 0x0C
	ElemR8          ElementType = 0x0D
	ElemString      ElementType = 0x0E
	ElemPtr         ElementType = 0x0F
	ElemByRef       ElementType = 0x10
	ElemValueType   ElementType = 0x11
	ElemClass       ElementType = 0x12
	ElemVar         ElementType = 0x13
	ElemArray       ElementType = 0x14
	ElemGenericInst ElementType = 0x15
	ElemTypedByRef  ElementType = 0x16
	ElemI           ElementType = 0x18
	ElemU           ElementType = 0x19
	ElemFnPtr       ElementType = 0x1B
	ElemObject      ElementType = 0x1C
	ElemSZArray     ElementType = 0x1D
	ElemMVar        ElementType = 0x1E
	ElemCModReqd    ElementType = 0x1F
	ElemCModOpt     ElementType = 0x20
	ElemInternal    ElementType = 0x21
	ElemSentinel    ElementType = 0x41
	ElemPinned      ElementType = 0x45
)

// IsPrimitive reports whether e stands alone in a signature.
func (e ElementType) IsPrimitive() bool {
	switch e {
	case ElemVoid, ElemBoolean, ElemChar, ElemI1, ElemU1, ElemI2, ElemU2, ElemI4, ElemU4,
		ElemI8, ElemU8, ElemR4, ElemR8, ElemString, ElemTypedByRef, ElemI, ElemU, ElemObject:
		return true
	}
	return false
}

// CallConv is the leading byte of a method, field, property or locals
// signature.
type CallConv uint8

// Calling conventions and flags from ECMA-335 II.23.2.
const (
	CallDefault     CallConv = 0x00
	CallC           CallConv = 0x01
	CallStdCall     CallConv = 0x02
	CallThisCall    CallConv = 0x03
	CallFastCall    CallConv = 0x04
	CallVarArg      CallConv = 0x05
	CallField       CallConv = 0x06
	CallLocalSig    CallConv = 0x07
	CallProperty    CallConv = 0x08
	CallGenericInst CallConv = 0x0A
	CallMask        CallConv = 0x0F

	CallGeneric      CallConv = 0x10
	CallHasThis      CallConv = 0x20
	CallExplicitThis CallConv = 0x40
)

// Kind returns the convention without flag bits.
func (c CallConv) Kind() CallConv {
	return c & CallMask
}

// TypeKind identifies the shape of a Type expression.
type TypeKind uint8

const (
	TypePrimitive TypeKind = iota
	TypeClass
	TypeValueType
	TypeSZArray
	TypeArray
	TypePtr
	TypeByRef
	TypeModifier
	TypePinned
	TypeVar
	TypeMVar
	TypeGenericInst
	TypeMethod
	TypeFnPtr
	TypeLocals
)

var typeKindNames = [...]string{
	TypePrimitive:   "primitive",
	TypeClass:       "class",
	TypeValueType:   "valuetype",
	TypeSZArray:     "szarray",
	TypeArray:       "array",
	TypePtr:         "ptr",
	TypeByRef:       "byref",
	TypeModifier:    "modifier",
	TypePinned:      "pinned",
	TypeVar:         "var",
	TypeMVar:        "mvar",
	TypeGenericInst: "genericinst",
	TypeMethod:      "method",
	TypeFnPtr:       "fnptr",
	TypeLocals:      "locals",
}

func (k TypeKind) String() string {
	if int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return "unknown"
}

// NoSentinel marks a method signature without a vararg sentinel.
const NoSentinel = -1

// Type is a structural type or signature expression. Types are treated as
// immutable once built.
type Type struct {
	Kind TypeKind

	// Elem is the element type of a primitive.
	Elem ElementType

	// Class is the class of a class, value type or generic instantiation,
	// and the modifier class of a modifier.
	Class *Class

	// Inner is the element, pointee or modified type.
	Inner *Type

	// Array shape.
	Rank     int
	Sizes    []uint32
	LoBounds []int32

	// Required distinguishes modreq from modopt.
	Required bool

	// Index is the generic parameter number of a var or mvar.
	Index uint32

	// Args are the arguments of a generic instantiation.
	Args []*Type

	// Method shape. Params after Sentinel belong to the vararg part.
	CallConv      CallConv
	GenericParams uint32
	Ret           *Type
	Params        []*Type
	Sentinel      int
}

// Primitive returns a primitive type.
func Primitive(e ElementType) *Type {
	return &Type{Kind: TypePrimitive, Elem: e}
}

// ClassType returns a reference to a class.
func ClassType(c *Class) *Type {
	return &Type{Kind: TypeClass, Class: c}
}

// ValueTypeOf returns a reference to a value type.
func ValueTypeOf(c *Class) *Type {
	return &Type{Kind: TypeValueType, Class: c}
}

// SZArrayOf returns a single-dimensional zero-based array type.
func SZArrayOf(elem *Type) *Type {
	return &Type{Kind: TypeSZArray, Inner: elem}
}

// ArrayOf returns a general array type.
func ArrayOf(elem *Type, rank int, sizes []uint32, loBounds []int32) *Type {
	return &Type{Kind: TypeArray, Inner: elem, Rank: rank, Sizes: sizes, LoBounds: loBounds}
}

// PtrTo returns an unmanaged pointer type.
func PtrTo(elem *Type) *Type {
	return &Type{Kind: TypePtr, Inner: elem}
}

// ByRefTo returns a managed pointer type.
func ByRefTo(elem *Type) *Type {
	return &Type{Kind: TypeByRef, Inner: elem}
}

// Modified returns t with a custom modifier.
func Modified(required bool, mod *Class, t *Type) *Type {
	return &Type{Kind: TypeModifier, Required: required, Class: mod, Inner: t}
}

// PinnedOf returns a pinned local type.
func PinnedOf(t *Type) *Type {
	return &Type{Kind: TypePinned, Inner: t}
}

// VarType returns a reference to a class generic parameter.
func VarType(index uint32) *Type {
	return &Type{Kind: TypeVar, Index: index}
}

// MVarType returns a reference to a method generic parameter.
func MVarType(index uint32) *Type {
	return &Type{Kind: TypeMVar, Index: index}
}

// GenericInstOf returns an instantiation of a generic definition.
func GenericInstOf(def *Class, args ...*Type) *Type {
	return &Type{Kind: TypeGenericInst, Class: def, Args: args}
}

// MethodSig returns a method signature without a sentinel.
func MethodSig(cc CallConv, ret *Type, params ...*Type) *Type {
	return &Type{Kind: TypeMethod, CallConv: cc, Ret: ret, Params: params, Sentinel: NoSentinel}
}

// FnPtrTo returns a function pointer to a method signature.
func FnPtrTo(sig *Type) *Type {
	return &Type{Kind: TypeFnPtr, Inner: sig}
}

// LocalsSig returns a local variable signature.
func LocalsSig(locals ...*Type) *Type {
	return &Type{Kind: TypeLocals, Params: locals, Sentinel: NoSentinel}
}

// IsComposite reports whether t is interned as a synthetic class.
func (t *Type) IsComposite() bool {
	switch t.Kind {
	case TypeSZArray, TypeArray, TypePtr, TypeByRef, TypeModifier, TypeGenericInst, TypeFnPtr:
		return true
	}
	return false
}

// IsVarArg reports whether a method signature uses the vararg convention.
func (t *Type) IsVarArg() bool {
	return t.Kind == TypeMethod && t.CallConv.Kind() == CallVarArg
}

// HasThis reports whether a method signature takes an instance.
func (t *Type) HasThis() bool {
	return t.CallConv&CallHasThis != 0
}

// FixedParams returns the parameters before the sentinel.
func (t *Type) FixedParams() []*Type {
	if t.Sentinel >= 0 && t.Sentinel <= len(t.Params) {
		return t.Params[:t.Sentinel]
	}
	return t.Params
}

// IsOpen reports whether t mentions a generic parameter.
func (t *Type) IsOpen() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case TypeVar, TypeMVar:
		return true
	case TypeGenericInst:
		return slices.ContainsFunc(t.Args, (*Type).IsOpen)
	case TypeMethod, TypeLocals:
		return t.Ret.IsOpen() || slices.ContainsFunc(t.Params, (*Type).IsOpen)
	case TypeModifier:
		return t.Inner.IsOpen()
	}
	return t.Inner.IsOpen()
}

// Walk calls fn for t and every type it contains, outermost first.
func (t *Type) Walk(fn func(*Type)) {
	if t == nil {
		return
	}
	fn(t)
	t.Inner.Walk(fn)
	t.Ret.Walk(fn)
	for _, a := range t.Args {
		a.Walk(fn)
	}
	for _, p := range t.Params {
		p.Walk(fn)
	}
}

// foldName returns the case-insensitive identity key of a class name.
func foldName(namespace, name string) string {
	if namespace == "" {
		return cases.Fold().String(name)
	}
	return cases.Fold().String(namespace + "." + name)
}

// Hash returns the structural hash of t. Structurally identical types
// hash equally; class names contribute case-insensitively.
func (t *Type) Hash() uint64 {
	d := xxhash.New()
	t.hashInto(d)
	return d.Sum64()
}

func (t *Type) hashInto(d *xxhash.Digest) {
	var buf [8]byte
	u32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:4], v)
		_, _ = d.Write(buf[:4])
	}
	if t == nil {
		u32(0xFFFFFFFF)
		return
	}
	_, _ = d.Write([]byte{byte(t.Kind)})
	switch t.Kind {
	case TypePrimitive:
		_, _ = d.Write([]byte{byte(t.Elem)})
	case TypeClass, TypeValueType:
		hashClass(d, t.Class)
	case TypeSZArray, TypePtr, TypeByRef, TypePinned:
		t.Inner.hashInto(d)
	case TypeArray:
		u32(uint32(t.Rank))
		u32(uint32(len(t.Sizes)))
		for _, s := range t.Sizes {
			u32(s)
		}
		u32(uint32(len(t.LoBounds)))
		for _, b := range t.LoBounds {
			u32(uint32(b))
		}
		t.Inner.hashInto(d)
	case TypeModifier:
		if t.Required {
			_, _ = d.Write([]byte{1})
		} else {
			_, _ = d.Write([]byte{0})
		}
		hashClass(d, t.Class)
		t.Inner.hashInto(d)
	case TypeVar, TypeMVar:
		u32(t.Index)
	case TypeGenericInst:
		hashClass(d, t.Class)
		u32(uint32(len(t.Args)))
		for _, a := range t.Args {
			a.hashInto(d)
		}
	case TypeMethod, TypeLocals:
		_, _ = d.Write([]byte{byte(t.CallConv)})
		u32(t.GenericParams)
		u32(uint32(t.Sentinel))
		t.Ret.hashInto(d)
		u32(uint32(len(t.Params)))
		for _, p := range t.Params {
			p.hashInto(d)
		}
	case TypeFnPtr:
		t.Inner.hashInto(d)
	}
}

func hashClass(d *xxhash.Digest, c *Class) {
	c = resolveClass(c)
	if c == nil {
		_, _ = d.WriteString("\x00")
		return
	}
	if c.synthetic != nil {
		c.synthetic.Type.hashInto(d)
		return
	}
	if c.enclosing != nil {
		hashClass(d, c.enclosing)
		_, _ = d.WriteString("/")
	}
	_, _ = d.WriteString(foldName(c.namespace, c.name))
}

// TypesIdentical reports whether a and b are structurally equal. Classes
// compare by resolved identity.
func TypesIdentical(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case TypePrimitive:
		return a.Elem == b.Elem
	case TypeClass, TypeValueType:
		return sameClass(a.Class, b.Class)
	case TypeSZArray, TypePtr, TypeByRef, TypePinned, TypeFnPtr:
		return TypesIdentical(a.Inner, b.Inner)
	case TypeArray:
		return a.Rank == b.Rank && slices.Equal(a.Sizes, b.Sizes) &&
			slices.Equal(a.LoBounds, b.LoBounds) && TypesIdentical(a.Inner, b.Inner)
	case TypeModifier:
		return a.Required == b.Required && sameClass(a.Class, b.Class) && TypesIdentical(a.Inner, b.Inner)
	case TypeVar, TypeMVar:
		return a.Index == b.Index
	case TypeGenericInst:
		return sameClass(a.Class, b.Class) && typeListsIdentical(a.Args, b.Args)
	case TypeMethod, TypeLocals:
		return a.CallConv == b.CallConv && a.GenericParams == b.GenericParams &&
			a.Sentinel == b.Sentinel && TypesIdentical(a.Ret, b.Ret) &&
			typeListsIdentical(a.Params, b.Params)
	}
	return false
}

func typeListsIdentical(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !TypesIdentical(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameClass(a, b *Class) bool {
	return resolveClass(a) == resolveClass(b)
}

// typeOfClass returns the type expression naming c. Synthetic classes
// yield the type they were interned for.
func typeOfClass(c *Class) *Type {
	if c.synthetic != nil {
		return c.synthetic.Type
	}
	if c.IsValueType() {
		return ValueTypeOf(c)
	}
	return ClassType(c)
}
