package meta

import (
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/table"
)

// systemNames maps primitive element types to their System class names.
var systemNames = map[ElementType]string{
	ElemVoid:       "Void",
	ElemBoolean:    "Boolean",
	ElemChar:       "Char",
	ElemI1:         "SByte",
	ElemU1:         "Byte",
	ElemI2:         "Int16",
	ElemU2:         "UInt16",
	ElemI4:         "Int32",
	ElemU4:         "UInt32",
	ElemI8:         "Int64",
	ElemU8:         "UInt64",
	ElemR4:         "Single",
	ElemR8:         "Double",
	ElemString:     "String",
	ElemTypedByRef: "TypedReference",
	ElemI:          "IntPtr",
	ElemU:          "UIntPtr",
	ElemObject:     "Object",
}

func syntheticPrefix(k TypeKind) string {
	switch k {
	case TypeSZArray, TypeArray:
		return "$Array"
	case TypePtr:
		return "$Ptr"
	case TypeByRef:
		return "$ByRef"
	case TypeModifier:
		return "$Mod"
	case TypeFnPtr:
		return "$FnPtr"
	default:
		return "$Inst"
	}
}

// Intern returns the canonical class of t. Composite types get one
// synthetic class per structural identity; classes and value types return
// their class and primitives their System class.
func (c *Context) Intern(t *Type) (*Class, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrNotComposite)
	}
	switch t.Kind {
	case TypeClass, TypeValueType:
		if t.Class == nil {
			return nil, fmt.Errorf("%w: class type without a class", ErrNotComposite)
		}
		return resolveClass(t.Class), nil
	case TypePrimitive:
		if name, ok := systemNames[t.Elem]; ok {
			if cls, ok := c.LookupClass("System", name); ok {
				return cls, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotComposite, FormatType(t))
	}
	if !t.IsComposite() {
		return nil, fmt.Errorf("%w: %s", ErrNotComposite, FormatType(t))
	}

	h := t.Hash()
	for _, cls := range c.synthetic[h] {
		if TypesIdentical(cls.synthetic.Type, t) {
			return cls, nil
		}
	}
	if c.syntheticN >= c.opts.syntheticLimit() {
		return nil, fmt.Errorf("%w: limit of %d reached interning %s", ErrOutOfMemory, c.opts.syntheticLimit(), FormatType(t))
	}

	prefix := syntheticPrefix(t.Kind)
	c.syntheticSeq[prefix]++
	cls := &Class{
		name:      prefix + strconv.Itoa(c.syntheticSeq[prefix]),
		flags:     TypePublic | TypeSealed,
		state:     Built,
		synthetic: &SyntheticDescriptor{Type: t},
	}
	switch t.Kind {
	case TypeSZArray, TypeArray:
		cls.parent = c.arrayBaseClass()
	case TypeGenericInst:
		def := resolveClass(t.Class)
		cls.flags = def.flags
		cls.state = Unbuilt
		cls.synthetic.Definition = def
		cls.synthetic.Args = t.Args
	default:
		cls.parent = c.valueTypeBaseClass()
	}

	c.addSynthetic(table.KindTypeDef, cls)
	c.synthetic[h] = append(c.synthetic[h], cls)
	c.syntheticN++
	c.record(func() {
		c.synthetic[h] = slices.DeleteFunc(c.synthetic[h], func(x *Class) bool { return x == cls })
		if len(c.synthetic[h]) == 0 {
			delete(c.synthetic, h)
		}
		c.syntheticN--
	})

	if t.Kind == TypeSZArray || t.Kind == TypeArray {
		c.addArrayMethods(cls, t)
	}
	c.log.Debug("interned synthetic class",
		zap.String("class", cls.name),
		zap.Stringer("type", t),
		zap.Int("count", c.syntheticN))
	return cls, nil
}

// addSynthetic registers it in the synthetic image under the next token of
// kind k.
func (c *Context) addSynthetic(k table.Kind, it Item) {
	s := c.synth.slotsFor(k)
	ord := s.Append(it)
	c.register(it, c.synth, table.MakeToken(k, ord))
	c.record(func() { s.Clear(ord) })
}

// syntheticBase returns System.<name> when a loaded image defines it, and
// a shared placeholder in the synthetic image otherwise.
func (c *Context) syntheticBase(name string, cached **Class) *Class {
	if cls, ok := c.LookupClass("System", name); ok {
		return cls
	}
	if *cached == nil {
		base := &Class{name: name, namespace: SyntheticImageName, flags: TypePublic | TypeAbstract, state: Built}
		s := c.synth.slotsFor(table.KindTypeDef)
		ord := s.Append(base)
		c.register(base, c.synth, table.MakeToken(table.KindTypeDef, ord))
		*cached = base
	}
	return *cached
}

func (c *Context) arrayBaseClass() *Class {
	return c.syntheticBase("Array", &c.arrayBase)
}

func (c *Context) valueTypeBaseClass() *Class {
	return c.syntheticBase("ValueType", &c.valueTypeBase)
}

// addArrayMethods gives an array class its runtime-provided methods. A
// single-dimensional array only has a length constructor.
func (c *Context) addArrayMethods(cls *Class, t *Type) {
	i4 := Primitive(ElemI4)
	ints := func(n int) []*Type {
		out := make([]*Type, n)
		for i := range out {
			out[i] = i4
		}
		return out
	}
	void := Primitive(ElemVoid)
	ctorFlags := MethodPublic | MethodHideBySig | MethodSpecialName | MethodRTSpecialName
	add := func(name string, flags uint32, ret *Type, params []*Type) {
		m := &Method{
			MemberBase: MemberBase{owner: cls, name: name, flags: flags, sig: MethodSig(CallHasThis, ret, params...)},
			implFlags:  MethodImplRuntime,
		}
		c.addSynthetic(table.KindMethodDef, m)
		cls.addMember(m)
	}

	if t.Kind == TypeSZArray {
		add(".ctor", ctorFlags, void, ints(1))
		return
	}
	r := max(t.Rank, 1)
	add(".ctor", ctorFlags, void, ints(r))
	add(".ctor", ctorFlags, void, ints(2*r))
	add("Get", MethodPublic, t.Inner, ints(r))
	add("Set", MethodPublic, void, append(ints(r), t.Inner))
	add("Address", MethodPublic, ByRefTo(t.Inner), ints(r))
}

// classForType interns t and expands it when it is a generic
// instantiation.
func (c *Context) classForType(t *Type, depth int) (*Class, error) {
	cls, err := c.Intern(t)
	if err != nil {
		return nil, err
	}
	if cls.synthetic != nil && cls.synthetic.Definition != nil && cls.state == Unbuilt {
		return c.expandInstance(cls, depth)
	}
	return cls, nil
}
