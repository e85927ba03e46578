package meta

import (
	"iter"

	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/table"
)

// BuildState tracks how far a class has been built.
type BuildState uint8

const (
	Unbuilt BuildState = iota
	InProgress
	Built
)

func (s BuildState) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case InProgress:
		return "in-progress"
	case Built:
		return "built"
	default:
		return "unknown"
	}
}

// Type attribute flags from ECMA-335 II.23.1.15.
const (
	TypeVisibilityMask    uint32 = 0x00000007
	TypeNotPublic         uint32 = 0x00000000
	TypePublic            uint32 = 0x00000001
	TypeNestedPublic      uint32 = 0x00000002
	TypeNestedPrivate     uint32 = 0x00000003
	TypeInterface         uint32 = 0x00000020
	TypeAbstract          uint32 = 0x00000080
	TypeSealed            uint32 = 0x00000100
	TypeSpecialName       uint32 = 0x00000400
	TypeBeforeFieldInit   uint32 = 0x00100000
	TypeRTSpecialName     uint32 = 0x00000800
	TypeSequentialLayout  uint32 = 0x00000008
	TypeExplicitLayout    uint32 = 0x00000010
	TypeLayoutMask        uint32 = 0x00000018
	TypeClassSemanticMask uint32 = 0x00000020
)

// SyntheticDescriptor records the structural type a synthetic class
// stands for.
type SyntheticDescriptor struct {
	Type *Type

	// Definition and Args are set for generic instantiations.
	Definition *Class
	Args       []*Type
}

// Class is a type definition, a type reference or a synthetic class.
type Class struct {
	ProgramItem

	name      string
	namespace string
	flags     uint32
	ref       bool

	scope      Item
	enclosing  *Class
	parent     *Class
	interfaces []*Class
	nested     []*Class

	members       []Member
	genericParams []*GenericPar
	overrides     []Override

	synthetic *SyntheticDescriptor
	state     BuildState
}

// Override pairs a method body with the declaration it implements.
type Override struct {
	Body        Item
	Declaration Item
}

// resolveClass follows c's link chain. A dangling or broken chain yields c.
func resolveClass(c *Class) *Class {
	if c == nil || c.image == nil {
		return c
	}
	ctx := c.ctx()
	id, err := ctx.links.Resolve(c.id)
	if err != nil || id == c.id {
		return c
	}
	if rc, ok := ctx.itemByID(id).(*Class); ok {
		return rc
	}
	return c
}

// Name returns the simple name.
func (c *Class) Name() string { return c.name }

// Namespace returns the namespace. Nested classes have none.
func (c *Class) Namespace() string { return c.namespace }

// FullName returns the namespace-qualified name, with '/' between nested
// names.
func (c *Class) FullName() string { return FormatClass(c) }

// Flags returns the type attributes.
func (c *Class) Flags() uint32 { return c.flags }

// IsReference reports whether c is a TypeRef.
func (c *Class) IsReference() bool { return c.ref }

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool {
	return resolveClass(c).flags&TypeClassSemanticMask == TypeInterface
}

// IsSynthetic reports whether c was created by interning.
func (c *Class) IsSynthetic() bool { return c.synthetic != nil }

// Synthetic returns the descriptor of a synthetic class.
func (c *Class) Synthetic() *SyntheticDescriptor { return c.synthetic }

// State returns the build state.
func (c *Class) State() BuildState { return c.state }

// Scope returns the module, reference scope or enclosing class.
func (c *Class) Scope() Item { return c.scope }

// Enclosing returns the enclosing class of a nested class.
func (c *Class) Enclosing() *Class { return c.enclosing }

// Resolved returns the definition c forwards to, or c itself.
func (c *Class) Resolved() *Class { return resolveClass(c) }

// IsValueType reports whether c derives from System.ValueType or
// System.Enum.
func (c *Class) IsValueType() bool {
	rc := resolveClass(c)
	if rc.synthetic != nil {
		if d := rc.synthetic.Definition; d != nil {
			return d.IsValueType()
		}
		return false
	}
	p := resolveClass(rc.parent)
	if p == nil || p.namespace != "System" {
		return false
	}
	switch p.name {
	case "ValueType":
		return !(rc.namespace == "System" && rc.name == "Enum")
	case "Enum":
		return true
	}
	return false
}

// ensureBuilt expands a synthetic instantiation that was deferred.
func (c *Class) ensureBuilt() error {
	if c.synthetic == nil || c.state != Unbuilt || c.synthetic.Definition == nil {
		return nil
	}
	_, err := c.ctx().expandInstance(c, 0)
	return err
}

func (c *Class) built() *Class {
	rc := resolveClass(c)
	if err := rc.ensureBuilt(); err != nil {
		rc.ctx().log.Warn("deferred expansion failed",
			zap.String("class", FormatClass(rc)), zap.Error(err))
	}
	return rc
}

// Parent returns the resolved base class.
func (c *Class) Parent() *Class {
	return resolveClass(c.built().parent)
}

// Interfaces returns the directly implemented interfaces.
func (c *Class) Interfaces() []*Class {
	return c.built().interfaces
}

// NestedClasses returns the classes nested in c.
func (c *Class) NestedClasses() []*Class {
	return resolveClass(c).nested
}

// GenericParams returns the generic parameters declared by c.
func (c *Class) GenericParams() []*GenericPar {
	return resolveClass(c).genericParams
}

// Overrides returns the MethodImpl pairs declared by c.
func (c *Class) Overrides() []Override {
	return resolveClass(c).overrides
}

// Members yields the members in declaration order.
func (c *Class) Members() iter.Seq[Member] {
	return func(yield func(Member) bool) {
		for _, m := range c.built().members {
			if !yield(m) {
				return
			}
		}
	}
}

// Fields yields the fields.
func (c *Class) Fields() iter.Seq[*Field] {
	return func(yield func(*Field) bool) {
		for m := range c.Members() {
			if f, ok := m.(*Field); ok && !yield(f) {
				return
			}
		}
	}
}

// Methods yields the methods.
func (c *Class) Methods() iter.Seq[*Method] {
	return func(yield func(*Method) bool) {
		for m := range c.Members() {
			if mm, ok := m.(*Method); ok && !yield(mm) {
				return
			}
		}
	}
}

// LookupMember finds a member of c itself by name and signature. A nil
// signature matches any member with the name.
func (c *Class) LookupMember(name string, sig *Type) (Member, bool) {
	for m := range c.Members() {
		if memberMatches(m, name, sig) {
			return m, true
		}
	}
	return nil, false
}

// Layout returns the ClassLayout row of c.
func (c *Class) Layout() (packing uint16, size uint32, ok bool, err error) {
	rc := resolveClass(c)
	img := rc.image
	if img.tables == nil || rc.token.Kind() != table.KindTypeDef {
		return 0, 0, false, nil
	}
	rows, err := img.tables.FindRows(table.KindClassLayout, table.ClassLayoutParent, rc.token)
	if err != nil || len(rows) == 0 {
		return 0, 0, false, err
	}
	row, err := img.tables.DecodeRow(table.KindClassLayout, rows[0])
	if err != nil {
		return 0, 0, false, err
	}
	return uint16(row.Col(table.ClassLayoutPackingSize)), row.Col(table.ClassLayoutClassSize), true, nil
}

func (c *Class) addMember(m Member) {
	c.members = append(c.members, m)
}
