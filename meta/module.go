package meta

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/skdltmxn/ilmeta/internal/table"
)

// Version is a four-part assembly version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// Module is the Module row of an image.
type Module struct {
	ProgramItem

	name       string
	mvid       uuid.UUID
	generation uint16
}

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// MVID returns the module version identifier.
func (m *Module) MVID() uuid.UUID { return m.mvid }

// Generation returns the edit-and-continue generation.
func (m *Module) Generation() uint16 { return m.generation }

// Assembly is the Assembly row of an image.
type Assembly struct {
	ProgramItem

	name      string
	version   Version
	culture   string
	flags     uint32
	hashAlg   uint32
	publicKey []byte
}

// Name returns the assembly name.
func (a *Assembly) Name() string { return a.name }

// Version returns the assembly version.
func (a *Assembly) Version() Version { return a.version }

// Culture returns the assembly culture.
func (a *Assembly) Culture() string { return a.culture }

// Flags returns the assembly flags.
func (a *Assembly) Flags() uint32 { return a.flags }

// PublicKey returns the assembly's public key blob.
func (a *Assembly) PublicKey() []byte { return a.publicKey }

// AssemblyRef references another assembly.
type AssemblyRef struct {
	ProgramItem

	name           string
	version        Version
	culture        string
	flags          uint32
	publicKeyToken []byte
	hashValue      []byte

	target *Image
}

// Name returns the referenced assembly name.
func (a *AssemblyRef) Name() string { return a.name }

// Version returns the referenced version.
func (a *AssemblyRef) Version() Version { return a.version }

// Culture returns the referenced culture.
func (a *AssemblyRef) Culture() string { return a.culture }

// Flags returns the reference flags.
func (a *AssemblyRef) Flags() uint32 { return a.flags }

// PublicKeyOrToken returns the public key or token blob.
func (a *AssemblyRef) PublicKeyOrToken() []byte { return a.publicKeyToken }

// Target returns the image the reference was linked to, if any.
func (a *AssemblyRef) Target() *Image { return a.target }

// ModuleRef references another module.
type ModuleRef struct {
	ProgramItem

	name   string
	target *Image
}

// Name returns the module name.
func (m *ModuleRef) Name() string { return m.name }

// Target returns the image the reference was linked to, if any.
func (m *ModuleRef) Target() *Image { return m.target }

// File is a File row of a multi-module assembly.
type File struct {
	ProgramItem

	name      string
	flags     uint32
	hashValue []byte
}

// Name returns the file name.
func (f *File) Name() string { return f.name }

// Flags returns the file flags.
func (f *File) Flags() uint32 { return f.flags }

// HasMetadata reports whether the file is a module rather than a
// resource.
func (f *File) HasMetadata() bool { return f.flags&0x1 == 0 }

// ExportedType names a type that lives in another module or has been
// forwarded to another assembly.
type ExportedType struct {
	ProgramItem

	name           string
	namespace      string
	flags          uint32
	typeDefID      uint32
	implementation Item
}

// Name returns the exported type name.
func (e *ExportedType) Name() string { return e.name }

// Namespace returns the exported type namespace.
func (e *ExportedType) Namespace() string { return e.namespace }

// Implementation returns the File, AssemblyRef or enclosing ExportedType.
func (e *ExportedType) Implementation() Item { return e.implementation }

// TypeSpec is a type specification: a structural type named by token.
type TypeSpec struct {
	ProgramItem

	typ   *Type
	class *Class
}

// Type returns the specified type.
func (t *TypeSpec) Type() *Type { return t.typ }

// Class interns the specified type, expanding generic instantiations.
func (t *TypeSpec) Class() (*Class, error) {
	if t.class != nil {
		return t.class, nil
	}
	c, err := t.ctx().classForType(t.typ, 0)
	if err != nil {
		return nil, err
	}
	t.class = c
	t.ctx().record(func() { t.class = nil })
	return c, nil
}

// MethodSpec instantiates a generic method.
type MethodSpec struct {
	ProgramItem

	method Item
	args   []*Type
	inst   *Method
}

// Method returns the generic method: a MethodDef or MemberRef.
func (m *MethodSpec) Method() Item { return m.method }

// Args returns the method type arguments.
func (m *MethodSpec) Args() []*Type { return m.args }

// Instance returns the instantiated method.
func (m *MethodSpec) Instance() (*Method, error) {
	if m.inst != nil {
		return m.inst, nil
	}
	target := m.method
	if mr, ok := target.(*MemberRef); ok {
		t, ok := mr.Target()
		if !ok {
			return nil, &UnresolvedError{Image: m.image.Name(), Token: mr.token,
				Scope: "method instantiation", Name: mr.name}
		}
		target = t
	}
	def, ok := target.(*Method)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a method", ErrWrongKind, m.token)
	}
	inst, err := m.ctx().InstantiateMethod(def, m.args)
	if err != nil {
		return nil, err
	}
	m.inst = inst
	m.ctx().record(func() { m.inst = nil })
	return inst, nil
}

// StandAloneSig is a standalone signature, usually method locals.
type StandAloneSig struct {
	ProgramItem

	sig *Type
}

// Signature returns the parsed signature.
func (s *StandAloneSig) Signature() *Type { return s.sig }

// GenericPar is a generic parameter of a class or method.
type GenericPar struct {
	ProgramItem

	owner       Item
	number      uint16
	flags       uint16
	name        string
	constraints []*Class
	loaded      bool
}

// Owner returns the declaring class or method.
func (g *GenericPar) Owner() Item { return g.owner }

// Number returns the parameter position.
func (g *GenericPar) Number() uint16 { return g.number }

// Flags returns the parameter attributes.
func (g *GenericPar) Flags() uint16 { return g.flags }

// Name returns the parameter name.
func (g *GenericPar) Name() string { return g.name }

// Constraints returns the constraint classes. Loaded images read the
// GenericParamConstraint table on first use.
func (g *GenericPar) Constraints() ([]*Class, error) {
	if g.loaded || g.image == nil || g.image.mode != ModeLoaded {
		return g.constraints, nil
	}
	cs, err := g.image.loadConstraints(g)
	if err != nil {
		return nil, loadError(g.image, g.token, "load constraints of", err)
	}
	own := g.constraints
	g.constraints = append(cs, own...)
	g.loaded = true
	g.image.ctx.record(func() {
		g.constraints = own
		g.loaded = false
	})
	return g.constraints, nil
}

// InterfaceImpl records that a class implements an interface.
type InterfaceImpl struct {
	ProgramItem

	class      *Class
	interface_ *Class
}

// Class returns the implementing class.
func (i *InterfaceImpl) Class() *Class { return i.class }

// Interface returns the implemented interface.
func (i *InterfaceImpl) Interface() *Class { return i.interface_ }

// Constant is a default value for a field, parameter or property.
type Constant struct {
	ProgramItem

	parent Item
	elem   ElementType
	value  []byte
}

// Parent returns the item the constant belongs to.
func (c *Constant) Parent() Item { return c.parent }

// ElementType returns the constant's element type.
func (c *Constant) ElementType() ElementType { return c.elem }

// Value returns the raw little-endian value blob.
func (c *Constant) Value() []byte { return c.value }

func findConstant(p *ProgramItem) (*Constant, error) {
	img := p.image
	if img.tables == nil || !table.HasConstant.Accepts(p.token.Kind()) {
		return nil, nil
	}
	rows, err := img.tables.FindRows(table.KindConstant, table.ConstantParent, p.token)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	it, err := img.Get(table.MakeToken(table.KindConstant, rows[0]))
	if err != nil {
		return nil, err
	}
	return it.(*Constant), nil
}

// RowItem exposes a row of a table without a dedicated entity type.
type RowItem struct {
	ProgramItem

	row table.Row
}

// Row returns the decoded row.
func (r *RowItem) Row() table.Row { return r.row }
