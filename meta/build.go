package meta

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/skdltmxn/ilmeta/internal/table"
)

// NewImage adds an empty image in building mode.
func (c *Context) NewImage(name string) (*Image, error) {
	if _, dup := c.Image(name); dup || name == SyntheticImageName {
		return nil, fmt.Errorf("%w: %s", ErrImageExists, name)
	}
	img := newBuildingImage(c, name)
	c.images = append(c.images, img)
	return img, nil
}

// claim gives it the token tok of kind k in img. NextToken appends; an
// explicit token must name an empty slot.
func (img *Image) claim(k table.Kind, tok table.Token, it Item) (table.Token, error) {
	if img == nil || img.ctx == nil {
		return 0, fmt.Errorf("meta: cannot create an item without an image")
	}
	if tok != NextToken && tok.Kind() != k {
		return 0, fmt.Errorf("%w: %s given for a %s item", ErrWrongKind, tok, k)
	}
	s := img.slotsFor(k)
	if s == nil {
		return 0, fmt.Errorf("%w: %s has no %s table", ErrNoItem, img.name, k)
	}
	if tok == NextToken {
		if img.mode == ModeLoaded {
			return 0, fmt.Errorf("meta: %s: items created in a loaded image need a token", img.name)
		}
		ord := s.Append(it)
		tok = table.MakeToken(k, ord)
		img.ctx.register(it, img, tok)
		return tok, nil
	}
	ord := tok.Ordinal()
	if ord == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoItem, tok)
	}
	s.Grow(int(ord))
	if _, used := s.Get(ord); used {
		return 0, fmt.Errorf("%w: %s in %s", ErrTokenInUse, tok, img.name)
	}
	img.ctx.register(it, img, tok)
	if err := s.Set(ord, it); err != nil {
		return 0, err
	}
	return tok, nil
}

// CreateModule creates the Module item of img with a fresh MVID.
func CreateModule(img *Image, tok table.Token, name string) (*Module, error) {
	m := &Module{name: name, mvid: uuid.New()}
	if _, err := img.claim(table.KindModule, tok, m); err != nil {
		return nil, err
	}
	if img.module == nil {
		img.module = m
	}
	return m, nil
}

// CreateAssembly creates the Assembly item of img.
func CreateAssembly(img *Image, tok table.Token, name string, version Version) (*Assembly, error) {
	a := &Assembly{name: name, version: version}
	if _, err := img.claim(table.KindAssembly, tok, a); err != nil {
		return nil, err
	}
	if img.assembly == nil {
		img.assembly = a
	}
	return a, nil
}

// CreateUserString adds a string literal to the #US heap of a building
// image and returns its heap index. Equal strings share one entry.
func CreateUserString(img *Image, s string) (uint32, error) {
	if img == nil || img.mode != ModeBuilding {
		return 0, fmt.Errorf("meta: user strings can only be added to a building image")
	}
	if img.usBuilder == nil {
		img.usBuilder = table.NewUserStringHeapBuilder()
	}
	return img.usBuilder.Add(s)
}

// CreateAssemblyRef creates a reference to another assembly and binds it
// to a loaded image of that name, if there is one.
func CreateAssemblyRef(img *Image, tok table.Token, name string, version Version) (*AssemblyRef, error) {
	a := &AssemblyRef{name: name, version: version, target: img.ctx.findAssembly(name, "")}
	if a.target == nil {
		if t, ok := img.ctx.Image(name); ok {
			a.target = t
		}
	}
	if _, err := img.claim(table.KindAssemblyRef, tok, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateModuleRef creates a reference to another module.
func CreateModuleRef(img *Image, tok table.Token, name string) (*ModuleRef, error) {
	m := &ModuleRef{name: name, target: img.ctx.findModule(name)}
	if _, err := img.claim(table.KindModuleRef, tok, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateClass creates a top-level public class and adds it to the name
// index.
func CreateClass(img *Image, tok table.Token, name, namespace string, parent *Class) (*Class, error) {
	c := &Class{name: name, namespace: namespace, flags: TypePublic, parent: parent, state: Built}
	if img.module != nil {
		c.scope = img.module
	}
	if _, err := img.claim(table.KindTypeDef, tok, c); err != nil {
		return nil, err
	}
	img.ctx.addName(typeEntry{img: img, token: c.token, namespace: namespace, name: name})
	return c, nil
}

// CreateNestedClass creates a class nested in enclosing.
func CreateNestedClass(enclosing *Class, tok table.Token, name string) (*Class, error) {
	c := &Class{name: name, flags: TypeNestedPublic, scope: enclosing, enclosing: enclosing, state: Built}
	if _, err := enclosing.image.claim(table.KindTypeDef, tok, c); err != nil {
		return nil, err
	}
	enclosing.nested = append(enclosing.nested, c)
	return c, nil
}

// CreateClassRef creates a TypeRef. The scope is a module, an assembly or
// module reference, or the enclosing reference of a nested type.
func CreateClassRef(img *Image, tok table.Token, scope Item, name, namespace string) (*Class, error) {
	c := &Class{name: name, namespace: namespace, ref: true, scope: scope, state: Built}
	if enc, ok := scope.(*Class); ok {
		c.enclosing = enc
	}
	if _, err := img.claim(table.KindTypeRef, tok, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetFlags replaces the type attributes of a class being built.
func (c *Class) SetFlags(flags uint32) { c.flags = flags }

// SetParent replaces the base class of a class being built.
func (c *Class) SetParent(p *Class) { c.parent = p }

// CreateField adds a field to owner.
func CreateField(owner *Class, tok table.Token, name string, flags uint32, sig *Type) (*Field, error) {
	f := &Field{MemberBase{owner: owner, name: name, flags: flags, sig: sig}}
	if _, err := owner.image.claim(table.KindField, tok, f); err != nil {
		return nil, err
	}
	owner.addMember(f)
	return f, nil
}

// CreateMethod adds a method to owner.
func CreateMethod(owner *Class, tok table.Token, name string, flags uint32, sig *Type) (*Method, error) {
	if sig != nil && sig.Kind != TypeMethod {
		return nil, fmt.Errorf("%w: method %s needs a method signature", ErrBadSignature, name)
	}
	m := &Method{MemberBase: MemberBase{owner: owner, name: name, flags: flags, sig: sig}}
	if _, err := owner.image.claim(table.KindMethodDef, tok, m); err != nil {
		return nil, err
	}
	owner.addMember(m)
	return m, nil
}

// CreateParameter adds a parameter row to m. Sequence 0 describes the
// return value.
func CreateParameter(m *Method, tok table.Token, sequence uint16, name string, flags uint16) (*Param, error) {
	p := &Param{method: m, sequence: sequence, name: name, flags: flags}
	if _, err := m.image.claim(table.KindParam, tok, p); err != nil {
		return nil, err
	}
	i := len(m.params)
	for i > 0 && m.params[i-1].sequence > sequence {
		i--
	}
	m.params = append(m.params, nil)
	copy(m.params[i+1:], m.params[i:])
	m.params[i] = p
	return p, nil
}

// CreateEvent adds an event of delegate type typ to owner.
func CreateEvent(owner *Class, tok table.Token, name string, flags uint32, typ *Type) (*Event, error) {
	e := &Event{MemberBase: MemberBase{owner: owner, name: name, flags: flags, sig: typ}}
	if _, err := owner.image.claim(table.KindEvent, tok, e); err != nil {
		return nil, err
	}
	owner.addMember(e)
	return e, nil
}

// CreateProperty adds a property to owner. The signature is
// method-shaped with the property calling convention.
func CreateProperty(owner *Class, tok table.Token, name string, flags uint32, sig *Type) (*Property, error) {
	if sig != nil && sig.Kind != TypeMethod {
		return nil, fmt.Errorf("%w: property %s needs a method-shaped signature", ErrBadSignature, name)
	}
	p := &Property{MemberBase: MemberBase{owner: owner, name: name, flags: flags, sig: sig}}
	if _, err := owner.image.claim(table.KindProperty, tok, p); err != nil {
		return nil, err
	}
	owner.addMember(p)
	return p, nil
}

// BindAccessor attaches m to an event or property with the given
// MethodSemantics flags.
func BindAccessor(member Member, semantics uint16, m *Method) error {
	switch x := member.(type) {
	case *Event:
		x.bind(semantics, m)
	case *Property:
		x.bind(semantics, m)
	default:
		return fmt.Errorf("%w: %s cannot have accessors", ErrWrongKind, member.MemberKind())
	}
	return nil
}

// CreateGenericPar declares generic parameter number on a class or method.
func CreateGenericPar(owner Item, number uint16, name string) (*GenericPar, error) {
	g := &GenericPar{owner: owner, number: number, name: name, loaded: true}
	img := owner.Item().image
	if _, err := img.claim(table.KindGenericParam, NextToken, g); err != nil {
		return nil, err
	}
	switch o := owner.(type) {
	case *Class:
		o.genericParams = append(o.genericParams, g)
	case *Method:
		o.genericParams = append(o.genericParams, g)
	default:
		return nil, fmt.Errorf("%w: generic parameters belong to classes and methods", ErrWrongKind)
	}
	return g, nil
}

// AddConstraint adds a constraint class to g.
func AddConstraint(g *GenericPar, c *Class) {
	g.constraints = append(g.constraints, c)
}

// AddInterface records that c implements iface.
func AddInterface(c, iface *Class) {
	c.interfaces = append(c.interfaces, iface)
}

// AddOverride records that body implements decl in c.
func AddOverride(c *Class, body, decl Item) {
	c.overrides = append(c.overrides, Override{Body: body, Declaration: decl})
}

// CreateTypeSpec creates a type specification for t.
func CreateTypeSpec(img *Image, tok table.Token, t *Type) (*TypeSpec, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrBadSignature)
	}
	s := &TypeSpec{typ: t}
	if _, err := img.claim(table.KindTypeSpec, tok, s); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateMemberRef creates a member reference. A method-shaped signature
// names a method, anything else a field.
func CreateMemberRef(img *Image, tok table.Token, parent Item, name string, sig *Type) (*MemberRef, error) {
	m := &MemberRef{MemberBase: MemberBase{name: name, sig: sig}, parent: parent, target: MemberField}
	if sig != nil && sig.Kind == TypeMethod {
		m.target = MemberMethod
	}
	switch p := parent.(type) {
	case *Class:
		m.owner = p
	case *Method:
		m.owner = p.owner
	}
	if _, err := img.claim(table.KindMemberRef, tok, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateAttribute attaches a custom attribute to owner.
func CreateAttribute(owner Item, tok table.Token, ctor Item, value []byte) (*Attribute, error) {
	a := &Attribute{owner: owner, ctor: ctor, value: value}
	p := owner.Item()
	if _, err := p.image.claim(table.KindCustomAttribute, tok, a); err != nil {
		return nil, err
	}
	if !p.attrsLoaded {
		if err := p.ensureAttributes(); err != nil {
			return nil, err
		}
	}
	p.attrs = append(p.attrs, a)
	return a, nil
}
