package meta

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/skdltmxn/ilmeta/internal/table"
)

// materialize builds the item for tok from its row. Items owned by another
// row (fields, methods, parameters, events and properties) are built by
// loading their owner.
func (img *Image) materialize(tok table.Token) (Item, error) {
	switch tok.Kind() {
	case table.KindModule:
		return img.loadModule(tok)
	case table.KindTypeRef:
		return img.loadTypeRef(tok)
	case table.KindTypeDef:
		return img.loadTypeDef(tok)
	case table.KindField:
		return img.loadOwned(tok, table.KindTypeDef, table.TypeDefFieldList)
	case table.KindMethodDef:
		return img.loadOwned(tok, table.KindTypeDef, table.TypeDefMethodList)
	case table.KindParam:
		return img.loadOwned(tok, table.KindMethodDef, table.MethodDefParamList)
	case table.KindEvent:
		return img.loadMapped(tok, table.KindEventMap, table.EventMapEventList, table.EventMapParent)
	case table.KindProperty:
		return img.loadMapped(tok, table.KindPropertyMap, table.PropertyMapPropertyList, table.PropertyMapParent)
	case table.KindInterfaceImpl:
		return img.loadInterfaceImpl(tok)
	case table.KindMemberRef:
		return img.loadMemberRef(tok)
	case table.KindConstant:
		return img.loadConstant(tok)
	case table.KindCustomAttribute:
		return img.loadAttribute(tok)
	case table.KindStandAloneSig:
		return img.loadStandAloneSig(tok)
	case table.KindModuleRef:
		return img.loadModuleRef(tok)
	case table.KindTypeSpec:
		return img.loadTypeSpec(tok)
	case table.KindAssembly:
		return img.loadAssembly(tok)
	case table.KindAssemblyRef:
		return img.loadAssemblyRef(tok)
	case table.KindFile:
		return img.loadFile(tok)
	case table.KindExportedType:
		return img.loadExportedType(tok)
	case table.KindGenericParam:
		return img.loadGenericParam(tok)
	case table.KindMethodSpec:
		return img.loadMethodSpec(tok)
	default:
		row, err := img.row(tok.Kind(), tok.Ordinal())
		if err != nil {
			return nil, err
		}
		it := &RowItem{row: row}
		img.ctx.register(it, img, tok)
		return it, nil
	}
}

// classAt returns the class named by a TypeDef, TypeRef or TypeSpec token.
func (img *Image) classAt(tok table.Token) (*Class, error) {
	it, err := img.Get(tok)
	if err != nil {
		return nil, err
	}
	switch v := it.(type) {
	case *Class:
		return v, nil
	case *TypeSpec:
		return v.Class()
	}
	return nil, fmt.Errorf("%w: %s does not name a class", ErrWrongKind, tok)
}

// typeAt returns the type expression named by a TypeDefOrRef token.
func (img *Image) typeAt(tok table.Token) (*Type, error) {
	it, err := img.Get(tok)
	if err != nil {
		return nil, err
	}
	switch v := it.(type) {
	case *Class:
		return ClassType(v), nil
	case *TypeSpec:
		return v.typ, nil
	}
	return nil, fmt.Errorf("%w: %s does not name a type", ErrWrongKind, tok)
}

func (img *Image) loadModule(tok table.Token) (Item, error) {
	row, err := img.row(table.KindModule, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	name, err := img.str(row.Col(table.ModuleName))
	if err != nil {
		return nil, err
	}
	g, err := img.guid(row.Col(table.ModuleMvid))
	if err != nil {
		return nil, err
	}
	m := &Module{name: name, mvid: uuid.UUID(g), generation: uint16(row.Col(table.ModuleGeneration))}
	img.ctx.register(m, img, tok)
	return m, nil
}

func (img *Image) loadTypeRef(tok table.Token) (Item, error) {
	row, err := img.row(table.KindTypeRef, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	name, err := img.str(row.Col(table.TypeRefName))
	if err != nil {
		return nil, err
	}
	ns, err := img.str(row.Col(table.TypeRefNamespace))
	if err != nil {
		return nil, err
	}
	c := &Class{name: name, namespace: ns, ref: true, state: Built}
	img.ctx.register(c, img, tok)
	img.publish(tok, c)

	if scope := row.Token(table.TypeRefScope); !scope.IsNil() {
		it, err := img.Get(scope)
		if err != nil {
			return nil, err
		}
		c.scope = it
		if enc, ok := it.(*Class); ok {
			c.enclosing = enc
		}
	}
	return c, nil
}

// loadTypeDef builds a class and everything it owns. The class is
// published before its members so that recursive references see it.
func (img *Image) loadTypeDef(tok table.Token) (Item, error) {
	row, err := img.row(table.KindTypeDef, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	name, err := img.str(row.Col(table.TypeDefName))
	if err != nil {
		return nil, err
	}
	ns, err := img.str(row.Col(table.TypeDefNamespace))
	if err != nil {
		return nil, err
	}
	c := &Class{name: name, namespace: ns, flags: row.Col(table.TypeDefFlags), state: InProgress}
	img.ctx.register(c, img, tok)
	img.publish(tok, c)

	if err := img.buildClass(c, row); err != nil {
		return nil, err
	}
	c.state = Built
	return c, nil
}

func (img *Image) buildClass(c *Class, row table.Row) error {
	tok, ord := c.token, c.token.Ordinal()
	tables := img.tables

	rows, err := tables.FindRows(table.KindNestedClass, table.NestedClassNested, tok)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		nrow, err := img.row(table.KindNestedClass, rows[0])
		if err != nil {
			return err
		}
		enc, err := img.classAt(nrow.Token(table.NestedClassEnclosing))
		if err != nil {
			return err
		}
		c.enclosing = enc
		c.scope = enc
	} else if img.module != nil {
		c.scope = img.module
	}

	if c.genericParams, err = img.genericParamsOf(tok); err != nil {
		return err
	}

	if ext := row.Token(table.TypeDefExtends); !ext.IsNil() {
		if c.parent, err = img.classAt(ext); err != nil {
			return err
		}
	}

	if rows, err = tables.FindRows(table.KindInterfaceImpl, table.InterfaceImplClass, tok); err != nil {
		return err
	}
	for _, r := range rows {
		it, err := img.Get(table.MakeToken(table.KindInterfaceImpl, r))
		if err != nil {
			return err
		}
		c.interfaces = append(c.interfaces, it.(*InterfaceImpl).interface_)
	}

	first, end, err := tables.ChildRange(table.KindTypeDef, table.TypeDefFieldList, ord)
	if err != nil {
		return err
	}
	for f := first; f < end; f++ {
		if err := img.buildField(c, f); err != nil {
			return err
		}
	}
	if first, end, err = tables.ChildRange(table.KindTypeDef, table.TypeDefMethodList, ord); err != nil {
		return err
	}
	for m := first; m < end; m++ {
		if err := img.buildMethod(c, m); err != nil {
			return err
		}
	}

	if err := img.buildMapped(c, table.KindEventMap, table.EventMapParent, table.EventMapEventList, img.buildEvent); err != nil {
		return err
	}
	if err := img.buildMapped(c, table.KindPropertyMap, table.PropertyMapParent, table.PropertyMapPropertyList, img.buildProperty); err != nil {
		return err
	}

	if rows, err = tables.FindRows(table.KindMethodImpl, table.MethodImplClass, tok); err != nil {
		return err
	}
	for _, r := range rows {
		irow, err := img.row(table.KindMethodImpl, r)
		if err != nil {
			return err
		}
		body, err := img.Get(irow.Token(table.MethodImplBody))
		if err != nil {
			return err
		}
		decl, err := img.Get(irow.Token(table.MethodImplDeclaration))
		if err != nil {
			return err
		}
		c.overrides = append(c.overrides, Override{Body: body, Declaration: decl})
	}

	if rows, err = tables.FindRows(table.KindNestedClass, table.NestedClassEnclosing, tok); err != nil {
		return err
	}
	for _, r := range rows {
		nrow, err := img.row(table.KindNestedClass, r)
		if err != nil {
			return err
		}
		nc, err := img.classAt(nrow.Token(table.NestedClassNested))
		if err != nil {
			return err
		}
		c.nested = append(c.nested, nc)
	}
	return nil
}

func (img *Image) buildField(c *Class, ord uint32) error {
	tok := table.MakeToken(table.KindField, ord)
	row, err := img.row(table.KindField, ord)
	if err != nil {
		return err
	}
	name, err := img.str(row.Col(table.FieldName))
	if err != nil {
		return err
	}
	f := &Field{MemberBase{owner: c, name: name, flags: row.Col(table.FieldFlags)}}
	img.ctx.register(f, img, tok)
	img.publish(tok, f)

	blob, err := img.blob(row, table.FieldSignature)
	if err != nil {
		return err
	}
	if f.sig, err = ParseFieldSig(img, blob); err != nil {
		return loadError(img, tok, "parse signature of", err)
	}
	c.addMember(f)
	return nil
}

func (img *Image) buildMethod(c *Class, ord uint32) error {
	tok := table.MakeToken(table.KindMethodDef, ord)
	row, err := img.row(table.KindMethodDef, ord)
	if err != nil {
		return err
	}
	name, err := img.str(row.Col(table.MethodDefName))
	if err != nil {
		return err
	}
	m := &Method{
		MemberBase: MemberBase{owner: c, name: name, flags: row.Col(table.MethodDefFlags)},
		implFlags:  uint16(row.Col(table.MethodDefImplFlags)),
		rva:        row.Col(table.MethodDefRVA),
	}
	img.ctx.register(m, img, tok)
	img.publish(tok, m)

	if m.genericParams, err = img.genericParamsOf(tok); err != nil {
		return err
	}
	blob, err := img.blob(row, table.MethodDefSignature)
	if err != nil {
		return err
	}
	if m.sig, err = ParseMethodSig(img, blob); err != nil {
		return loadError(img, tok, "parse signature of", err)
	}

	first, end, err := img.tables.ChildRange(table.KindMethodDef, table.MethodDefParamList, ord)
	if err != nil {
		return err
	}
	for p := first; p < end; p++ {
		ptok := table.MakeToken(table.KindParam, p)
		prow, err := img.row(table.KindParam, p)
		if err != nil {
			return err
		}
		pname, err := img.str(prow.Col(table.ParamName))
		if err != nil {
			return err
		}
		par := &Param{
			method:   m,
			sequence: uint16(prow.Col(table.ParamSequence)),
			name:     pname,
			flags:    uint16(prow.Col(table.ParamFlags)),
		}
		img.ctx.register(par, img, ptok)
		img.publish(ptok, par)
		m.params = append(m.params, par)
	}
	slices.SortStableFunc(m.params, func(a, b *Param) int { return cmp.Compare(a.sequence, b.sequence) })
	c.addMember(m)
	return nil
}

// buildMapped walks the EventMap or PropertyMap row of c, if any.
func (img *Image) buildMapped(c *Class, mapKind table.Kind, parentCol, listCol int, build func(*Class, uint32) error) error {
	rows, err := img.tables.FindRows(mapKind, parentCol, c.token)
	if err != nil || len(rows) == 0 {
		return err
	}
	first, end, err := img.tables.ChildRange(mapKind, listCol, rows[0])
	if err != nil {
		return err
	}
	for o := first; o < end; o++ {
		if err := build(c, o); err != nil {
			return err
		}
	}
	return nil
}

// semantics returns the MethodSemantics rows associated with tok.
func (img *Image) semantics(tok table.Token, bind func(uint16, *Method)) error {
	rows, err := img.tables.FindRows(table.KindMethodSemantics, table.MethodSemanticsAssociation, tok)
	if err != nil {
		return err
	}
	for _, r := range rows {
		srow, err := img.row(table.KindMethodSemantics, r)
		if err != nil {
			return err
		}
		it, err := img.Get(srow.Token(table.MethodSemanticsMethod))
		if err != nil {
			return err
		}
		m, ok := it.(*Method)
		if !ok {
			return fmt.Errorf("%w: accessor of %s is not a method", ErrWrongKind, tok)
		}
		bind(uint16(srow.Col(table.MethodSemanticsSemantics)), m)
	}
	return nil
}

func (img *Image) buildEvent(c *Class, ord uint32) error {
	tok := table.MakeToken(table.KindEvent, ord)
	row, err := img.row(table.KindEvent, ord)
	if err != nil {
		return err
	}
	name, err := img.str(row.Col(table.EventName))
	if err != nil {
		return err
	}
	e := &Event{MemberBase: MemberBase{owner: c, name: name, flags: row.Col(table.EventFlags)}}
	img.ctx.register(e, img, tok)
	img.publish(tok, e)

	if et := row.Token(table.EventType); !et.IsNil() {
		if e.sig, err = img.typeAt(et); err != nil {
			return err
		}
	}
	if err := img.semantics(tok, e.bind); err != nil {
		return err
	}
	c.addMember(e)
	return nil
}

func (img *Image) buildProperty(c *Class, ord uint32) error {
	tok := table.MakeToken(table.KindProperty, ord)
	row, err := img.row(table.KindProperty, ord)
	if err != nil {
		return err
	}
	name, err := img.str(row.Col(table.PropertyName))
	if err != nil {
		return err
	}
	p := &Property{MemberBase: MemberBase{owner: c, name: name, flags: row.Col(table.PropertyFlags)}}
	img.ctx.register(p, img, tok)
	img.publish(tok, p)

	blob, err := img.blob(row, table.PropertyType)
	if err != nil {
		return err
	}
	if p.sig, err = ParsePropertySig(img, blob); err != nil {
		return loadError(img, tok, "parse signature of", err)
	}
	if err := img.semantics(tok, p.bind); err != nil {
		return err
	}
	c.addMember(p)
	return nil
}

// loadOwned materializes the parent row that owns tok through a list
// column and returns what the parent published for tok.
func (img *Image) loadOwned(tok table.Token, parent table.Kind, listCol int) (Item, error) {
	owner, err := img.tables.FindOwner(parent, listCol, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	if owner == 0 {
		return nil, fmt.Errorf("%w: %s has no owning %s", ErrMalformedTable, tok, parent)
	}
	if _, err := img.Get(table.MakeToken(parent, owner)); err != nil {
		return nil, err
	}
	return img.ownedResult(tok)
}

// loadMapped is loadOwned for events and properties, which are owned by an
// EventMap or PropertyMap row naming the class.
func (img *Image) loadMapped(tok table.Token, mapKind table.Kind, listCol, parentCol int) (Item, error) {
	m, err := img.tables.FindOwner(mapKind, listCol, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	if m == 0 {
		return nil, fmt.Errorf("%w: %s has no owning %s", ErrMalformedTable, tok, mapKind)
	}
	row, err := img.row(mapKind, m)
	if err != nil {
		return nil, err
	}
	if _, err := img.Get(row.Token(parentCol)); err != nil {
		return nil, err
	}
	return img.ownedResult(tok)
}

func (img *Image) ownedResult(tok table.Token) (Item, error) {
	if it, ok := img.published(tok); ok {
		return it, nil
	}
	return nil, fmt.Errorf("%w: %s was not built by its owner", ErrMalformedTable, tok)
}

// genericParamsOf returns the generic parameters owned by tok, ordered by
// number.
func (img *Image) genericParamsOf(owner table.Token) ([]*GenericPar, error) {
	rows, err := img.tables.FindRows(table.KindGenericParam, table.GenericParamOwner, owner)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	out := make([]*GenericPar, 0, len(rows))
	for _, r := range rows {
		it, err := img.Get(table.MakeToken(table.KindGenericParam, r))
		if err != nil {
			return nil, err
		}
		out = append(out, it.(*GenericPar))
	}
	slices.SortStableFunc(out, func(a, b *GenericPar) int { return cmp.Compare(a.number, b.number) })
	return out, nil
}

func (img *Image) loadGenericParam(tok table.Token) (Item, error) {
	row, err := img.row(table.KindGenericParam, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	owner, err := img.Get(row.Token(table.GenericParamOwner))
	if err != nil {
		return nil, err
	}
	if it, ok := img.published(tok); ok {
		return it, nil
	}
	name, err := img.str(row.Col(table.GenericParamName))
	if err != nil {
		return nil, err
	}
	g := &GenericPar{
		owner:  owner,
		number: uint16(row.Col(table.GenericParamNumber)),
		flags:  uint16(row.Col(table.GenericParamFlags)),
		name:   name,
	}
	img.ctx.register(g, img, tok)
	return g, nil
}

// loadConstraints reads the GenericParamConstraint rows of g.
func (img *Image) loadConstraints(g *GenericPar) ([]*Class, error) {
	if img.tables == nil || g.token.Kind() != table.KindGenericParam {
		return nil, nil
	}
	rows, err := img.tables.FindRows(table.KindGenericParamConstraint, table.GenericParamConstraintOwner, g.token)
	if err != nil {
		return nil, err
	}
	out := make([]*Class, 0, len(rows))
	for _, r := range rows {
		row, err := img.row(table.KindGenericParamConstraint, r)
		if err != nil {
			return nil, err
		}
		c, err := img.classAt(row.Token(table.GenericParamConstraintConstraint))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (img *Image) loadInterfaceImpl(tok table.Token) (Item, error) {
	row, err := img.row(table.KindInterfaceImpl, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	it, err := img.Get(row.Token(table.InterfaceImplClass))
	if err != nil {
		return nil, err
	}
	if done, ok := img.published(tok); ok {
		return done, nil
	}
	c, ok := it.(*Class)
	if !ok {
		return nil, fmt.Errorf("%w: %s implementer is not a class", ErrWrongKind, tok)
	}
	iface, err := img.classAt(row.Token(table.InterfaceImplInterface))
	if err != nil {
		return nil, err
	}
	ii := &InterfaceImpl{class: c, interface_: iface}
	img.ctx.register(ii, img, tok)
	return ii, nil
}

func (img *Image) loadMemberRef(tok table.Token) (Item, error) {
	row, err := img.row(table.KindMemberRef, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	name, err := img.str(row.Col(table.MemberRefName))
	if err != nil {
		return nil, err
	}
	mr := &MemberRef{MemberBase: MemberBase{name: name}}
	img.ctx.register(mr, img, tok)
	img.publish(tok, mr)

	if mr.parent, err = img.Get(row.Token(table.MemberRefClass)); err != nil {
		return nil, err
	}
	switch p := mr.parent.(type) {
	case *Class:
		mr.owner = p
	case *Method:
		mr.owner = p.owner
	}
	blob, err := img.blob(row, table.MemberRefSignature)
	if err != nil {
		return nil, err
	}
	if mr.sig, mr.target, err = ParseMemberRefSig(img, blob); err != nil {
		return nil, loadError(img, tok, "parse signature of", err)
	}
	return mr, nil
}

func (img *Image) loadConstant(tok table.Token) (Item, error) {
	row, err := img.row(table.KindConstant, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	parent, err := img.Get(row.Token(table.ConstantParent))
	if err != nil {
		return nil, err
	}
	value, err := img.blob(row, table.ConstantValue)
	if err != nil {
		return nil, err
	}
	c := &Constant{parent: parent, elem: ElementType(row.Col(table.ConstantType)), value: value}
	img.ctx.register(c, img, tok)
	return c, nil
}

func (img *Image) loadAttribute(tok table.Token) (Item, error) {
	row, err := img.row(table.KindCustomAttribute, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	owner, err := img.Get(row.Token(table.CustomAttributeParent))
	if err != nil {
		return nil, err
	}
	ctor, err := img.Get(row.Token(table.CustomAttributeConstructor))
	if err != nil {
		return nil, err
	}
	value, err := img.blob(row, table.CustomAttributeValue)
	if err != nil {
		return nil, err
	}
	a := &Attribute{owner: owner, ctor: ctor, value: value}
	img.ctx.register(a, img, tok)
	return a, nil
}

func (img *Image) loadStandAloneSig(tok table.Token) (Item, error) {
	row, err := img.row(table.KindStandAloneSig, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	blob, err := img.blob(row, table.StandAloneSigSignature)
	if err != nil {
		return nil, err
	}
	s := &StandAloneSig{}
	img.ctx.register(s, img, tok)
	img.publish(tok, s)
	if s.sig, err = ParseStandAloneSig(img, blob); err != nil {
		return nil, loadError(img, tok, "parse signature of", err)
	}
	return s, nil
}

func (img *Image) loadModuleRef(tok table.Token) (Item, error) {
	row, err := img.row(table.KindModuleRef, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	name, err := img.str(row.Col(table.ModuleRefName))
	if err != nil {
		return nil, err
	}
	m := &ModuleRef{name: name}
	img.ctx.register(m, img, tok)
	return m, nil
}

func (img *Image) loadTypeSpec(tok table.Token) (Item, error) {
	row, err := img.row(table.KindTypeSpec, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	blob, err := img.blob(row, table.TypeSpecSignature)
	if err != nil {
		return nil, err
	}
	t := &TypeSpec{}
	img.ctx.register(t, img, tok)
	img.publish(tok, t)
	if t.typ, err = ParseTypeSpec(img, blob); err != nil {
		return nil, loadError(img, tok, "parse signature of", err)
	}
	return t, nil
}

func rowVersion(row table.Row, major int) Version {
	return Version{
		Major:    uint16(row.Col(major)),
		Minor:    uint16(row.Col(major + 1)),
		Build:    uint16(row.Col(major + 2)),
		Revision: uint16(row.Col(major + 3)),
	}
}

func (img *Image) loadAssembly(tok table.Token) (Item, error) {
	row, err := img.row(table.KindAssembly, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	a := &Assembly{
		version: rowVersion(row, table.AssemblyMajorVersion),
		flags:   row.Col(table.AssemblyFlags),
		hashAlg: row.Col(table.AssemblyHashAlgID),
	}
	if a.name, err = img.str(row.Col(table.AssemblyName)); err != nil {
		return nil, err
	}
	if a.culture, err = img.str(row.Col(table.AssemblyCulture)); err != nil {
		return nil, err
	}
	if a.publicKey, err = img.blob(row, table.AssemblyPublicKey); err != nil {
		return nil, err
	}
	img.ctx.register(a, img, tok)
	return a, nil
}

func (img *Image) loadAssemblyRef(tok table.Token) (Item, error) {
	row, err := img.row(table.KindAssemblyRef, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	a := &AssemblyRef{
		version: rowVersion(row, table.AssemblyRefMajorVersion),
		flags:   row.Col(table.AssemblyRefFlags),
	}
	if a.name, err = img.str(row.Col(table.AssemblyRefName)); err != nil {
		return nil, err
	}
	if a.culture, err = img.str(row.Col(table.AssemblyRefCulture)); err != nil {
		return nil, err
	}
	if a.publicKeyToken, err = img.blob(row, table.AssemblyRefPublicKeyOrToken); err != nil {
		return nil, err
	}
	if a.hashValue, err = img.blob(row, table.AssemblyRefHashValue); err != nil {
		return nil, err
	}
	img.ctx.register(a, img, tok)
	return a, nil
}

func (img *Image) loadFile(tok table.Token) (Item, error) {
	row, err := img.row(table.KindFile, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	f := &File{flags: row.Col(table.FileFlags)}
	if f.name, err = img.str(row.Col(table.FileName)); err != nil {
		return nil, err
	}
	if f.hashValue, err = img.blob(row, table.FileHashValue); err != nil {
		return nil, err
	}
	img.ctx.register(f, img, tok)
	return f, nil
}

func (img *Image) loadExportedType(tok table.Token) (Item, error) {
	row, err := img.row(table.KindExportedType, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	e := &ExportedType{flags: row.Col(table.ExportedTypeFlags), typeDefID: row.Col(table.ExportedTypeTypeDefID)}
	if e.name, err = img.str(row.Col(table.ExportedTypeName)); err != nil {
		return nil, err
	}
	if e.namespace, err = img.str(row.Col(table.ExportedTypeNamespace)); err != nil {
		return nil, err
	}
	img.ctx.register(e, img, tok)
	img.publish(tok, e)
	if impl := row.Token(table.ExportedTypeImplementation); !impl.IsNil() {
		if e.implementation, err = img.Get(impl); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (img *Image) loadMethodSpec(tok table.Token) (Item, error) {
	row, err := img.row(table.KindMethodSpec, tok.Ordinal())
	if err != nil {
		return nil, err
	}
	method, err := img.Get(row.Token(table.MethodSpecMethod))
	if err != nil {
		return nil, err
	}
	blob, err := img.blob(row, table.MethodSpecInstantiation)
	if err != nil {
		return nil, err
	}
	args, err := ParseMethodSpec(img, blob)
	if err != nil {
		return nil, loadError(img, tok, "parse instantiation of", err)
	}
	m := &MethodSpec{method: method, args: args}
	img.ctx.register(m, img, tok)
	return m, nil
}
