package meta

import (
	"fmt"
	"io"

	"fortio.org/safecast"
	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/table"
	"github.com/skdltmxn/ilmeta/metaroot"
)

// maxWritePasses bounds the passes needed while encoding creates the
// references and type specifications it depends on.
const maxWritePasses = 8

// TableSet is the encoded metadata of one image.
type TableSet struct {
	Tables      *table.Stream
	Strings     []byte
	Blob        []byte
	GUID        []byte
	UserStrings []byte
}

// Streams returns the streams in the order a metadata root lists them.
func (ts *TableSet) Streams() []metaroot.StreamData {
	return []metaroot.StreamData{
		{Name: metaroot.StreamTables, Data: ts.Tables.Bytes()},
		{Name: metaroot.StreamStrings, Data: ts.Strings},
		{Name: metaroot.StreamUserStrings, Data: ts.UserStrings},
		{Name: metaroot.StreamGUID, Data: ts.GUID},
		{Name: metaroot.StreamBlob, Data: ts.Blob},
	}
}

// Source returns the streams as an in-memory Source.
func (ts *TableSet) Source() StreamMap {
	m := make(StreamMap)
	for _, s := range ts.Streams() {
		m[s.Name] = s.Data
	}
	return m
}

// WriteTo writes a complete metadata root.
func (ts *TableSet) WriteTo(w io.Writer) (int64, error) {
	data, err := metaroot.Build(metaroot.DefaultVersion, ts.Streams())
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ForEachRowInBuildOrder calls fn for every row of kind k in output order.
// Loaded images yield their decoded rows; building images assemble rows
// from their items.
func (img *Image) ForEachRowInBuildOrder(k table.Kind, fn func(ordinal uint32, row table.Row) error) error {
	if img.mode == ModeLoaded {
		n := img.tables.RowCount(k)
		for ord := uint32(1); ord <= n; ord++ {
			row, err := img.row(k, ord)
			if err != nil {
				return err
			}
			if err := fn(ord, row); err != nil {
				return err
			}
		}
		return nil
	}
	w, err := img.assembleRows()
	if err != nil {
		return err
	}
	for i, row := range w.rows[k] {
		if err := fn(uint32(i+1), row); err != nil {
			return err
		}
	}
	return nil
}

// WriteTables encodes img. The layout is computed from the final row
// counts, so widths grow as needed.
func (img *Image) WriteTables() (*TableSet, error) {
	if img.mode == ModeLoaded {
		return img.copyTables()
	}
	w, err := img.assembleRows()
	if err != nil {
		return nil, err
	}
	return w.finish()
}

func (img *Image) copyTables() (*TableSet, error) {
	src := img.tables
	b := table.NewStreamBuilder()
	b.Major, b.Minor = src.Major, src.Minor
	b.Sorted = src.Sorted
	b.Heaps = src.Layout.Heaps
	for _, k := range table.Kinds() {
		if err := img.ForEachRowInBuildOrder(k, func(_ uint32, row table.Row) error {
			b.Add(row)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	s, err := b.Build()
	if err != nil {
		return nil, err
	}
	ts := &TableSet{Tables: s}
	if img.strings != nil {
		ts.Strings = img.strings.Data()
	}
	if img.blobs != nil {
		ts.Blob = img.blobs.Data()
	}
	if img.guids != nil {
		ts.GUID = img.guids.Data()
	}
	if img.userStrings != nil {
		ts.UserStrings = img.userStrings.Data()
	}
	return ts, nil
}

func (img *Image) assembleRows() (*tableWriter, error) {
	for pass := 1; pass <= maxWritePasses; pass++ {
		w := newTableWriter(img)
		if err := w.assemble(); err != nil {
			return nil, fmt.Errorf("meta: failed to write %s: %w", img.name, err)
		}
		if !w.changed {
			return w, nil
		}
		img.ctx.log.Debug("write pass created references",
			zap.String("image", img.name),
			zap.Int("count", pass))
	}
	return nil, fmt.Errorf("meta: failed to write %s: references still changing after %d passes", img.name, maxWritePasses)
}

// tableWriter assembles the rows of a building image. Items get output
// ordinals in plan; owned rows (fields, methods, parameters, events and
// properties) are grouped by owner so that list columns describe runs.
type tableWriter struct {
	img    *Image
	order  [table.MaxKinds][]Item
	tokens map[Item]table.Token
	rows   [table.MaxKinds][]table.Row
	sorted uint64

	strings *table.StringHeapBuilder
	blobs   *table.BlobHeapBuilder
	guids   *table.GUIDHeapBuilder

	// changed is set when encoding had to create an item.
	changed bool
}

func newTableWriter(img *Image) *tableWriter {
	return &tableWriter{
		img:     img,
		tokens:  make(map[Item]table.Token),
		strings: table.NewStringHeapBuilder(),
		blobs:   table.NewBlobHeapBuilder(),
		guids:   table.NewGUIDHeapBuilder(),
	}
}

func (w *tableWriter) filled(k table.Kind) []Item {
	s := w.img.slots[k]
	if s == nil {
		return nil
	}
	var out []Item
	for _, it := range s.Filled() {
		out = append(out, it)
	}
	return out
}

func (w *tableWriter) assign(k table.Kind, items []Item) {
	w.order[k] = items
	for i, it := range items {
		w.tokens[it] = table.MakeToken(k, uint32(i+1))
	}
}

func (w *tableWriter) plan() {
	for _, k := range []table.Kind{
		table.KindModule, table.KindTypeRef, table.KindTypeDef, table.KindMemberRef,
		table.KindCustomAttribute, table.KindModuleRef, table.KindTypeSpec,
		table.KindAssembly, table.KindAssemblyRef, table.KindGenericParam,
	} {
		w.assign(k, w.filled(k))
	}

	var fields, methods, params, events, props []Item
	for _, it := range w.order[table.KindTypeDef] {
		for _, m := range it.(*Class).members {
			if m.Item().image != w.img {
				continue
			}
			switch mm := m.(type) {
			case *Field:
				fields = append(fields, mm)
			case *Method:
				methods = append(methods, mm)
				for _, p := range mm.params {
					params = append(params, p)
				}
			case *Event:
				events = append(events, mm)
			case *Property:
				props = append(props, mm)
			}
		}
	}
	w.assign(table.KindField, fields)
	w.assign(table.KindMethodDef, methods)
	w.assign(table.KindParam, params)
	w.assign(table.KindEvent, events)
	w.assign(table.KindProperty, props)
}

func (w *tableWriter) str(s string) (uint32, error) {
	return w.strings.Add(s)
}

func (w *tableWriter) setBlob(row table.Row, col int, data []byte) error {
	index, offset, length, err := w.blobs.Add(data)
	if err != nil {
		return err
	}
	row.SetBlob(col, index, offset, length)
	return nil
}

func (w *tableWriter) setStr(row table.Row, col int, s string) error {
	v, err := w.str(s)
	if err != nil {
		return err
	}
	row.Set(col, v)
	return nil
}

func (w *tableWriter) add(row table.Row) {
	w.rows[row.Kind] = append(w.rows[row.Kind], row)
}

// local returns the output token of an item of this image, or of the item
// here that links to a foreign one.
func (w *tableWriter) local(it Item) (table.Token, error) {
	if it == nil {
		return 0, nil
	}
	if c, ok := it.(*Class); ok {
		return w.classToken(c)
	}
	if tok, ok := w.tokens[it]; ok {
		return tok, nil
	}
	p := it.Item()
	if p.image == w.img {
		w.changed = true
		return p.token, nil
	}
	if back, ok := LinkedBackTo(it, w.img); ok {
		if tok, ok := w.tokens[back]; ok {
			return tok, nil
		}
	}
	return 0, fmt.Errorf("%w: %s of %s has no row in %s", ErrNoItem, p.token, p.image.Name(), w.img.name)
}

// classToken is the TokenFunc of the signature writer: local classes map
// to their rows, foreign ones to TypeRefs and synthetic ones to TypeSpecs.
func (w *tableWriter) classToken(c *Class) (table.Token, error) {
	if c == nil {
		return 0, nil
	}
	if c.synthetic != nil {
		return w.specToken(c.synthetic.Type)
	}
	lc, err := w.localClass(c)
	if err != nil {
		return 0, err
	}
	if lc.synthetic != nil {
		return w.specToken(lc.synthetic.Type)
	}
	if tok, ok := w.tokens[lc]; ok {
		return tok, nil
	}
	w.changed = true
	return lc.token, nil
}

func (w *tableWriter) localClass(c *Class) (*Class, error) {
	if c.image == w.img {
		return c, nil
	}
	rc := resolveClass(c)
	if rc.image == w.img || rc.synthetic != nil {
		return rc, nil
	}
	if back, ok := LinkedBackTo(rc, w.img); ok {
		if bc, ok := back.(*Class); ok {
			return bc, nil
		}
	}
	if rc.image == w.img.ctx.synth {
		return nil, fmt.Errorf("%w: %s has no definition to reference", ErrWrongKind, FormatClass(rc))
	}

	var scope Item
	if rc.enclosing != nil {
		enc, err := w.localClass(rc.enclosing)
		if err != nil {
			return nil, err
		}
		scope = enc
	} else {
		var err error
		if scope, err = w.scopeRef(rc.image); err != nil {
			return nil, err
		}
	}
	ref, err := CreateClassRef(w.img, NextToken, scope, rc.name, rc.namespace)
	if err != nil {
		return nil, err
	}
	if err := Link(ref, rc); err != nil {
		return nil, err
	}
	w.changed = true
	return ref, nil
}

// scopeRef returns the AssemblyRef, or ModuleRef for a plain module, that
// names target, creating it when missing.
func (w *tableWriter) scopeRef(target *Image) (Item, error) {
	if a := target.assembly; a != nil {
		for _, it := range w.filled(table.KindAssemblyRef) {
			if ar := it.(*AssemblyRef); ar.target == target || ar.name == a.name {
				return ar, nil
			}
		}
		ar, err := CreateAssemblyRef(w.img, NextToken, a.name, a.version)
		if err != nil {
			return nil, err
		}
		ar.target = target
		w.changed = true
		return ar, nil
	}
	name := target.name
	if target.module != nil {
		name = target.module.name
	}
	for _, it := range w.filled(table.KindModuleRef) {
		if mr := it.(*ModuleRef); mr.target == target || mr.name == name {
			return mr, nil
		}
	}
	mr, err := CreateModuleRef(w.img, NextToken, name)
	if err != nil {
		return nil, err
	}
	mr.target = target
	w.changed = true
	return mr, nil
}

// specToken returns the TypeSpec naming t, creating it when missing.
func (w *tableWriter) specToken(t *Type) (table.Token, error) {
	for _, it := range w.filled(table.KindTypeSpec) {
		if ts := it.(*TypeSpec); TypesIdentical(ts.typ, t) {
			if tok, ok := w.tokens[ts]; ok {
				return tok, nil
			}
			return ts.token, nil
		}
	}
	ts, err := CreateTypeSpec(w.img, NextToken, t)
	if err != nil {
		return 0, err
	}
	w.changed = true
	return ts.token, nil
}

// typeToken returns a TypeDefOrRef token for t: a class row for class
// types, a TypeSpec otherwise.
func (w *tableWriter) typeToken(t *Type) (table.Token, error) {
	if t == nil {
		return 0, nil
	}
	if t.Kind == TypeClass || t.Kind == TypeValueType {
		return w.classToken(t.Class)
	}
	return w.specToken(t)
}

func listToken(k table.Kind, cursor, total uint32) table.Token {
	if cursor > total {
		return table.MakeToken(k, 0)
	}
	return table.MakeToken(k, cursor)
}

func (w *tableWriter) count(k table.Kind) uint32 {
	return uint32(len(w.order[k]))
}

func (w *tableWriter) assemble() error {
	w.plan()
	steps := []func() error{
		w.modules, w.typeRefs, w.typeDefs, w.fields, w.methods, w.params,
		w.interfaceImpls, w.memberRefs, w.attributes, w.eventsAndProperties,
		w.methodImpls, w.moduleRefs, w.typeSpecs, w.assemblies, w.assemblyRefs,
		w.nestedClasses, w.genericParams,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (w *tableWriter) modules() error {
	for _, it := range w.order[table.KindModule] {
		m := it.(*Module)
		row := table.NewRow(table.KindModule)
		row.Set(table.ModuleGeneration, uint32(m.generation))
		if err := w.setStr(row, table.ModuleName, m.name); err != nil {
			return err
		}
		idx, err := w.guids.Add(m.mvid)
		if err != nil {
			return err
		}
		row.Set(table.ModuleMvid, idx)
		w.add(row)
	}
	return nil
}

func (w *tableWriter) typeRefs() error {
	for _, it := range w.order[table.KindTypeRef] {
		c := it.(*Class)
		row := table.NewRow(table.KindTypeRef)
		var scope table.Token
		switch s := c.scope.(type) {
		case nil:
		case *Module:
			scope = table.MakeToken(table.KindModule, 1)
		case *Class:
			tok, err := w.classToken(s)
			if err != nil {
				return err
			}
			scope = tok
		default:
			tok, err := w.local(s)
			if err != nil {
				return err
			}
			scope = tok
		}
		row.SetToken(table.TypeRefScope, scope)
		if err := w.setStr(row, table.TypeRefName, c.name); err != nil {
			return err
		}
		if err := w.setStr(row, table.TypeRefNamespace, c.namespace); err != nil {
			return err
		}
		w.add(row)
	}
	return nil
}

func (w *tableWriter) typeDefs() error {
	var fieldCursor, methodCursor uint32 = 1, 1
	for _, it := range w.order[table.KindTypeDef] {
		c := it.(*Class)
		row := table.NewRow(table.KindTypeDef)
		row.Set(table.TypeDefFlags, c.flags)
		if err := w.setStr(row, table.TypeDefName, c.name); err != nil {
			return err
		}
		if err := w.setStr(row, table.TypeDefNamespace, c.namespace); err != nil {
			return err
		}
		ext, err := w.classToken(c.parent)
		if err != nil {
			return err
		}
		row.SetToken(table.TypeDefExtends, ext)
		row.SetToken(table.TypeDefFieldList, listToken(table.KindField, fieldCursor, w.count(table.KindField)))
		row.SetToken(table.TypeDefMethodList, listToken(table.KindMethodDef, methodCursor, w.count(table.KindMethodDef)))
		for _, m := range c.members {
			if m.Item().image != w.img {
				continue
			}
			switch m.(type) {
			case *Field:
				fieldCursor++
			case *Method:
				methodCursor++
			}
		}
		w.add(row)
	}
	return nil
}

func (w *tableWriter) fields() error {
	for _, it := range w.order[table.KindField] {
		f := it.(*Field)
		row := table.NewRow(table.KindField)
		row.Set(table.FieldFlags, f.flags)
		if err := w.setStr(row, table.FieldName, f.name); err != nil {
			return err
		}
		sig, err := EncodeFieldSig(f.sig, w.classToken)
		if err != nil {
			return loadError(w.img, f.token, "encode signature of", err)
		}
		if err := w.setBlob(row, table.FieldSignature, sig); err != nil {
			return err
		}
		w.add(row)
	}
	return nil
}

func (w *tableWriter) methods() error {
	var cursor uint32 = 1
	for _, it := range w.order[table.KindMethodDef] {
		m := it.(*Method)
		row := table.NewRow(table.KindMethodDef)
		row.Set(table.MethodDefRVA, m.rva)
		row.Set(table.MethodDefImplFlags, uint32(m.implFlags))
		row.Set(table.MethodDefFlags, m.flags)
		if err := w.setStr(row, table.MethodDefName, m.name); err != nil {
			return err
		}
		sig, err := EncodeMethodSig(m.sig, w.classToken)
		if err != nil {
			return loadError(w.img, m.token, "encode signature of", err)
		}
		if err := w.setBlob(row, table.MethodDefSignature, sig); err != nil {
			return err
		}
		row.SetToken(table.MethodDefParamList, listToken(table.KindParam, cursor, w.count(table.KindParam)))
		n, err := safecast.Conv[uint32](len(m.params))
		if err != nil {
			return err
		}
		cursor += n
		w.add(row)
	}
	return nil
}

func (w *tableWriter) params() error {
	for _, it := range w.order[table.KindParam] {
		p := it.(*Param)
		row := table.NewRow(table.KindParam)
		row.Set(table.ParamFlags, uint32(p.flags))
		row.Set(table.ParamSequence, uint32(p.sequence))
		if err := w.setStr(row, table.ParamName, p.name); err != nil {
			return err
		}
		w.add(row)
	}
	return nil
}

func (w *tableWriter) interfaceImpls() error {
	for _, it := range w.order[table.KindTypeDef] {
		c := it.(*Class)
		for _, iface := range c.interfaces {
			tok, err := w.classToken(iface)
			if err != nil {
				return err
			}
			row := table.NewRow(table.KindInterfaceImpl)
			row.SetToken(table.InterfaceImplClass, w.tokens[c])
			row.SetToken(table.InterfaceImplInterface, tok)
			w.add(row)
		}
	}
	w.sorted |= 1 << table.KindInterfaceImpl
	return nil
}

func (w *tableWriter) memberRefs() error {
	for _, it := range w.order[table.KindMemberRef] {
		mr := it.(*MemberRef)
		row := table.NewRow(table.KindMemberRef)
		parent, err := w.local(mr.parent)
		if err != nil {
			return err
		}
		row.SetToken(table.MemberRefClass, parent)
		if err := w.setStr(row, table.MemberRefName, mr.name); err != nil {
			return err
		}
		sig, err := encodeMemberSig(mr.target, mr.sig, w.classToken)
		if err != nil {
			return loadError(w.img, mr.token, "encode signature of", err)
		}
		if err := w.setBlob(row, table.MemberRefSignature, sig); err != nil {
			return err
		}
		w.add(row)
	}
	return nil
}

func (w *tableWriter) attributes() error {
	for _, it := range w.order[table.KindCustomAttribute] {
		a := it.(*Attribute)
		row := table.NewRow(table.KindCustomAttribute)
		owner, err := w.local(a.owner)
		if err != nil {
			return err
		}
		ctor, err := w.local(a.ctor)
		if err != nil {
			return err
		}
		row.SetToken(table.CustomAttributeParent, owner)
		row.SetToken(table.CustomAttributeConstructor, ctor)
		if err := w.setBlob(row, table.CustomAttributeValue, a.value); err != nil {
			return err
		}
		w.add(row)
	}
	return nil
}

func (w *tableWriter) semantics(assoc table.Token, sem uint16, m *Method) error {
	if m == nil {
		return nil
	}
	tok, err := w.local(m)
	if err != nil {
		return err
	}
	row := table.NewRow(table.KindMethodSemantics)
	row.Set(table.MethodSemanticsSemantics, uint32(sem))
	row.SetToken(table.MethodSemanticsMethod, tok)
	row.SetToken(table.MethodSemanticsAssociation, assoc)
	w.add(row)
	return nil
}

func (w *tableWriter) eventsAndProperties() error {
	var eventCursor, propCursor uint32 = 1, 1
	for _, it := range w.order[table.KindTypeDef] {
		c := it.(*Class)
		var ne, np uint32
		for _, m := range c.members {
			if m.Item().image != w.img {
				continue
			}
			switch m.(type) {
			case *Event:
				ne++
			case *Property:
				np++
			}
		}
		if ne > 0 {
			row := table.NewRow(table.KindEventMap)
			row.SetToken(table.EventMapParent, w.tokens[c])
			row.SetToken(table.EventMapEventList, table.MakeToken(table.KindEvent, eventCursor))
			w.add(row)
			eventCursor += ne
		}
		if np > 0 {
			row := table.NewRow(table.KindPropertyMap)
			row.SetToken(table.PropertyMapParent, w.tokens[c])
			row.SetToken(table.PropertyMapPropertyList, table.MakeToken(table.KindProperty, propCursor))
			w.add(row)
			propCursor += np
		}
	}

	for _, it := range w.order[table.KindEvent] {
		e := it.(*Event)
		row := table.NewRow(table.KindEvent)
		row.Set(table.EventFlags, e.flags)
		if err := w.setStr(row, table.EventName, e.name); err != nil {
			return err
		}
		tok, err := w.typeToken(e.sig)
		if err != nil {
			return err
		}
		row.SetToken(table.EventType, tok)
		w.add(row)

		assoc := w.tokens[e]
		for _, s := range []struct {
			sem uint16
			m   *Method
		}{{SemanticsAddOn, e.addOn}, {SemanticsRemoveOn, e.removeOn}, {SemanticsFire, e.fire}} {
			if err := w.semantics(assoc, s.sem, s.m); err != nil {
				return err
			}
		}
		for _, o := range e.others {
			if err := w.semantics(assoc, SemanticsOther, o); err != nil {
				return err
			}
		}
	}

	for _, it := range w.order[table.KindProperty] {
		p := it.(*Property)
		row := table.NewRow(table.KindProperty)
		row.Set(table.PropertyFlags, p.flags)
		if err := w.setStr(row, table.PropertyName, p.name); err != nil {
			return err
		}
		sig, err := EncodeMethodSig(p.sig, w.classToken)
		if err != nil {
			return loadError(w.img, p.token, "encode signature of", err)
		}
		if err := w.setBlob(row, table.PropertyType, sig); err != nil {
			return err
		}
		w.add(row)

		assoc := w.tokens[p]
		if err := w.semantics(assoc, SemanticsGetter, p.getter); err != nil {
			return err
		}
		if err := w.semantics(assoc, SemanticsSetter, p.setter); err != nil {
			return err
		}
		for _, o := range p.others {
			if err := w.semantics(assoc, SemanticsOther, o); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *tableWriter) methodImpls() error {
	for _, it := range w.order[table.KindTypeDef] {
		c := it.(*Class)
		for _, o := range c.overrides {
			body, err := w.local(o.Body)
			if err != nil {
				return err
			}
			decl, err := w.local(o.Declaration)
			if err != nil {
				return err
			}
			row := table.NewRow(table.KindMethodImpl)
			row.SetToken(table.MethodImplClass, w.tokens[c])
			row.SetToken(table.MethodImplBody, body)
			row.SetToken(table.MethodImplDeclaration, decl)
			w.add(row)
		}
	}
	return nil
}

func (w *tableWriter) moduleRefs() error {
	for _, it := range w.order[table.KindModuleRef] {
		row := table.NewRow(table.KindModuleRef)
		if err := w.setStr(row, table.ModuleRefName, it.(*ModuleRef).name); err != nil {
			return err
		}
		w.add(row)
	}
	return nil
}

func (w *tableWriter) typeSpecs() error {
	for _, it := range w.order[table.KindTypeSpec] {
		ts := it.(*TypeSpec)
		sig, err := EncodeTypeSpec(ts.typ, w.classToken)
		if err != nil {
			return loadError(w.img, ts.token, "encode", err)
		}
		row := table.NewRow(table.KindTypeSpec)
		if err := w.setBlob(row, table.TypeSpecSignature, sig); err != nil {
			return err
		}
		w.add(row)
	}
	return nil
}

func setVersion(row table.Row, major int, v Version) {
	row.Set(major, uint32(v.Major))
	row.Set(major+1, uint32(v.Minor))
	row.Set(major+2, uint32(v.Build))
	row.Set(major+3, uint32(v.Revision))
}

func (w *tableWriter) assemblies() error {
	for _, it := range w.order[table.KindAssembly] {
		a := it.(*Assembly)
		row := table.NewRow(table.KindAssembly)
		row.Set(table.AssemblyHashAlgID, a.hashAlg)
		setVersion(row, table.AssemblyMajorVersion, a.version)
		row.Set(table.AssemblyFlags, a.flags)
		if err := w.setBlob(row, table.AssemblyPublicKey, a.publicKey); err != nil {
			return err
		}
		if err := w.setStr(row, table.AssemblyName, a.name); err != nil {
			return err
		}
		if err := w.setStr(row, table.AssemblyCulture, a.culture); err != nil {
			return err
		}
		w.add(row)
	}
	return nil
}

func (w *tableWriter) assemblyRefs() error {
	for _, it := range w.order[table.KindAssemblyRef] {
		a := it.(*AssemblyRef)
		row := table.NewRow(table.KindAssemblyRef)
		setVersion(row, table.AssemblyRefMajorVersion, a.version)
		row.Set(table.AssemblyRefFlags, a.flags)
		if err := w.setBlob(row, table.AssemblyRefPublicKeyOrToken, a.publicKeyToken); err != nil {
			return err
		}
		if err := w.setStr(row, table.AssemblyRefName, a.name); err != nil {
			return err
		}
		if err := w.setStr(row, table.AssemblyRefCulture, a.culture); err != nil {
			return err
		}
		if err := w.setBlob(row, table.AssemblyRefHashValue, a.hashValue); err != nil {
			return err
		}
		w.add(row)
	}
	return nil
}

func (w *tableWriter) nestedClasses() error {
	for _, it := range w.order[table.KindTypeDef] {
		c := it.(*Class)
		if c.enclosing == nil {
			continue
		}
		enc, err := w.classToken(c.enclosing)
		if err != nil {
			return err
		}
		row := table.NewRow(table.KindNestedClass)
		row.SetToken(table.NestedClassNested, w.tokens[c])
		row.SetToken(table.NestedClassEnclosing, enc)
		w.add(row)
	}
	w.sorted |= 1 << table.KindNestedClass
	return nil
}

func (w *tableWriter) genericParams() error {
	for _, it := range w.order[table.KindGenericParam] {
		g := it.(*GenericPar)
		owner, err := w.local(g.owner)
		if err != nil {
			return err
		}
		row := table.NewRow(table.KindGenericParam)
		row.Set(table.GenericParamNumber, uint32(g.number))
		row.Set(table.GenericParamFlags, uint32(g.flags))
		row.SetToken(table.GenericParamOwner, owner)
		if err := w.setStr(row, table.GenericParamName, g.name); err != nil {
			return err
		}
		w.add(row)

		for _, c := range g.constraints {
			tok, err := w.classToken(c)
			if err != nil {
				return err
			}
			crow := table.NewRow(table.KindGenericParamConstraint)
			crow.SetToken(table.GenericParamConstraintOwner, w.tokens[g])
			crow.SetToken(table.GenericParamConstraintConstraint, tok)
			w.add(crow)
		}
	}
	return nil
}

// finish encodes the assembled rows with a layout computed from their
// final counts.
func (w *tableWriter) finish() (*TableSet, error) {
	strs := w.strings.Bytes()
	blobs := w.blobs.Bytes()
	guids := w.guids.Bytes()
	ns, err := safecast.Conv[uint32](len(strs))
	if err != nil {
		return nil, err
	}
	nb, err := safecast.Conv[uint32](len(blobs))
	if err != nil {
		return nil, err
	}
	ng, err := safecast.Conv[uint32](w.guids.Count())
	if err != nil {
		return nil, err
	}

	b := table.NewStreamBuilder()
	b.Heaps = table.HeapSizesFor(ns, ng, nb)
	b.Sorted = w.sorted
	for _, rows := range w.rows {
		for _, row := range rows {
			b.Add(row)
		}
	}
	s, err := b.Build()
	if err != nil {
		return nil, err
	}
	us := w.img.usBuilder
	if us == nil {
		us = table.NewUserStringHeapBuilder()
	}
	return &TableSet{
		Tables:      s,
		Strings:     strs,
		Blob:        blobs,
		GUID:        guids,
		UserStrings: us.Bytes(),
	}, nil
}
