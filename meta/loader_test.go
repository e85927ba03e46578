package meta

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/skdltmxn/ilmeta/internal/table"
	"github.com/skdltmxn/ilmeta/metaroot"
)

// buildApp creates an image exercising every table the writer emits.
func buildApp(t *testing.T, c *Context, lib *testCorlib) *Image {
	t.Helper()
	img := newTestAssembly(t, c, "App")
	void := Primitive(ElemVoid)
	i4 := Primitive(ElemI4)

	runner, err := CreateClass(img, NextToken, "IRunner", "App", nil)
	require.NoError(t, err)
	runner.SetFlags(TypePublic | TypeInterface | TypeAbstract)
	run, err := CreateMethod(runner, NextToken, "Run", MethodPublic|MethodVirtual|MethodAbstract, MethodSig(CallHasThis, void))
	require.NoError(t, err)

	widget, err := CreateClass(img, NextToken, "Widget", "App", lib.object)
	require.NoError(t, err)
	AddInterface(widget, runner)
	for _, f := range []struct {
		name string
		typ  *Type
	}{
		{"count", i4},
		{"name", ClassType(lib.str)},
		{"items", SZArrayOf(ClassType(lib.str))},
	} {
		_, err := CreateField(widget, NextToken, f.name, FieldPrivate, f.typ)
		require.NoError(t, err)
	}
	ctor, err := CreateMethod(widget, NextToken, ".ctor", MethodPublic|MethodSpecialName|MethodRTSpecialName, MethodSig(CallHasThis, void, i4))
	require.NoError(t, err)
	_, err = CreateParameter(ctor, NextToken, 1, "count", 0)
	require.NoError(t, err)
	wrun, err := CreateMethod(widget, NextToken, "Run", MethodPublic|MethodVirtual|MethodFinal, MethodSig(CallHasThis, void))
	require.NoError(t, err)
	AddOverride(widget, wrun, run)

	getCount, err := CreateMethod(widget, NextToken, "get_Count", MethodPublic|MethodSpecialName, MethodSig(CallHasThis, i4))
	require.NoError(t, err)
	prop, err := CreateProperty(widget, NextToken, "Count", 0, MethodSig(CallProperty|CallHasThis, i4))
	require.NoError(t, err)
	require.NoError(t, BindAccessor(prop, SemanticsGetter, getCount))

	handler := MethodSig(CallHasThis, void, ClassType(lib.object))
	add, err := CreateMethod(widget, NextToken, "add_Changed", MethodPublic|MethodSpecialName, handler)
	require.NoError(t, err)
	remove, err := CreateMethod(widget, NextToken, "remove_Changed", MethodPublic|MethodSpecialName, handler)
	require.NoError(t, err)
	ev, err := CreateEvent(widget, NextToken, "Changed", 0, ClassType(lib.object))
	require.NoError(t, err)
	require.NoError(t, BindAccessor(ev, SemanticsAddOn, add))
	require.NoError(t, BindAccessor(ev, SemanticsRemoveOn, remove))

	part, err := CreateNestedClass(widget, NextToken, "Part")
	require.NoError(t, err)
	_, err = CreateField(part, NextToken, "size", FieldPublic, i4)
	require.NoError(t, err)

	holder, err := CreateClass(img, NextToken, "Holder`1", "App", lib.object)
	require.NoError(t, err)
	g, err := CreateGenericPar(holder, 0, "T")
	require.NoError(t, err)
	AddConstraint(g, runner)

	_, err = CreateAttribute(widget, NextToken, ctor, []byte{0x01, 0x00, 0x2A, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)

	_, err = CreateMemberRef(img, NextToken, widget, "ToString", MethodSig(CallHasThis, Primitive(ElemString)))
	require.NoError(t, err)
	return img
}

func loadApp(t *testing.T, tweak ...func(*LoadOptions)) (*Context, *Image) {
	t.Helper()
	build := newTestContext(t)
	lib := newTestCorlib(t, build)
	app := buildApp(t, build, lib)

	c := newTestContext(t, tweak...)
	imgs := loadAll(t, c, writeSource(t, lib.img), writeSource(t, app))
	return c, imgs[1]
}

func TestRoundTripStructure(t *testing.T) {
	c, app := loadApp(t)
	assert.Equal(t, "App", app.Name())
	assert.Equal(t, ModeLoaded, app.Mode())
	assert.False(t, app.IsLoading())

	object, ok := c.LookupClass("System", "Object")
	require.True(t, ok)
	runner := lookupClass(t, app, "App", "IRunner")
	assert.True(t, runner.IsInterface())

	widget := lookupClass(t, app, "App", "Widget")
	assert.Same(t, object, widget.Parent())
	assert.Equal(t, []*Class{runner}, widget.Interfaces())

	var fields []string
	for f := range widget.Fields() {
		fields = append(fields, f.Name())
	}
	assert.Equal(t, []string{"count", "name", "items"}, fields)

	items := memberNamed[*Field](t, widget, "items")
	assert.Equal(t, TypeSZArray, items.Signature().Kind)
	assert.Same(t, lookupClass(t, c.images[0], "System", "String"), items.Signature().Inner.Class.Resolved())

	ctor := memberNamed[*Method](t, widget, ".ctor")
	require.Len(t, ctor.Params(), 1)
	assert.Equal(t, "count", ctor.Params()[0].Name())
	assert.Equal(t, uint16(1), ctor.Params()[0].Sequence())

	prop := memberNamed[*Property](t, widget, "Count")
	assert.Same(t, memberNamed[*Method](t, widget, "get_Count"), prop.Getter())
	assert.Equal(t, CallProperty|CallHasThis, prop.Signature().CallConv)

	ev := memberNamed[*Event](t, widget, "Changed")
	assert.Same(t, memberNamed[*Method](t, widget, "add_Changed"), ev.AddOn())
	assert.Same(t, memberNamed[*Method](t, widget, "remove_Changed"), ev.RemoveOn())
	assert.Nil(t, ev.Fire())
	assert.Same(t, object, ev.Signature().Class.Resolved())

	require.Len(t, widget.Overrides(), 1)
	assert.Same(t, memberNamed[*Method](t, widget, "Run"), widget.Overrides()[0].Body)
	assert.Same(t, memberNamed[*Method](t, runner, "Run"), widget.Overrides()[0].Declaration)

	require.Len(t, widget.NestedClasses(), 1)
	part := widget.NestedClasses()[0]
	assert.Equal(t, "App.Widget/Part", part.FullName())
	assert.Same(t, widget, part.Enclosing())
	_, ok = app.LookupClass("", "Part")
	assert.False(t, ok, "nested classes are not indexed by name")

	holder := lookupClass(t, app, "App", "Holder`1")
	require.Len(t, holder.GenericParams(), 1)
	cs, err := holder.GenericParams()[0].Constraints()
	require.NoError(t, err)
	assert.Equal(t, []*Class{runner}, cs)
}

func TestLazyMemberIdentity(t *testing.T) {
	_, app := loadApp(t)

	first, err := app.Get(table.MakeToken(table.KindField, 2))
	require.NoError(t, err)
	f, ok := first.(*Field)
	require.True(t, ok)
	assert.Equal(t, "name", f.Name())
	assert.Equal(t, "Widget", f.Owner().Name())

	second, err := app.Get(table.MakeToken(table.KindField, 2))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, f, memberNamed[*Field](t, f.Owner(), "name"))

	p, err := app.Get(table.MakeToken(table.KindParam, 1))
	require.NoError(t, err)
	assert.Equal(t, ".ctor", p.(*Param).Method().Name())

	_, err = app.Get(table.MakeToken(table.KindField, 99))
	assert.Error(t, err)
}

func TestGetMaterializesOnlyTheOwner(t *testing.T) {
	build := newTestContext(t)
	img, err := build.NewImage("Lazy")
	require.NoError(t, err)
	_, err = CreateModule(img, NextToken, "Lazy.dll")
	require.NoError(t, err)
	for _, name := range []string{"A", "B"} {
		cls, err := CreateClass(img, NextToken, name, "Test", nil)
		require.NoError(t, err)
		for _, f := range []string{"x", "y"} {
			_, err = CreateField(cls, NextToken, f, FieldPublic, Primitive(ElemI4))
			require.NoError(t, err)
		}
	}

	c := newTestContext(t)
	loaded := loadAll(t, c, writeSource(t, img))[0]
	first := table.MakeToken(table.KindTypeDef, 1)
	second := table.MakeToken(table.KindTypeDef, 2)
	_, ok := loaded.published(first)
	require.False(t, ok, "loading does not materialize type definitions")

	it, err := loaded.Get(table.MakeToken(table.KindField, 2))
	require.NoError(t, err)
	f := it.(*Field)
	assert.Equal(t, "y", f.Name())

	owner, ok := loaded.published(first)
	require.True(t, ok)
	assert.Same(t, f.Owner(), owner)
	assert.Equal(t, "A", f.Owner().Name())
	_, ok = loaded.published(second)
	assert.False(t, ok, "unrelated rows stay empty")
}

func TestLazyAttributes(t *testing.T) {
	_, app := loadApp(t)
	widget := lookupClass(t, app, "App", "Widget")

	attrs, err := LoadAttributes(widget)
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Same(t, widget, attrs[0].Owner())
	assert.Same(t, widget, attrs[0].Class())
	assert.Equal(t, []byte{0x01, 0x00, 0x2A, 0x00, 0x00, 0x00, 0x00, 0x00}, attrs[0].Value())

	again, err := LoadAttributes(widget)
	require.NoError(t, err)
	assert.Same(t, attrs[0], again[0])

	runner := lookupClass(t, app, "App", "IRunner")
	var none []*Attribute
	for a := range Attributes(runner) {
		none = append(none, a)
	}
	assert.Empty(t, none)
}

func TestMemberRefThroughParentChain(t *testing.T) {
	c, app := loadApp(t)
	it, err := app.Get(table.MakeToken(table.KindMemberRef, 1))
	require.NoError(t, err)
	mr := it.(*MemberRef)
	assert.Equal(t, MemberMethod, mr.TargetKind())

	target, ok := mr.Target()
	require.True(t, ok)
	object, _ := c.LookupClass("System", "Object")
	assert.Same(t, memberNamed[*Method](t, object, "ToString"), target)
}

func TestMemberRefThroughInterfaces(t *testing.T) {
	c := newTestContext(t)
	lib := newTestCorlib(t, c)
	img := newTestAssembly(t, c, "Ifaces")
	iface := func(name string) *Class {
		cls, err := CreateClass(img, NextToken, name, "Test", nil)
		require.NoError(t, err)
		cls.SetFlags(TypePublic | TypeInterface | TypeAbstract)
		return cls
	}
	ia, ib := iface("IA"), iface("IB")
	AddInterface(ib, ia)
	run, err := CreateMethod(ia, NextToken, "Run", MethodPublic|MethodAbstract|MethodVirtual, MethodSig(CallHasThis, Primitive(ElemVoid)))
	require.NoError(t, err)

	m, ok := ResolveMember(ib, "Run", MethodSig(CallHasThis, Primitive(ElemVoid)))
	require.True(t, ok)
	assert.Same(t, run, m)

	m, ok = ResolveMember(ib, "ToString", MethodSig(CallHasThis, Primitive(ElemString)))
	require.True(t, ok)
	assert.Same(t, lib.toString, m)

	_, ok = ResolveMember(ib, "Run", MethodSig(CallHasThis, Primitive(ElemI4)))
	assert.False(t, ok, "signatures must match")
}

func TestVarArgCallSiteMatchesFixedPart(t *testing.T) {
	c := newTestContext(t)
	img := newTestAssembly(t, c, "VarArg")
	cls, err := CreateClass(img, NextToken, "Printer", "Test", nil)
	require.NoError(t, err)
	def := MethodSig(CallVarArg, Primitive(ElemVoid), Primitive(ElemString))
	printf, err := CreateMethod(cls, NextToken, "Printf", MethodPublic|MethodStatic, def)
	require.NoError(t, err)

	site := MethodSig(CallVarArg, Primitive(ElemVoid), Primitive(ElemString), Primitive(ElemI4), Primitive(ElemR8))
	site.Sentinel = 1
	m, ok := ResolveMember(cls, "Printf", site)
	require.True(t, ok)
	assert.Same(t, printf, m)
}

func TestWriteToProducesLoadableRoot(t *testing.T) {
	build := newTestContext(t)
	lib := newTestCorlib(t, build)
	ts, err := lib.img.WriteTables()
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := ts.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, []byte("BSJB"), buf.Bytes()[:4])

	root, err := metaroot.Parse(buf.Bytes())
	require.NoError(t, err)
	c := newTestContext(t)
	img, err := c.LoadImage(root)
	require.NoError(t, err)
	assert.Equal(t, "mscorlib", img.Name())
	assert.Equal(t, "mscorlib.dll", img.Module().Name())
	assert.Equal(t, Version{Major: 1}, img.Assembly().Version())
	lookupClass(t, img, "System", "Int32")
}

func TestRewriteLoadedImage(t *testing.T) {
	build := newTestContext(t)
	lib := newTestCorlib(t, build)
	app := buildApp(t, build, lib)
	first, err := app.WriteTables()
	require.NoError(t, err)

	c := newTestContext(t)
	imgs := loadAll(t, c, writeSource(t, lib.img), first.Source())
	second, err := imgs[1].WriteTables()
	require.NoError(t, err)

	assert.Equal(t, first.Tables.Bytes(), second.Tables.Bytes())
	assert.Equal(t, first.Strings, second.Strings)
	assert.Equal(t, first.Blob, second.Blob)
	assert.Equal(t, first.GUID, second.GUID)
}

func TestWriterCreatesReferences(t *testing.T) {
	build := newTestContext(t)
	lib := newTestCorlib(t, build)
	app := buildApp(t, build, lib)
	_, err := app.WriteTables()
	require.NoError(t, err)

	var refs []string
	for it := range app.Items(table.KindTypeRef) {
		cls := it.(*Class)
		assert.True(t, cls.IsReference())
		refs = append(refs, FormatClass(cls))
	}
	assert.ElementsMatch(t, []string{"System.Object", "System.String"}, refs)
	assert.Equal(t, uint32(1), app.Count(table.KindAssemblyRef))

	ref, ok := LinkedBackTo(lib.object, app)
	require.True(t, ok)
	assert.True(t, ref.(*Class).IsReference())

	// A second write reuses the references created by the first.
	before := app.Count(table.KindTypeRef)
	_, err = app.WriteTables()
	require.NoError(t, err)
	assert.Equal(t, before, app.Count(table.KindTypeRef))
}

// buildCycle creates three assemblies whose classes hold fields of each
// other's types: A -> B -> C -> A.
func buildCycle(t *testing.T) []Source {
	t.Helper()
	build := newTestContext(t)
	names := []string{"A", "B", "C"}
	imgs := make([]*Image, len(names))
	classes := make([]*Class, len(names))
	for i, n := range names {
		imgs[i] = newTestAssembly(t, build, n)
		var err error
		classes[i], err = CreateClass(imgs[i], NextToken, "C"+n, "Cycle", nil)
		require.NoError(t, err)
	}
	srcs := make([]Source, len(names))
	for i := range names {
		next := classes[(i+1)%len(classes)]
		_, err := CreateField(classes[i], NextToken, "next", FieldPublic, ClassType(next))
		require.NoError(t, err)
	}
	for i := range names {
		srcs[i] = writeSource(t, imgs[i])
	}
	return srcs
}

func TestBatchResolvesCycle(t *testing.T) {
	c := newTestContext(t)
	imgs := loadAll(t, c, buildCycle(t)...)

	for i, img := range imgs {
		cls := lookupClass(t, img, "Cycle", "C"+img.Name())
		next := memberNamed[*Field](t, cls, "next").Signature().Class
		want := imgs[(i+1)%len(imgs)]
		assert.Same(t, want, next.Resolved().Image(), "%s.next", img.Name())
		assert.True(t, IsLinked(next))
	}
}

func TestStrictLoadRejectsUnresolved(t *testing.T) {
	srcs := buildCycle(t)
	c := newTestContext(t)

	_, err := c.LoadImage(srcs[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedReference)
	var ue *UnresolvedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "CB", ue.Name)
	assert.Empty(t, c.Images())
	_, ok := c.LookupClass("Cycle", "CA")
	assert.False(t, ok, "a failed load leaves no names behind")
}

func TestBatchReportsEveryMissingReference(t *testing.T) {
	srcs := buildCycle(t)
	c := newTestContext(t)

	// A -> B resolves inside the batch; B -> C has nowhere to go.
	_, err := c.LoadBatch(srcs[0], srcs[1])
	require.Error(t, err)

	var got []*UnresolvedError
	for _, e := range multierr.Errors(err) {
		var ue *UnresolvedError
		if errors.As(e, &ue) {
			got = append(got, ue)
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Image)
	assert.Equal(t, table.KindTypeRef, got[0].Token.Kind())
	assert.Equal(t, "Cycle", got[0].Namespace)
	assert.Equal(t, "CC", got[0].Name)
	assert.Empty(t, c.Images())
}

func TestTolerantLoadRecordsDiagnostics(t *testing.T) {
	srcs := buildCycle(t)
	c := newTestContext(t, tolerant)

	img, err := c.LoadImage(srcs[0])
	require.NoError(t, err)
	require.NotEmpty(t, img.Diagnostics())
	assert.ErrorIs(t, img.Diagnostics()[0], ErrUnresolvedReference)

	var dangling *Class
	for it := range img.Items(table.KindTypeRef) {
		if cls := it.(*Class); cls.Name() == "CB" {
			dangling = cls
		}
	}
	require.NotNil(t, dangling)
	assert.False(t, IsLinked(dangling))
	assert.Same(t, dangling, dangling.Resolved())
}

func TestUserStrings(t *testing.T) {
	build := newTestContext(t)
	img := newTestAssembly(t, build, "Strings")
	hello, err := CreateUserString(img, "hello")
	require.NoError(t, err)
	again, err := CreateUserString(img, "hello")
	require.NoError(t, err)
	assert.Equal(t, hello, again)
	wide, err := CreateUserString(img, "grüße")
	require.NoError(t, err)
	assert.NotEqual(t, hello, wide)

	s, err := img.UserString(wide)
	require.NoError(t, err)
	assert.Equal(t, "grüße", s)

	c := newTestContext(t)
	loaded := loadAll(t, c, writeSource(t, img))[0]
	s, err = loaded.UserString(hello)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
	s, err = loaded.UserString(wide)
	require.NoError(t, err)
	assert.Equal(t, "grüße", s)

	_, err = CreateUserString(loaded, "late")
	assert.Error(t, err)
}

func TestDuplicateImage(t *testing.T) {
	c := newTestContext(t)
	_, err := c.NewImage("Dup")
	require.NoError(t, err)
	_, err = c.NewImage("Dup")
	assert.ErrorIs(t, err, ErrImageExists)
}

func TestUnlinkBreaksChains(t *testing.T) {
	c := newTestContext(t)
	img := newTestAssembly(t, c, "Links")
	def, err := CreateClass(img, NextToken, "Target", "Test", nil)
	require.NoError(t, err)
	r1, err := CreateClassRef(img, NextToken, img.Module(), "Target", "Test")
	require.NoError(t, err)
	r2, err := CreateClassRef(img, NextToken, img.Module(), "Target", "Test")
	require.NoError(t, err)
	require.NoError(t, Link(r1, r2))
	require.NoError(t, Link(r2, def))

	got, err := Resolve(r1)
	require.NoError(t, err)
	assert.Same(t, def, got)

	Unlink(r2)
	_, err = Resolve(r1)
	assert.ErrorIs(t, err, ErrBrokenLinkChain)
	assert.Same(t, r1, r1.Resolved(), "a broken chain resolves to the item itself")

	require.NoError(t, Link(r2, def))
	got, err = Resolve(r2)
	require.NoError(t, err)
	assert.Same(t, def, got)
}
