package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternIsIdempotent(t *testing.T) {
	c := newTestContext(t)
	lib := newTestCorlib(t, c)

	a, err := c.Intern(SZArrayOf(Primitive(ElemI4)))
	require.NoError(t, err)
	b, err := c.Intern(SZArrayOf(Primitive(ElemI4)))
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "$Array1", a.Name())
	assert.True(t, a.IsSynthetic())
	assert.Same(t, c.SyntheticImage(), a.Image())
	assert.Same(t, lib.array, a.Parent())

	p, err := c.Intern(PtrTo(Primitive(ElemI4)))
	require.NoError(t, err)
	assert.Equal(t, "$Ptr1", p.Name())
	assert.Same(t, lib.valueType, p.Parent())

	other, err := c.Intern(SZArrayOf(ClassType(lib.str)))
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, "$Array2", other.Name())
}

func TestInternNamedTypes(t *testing.T) {
	c := newTestContext(t)
	lib := newTestCorlib(t, c)

	cls, err := c.Intern(Primitive(ElemI4))
	require.NoError(t, err)
	assert.Same(t, lib.int32, cls)

	cls, err = c.Intern(ClassType(lib.str))
	require.NoError(t, err)
	assert.Same(t, lib.str, cls)

	_, err = c.Intern(Primitive(ElemR8))
	assert.ErrorIs(t, err, ErrNotComposite)
	_, err = c.Intern(VarType(0))
	assert.ErrorIs(t, err, ErrNotComposite)
}

func TestInternWithoutCorlib(t *testing.T) {
	c := newTestContext(t)

	a, err := c.Intern(SZArrayOf(Primitive(ElemI4)))
	require.NoError(t, err)
	b, err := c.Intern(ArrayOf(Primitive(ElemI4), 2, nil, nil))
	require.NoError(t, err)

	require.NotNil(t, a.Parent())
	assert.Equal(t, SyntheticImageName, a.Parent().Namespace())
	assert.Equal(t, "Array", a.Parent().Name())
	assert.Same(t, a.Parent(), b.Parent())
}

func TestSZArrayMethods(t *testing.T) {
	c := newTestContext(t)
	cls, err := c.Intern(SZArrayOf(Primitive(ElemString)))
	require.NoError(t, err)

	var methods []*Method
	for m := range cls.Methods() {
		methods = append(methods, m)
	}
	require.Len(t, methods, 1)
	assert.Equal(t, ".ctor", methods[0].Name())
	assert.Equal(t, MethodImplRuntime, methods[0].ImplFlags())
	assert.True(t, methods[0].Signature().HasThis())
	assert.Len(t, methods[0].Signature().Params, 1)
}

func TestArrayMethods(t *testing.T) {
	c := newTestContext(t)
	elem := Primitive(ElemR8)
	cls, err := c.Intern(ArrayOf(elem, 2, nil, nil))
	require.NoError(t, err)

	type shape struct {
		name   string
		params int
	}
	var got []shape
	for m := range cls.Methods() {
		got = append(got, shape{m.Name(), len(m.Signature().Params)})
		assert.Equal(t, MethodImplRuntime, m.ImplFlags(), m.Name())
		assert.True(t, m.Signature().HasThis(), m.Name())
	}
	assert.Equal(t, []shape{
		{".ctor", 2},
		{".ctor", 4},
		{"Get", 2},
		{"Set", 3},
		{"Address", 2},
	}, got)

	get := memberNamed[*Method](t, cls, "Get")
	assert.True(t, TypesIdentical(elem, get.Signature().Ret))
	set := memberNamed[*Method](t, cls, "Set")
	assert.True(t, TypesIdentical(elem, set.Signature().Params[2]))
	addr := memberNamed[*Method](t, cls, "Address")
	assert.True(t, TypesIdentical(ByRefTo(elem), addr.Signature().Ret))
}

func TestSyntheticLimit(t *testing.T) {
	c := newTestContext(t, func(o *LoadOptions) { o.MaxSyntheticClasses = 1 })

	_, err := c.Intern(PtrTo(Primitive(ElemI4)))
	require.NoError(t, err)
	_, err = c.Intern(PtrTo(Primitive(ElemI4)))
	require.NoError(t, err, "interning an existing type does not count")
	_, err = c.Intern(PtrTo(Primitive(ElemI8)))
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestHashFoldsClassNames(t *testing.T) {
	c := newTestContext(t)
	img := newTestAssembly(t, c, "Fold")
	lower, err := CreateClass(img, NextToken, "widget", "test", nil)
	require.NoError(t, err)
	upper, err := CreateClass(img, NextToken, "Widget", "Test", nil)
	require.NoError(t, err)

	assert.Equal(t, ClassType(lower).Hash(), ClassType(upper).Hash())
	assert.False(t, TypesIdentical(ClassType(lower), ClassType(upper)))

	found, ok := img.LookupClassFold("TEST", "WIDGET")
	require.True(t, ok)
	assert.Contains(t, []*Class{lower, upper}, found)
	exact, ok := img.LookupClass("Test", "Widget")
	require.True(t, ok)
	assert.Same(t, upper, exact)
}
