package meta

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestContext(t *testing.T, tweak ...func(*LoadOptions)) *Context {
	t.Helper()
	opts := DefaultLoadOptions()
	for _, fn := range tweak {
		fn(&opts)
	}
	c, err := NewContext(opts)
	require.NoError(t, err)
	c.WithLogger(zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func tolerant(o *LoadOptions) { o.IgnoreErrors = true }

// newTestAssembly creates a building image with a Module row, an Assembly
// row and the <Module> class.
func newTestAssembly(t *testing.T, c *Context, name string) *Image {
	t.Helper()
	img, err := c.NewImage(name)
	require.NoError(t, err)
	_, err = CreateModule(img, NextToken, name+".dll")
	require.NoError(t, err)
	_, err = CreateAssembly(img, NextToken, name, Version{Major: 1})
	require.NoError(t, err)
	_, err = CreateClass(img, NextToken, "<Module>", "", nil)
	require.NoError(t, err)
	return img
}

type testCorlib struct {
	img       *Image
	object    *Class
	valueType *Class
	array     *Class
	int32     *Class
	str       *Class
	toString  *Method
}

func newTestCorlib(t *testing.T, c *Context) *testCorlib {
	t.Helper()
	img := newTestAssembly(t, c, "mscorlib")
	class := func(name string, parent *Class) *Class {
		cls, err := CreateClass(img, NextToken, name, "System", parent)
		require.NoError(t, err)
		return cls
	}
	lib := &testCorlib{img: img}
	lib.object = class("Object", nil)
	lib.valueType = class("ValueType", lib.object)
	lib.array = class("Array", lib.object)
	lib.int32 = class("Int32", lib.valueType)
	lib.str = class("String", lib.object)

	var err error
	lib.toString, err = CreateMethod(lib.object, NextToken, "ToString",
		MethodPublic|MethodVirtual|MethodHideBySig,
		MethodSig(CallHasThis, Primitive(ElemString)))
	require.NoError(t, err)
	return lib
}

func writeSource(t *testing.T, img *Image) Source {
	t.Helper()
	ts, err := img.WriteTables()
	require.NoError(t, err)
	return ts.Source()
}

func loadAll(t *testing.T, c *Context, srcs ...Source) []*Image {
	t.Helper()
	imgs, err := c.LoadBatch(srcs...)
	require.NoError(t, err)
	require.Len(t, imgs, len(srcs))
	return imgs
}

func lookupClass(t *testing.T, img *Image, namespace, name string) *Class {
	t.Helper()
	cls, ok := img.LookupClass(namespace, name)
	require.True(t, ok, "class %s.%s not found in %s", namespace, name, img.Name())
	return cls
}

func memberNamed[M Member](t *testing.T, cls *Class, name string) M {
	t.Helper()
	for m := range cls.Members() {
		if mm, ok := m.(M); ok && m.Name() == name {
			return mm
		}
	}
	require.FailNow(t, "member not found", "%s has no member %s", FormatClass(cls), name)
	var zero M
	return zero
}
