package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/ilmeta/meta"
)

// writeSample writes a small assembly to a bare metadata root file.
func writeSample(t *testing.T) string {
	t.Helper()
	c, err := meta.NewContext(meta.DefaultLoadOptions())
	require.NoError(t, err)
	img, err := c.NewImage("Sample")
	require.NoError(t, err)
	_, err = meta.CreateModule(img, meta.NextToken, "Sample.dll")
	require.NoError(t, err)
	_, err = meta.CreateAssembly(img, meta.NextToken, "Sample", meta.Version{Major: 2, Minor: 1})
	require.NoError(t, err)

	widget, err := meta.CreateClass(img, meta.NextToken, "Widget", "App", nil)
	require.NoError(t, err)
	_, err = meta.CreateField(widget, meta.NextToken, "count", meta.FieldPrivate, meta.Primitive(meta.ElemI4))
	require.NoError(t, err)
	_, err = meta.CreateNestedClass(widget, meta.NextToken, "Part")
	require.NoError(t, err)

	ts, err := img.WriteTables()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "Sample.md")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = ts.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out.txt")
	rootCmd.SetArgs(append([]string{"-o", out}, args...))
	require.NoError(t, rootCmd.Execute())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return string(data)
}

func TestCommands(t *testing.T) {
	path := writeSample(t)

	t.Run("info", func(t *testing.T) {
		got := run(t, "info", path)
		assert.Contains(t, got, "Module: Sample.dll")
		assert.Contains(t, got, "Assembly: Sample, Version=2.1.0.0")
		assert.Contains(t, got, "#Strings")
	})

	t.Run("tables", func(t *testing.T) {
		got := run(t, "tables", path)
		assert.Contains(t, got, "TypeDef")
		assert.Contains(t, got, "NestedClass")
	})

	t.Run("types", func(t *testing.T) {
		got := run(t, "types", "--namespace", "App", path)
		assert.Contains(t, got, "App.Widget")
		assert.Contains(t, got, "Total: 1 types")
	})

	t.Run("lookup nested", func(t *testing.T) {
		got := run(t, "lookup", "-i", path, "app.widget/part")
		assert.Contains(t, got, "App.Widget/Part")
	})

	t.Run("dump json", func(t *testing.T) {
		got := run(t, "dump", "-f", "json", path)
		var dump ImageDump
		require.NoError(t, json.Unmarshal([]byte(got), &dump))
		assert.Equal(t, "Sample", dump.Assembly)
		var names []string
		for _, td := range dump.Types {
			names = append(names, td.Name)
		}
		assert.Contains(t, names, "App.Widget")
	})

	t.Run("check", func(t *testing.T) {
		got := run(t, "check", path)
		assert.Contains(t, got, "1 images, 0 with unresolved references")
	})
}
