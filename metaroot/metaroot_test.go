package metaroot

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParse(t *testing.T) {
	streams := []StreamData{
		{Name: StreamTables, Data: []byte{1, 2, 3, 4, 5}},
		{Name: StreamStrings, Data: []byte{0, 'A', 0, 0}},
		{Name: StreamGUID, Data: nil},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, streams))

	f, err := Load(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, f.Header().Version)
	assert.Equal(t, uint16(3), f.Header().NumStreams)
	assert.Equal(t, []string{"#~", "#Strings", "#GUID"}, f.Directory().Names())

	data, ok := f.Stream(StreamTables)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 0, 0, 0}, data, "stream contents are padded to four bytes")

	data, ok = f.Stream(StreamStrings)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 'A', 0, 0}, data)

	data, ok = f.Stream(StreamGUID)
	require.True(t, ok)
	assert.Empty(t, data)

	_, ok = f.Stream(StreamBlob)
	assert.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = Parse([]byte{0x42, 0x53})
	assert.ErrorIs(t, err, ErrTruncated)

	root, err := Build("v2.0", []StreamData{{Name: StreamBlob, Data: []byte{0, 0, 0, 0}}})
	require.NoError(t, err)
	_, err = Parse(root[:len(root)-4])
	assert.ErrorIs(t, err, ErrStreamRange)

	_, err = Build("", []StreamData{{Name: "", Data: nil}})
	assert.ErrorIs(t, err, ErrStreamName)
}

func TestVersionPadding(t *testing.T) {
	for _, v := range []string{"v1", "v2.0", "v4.0.30319", "abc"} {
		root, err := Build(v, nil)
		require.NoError(t, err)
		length := binary.LittleEndian.Uint32(root[12:])
		assert.Zero(t, length%4, v)
		assert.Equal(t, 16+int(length)+4, len(root), v)

		f, err := Parse(root)
		require.NoError(t, err)
		assert.Equal(t, v, f.Header().Version)
	}
}

func TestFindSection(t *testing.T) {
	sections := []*pe.Section{
		{SectionHeader: pe.SectionHeader{Name: ".text", VirtualAddress: 0x2000, VirtualSize: 0x100, Size: 0x200}},
		{SectionHeader: pe.SectionHeader{Name: ".rsrc", VirtualAddress: 0x4000, VirtualSize: 0x80}},
	}

	s, off, ok := findSection(sections, 0x2150)
	require.True(t, ok)
	assert.Equal(t, ".text", s.Name)
	assert.Equal(t, uint32(0x150), off, "raw size larger than virtual size still maps")

	s, off, ok = findSection(sections, 0x4000)
	require.True(t, ok)
	assert.Equal(t, ".rsrc", s.Name)
	assert.Zero(t, off)

	_, _, ok = findSection(sections, 0x3000)
	assert.False(t, ok)
}

func TestLoadRejectsNonPE(t *testing.T) {
	_, err := Load([]byte("MZ not really a PE image"))
	assert.Error(t, err)
}
