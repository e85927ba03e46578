package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringHeap(t *testing.T) {
	b := NewStringHeapBuilder()
	sys, err := b.Add("System")
	require.NoError(t, err)
	obj, err := b.Add("Object")
	require.NoError(t, err)
	again, err := b.Add("System")
	require.NoError(t, err)
	empty, err := b.Add("")
	require.NoError(t, err)

	assert.Equal(t, uint32(1), sys)
	assert.Equal(t, uint32(8), obj)
	assert.Equal(t, sys, again)
	assert.Zero(t, empty)
	assert.Zero(t, len(b.Bytes())%4)

	h := NewStringHeap(b.Bytes())
	s, err := h.Get(obj)
	require.NoError(t, err)
	assert.Equal(t, "Object", s)
	s, err = h.Get(0)
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = h.Get(uint32(h.Size()))
	assert.ErrorIs(t, err, ErrHeapRange)
	_, err = NewStringHeap([]byte{0, 'a', 'b'}).Get(1)
	assert.ErrorIs(t, err, ErrHeapRange)
}

func TestBlobHeap(t *testing.T) {
	b := NewBlobHeapBuilder()
	small := []byte{0x20, 0x00, 0x01}
	large := make([]byte, 200)
	large[199] = 0xAA

	i1, off1, len1, err := b.Add(small)
	require.NoError(t, err)
	i2, off2, len2, err := b.Add(large)
	require.NoError(t, err)
	i3, _, _, err := b.Add(small)
	require.NoError(t, err)

	assert.Equal(t, i1, i3)
	assert.Equal(t, i1+1, off1)
	assert.Equal(t, uint32(3), len1)
	assert.Equal(t, i2+2, off2, "200 needs a two byte length prefix")
	assert.Equal(t, uint32(200), len2)

	h := NewBlobHeap(b.Bytes())
	got, err := h.Get(i2)
	require.NoError(t, err)
	assert.Equal(t, large, got)

	off, length, err := h.Entry(0)
	require.NoError(t, err)
	assert.Zero(t, off)
	assert.Zero(t, length)

	_, _, err = NewBlobHeap([]byte{0, 0x05, 1, 2}).Entry(1)
	assert.ErrorIs(t, err, ErrHeapRange)
}

func TestGUIDHeap(t *testing.T) {
	b := NewGUIDHeapBuilder()
	g1 := [16]byte{1, 2, 3}
	g2 := [16]byte{9}
	i1, err := b.Add(g1)
	require.NoError(t, err)
	i2, err := b.Add(g2)
	require.NoError(t, err)
	i3, err := b.Add(g1)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), i1)
	assert.Equal(t, uint32(2), i2)
	assert.Equal(t, i1, i3)
	assert.Equal(t, 2, b.Count())

	h := NewGUIDHeap(b.Bytes())
	got, err := h.Get(2)
	require.NoError(t, err)
	assert.Equal(t, g2, got)
	_, err = h.Get(3)
	assert.ErrorIs(t, err, ErrHeapRange)
}

func TestUserStringHeap(t *testing.T) {
	b := NewUserStringHeapBuilder()
	plain, err := b.Add("hello")
	require.NoError(t, err)
	wide, err := b.Add("héllo wörld")
	require.NoError(t, err)

	h := NewUserStringHeap(b.Bytes())
	s, err := h.Get(plain)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
	s, err = h.Get(wide)
	require.NoError(t, err)
	assert.Equal(t, "héllo wörld", s)
	assert.Equal(t, b.Bytes(), h.Data())
	assert.Nil(t, (*UserStringHeap)(nil).Data())

	raw, err := NewBlobHeap(b.Bytes()).Get(plain)
	require.NoError(t, err)
	assert.Len(t, raw, 11)
	assert.Equal(t, byte(0), raw[10])
}
