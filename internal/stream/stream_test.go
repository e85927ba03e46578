package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressedU32(t *testing.T) {
	tests := []struct {
		value   uint32
		encoded []byte
	}{
		{0x03, []byte{0x03}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x80, 0x80}},
		{0x2E57, []byte{0xAE, 0x57}},
		{0x3FFF, []byte{0xBF, 0xFF}},
		{0x4000, []byte{0xC0, 0x00, 0x40, 0x00}},
		{0x1FFFFFFF, []byte{0xDF, 0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		w := NewWriter(4)
		require.NoError(t, w.WriteCompressedU32(tt.value))
		assert.Equal(t, tt.encoded, w.Bytes(), "encode 0x%X", tt.value)

		r := NewReader(tt.encoded)
		got, err := r.ReadCompressedU32()
		require.NoError(t, err)
		assert.Equal(t, tt.value, got)
		assert.Zero(t, r.Remaining())
	}

	assert.ErrorIs(t, NewWriter(0).WriteCompressedU32(0x20000000), ErrValueTooLarge)

	_, err := NewReader([]byte{0xE0}).ReadCompressedU32()
	assert.ErrorIs(t, err, ErrInvalidCompress)

	_, err = NewReader([]byte{0xC0, 0x01}).ReadCompressedU32()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestCompressedI32(t *testing.T) {
	tests := []struct {
		value   int32
		encoded []byte
	}{
		{3, []byte{0x06}},
		{-3, []byte{0x7B}},
		{64, []byte{0x80, 0x80}},
		{-64, []byte{0x01}},
		{8192, []byte{0xC0, 0x00, 0x40, 0x00}},
		{-8192, []byte{0x80, 0x01}},
		{268435455, []byte{0xDF, 0xFF, 0xFF, 0xFE}},
		{-268435456, []byte{0xC0, 0x00, 0x00, 0x01}},
	}

	for _, tt := range tests {
		w := NewWriter(4)
		require.NoError(t, w.WriteCompressedI32(tt.value))
		assert.Equal(t, tt.encoded, w.Bytes(), "encode %d", tt.value)

		got, err := NewReader(tt.encoded).ReadCompressedI32()
		require.NoError(t, err)
		assert.Equal(t, tt.value, got)
	}
}

func TestIndexWidths(t *testing.T) {
	w := NewWriter(8)
	require.NoError(t, w.WriteIndex(0x1234, 2))
	require.NoError(t, w.WriteIndex(0x12345678, 4))
	assert.ErrorIs(t, w.WriteIndex(0x10000, 2), ErrValueTooLarge)
	assert.ErrorIs(t, w.WriteIndex(1, 3), ErrInvalidWidth)

	r := NewReader(w.Bytes())
	v, err := r.ReadIndex(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), v)
	v, err = r.ReadIndex(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)
	_, err = r.ReadIndex(2)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestCStringAndAlign(t *testing.T) {
	w := NewWriter(0)
	w.WriteCString("#~")
	w.Align(4)
	w.WriteCString("#Strings")
	w.Align(4)
	assert.Equal(t, 16, w.Len())

	r := NewReader(w.Bytes())
	s, err := r.ReadCString()
	require.NoError(t, err)
	assert.Equal(t, "#~", s)
	r.Align(4)
	s, err = r.ReadCString()
	require.NoError(t, err)
	assert.Equal(t, "#Strings", s)

	_, err = NewReader([]byte("abc")).ReadCString()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}
