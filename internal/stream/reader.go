// Package stream provides little-endian reading and writing of the
// primitive encodings used by metadata roots, table rows and heaps.
package stream

import (
	"encoding/binary"
	"errors"
)

var (
	ErrUnexpectedEOF   = errors.New("stream: unexpected end of data")
	ErrInvalidCompress = errors.New("stream: invalid compressed integer")
	ErrInvalidWidth    = errors.New("stream: invalid index width")
)

// Reader is a cursor over a byte slice. Failed reads leave the cursor
// where it was.
type Reader struct {
	data   []byte
	offset int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current read position.
func (r *Reader) Offset() int { return r.offset }

// Data returns the whole underlying slice.
func (r *Reader) Data() []byte { return r.data }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return max(len(r.data)-r.offset, 0)
}

// Align advances the position to the next multiple of alignment.
func (r *Reader) Align(alignment int) {
	if alignment > 1 {
		if mod := r.offset % alignment; mod != 0 {
			r.offset += alignment - mod
		}
	}
}

// take consumes n bytes and returns them without copying.
func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, ErrUnexpectedEOF
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PeekU8 returns the next byte without consuming it.
func (r *Reader) PeekU8() (uint8, error) {
	if r.Remaining() == 0 {
		return 0, ErrUnexpectedEOF
	}
	return r.data[r.offset], nil
}

// ReadIndex reads a heap or table index that is 2 or 4 bytes wide.
func (r *Reader) ReadIndex(width int) (uint32, error) {
	switch width {
	case 2:
		v, err := r.ReadU16()
		return uint32(v), err
	case 4:
		return r.ReadU32()
	}
	return 0, ErrInvalidWidth
}

// ReadCompressedU32 reads a compressed unsigned integer. The high bits of
// the first byte select a 1, 2 or 4 byte encoding.
func (r *Reader) ReadCompressedU32() (uint32, error) {
	b0, err := r.PeekU8()
	if err != nil {
		return 0, err
	}
	var n int
	switch {
	case b0&0x80 == 0:
		n = 1
	case b0&0xC0 == 0x80:
		n = 2
	case b0&0xE0 == 0xC0:
		n = 4
	default:
		return 0, ErrInvalidCompress
	}
	b, err := r.take(n)
	if err != nil {
		return 0, err
	}
	switch n {
	case 1:
		return uint32(b[0]), nil
	case 2:
		return uint32(b[0]&0x3F)<<8 | uint32(b[1]), nil
	}
	return uint32(b[0]&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// ReadCompressedI32 reads a compressed signed integer: the unsigned form
// rotated left by one with the sign in bit 0.
func (r *Reader) ReadCompressedI32() (int32, error) {
	start := r.offset
	u, err := r.ReadCompressedU32()
	if err != nil {
		return 0, err
	}
	v := int32(u >> 1)
	if u&1 == 0 {
		return v, nil
	}
	switch r.offset - start {
	case 1:
		return v - 0x40, nil
	case 2:
		return v - 0x2000, nil
	}
	return v - 0x10000000, nil
}

// ReadBytesRef returns the next n bytes. The slice aliases the reader's
// data.
func (r *Reader) ReadBytesRef(n int) ([]byte, error) {
	return r.take(n)
}

// ReadCString reads a null-terminated string.
func (r *Reader) ReadCString() (string, error) {
	for i := r.offset; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.offset:i])
			r.offset = i + 1
			return s, nil
		}
	}
	return "", ErrUnexpectedEOF
}
