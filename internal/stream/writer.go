package stream

import (
	"encoding/binary"
	"errors"
)

// ErrValueTooLarge is returned when a value does not fit its encoding.
var ErrValueTooLarge = errors.New("stream: value too large for encoding")

// Writer accumulates little-endian binary data.
type Writer struct {
	buf []byte
}

// NewWriter creates a Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written data.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteU8 appends one byte.
func (w *Writer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteU16 appends an unsigned 16-bit integer.
func (w *Writer) WriteU16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteU32 appends an unsigned 32-bit integer.
func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteU64 appends an unsigned 64-bit integer.
func (w *Writer) WriteU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteIndex appends an index in 2 or 4 bytes.
func (w *Writer) WriteIndex(v uint32, width int) error {
	switch width {
	case 2:
		if v > 0xFFFF {
			return ErrValueTooLarge
		}
		w.WriteU16(uint16(v))
	case 4:
		w.WriteU32(v)
	default:
		return ErrInvalidWidth
	}
	return nil
}

// WriteCompressedU32 appends an ECMA-335 compressed unsigned integer.
func (w *Writer) WriteCompressedU32(v uint32) error {
	switch {
	case v <= 0x7F:
		w.buf = append(w.buf, byte(v))
	case v <= 0x3FFF:
		w.buf = append(w.buf, byte(v>>8)|0x80, byte(v))
	case v <= 0x1FFFFFFF:
		w.buf = append(w.buf, byte(v>>24)|0xC0, byte(v>>16), byte(v>>8), byte(v))
	default:
		return ErrValueTooLarge
	}
	return nil
}

// WriteCompressedI32 appends an ECMA-335 compressed signed integer.
func (w *Writer) WriteCompressedI32(v int32) error {
	var sign uint32
	if v < 0 {
		sign = 1
	}
	switch {
	case v >= -0x40 && v < 0x40:
		w.buf = append(w.buf, byte((uint32(v)<<1)&0x7E|sign))
	case v >= -0x2000 && v < 0x2000:
		u := (uint32(v)<<1)&0x3FFE | sign
		w.buf = append(w.buf, byte(u>>8)|0x80, byte(u))
	case v >= -0x10000000 && v < 0x10000000:
		u := (uint32(v)<<1)&0x1FFFFFFE | sign
		w.buf = append(w.buf, byte(u>>24)|0xC0, byte(u>>16), byte(u>>8), byte(u))
	default:
		return ErrValueTooLarge
	}
	return nil
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteCString appends a string followed by a null terminator.
func (w *Writer) WriteCString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Align pads with zero bytes up to the given boundary.
func (w *Writer) Align(alignment int) {
	if alignment <= 1 {
		return
	}
	for len(w.buf)%alignment != 0 {
		w.buf = append(w.buf, 0)
	}
}
