package table

import (
	"fmt"
	"unicode/utf16"

	"fortio.org/safecast"

	"github.com/skdltmxn/ilmeta/internal/stream"
)

// StringHeap reads null-terminated UTF-8 strings from the #Strings heap.
type StringHeap struct {
	data []byte
}

// NewStringHeap wraps the raw #Strings stream.
func NewStringHeap(data []byte) *StringHeap {
	return &StringHeap{data: data}
}

// Size returns the heap size in bytes.
func (h *StringHeap) Size() int {
	if h == nil {
		return 0
	}
	return len(h.data)
}

// Get returns the string at offset. Offset 0 is the empty string.
func (h *StringHeap) Get(offset uint32) (string, error) {
	if offset == 0 {
		return "", nil
	}
	if h == nil || int64(offset) >= int64(len(h.data)) {
		return "", fmt.Errorf("%w: string offset 0x%X", ErrHeapRange, offset)
	}
	s, err := stream.NewReader(h.data[offset:]).ReadCString()
	if err != nil {
		return "", fmt.Errorf("%w: unterminated string at 0x%X", ErrHeapRange, offset)
	}
	return s, nil
}

// Data returns the raw heap bytes.
func (h *StringHeap) Data() []byte {
	if h == nil {
		return nil
	}
	return h.data
}

// BlobHeap reads length-prefixed entries from the #Blob heap.
type BlobHeap struct {
	data []byte
}

// NewBlobHeap wraps the raw #Blob stream.
func NewBlobHeap(data []byte) *BlobHeap {
	return &BlobHeap{data: data}
}

// Size returns the heap size in bytes.
func (h *BlobHeap) Size() int {
	if h == nil {
		return 0
	}
	return len(h.data)
}

// Entry returns the content offset and length of the blob at index.
// Index 0 is the empty blob.
func (h *BlobHeap) Entry(index uint32) (offset, length uint32, err error) {
	if index == 0 {
		return 0, 0, nil
	}
	if h == nil || int64(index) >= int64(len(h.data)) {
		return 0, 0, fmt.Errorf("%w: blob index 0x%X", ErrHeapRange, index)
	}
	r := stream.NewReader(h.data[index:])
	length, err = r.ReadCompressedU32()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: blob length at 0x%X: %v", ErrHeapRange, index, err)
	}
	prefix, err := safecast.Conv[uint32](r.Offset())
	if err != nil {
		return 0, 0, err
	}
	offset = index + prefix
	if int64(offset)+int64(length) > int64(len(h.data)) {
		return 0, 0, fmt.Errorf("%w: blob at 0x%X overruns heap", ErrHeapRange, index)
	}
	return offset, length, nil
}

// Get returns the content of the blob at index without copying.
func (h *BlobHeap) Get(index uint32) ([]byte, error) {
	offset, length, err := h.Entry(index)
	if err != nil || length == 0 {
		return nil, err
	}
	return h.data[offset : offset+length], nil
}

// Data returns the raw heap bytes.
func (h *BlobHeap) Data() []byte {
	if h == nil {
		return nil
	}
	return h.data
}

// GUIDHeap reads 16-byte entries from the #GUID heap. Indexes are 1-based.
type GUIDHeap struct {
	data []byte
}

// NewGUIDHeap wraps the raw #GUID stream.
func NewGUIDHeap(data []byte) *GUIDHeap {
	return &GUIDHeap{data: data}
}

// Count returns the number of GUIDs in the heap.
func (h *GUIDHeap) Count() int {
	if h == nil {
		return 0
	}
	return len(h.data) / 16
}

// Get returns the GUID at index. Index 0 is the zero GUID.
func (h *GUIDHeap) Get(index uint32) ([16]byte, error) {
	var g [16]byte
	if index == 0 {
		return g, nil
	}
	if int64(index) > int64(h.Count()) {
		return g, fmt.Errorf("%w: guid index %d", ErrHeapRange, index)
	}
	copy(g[:], h.data[(index-1)*16:])
	return g, nil
}

// Data returns the raw heap bytes.
func (h *GUIDHeap) Data() []byte {
	if h == nil {
		return nil
	}
	return h.data
}

// UserStringHeap reads UTF-16 string literals from the #US heap.
type UserStringHeap struct {
	blobs BlobHeap
}

// NewUserStringHeap wraps the raw #US stream.
func NewUserStringHeap(data []byte) *UserStringHeap {
	return &UserStringHeap{blobs: BlobHeap{data: data}}
}

// Get decodes the string literal at index.
func (h *UserStringHeap) Get(index uint32) (string, error) {
	if h == nil {
		return "", fmt.Errorf("%w: no user string heap", ErrHeapRange)
	}
	b, err := h.blobs.Get(index)
	if err != nil {
		return "", err
	}
	// trailing byte is a flag, not part of the text
	n := len(b) &^ 1
	units := make([]uint16, n/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}

// Data returns the raw heap bytes.
func (h *UserStringHeap) Data() []byte {
	if h == nil {
		return nil
	}
	return h.blobs.data
}

// StringHeapBuilder accumulates a deduplicated #Strings heap.
type StringHeapBuilder struct {
	buf   []byte
	index map[string]uint32
}

// NewStringHeapBuilder returns a builder holding only the empty string.
func NewStringHeapBuilder() *StringHeapBuilder {
	return &StringHeapBuilder{buf: []byte{0}, index: make(map[string]uint32)}
}

// Add interns s and returns its offset.
func (b *StringHeapBuilder) Add(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	if off, ok := b.index[s]; ok {
		return off, nil
	}
	off, err := safecast.Conv[uint32](len(b.buf))
	if err != nil {
		return 0, err
	}
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	b.index[s] = off
	return off, nil
}

// Bytes returns the heap padded to a 4-byte boundary.
func (b *StringHeapBuilder) Bytes() []byte {
	return pad4(b.buf)
}

// BlobHeapBuilder accumulates a deduplicated #Blob heap.
type BlobHeapBuilder struct {
	buf   []byte
	index map[string]uint32
}

// NewBlobHeapBuilder returns a builder holding only the empty blob.
func NewBlobHeapBuilder() *BlobHeapBuilder {
	return &BlobHeapBuilder{buf: []byte{0}, index: make(map[string]uint32)}
}

// Add interns data and returns its index together with the content
// offset and length, matching the three values a blob column decodes to.
func (b *BlobHeapBuilder) Add(data []byte) (index, offset, length uint32, err error) {
	if len(data) == 0 {
		return 0, 0, 0, nil
	}
	length, err = safecast.Conv[uint32](len(data))
	if err != nil {
		return 0, 0, 0, err
	}
	if idx, ok := b.index[string(data)]; ok {
		return idx, idx + compressedSize(length), length, nil
	}
	index, err = safecast.Conv[uint32](len(b.buf))
	if err != nil {
		return 0, 0, 0, err
	}
	w := stream.NewWriter(len(data) + 4)
	if err := w.WriteCompressedU32(length); err != nil {
		return 0, 0, 0, err
	}
	w.WriteBytes(data)
	b.buf = append(b.buf, w.Bytes()...)
	b.index[string(data)] = index
	return index, index + compressedSize(length), length, nil
}

// Bytes returns the heap padded to a 4-byte boundary.
func (b *BlobHeapBuilder) Bytes() []byte {
	return pad4(b.buf)
}

// GUIDHeapBuilder accumulates a deduplicated #GUID heap.
type GUIDHeapBuilder struct {
	buf   []byte
	index map[[16]byte]uint32
}

// NewGUIDHeapBuilder returns an empty builder.
func NewGUIDHeapBuilder() *GUIDHeapBuilder {
	return &GUIDHeapBuilder{index: make(map[[16]byte]uint32)}
}

// Add interns g and returns its 1-based index.
func (b *GUIDHeapBuilder) Add(g [16]byte) (uint32, error) {
	if idx, ok := b.index[g]; ok {
		return idx, nil
	}
	idx, err := safecast.Conv[uint32](len(b.buf)/16 + 1)
	if err != nil {
		return 0, err
	}
	b.buf = append(b.buf, g[:]...)
	b.index[g] = idx
	return idx, nil
}

// Count returns the number of GUIDs added.
func (b *GUIDHeapBuilder) Count() int {
	return len(b.buf) / 16
}

// Bytes returns the heap contents.
func (b *GUIDHeapBuilder) Bytes() []byte {
	return b.buf
}

// UserStringHeapBuilder accumulates a #US heap.
type UserStringHeapBuilder struct {
	blobs *BlobHeapBuilder
}

// NewUserStringHeapBuilder returns a builder holding only the empty entry.
func NewUserStringHeapBuilder() *UserStringHeapBuilder {
	return &UserStringHeapBuilder{blobs: NewBlobHeapBuilder()}
}

// Add stores s as UTF-16 plus the trailing flag byte and returns its index.
func (b *UserStringHeapBuilder) Add(s string) (uint32, error) {
	units := utf16.Encode([]rune(s))
	data := make([]byte, 0, len(units)*2+1)
	var special byte
	for _, u := range units {
		data = append(data, byte(u), byte(u>>8))
		if needsUserStringFlag(u) {
			special = 1
		}
	}
	data = append(data, special)
	index, _, _, err := b.blobs.Add(data)
	return index, err
}

// Bytes returns the heap padded to a 4-byte boundary.
func (b *UserStringHeapBuilder) Bytes() []byte {
	return b.blobs.Bytes()
}

func needsUserStringFlag(u uint16) bool {
	if u>>8 != 0 {
		return true
	}
	c := byte(u)
	return (c >= 0x01 && c <= 0x08) || (c >= 0x0E && c <= 0x1F) || c == 0x27 || c == 0x2D || c == 0x7F
}

func compressedSize(v uint32) uint32 {
	switch {
	case v <= 0x7F:
		return 1
	case v <= 0x3FFF:
		return 2
	default:
		return 4
	}
}

func pad4(b []byte) []byte {
	out := make([]byte, len(b), (len(b)+3)&^3)
	copy(out, b)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}
