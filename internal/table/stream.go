package table

import (
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"github.com/skdltmxn/ilmeta/internal/stream"
)

// streamHeaderSize is the fixed part of the #~ header before the row counts.
const streamHeaderSize = 24

// Heaps groups the heaps a row decoder range-checks against. Any of them
// may be nil, in which case indexes into that heap are not checked.
type Heaps struct {
	Strings     *StringHeap
	Blobs       *BlobHeap
	GUIDs       *GUIDHeap
	UserStrings *UserStringHeap
}

// Stream is a parsed #~ table stream.
type Stream struct {
	Reserved  uint32
	Major     uint8
	Minor     uint8
	Reserved2 uint8
	Valid     uint64
	Sorted    uint64
	ExtraData uint32
	Layout    *Layout
	Heaps     Heaps

	// Dropped lists undocumented or unreachable kinds whose rows were skipped.
	Dropped []Kind

	tables [MaxKinds][]byte
}

// ParseOptions controls how tolerant ParseStream is.
type ParseOptions struct {
	// CoreBoundary is the last kind for which an undocumented table is
	// fatal. Zero selects DefaultCoreBoundary.
	CoreBoundary Kind
}

// ParseStream parses the #~ (or #-) table stream.
func ParseStream(data []byte, opts ParseOptions) (*Stream, error) {
	if len(data) < streamHeaderSize {
		return nil, fmt.Errorf("%w: table stream header truncated", ErrMalformedTable)
	}
	boundary := opts.CoreBoundary
	if boundary == 0 {
		boundary = DefaultCoreBoundary
	}

	r := stream.NewReader(data)
	s := &Stream{}
	s.Reserved, _ = r.ReadU32()
	s.Major, _ = r.ReadU8()
	s.Minor, _ = r.ReadU8()
	heapFlags, _ := r.ReadU8()
	s.Reserved2, _ = r.ReadU8()
	s.Valid, _ = r.ReadU64()
	s.Sorted, _ = r.ReadU64()

	var counts [MaxKinds]uint32
	for k := 0; k < MaxKinds; k++ {
		if s.Valid&(1<<k) == 0 {
			continue
		}
		n, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: row counts truncated", ErrMalformedTable)
		}
		if n > MaxOrdinal {
			return nil, &RowError{Kind: Kind(k), Message: fmt.Sprintf("row count %d exceeds token range", n)}
		}
		counts[k] = n
	}
	if HeapSizes(heapFlags)&HeapExtraData != 0 {
		extra, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: extra data truncated", ErrMalformedTable)
		}
		s.ExtraData = extra
	}

	for k := 0; k < MaxKinds; k++ {
		if counts[k] == 0 || schemas[k] != nil {
			continue
		}
		if Kind(k) <= boundary {
			return nil, fmt.Errorf("%w: undocumented table %s has %d rows",
				ErrMalformedTable, Kind(k), counts[k])
		}
		// row size unknown: nothing at or after this kind can be located
		for j := k; j < MaxKinds; j++ {
			if counts[j] != 0 {
				s.Dropped = append(s.Dropped, Kind(j))
				counts[j] = 0
			}
		}
		Logger().Warn("dropping undocumented metadata tables",
			zap.Stringer("first", Kind(k)), zap.Int("dropped", len(s.Dropped)))
		break
	}

	s.Layout = ComputeLayout(HeapSizes(heapFlags), counts)
	for k := 0; k < MaxKinds; k++ {
		size := s.Layout.TableSize(Kind(k))
		if size == 0 {
			continue
		}
		region, err := r.ReadBytesRef(size)
		if err != nil {
			return nil, &RowError{Kind: Kind(k), Message: fmt.Sprintf(
				"table data truncated: need %d bytes, have %d", size, r.Remaining())}
		}
		s.tables[k] = region
	}

	Logger().Debug("parsed table stream",
		zap.Uint8("major", s.Major), zap.Uint8("minor", s.Minor),
		zap.Int("tables", bits.OnesCount64(s.Valid)))
	return s, nil
}

// AttachHeaps makes subsequent decodes range-check heap indexes and
// resolve blob content offsets.
func (s *Stream) AttachHeaps(h Heaps) {
	s.Heaps = h
}

// RowCount returns the number of rows of kind k.
func (s *Stream) RowCount(k Kind) uint32 {
	return s.Layout.Count(k)
}

// IsSorted reports whether the header marks kind k as sorted.
func (s *Stream) IsSorted(k Kind) bool {
	return int(k) < MaxKinds && s.Sorted&(1<<k) != 0
}

// TableData returns the raw region of kind k.
func (s *Stream) TableData(k Kind) []byte {
	if int(k) >= MaxKinds {
		return nil
	}
	return s.tables[k]
}

// RowBytes returns the packed bytes of one row.
func (s *Stream) RowBytes(k Kind, ordinal uint32) ([]byte, error) {
	if ordinal == 0 || ordinal > s.RowCount(k) {
		return nil, fmt.Errorf("%w: %s row %d of %d", ErrRowOutOfRange, k, ordinal, s.RowCount(k))
	}
	size := s.Layout.RowSize(k)
	start := int(ordinal-1) * size
	return s.tables[k][start : start+size], nil
}

// Bytes serializes the stream header and every table region.
func (s *Stream) Bytes() []byte {
	w := stream.NewWriter(streamHeaderSize + 4*bits.OnesCount64(s.Valid))
	w.WriteU32(s.Reserved)
	w.WriteU8(s.Major)
	w.WriteU8(s.Minor)
	w.WriteU8(uint8(s.Layout.Heaps))
	w.WriteU8(s.Reserved2)
	w.WriteU64(s.Valid)
	w.WriteU64(s.Sorted)
	for k := 0; k < MaxKinds; k++ {
		if s.Valid&(1<<k) != 0 {
			w.WriteU32(s.Layout.Counts[k])
		}
	}
	if s.Layout.Heaps&HeapExtraData != 0 {
		w.WriteU32(s.ExtraData)
	}
	for k := 0; k < MaxKinds; k++ {
		w.WriteBytes(s.tables[k])
	}
	w.Align(4)
	return w.Bytes()
}

// StreamBuilder assembles a table stream from decoded rows.
type StreamBuilder struct {
	Major  uint8
	Minor  uint8
	Heaps  HeapSizes
	Sorted uint64

	rows [MaxKinds][]Row
}

// NewStreamBuilder returns a builder for a version 2.0 table stream.
func NewStreamBuilder() *StreamBuilder {
	return &StreamBuilder{Major: 2}
}

// Add appends a row and returns its token.
func (b *StreamBuilder) Add(row Row) Token {
	b.rows[row.Kind] = append(b.rows[row.Kind], row)
	return MakeToken(row.Kind, uint32(len(b.rows[row.Kind])))
}

// Count returns the number of rows added for kind k.
func (b *StreamBuilder) Count(k Kind) uint32 {
	return uint32(len(b.rows[k]))
}

// Build computes the layout from the final row counts and encodes every
// row with it.
func (b *StreamBuilder) Build() (*Stream, error) {
	var counts [MaxKinds]uint32
	s := &Stream{Major: b.Major, Minor: b.Minor, Reserved2: 1, Sorted: b.Sorted}
	for k := range b.rows {
		if len(b.rows[k]) > MaxOrdinal {
			return nil, fmt.Errorf("%w: too many %s rows", ErrMalformedTable, Kind(k))
		}
		counts[k] = uint32(len(b.rows[k]))
		if counts[k] > 0 {
			s.Valid |= 1 << k
		}
	}
	s.Layout = ComputeLayout(b.Heaps, counts)
	for k, rows := range b.rows {
		if len(rows) == 0 {
			continue
		}
		buf := make([]byte, 0, s.Layout.TableSize(Kind(k)))
		for _, row := range rows {
			var err error
			if buf, err = AppendRow(buf, s.Layout, row); err != nil {
				return nil, err
			}
		}
		s.tables[k] = buf
	}
	return s, nil
}
