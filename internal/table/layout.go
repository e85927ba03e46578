package table

// HeapSizes is the heap-size flag byte of the #~ header.
type HeapSizes uint8

// Heap size flags.
const (
	HeapStringWide HeapSizes = 0x01
	HeapGUIDWide   HeapSizes = 0x02
	HeapBlobWide   HeapSizes = 0x04
	HeapExtraData  HeapSizes = 0x40
)

// HeapSizesFor returns the flags needed to address heaps of the given sizes.
func HeapSizesFor(stringBytes, guidCount, blobBytes uint32) HeapSizes {
	var h HeapSizes
	if stringBytes > 0xFFFF {
		h |= HeapStringWide
	}
	if guidCount > 0xFFFF {
		h |= HeapGUIDWide
	}
	if blobBytes > 0xFFFF {
		h |= HeapBlobWide
	}
	return h
}

// Layout holds the byte width of every column for one set of row counts.
// A layout is a snapshot: if row counts change it must be recomputed
// before encoding, or references to grown tables will not be widened.
type Layout struct {
	Heaps  HeapSizes
	Counts [MaxKinds]uint32

	widths  [MaxKinds][]int
	rowSize [MaxKinds]int
}

// ComputeLayout derives column widths from heap flags and row counts.
func ComputeLayout(heaps HeapSizes, counts [MaxKinds]uint32) *Layout {
	l := &Layout{Heaps: heaps, Counts: counts}
	for k, s := range schemas {
		if s == nil {
			continue
		}
		widths := make([]int, len(s.Columns))
		size := 0
		for i, c := range s.Columns {
			widths[i] = l.columnWidth(c)
			size += widths[i]
		}
		l.widths[k] = widths
		l.rowSize[k] = size
	}
	return l
}

func (l *Layout) columnWidth(c Column) int {
	switch c.Type {
	case ColU16:
		return 2
	case ColU32:
		return 4
	case ColString:
		return l.heapWidth(HeapStringWide)
	case ColBlob:
		return l.heapWidth(HeapBlobWide)
	case ColGUID:
		return l.heapWidth(HeapGUIDWide)
	case ColTable:
		if l.Counts[c.Target] > 0xFFFF {
			return 4
		}
		return 2
	case ColList:
		// count+1 marks "no children" and must fit as well
		if l.Counts[c.Target] > 0xFFFE {
			return 4
		}
		return 2
	case ColCoded:
		if c.Coded.wide(&l.Counts) {
			return 4
		}
		return 2
	}
	return 0
}

func (l *Layout) heapWidth(flag HeapSizes) int {
	if l.Heaps&flag != 0 {
		return 4
	}
	return 2
}

// Count returns the row count of kind k.
func (l *Layout) Count(k Kind) uint32 {
	if int(k) >= MaxKinds {
		return 0
	}
	return l.Counts[k]
}

// RowSize returns the encoded size of one row of kind k.
func (l *Layout) RowSize(k Kind) int {
	if int(k) >= MaxKinds {
		return 0
	}
	return l.rowSize[k]
}

// ColumnWidth returns the encoded width of column col of kind k.
func (l *Layout) ColumnWidth(k Kind, col int) int {
	if int(k) >= MaxKinds || col < 0 || col >= len(l.widths[k]) {
		return 0
	}
	return l.widths[k][col]
}

// TableSize returns the size of the whole region of kind k.
func (l *Layout) TableSize(k Kind) int {
	return l.RowSize(k) * int(l.Count(k))
}
