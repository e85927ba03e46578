package table

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/ilmeta/internal/stream"
)

func uniformCounts(n uint32) [MaxKinds]uint32 {
	var counts [MaxKinds]uint32
	for _, k := range Kinds() {
		counts[k] = n
	}
	return counts
}

// randomRow builds a row whose every reference is valid under l.
func randomRow(rng *rand.Rand, l *Layout, k Kind) Row {
	sc := SchemaFor(k)
	row := NewRow(k)
	for i, c := range sc.Columns {
		wide := l.ColumnWidth(k, i) == 4
		limit := uint32(0xFFFF)
		if wide {
			limit = 0xFFFFFFFF
		}
		switch c.Type {
		case ColU16:
			row.Set(i, rng.Uint32N(0x10000))
		case ColU32:
			row.Set(i, rng.Uint32())
		case ColString, ColGUID:
			row.Set(i, rng.Uint32N(limit))
		case ColBlob:
			row.SetBlob(i, rng.Uint32N(limit), 0, 0)
		case ColTable:
			row.SetToken(i, MakeToken(c.Target, rng.Uint32N(l.Count(c.Target)+1)))
		case ColList:
			row.SetToken(i, MakeToken(c.Target, rng.Uint32N(l.Count(c.Target)+1)))
		case ColCoded:
			var kinds []Kind
			for _, tk := range c.Coded.Tables {
				if tk != kindUnused {
					kinds = append(kinds, tk)
				}
			}
			target := kinds[rng.IntN(len(kinds))]
			max := l.Count(target)
			if !wide && max > 0xFFFF>>c.Coded.Bits {
				max = 0xFFFF >> c.Coded.Bits
			}
			row.SetToken(i, MakeToken(target, rng.Uint32N(max+1)))
		}
	}
	return row
}

func TestRowRoundTrip(t *testing.T) {
	layouts := map[string]*Layout{
		"narrow":       ComputeLayout(0, uniformCounts(40)),
		"wide heaps":   ComputeLayout(HeapStringWide|HeapGUIDWide|HeapBlobWide, uniformCounts(40)),
		"coded wide":   ComputeLayout(0, uniformCounts(0x2000)),
		"all wide":     ComputeLayout(HeapStringWide|HeapGUIDWide|HeapBlobWide, uniformCounts(0x10001)),
		"list only":    ComputeLayout(HeapBlobWide, uniformCounts(0xFFFF)),
		"mixed counts": ComputeLayout(HeapStringWide, mixedCounts()),
	}

	rng := rand.New(rand.NewPCG(7, 11))
	for name, l := range layouts {
		t.Run(name, func(t *testing.T) {
			for _, k := range Kinds() {
				for n := 0; n < 25; n++ {
					row := randomRow(rng, l, k)
					packed, err := EncodeRow(l, row)
					require.NoError(t, err, "%s", k)
					require.Len(t, packed, l.RowSize(k))

					decoded, err := DecodeRowBytes(l, k, packed)
					require.NoError(t, err, "%s", k)
					assert.Equal(t, row.Values, decoded.Values, "%s", k)

					again, err := EncodeRow(l, decoded)
					require.NoError(t, err)
					assert.Equal(t, packed, again, "%s bytes differ after round trip", k)
				}
			}
		})
	}
}

func mixedCounts() [MaxKinds]uint32 {
	counts := uniformCounts(3)
	counts[KindTypeRef] = 0x4000
	counts[KindField] = 0xFFFF
	counts[KindMethodDef] = 0x8000
	counts[KindParam] = 0x10000
	return counts
}

func TestColumnWidths(t *testing.T) {
	var counts [MaxKinds]uint32
	counts[KindField] = 0xFFFE
	l := ComputeLayout(0, counts)
	assert.Equal(t, 2, l.ColumnWidth(KindTypeDef, TypeDefFieldList))
	assert.Equal(t, 2, l.ColumnWidth(KindFieldLayout, FieldLayoutField))

	counts[KindField] = 0xFFFF
	l = ComputeLayout(0, counts)
	assert.Equal(t, 4, l.ColumnWidth(KindTypeDef, TypeDefFieldList), "sentinel needs a wider list index")
	assert.Equal(t, 2, l.ColumnWidth(KindFieldLayout, FieldLayoutField))

	counts = [MaxKinds]uint32{}
	counts[KindTypeSpec] = 0x1FFF
	l = ComputeLayout(0, counts)
	assert.Equal(t, 2, l.ColumnWidth(KindTypeDef, TypeDefExtends))
	assert.Equal(t, 2, l.ColumnWidth(KindMemberRef, MemberRefClass))

	// MemberRefParent has 3 tag bits, TypeDefOrRef only 2
	counts[KindTypeSpec] = 0x2000
	l = ComputeLayout(0, counts)
	assert.Equal(t, 2, l.ColumnWidth(KindTypeDef, TypeDefExtends))
	assert.Equal(t, 4, l.ColumnWidth(KindMemberRef, MemberRefClass))

	counts[KindTypeSpec] = 0x4000
	l = ComputeLayout(0, counts)
	assert.Equal(t, 4, l.ColumnWidth(KindTypeDef, TypeDefExtends))
	assert.Equal(t, 2, l.ColumnWidth(KindMethodSpec, MethodSpecMethod))

	l = ComputeLayout(HeapStringWide, [MaxKinds]uint32{})
	assert.Equal(t, 4+4+4+2+2+2, l.RowSize(KindTypeDef))
}

func TestLayoutIsSnapshot(t *testing.T) {
	var counts [MaxKinds]uint32
	counts[KindTypeDef] = 1
	counts[KindField] = 10
	before := ComputeLayout(0, counts)

	row := NewRow(KindFieldLayout)
	row.Set(FieldLayoutOffset, 8)
	row.SetToken(FieldLayoutField, MakeToken(KindField, 7))
	early, err := EncodeRow(before, row)
	require.NoError(t, err)
	assert.Len(t, early, 6)

	// the field table grows after widths were chosen
	counts[KindField] = 0x10005
	row.SetToken(FieldLayoutField, MakeToken(KindField, 0x10002))
	_, err = EncodeRow(before, row)
	assert.ErrorIs(t, err, ErrMalformedTable, "stale layout cannot address grown table")

	after := ComputeLayout(0, counts)
	late, err := EncodeRow(after, row)
	require.NoError(t, err)
	assert.Len(t, late, 8)
	assert.Len(t, early, 6, "rows encoded earlier keep their width")
}

func TestDecodeRejectsBadReferences(t *testing.T) {
	var counts [MaxKinds]uint32
	counts[KindTypeDef] = 2
	counts[KindField] = 4
	counts[KindMethodDef] = 1
	l := ComputeLayout(0, counts)

	pack := func(vals ...uint16) []byte {
		w := stream.NewWriter(16)
		for _, v := range vals {
			w.WriteU16(v)
		}
		return w.Bytes()
	}

	// TypeDef: flags(u32) name ns extends fields methods
	good := append([]byte{0, 0, 0, 0}, pack(0, 0, 0, 5, 2)...)
	row, err := DecodeRowBytes(l, KindTypeDef, good)
	require.NoError(t, err)
	assert.True(t, row.Token(TypeDefFieldList).IsNil(), "count+1 means no fields")
	assert.Equal(t, MakeToken(KindTypeDef, 0), row.Token(TypeDefExtends))

	badList := append([]byte{0, 0, 0, 0}, pack(0, 0, 0, 6, 1)...)
	_, err = DecodeRowBytes(l, KindTypeDef, badList)
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "FieldList", rowErr.Column)
	assert.ErrorIs(t, err, ErrMalformedTable)

	zeroList := append([]byte{0, 0, 0, 0}, pack(0, 0, 0, 0, 1)...)
	_, err = DecodeRowBytes(l, KindTypeDef, zeroList)
	assert.ErrorIs(t, err, ErrMalformedTable)

	// extends = TypeDef#3 (tag 0, index 3) with only 2 rows
	badExtends := append([]byte{0, 0, 0, 0}, pack(0, 0, 3<<2, 1, 1)...)
	_, err = DecodeRowBytes(l, KindTypeDef, badExtends)
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "Extends", rowErr.Column)

	// tag 3 is unused in TypeDefOrRef
	badTag := append([]byte{0, 0, 0, 0}, pack(0, 0, 1<<2|3, 1, 1)...)
	_, err = DecodeRowBytes(l, KindTypeDef, badTag)
	assert.ErrorIs(t, err, ErrMalformedTable)

	_, err = DecodeRowBytes(l, KindTypeDef, good[:7])
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "row truncated", rowErr.Message)
}

func TestDecodeChecksHeaps(t *testing.T) {
	strs := NewStringHeapBuilder()
	nameOff, err := strs.Add("Program")
	require.NoError(t, err)
	blobs := NewBlobHeapBuilder()
	sigIdx, sigOff, sigLen, err := blobs.Add([]byte{0x06, 0x08})
	require.NoError(t, err)

	b := NewStreamBuilder()
	field := NewRow(KindField)
	field.Set(FieldName, nameOff)
	field.SetBlob(FieldSignature, sigIdx, sigOff, sigLen)
	b.Add(field)
	bad := NewRow(KindField)
	bad.Set(FieldName, 0x400)
	b.Add(bad)
	s, err := b.Build()
	require.NoError(t, err)

	s.AttachHeaps(Heaps{Strings: NewStringHeap(strs.Bytes()), Blobs: NewBlobHeap(blobs.Bytes())})
	row, err := s.DecodeRow(KindField, 1)
	require.NoError(t, err)
	idx, off, length := row.Blob(FieldSignature)
	assert.Equal(t, sigIdx, idx)
	assert.Equal(t, sigIdx+1, off)
	assert.Equal(t, uint32(2), length)

	_, err = s.DecodeRow(KindField, 2)
	assert.ErrorIs(t, err, ErrMalformedTable)

	_, err = s.DecodeRow(KindField, 3)
	assert.ErrorIs(t, err, ErrRowOutOfRange)
}

func TestStreamRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	b := NewStreamBuilder()
	b.Heaps = HeapBlobWide

	var counts [MaxKinds]uint32
	for _, k := range []Kind{KindModule, KindTypeRef, KindTypeDef, KindField, KindMethodDef,
		KindParam, KindMemberRef, KindCustomAttribute, KindAssemblyRef, KindGenericParam} {
		counts[k] = uint32(3 + rng.IntN(5))
	}
	l := ComputeLayout(b.Heaps, counts)
	for k, n := range counts {
		for i := uint32(0); i < n; i++ {
			b.Add(randomRow(rng, l, Kind(k)))
		}
	}
	b.Sorted = 1 << KindCustomAttribute

	s, err := b.Build()
	require.NoError(t, err)
	data := s.Bytes()

	parsed, err := ParseStream(data, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, s.Valid, parsed.Valid)
	assert.True(t, parsed.IsSorted(KindCustomAttribute))
	for k, n := range counts {
		require.Equal(t, n, parsed.RowCount(Kind(k)))
		for i := uint32(1); i <= n; i++ {
			want, err := s.DecodeRow(Kind(k), i)
			require.NoError(t, err)
			got, err := parsed.DecodeRow(Kind(k), i)
			require.NoError(t, err)
			assert.Equal(t, want.Values, got.Values)
		}
	}
	assert.Equal(t, data, parsed.Bytes())
}

func rawHeader(valid uint64, counts []uint32, body int) []byte {
	w := stream.NewWriter(64)
	w.WriteU32(0)
	w.WriteU8(2)
	w.WriteU8(0)
	w.WriteU8(0)
	w.WriteU8(1)
	w.WriteU64(valid)
	w.WriteU64(0)
	for _, c := range counts {
		w.WriteU32(c)
	}
	w.WriteBytes(make([]byte, body))
	return w.Bytes()
}

func TestUndocumentedTables(t *testing.T) {
	// FieldPtr is below the core boundary
	data := rawHeader(1<<0x03|1<<KindModule, []uint32{1, 1}, 64)
	_, err := ParseStream(data, ParseOptions{})
	assert.ErrorIs(t, err, ErrMalformedTable)

	// a present but empty undocumented table is harmless
	data = rawHeader(1<<0x03|1<<KindModule, []uint32{1, 0}, 10)
	s, err := ParseStream(data, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.RowCount(KindModule))

	// 0x2D is beyond the boundary: it is dropped together with later kinds
	data = rawHeader(1<<KindModule|1<<0x2D|1<<0x30, []uint32{1, 4, 2}, 10)
	s, err = ParseStream(data, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Kind{0x2D, 0x30}, s.Dropped)
	assert.Equal(t, uint32(1), s.RowCount(KindModule))

	// lowering the boundary makes 0x03 tolerated too
	data = rawHeader(1<<KindModule|1<<0x03, []uint32{1, 1}, 10)
	s, err = ParseStream(data, ParseOptions{CoreBoundary: KindTypeDef})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.RowCount(KindModule))
	assert.Equal(t, []Kind{0x03}, s.Dropped)
}

func TestTruncatedStream(t *testing.T) {
	data := rawHeader(1<<KindModule|1<<KindTypeDef, []uint32{1, 3}, 12)
	_, err := ParseStream(data, ParseOptions{})
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, KindTypeDef, rowErr.Kind)
	assert.True(t, errors.Is(err, ErrMalformedTable))

	_, err = ParseStream(data[:20], ParseOptions{})
	assert.ErrorIs(t, err, ErrMalformedTable)
}

func TestCodedIndex(t *testing.T) {
	v, err := HasCustomAttribute.Encode(MakeToken(KindTypeDef, 5))
	require.NoError(t, err)
	assert.Equal(t, uint32(5<<5|3), v)

	tok, err := HasCustomAttribute.Decode(v)
	require.NoError(t, err)
	assert.Equal(t, MakeToken(KindTypeDef, 5), tok)

	_, err = CustomAttributeType.Decode(0<<3 | 1)
	assert.ErrorIs(t, err, ErrMalformedTable)
	tok, err = CustomAttributeType.Decode(9<<3 | 3)
	require.NoError(t, err)
	assert.Equal(t, MakeToken(KindMemberRef, 9), tok)

	_, err = TypeDefOrRef.Encode(MakeToken(KindField, 1))
	assert.ErrorIs(t, err, ErrMalformedTable)
	assert.True(t, ResolutionScope.Accepts(KindAssemblyRef))
	assert.False(t, ResolutionScope.Accepts(KindTypeDef))
}
