package table

import (
	"fmt"

	"github.com/skdltmxn/ilmeta/internal/stream"
)

// Row is one decoded table row. Table, list and coded columns hold a Token,
// blob columns hold three consecutive values (raw index, content offset,
// content length), and every other column holds its stored value.
type Row struct {
	Kind   Kind
	Values []uint32
}

// NewRow returns a zeroed row of kind k.
func NewRow(k Kind) Row {
	s := SchemaFor(k)
	if s == nil {
		return Row{Kind: k}
	}
	return Row{Kind: k, Values: make([]uint32, s.values)}
}

// Col returns the first value of column c.
func (r Row) Col(c int) uint32 {
	return r.Values[schemas[r.Kind].offsets[c]]
}

// Set stores v as the first value of column c.
func (r Row) Set(c int, v uint32) {
	r.Values[schemas[r.Kind].offsets[c]] = v
}

// Token returns a reference column as a token.
func (r Row) Token(c int) Token {
	return Token(r.Col(c))
}

// SetToken stores a reference column.
func (r Row) SetToken(c int, t Token) {
	r.Set(c, uint32(t))
}

// Blob returns the three values of a blob column.
func (r Row) Blob(c int) (index, offset, length uint32) {
	o := schemas[r.Kind].offsets[c]
	return r.Values[o], r.Values[o+1], r.Values[o+2]
}

// SetBlob stores the three values of a blob column.
func (r Row) SetBlob(c int, index, offset, length uint32) {
	o := schemas[r.Kind].offsets[c]
	r.Values[o], r.Values[o+1], r.Values[o+2] = index, offset, length
}

// DecodeRow decodes row ordinal of kind k.
func (s *Stream) DecodeRow(k Kind, ordinal uint32) (Row, error) {
	if SchemaFor(k) == nil {
		return Row{}, fmt.Errorf("%w: %s is not a documented table", ErrMalformedTable, k)
	}
	data, err := s.RowBytes(k, ordinal)
	if err != nil {
		return Row{}, err
	}
	return decodeRow(s.Layout, &s.Heaps, k, ordinal, data)
}

// DecodeRowBytes decodes one packed row using the given layout. Heap
// indexes are not range-checked.
func DecodeRowBytes(l *Layout, k Kind, data []byte) (Row, error) {
	if SchemaFor(k) == nil {
		return Row{}, fmt.Errorf("%w: %s is not a documented table", ErrMalformedTable, k)
	}
	return decodeRow(l, &Heaps{}, k, 0, data)
}

func decodeRow(l *Layout, heaps *Heaps, k Kind, ordinal uint32, data []byte) (Row, error) {
	sc := schemas[k]
	row := Row{Kind: k, Values: make([]uint32, sc.values)}
	r := stream.NewReader(data)

	for i, c := range sc.Columns {
		fail := func(v uint32, msg string) error {
			return &RowError{Kind: k, Ordinal: ordinal, Column: c.Name, Value: v, Message: msg}
		}

		v, err := r.ReadIndex(l.widths[k][i])
		if err != nil {
			return Row{}, &RowError{Kind: k, Ordinal: ordinal, Column: c.Name, Message: "row truncated"}
		}
		o := sc.offsets[i]

		switch c.Type {
		case ColU16, ColU32:
			row.Values[o] = v
		case ColString:
			if v != 0 && heaps.Strings != nil && int64(v) >= int64(heaps.Strings.Size()) {
				return Row{}, fail(v, "string index out of range")
			}
			row.Values[o] = v
		case ColBlob:
			row.Values[o] = v
			if v != 0 && heaps.Blobs != nil {
				off, length, err := heaps.Blobs.Entry(v)
				if err != nil {
					return Row{}, fail(v, err.Error())
				}
				row.Values[o+1], row.Values[o+2] = off, length
			}
		case ColGUID:
			if v != 0 && heaps.GUIDs != nil && int64(v) > int64(heaps.GUIDs.Count()) {
				return Row{}, fail(v, "guid index out of range")
			}
			row.Values[o] = v
		case ColTable:
			if v > l.Counts[c.Target] {
				return Row{}, fail(v, fmt.Sprintf("%s index out of range (%d rows)", c.Target, l.Counts[c.Target]))
			}
			row.Values[o] = uint32(MakeToken(c.Target, v))
		case ColList:
			count := l.Counts[c.Target]
			switch {
			case v == count+1:
				row.Values[o] = uint32(MakeToken(c.Target, 0))
			case v == 0 || v > count:
				return Row{}, fail(v, fmt.Sprintf("%s list start out of range (%d rows)", c.Target, count))
			default:
				row.Values[o] = uint32(MakeToken(c.Target, v))
			}
		case ColCoded:
			tok, err := c.Coded.Decode(v)
			if err != nil {
				return Row{}, fail(v, err.Error())
			}
			if tok.Ordinal() > l.Counts[tok.Kind()] {
				return Row{}, fail(v, fmt.Sprintf("%s index out of range (%d rows)", tok.Kind(), l.Counts[tok.Kind()]))
			}
			row.Values[o] = uint32(tok)
		}
	}
	return row, nil
}

// EncodeRow packs a row using the widths of layout l.
func EncodeRow(l *Layout, row Row) ([]byte, error) {
	return AppendRow(make([]byte, 0, l.RowSize(row.Kind)), l, row)
}

// AppendRow packs a row and appends it to dst. It is the exact inverse of
// decoding: empty lists are written as count+1 and coded tokens keep their
// tag when the index is zero.
func AppendRow(dst []byte, l *Layout, row Row) ([]byte, error) {
	sc := SchemaFor(row.Kind)
	if sc == nil {
		return dst, fmt.Errorf("%w: %s is not a documented table", ErrMalformedTable, row.Kind)
	}
	if len(row.Values) != sc.values {
		return dst, fmt.Errorf("%w: %s row has %d values, want %d",
			ErrMalformedTable, row.Kind, len(row.Values), sc.values)
	}

	w := stream.NewWriter(l.RowSize(row.Kind))
	for i, c := range sc.Columns {
		v := row.Values[sc.offsets[i]]
		switch c.Type {
		case ColTable:
			v = Token(v).Ordinal()
		case ColList:
			v = Token(v).Ordinal()
			if v == 0 {
				v = l.Counts[c.Target] + 1
			}
		case ColCoded:
			enc, err := c.Coded.Encode(Token(v))
			if err != nil {
				return dst, err
			}
			v = enc
		}
		if c.Type == ColU16 && v > 0xFFFF {
			return dst, &RowError{Kind: row.Kind, Column: c.Name, Value: v, Message: "value exceeds 16 bits"}
		}
		if err := w.WriteIndex(v, l.widths[row.Kind][i]); err != nil {
			return dst, &RowError{Kind: row.Kind, Column: c.Name, Value: v, Message: err.Error()}
		}
	}
	return append(dst, w.Bytes()...), nil
}
