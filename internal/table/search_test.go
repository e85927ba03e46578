package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstChildren(firsts ...uint32) func(uint32) (uint32, error) {
	return func(p uint32) (uint32, error) {
		return firsts[p-1], nil
	}
}

func TestFindOwner(t *testing.T) {
	// four parents over ten children; parent 2 owns nothing
	first := firstChildren(1, 4, 4, 8)

	tests := []struct {
		child uint32
		owner uint32
	}{
		{1, 1}, {3, 1}, {4, 3}, {6, 3}, {7, 3}, {8, 4}, {10, 4},
	}
	for _, sorted := range []bool{false, true} {
		for _, tt := range tests {
			got, err := findOwner(4, 10, sorted, first, tt.child)
			require.NoError(t, err, "child %d sorted=%v", tt.child, sorted)
			assert.Equal(t, tt.owner, got, "child %d sorted=%v", tt.child, sorted)
		}

		_, err := findOwner(4, 10, sorted, first, 11)
		assert.ErrorIs(t, err, ErrRowOutOfRange, "one past the end")
		_, err = findOwner(4, 10, sorted, first, 0)
		assert.ErrorIs(t, err, ErrRowOutOfRange)
	}
}

func TestFindOwnerEmptyTail(t *testing.T) {
	// the last two parents own nothing: their first child is count+1
	first := firstChildren(1, 3, 6, 6)
	for _, sorted := range []bool{false, true} {
		got, err := findOwner(4, 5, sorted, first, 5)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), got)
	}

	start, end, err := childRange(4, 5, first, 4)
	require.NoError(t, err)
	assert.Equal(t, start, end)

	start, end, err = childRange(4, 5, first, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), start)
	assert.Equal(t, uint32(6), end)

	_, _, err = childRange(4, 5, first, 5)
	assert.ErrorIs(t, err, ErrRowOutOfRange)
}

func TestFindOwnerNoParents(t *testing.T) {
	_, err := findOwner(0, 3, false, firstChildren(), 2)
	assert.ErrorIs(t, err, ErrNoOwner)
}

func buildTypeTable(t *testing.T, sorted bool, firstFields ...uint32) *Stream {
	t.Helper()
	b := NewStreamBuilder()
	for _, f := range firstFields {
		row := NewRow(KindTypeDef)
		row.SetToken(TypeDefFieldList, MakeToken(KindField, f))
		b.Add(row)
	}
	for i := 0; i < 10; i++ {
		b.Add(NewRow(KindField))
	}
	if sorted {
		b.Sorted |= 1 << KindTypeDef
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestStreamFindOwner(t *testing.T) {
	for _, sorted := range []bool{false, true} {
		s := buildTypeTable(t, sorted, 1, 4, 4, 8)

		owner, err := s.FindOwner(KindTypeDef, TypeDefFieldList, 6)
		require.NoError(t, err)
		assert.Equal(t, uint32(3), owner, "0-indexed row 2 owns fields 4..7")

		_, err = s.FindOwner(KindTypeDef, TypeDefFieldList, 11)
		assert.ErrorIs(t, err, ErrRowOutOfRange)

		first, end, err := s.ChildRange(KindTypeDef, TypeDefFieldList, 4)
		require.NoError(t, err)
		assert.Equal(t, uint32(8), first)
		assert.Equal(t, uint32(11), end, "last row runs to the end of the field table")
	}

	s := buildTypeTable(t, false, 1)
	_, err := s.FindOwner(KindTypeDef, TypeDefName, 1)
	assert.Error(t, err, "name is not a list column")
}

func TestFindRows(t *testing.T) {
	for _, sorted := range []bool{false, true} {
		b := NewStreamBuilder()
		for i := 0; i < 3; i++ {
			b.Add(NewRow(KindTypeDef))
		}
		b.Add(NewRow(KindMethodDef))
		owners := []Token{
			MakeToken(KindMethodDef, 1),
			MakeToken(KindTypeDef, 1),
			MakeToken(KindTypeDef, 2),
			MakeToken(KindTypeDef, 2),
			MakeToken(KindTypeDef, 3),
		}
		// HasCustomAttribute order: MethodDef tag 0 sorts before TypeDef tag 3
		for _, owner := range owners {
			row := NewRow(KindCustomAttribute)
			row.SetToken(CustomAttributeParent, owner)
			row.SetToken(CustomAttributeConstructor, MakeToken(KindMethodDef, 1))
			b.Add(row)
		}
		if sorted {
			b.Sorted |= 1 << KindCustomAttribute
		}
		s, err := b.Build()
		require.NoError(t, err)

		rows, err := s.FindRows(KindCustomAttribute, CustomAttributeParent, MakeToken(KindTypeDef, 2))
		require.NoError(t, err)
		assert.Equal(t, []uint32{3, 4}, rows, "sorted=%v", sorted)

		rows, err = s.FindRows(KindCustomAttribute, CustomAttributeParent, MakeToken(KindField, 1))
		require.NoError(t, err)
		assert.Empty(t, rows)
	}
}

func TestFindRowsByNonKeyColumn(t *testing.T) {
	b := NewStreamBuilder()
	for i := 0; i < 4; i++ {
		b.Add(NewRow(KindTypeDef))
	}
	// Sorted by Nested; the enclosing column is out of order.
	for _, pair := range [][2]uint32{{2, 4}, {3, 1}, {4, 1}} {
		row := NewRow(KindNestedClass)
		row.SetToken(NestedClassNested, MakeToken(KindTypeDef, pair[0]))
		row.SetToken(NestedClassEnclosing, MakeToken(KindTypeDef, pair[1]))
		b.Add(row)
	}
	b.Sorted |= 1 << KindNestedClass
	s, err := b.Build()
	require.NoError(t, err)

	rows, err := s.FindRows(KindNestedClass, NestedClassEnclosing, MakeToken(KindTypeDef, 1))
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 3}, rows)

	rows, err = s.FindRows(KindNestedClass, NestedClassNested, MakeToken(KindTypeDef, 3))
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, rows)
}
