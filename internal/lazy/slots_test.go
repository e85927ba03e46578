package lazy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCompute(t *testing.T) {
	s := NewSlots[*int](3)
	calls := 0
	compute := func() (*int, error) {
		calls++
		v := 42
		return &v, nil
	}

	a, err := s.GetOrCompute(2, compute)
	require.NoError(t, err)
	b, err := s.GetOrCompute(2, compute)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)

	_, err = s.GetOrCompute(4, compute)
	assert.ErrorIs(t, err, ErrOrdinal)
	_, err = s.GetOrCompute(0, compute)
	assert.ErrorIs(t, err, ErrOrdinal)
}

func TestGetOrComputeFailureLeavesSlotEmpty(t *testing.T) {
	s := NewSlots[string](2)
	boom := errors.New("boom")

	_, err := s.GetOrCompute(1, func() (string, error) {
		// publish early, as a recursive loader would
		require.NoError(t, s.Set(1, "partial"))
		v, ok := s.Get(1)
		assert.True(t, ok)
		assert.Equal(t, "partial", v)
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := s.Get(1)
	assert.False(t, ok)

	v, err := s.GetOrCompute(1, func() (string, error) { return "done", nil })
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestGetOrComputeKeepsEarlyValue(t *testing.T) {
	s := NewSlots[string](1)
	v, err := s.GetOrCompute(1, func() (string, error) {
		require.NoError(t, s.Set(1, "early"))
		return "late", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "early", v)
}

func TestAppendAndFilled(t *testing.T) {
	s := NewSlots[int](2)
	require.NoError(t, s.Set(2, 20))
	assert.Equal(t, uint32(3), s.Append(30))
	s.Grow(5)
	assert.Equal(t, 5, s.Len())

	var got []uint32
	for ord, v := range s.Filled() {
		got = append(got, ord)
		assert.Equal(t, int(ord)*10, v)
	}
	assert.Equal(t, []uint32{2, 3}, got)
}

func TestJournal(t *testing.T) {
	s := NewSlots[int](3)
	var j Journal
	for ord := uint32(1); ord <= 3; ord++ {
		require.NoError(t, s.Set(ord, int(ord)))
		j.Record(func() { s.Clear(ord) })
	}
	assert.Equal(t, 3, j.Len())

	j.Rollback()
	assert.Zero(t, j.Len())
	for ord := uint32(1); ord <= 3; ord++ {
		_, ok := s.Get(ord)
		assert.False(t, ok)
	}

	require.NoError(t, s.Set(1, 1))
	j.Record(func() { s.Clear(1) })
	j.Commit()
	j.Rollback()
	_, ok := s.Get(1)
	assert.True(t, ok)
}

func TestJournalRollbackTo(t *testing.T) {
	s := NewSlots[int](4)
	var j Journal
	for ord := uint32(1); ord <= 4; ord++ {
		require.NoError(t, s.Set(ord, int(ord)))
		j.Record(func() { s.Clear(ord) })
	}

	j.RollbackTo(2)
	assert.Equal(t, 2, j.Len())
	for ord, want := range map[uint32]bool{1: true, 2: true, 3: false, 4: false} {
		_, ok := s.Get(ord)
		assert.Equal(t, want, ok, "slot %d", ord)
	}

	j.RollbackTo(5)
	assert.Equal(t, 2, j.Len())
}
