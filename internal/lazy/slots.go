// Package lazy provides compute-if-absent caches for on-demand
// materialization of table rows.
package lazy

import (
	"errors"
	"iter"
)

// ErrOrdinal is returned for ordinals outside a Slots range.
var ErrOrdinal = errors.New("lazy: ordinal out of range")

// Slots is a dense cache addressed by 1-based ordinal. A slot is either
// empty or holds a fully built value; a failed computation leaves it empty.
type Slots[V any] struct {
	vals []V
	set  []bool
}

// NewSlots returns n empty slots.
func NewSlots[V any](n int) *Slots[V] {
	return &Slots[V]{vals: make([]V, n), set: make([]bool, n)}
}

// Len returns the number of slots.
func (s *Slots[V]) Len() int {
	return len(s.vals)
}

func (s *Slots[V]) index(ordinal uint32) (int, bool) {
	if ordinal == 0 || int64(ordinal) > int64(len(s.vals)) {
		return 0, false
	}
	return int(ordinal - 1), true
}

// Get returns the value at ordinal if the slot is filled.
func (s *Slots[V]) Get(ordinal uint32) (V, bool) {
	var zero V
	i, ok := s.index(ordinal)
	if !ok || !s.set[i] {
		return zero, false
	}
	return s.vals[i], true
}

// Set fills the slot at ordinal.
func (s *Slots[V]) Set(ordinal uint32, v V) error {
	i, ok := s.index(ordinal)
	if !ok {
		return ErrOrdinal
	}
	s.vals[i] = v
	s.set[i] = true
	return nil
}

// Clear empties the slot at ordinal.
func (s *Slots[V]) Clear(ordinal uint32) {
	i, ok := s.index(ordinal)
	if !ok {
		return
	}
	var zero V
	s.vals[i] = zero
	s.set[i] = false
}

// Append grows the slots by one filled entry and returns its ordinal.
func (s *Slots[V]) Append(v V) uint32 {
	s.vals = append(s.vals, v)
	s.set = append(s.set, true)
	return uint32(len(s.vals))
}

// Grow extends the slots to at least n entries.
func (s *Slots[V]) Grow(n int) {
	for len(s.vals) < n {
		var zero V
		s.vals = append(s.vals, zero)
		s.set = append(s.set, false)
	}
}

// GetOrCompute returns the cached value at ordinal, computing it with fn
// when the slot is empty. fn may fill the slot itself before it returns,
// which lets recursive lookups of the same ordinal observe the value under
// construction. If fn fails the slot is emptied again.
func (s *Slots[V]) GetOrCompute(ordinal uint32, fn func() (V, error)) (V, error) {
	var zero V
	i, ok := s.index(ordinal)
	if !ok {
		return zero, ErrOrdinal
	}
	if s.set[i] {
		return s.vals[i], nil
	}
	v, err := fn()
	if err != nil {
		s.Clear(ordinal)
		return zero, err
	}
	if s.set[i] {
		return s.vals[i], nil
	}
	s.vals[i] = v
	s.set[i] = true
	return v, nil
}

// Filled iterates over filled slots in ordinal order.
func (s *Slots[V]) Filled() iter.Seq2[uint32, V] {
	return func(yield func(uint32, V) bool) {
		for i := range s.vals {
			if s.set[i] && !yield(uint32(i+1), s.vals[i]) {
				return
			}
		}
	}
}

// Journal records undo actions so that a multi-slot materialization can
// be rolled back as a unit.
type Journal struct {
	undo []func()
}

// Record registers an undo action.
func (j *Journal) Record(fn func()) {
	j.undo = append(j.undo, fn)
}

// Rollback runs the recorded actions in reverse order and forgets them.
func (j *Journal) Rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// RollbackTo runs the actions recorded after mark in reverse order and
// forgets them. A mark is a value previously returned by Len.
func (j *Journal) RollbackTo(mark int) {
	if mark < 0 {
		mark = 0
	}
	for i := len(j.undo) - 1; i >= mark; i-- {
		j.undo[i]()
	}
	if mark < len(j.undo) {
		j.undo = j.undo[:mark]
	}
}

// Commit forgets the recorded actions.
func (j *Journal) Commit() {
	j.undo = nil
}

// Len returns the number of pending undo actions.
func (j *Journal) Len() int {
	return len(j.undo)
}
