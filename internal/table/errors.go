package table

import (
	"errors"
	"fmt"
)

// Sentinel errors for table decoding.
var (
	ErrMalformedTable = errors.New("table: malformed metadata table")
	ErrRowOutOfRange  = errors.New("table: row ordinal out of range")
	ErrNoOwner        = errors.New("table: no owning row")
	ErrHeapRange      = errors.New("table: heap index out of range")
)

// RowError describes a decoding failure at a specific table cell.
type RowError struct {
	Kind    Kind
	Ordinal uint32
	Column  string
	Value   uint32
	Message string
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("table: %s row %d: %s", e.Kind, e.Ordinal, e.Message)
	}
	return fmt.Sprintf("table: %s row %d column %s: %s (value 0x%X)",
		e.Kind, e.Ordinal, e.Column, e.Message, e.Value)
}

func (e *RowError) Unwrap() error {
	return ErrMalformedTable
}
