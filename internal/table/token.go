package table

import "fmt"

// Token packs a table kind and a 1-based row ordinal into one integer.
// Ordinal 0 means "absent". Tokens are only meaningful relative to an image.
type Token uint32

// MaxOrdinal is the largest row ordinal representable in a token.
const MaxOrdinal = 0x00FFFFFF

// MakeToken builds a token from a kind and an ordinal.
func MakeToken(k Kind, ordinal uint32) Token {
	return Token(uint32(k)<<24 | ordinal&MaxOrdinal)
}

// Kind returns the table kind of the token.
func (t Token) Kind() Kind {
	return Kind(t >> 24)
}

// Ordinal returns the 1-based row number of the token.
func (t Token) Ordinal() uint32 {
	return uint32(t) & MaxOrdinal
}

// IsNil reports whether the token refers to no row.
func (t Token) IsNil() bool {
	return t.Ordinal() == 0
}

// String formats the token as Kind#ordinal.
func (t Token) String() string {
	return fmt.Sprintf("%s#%d", t.Kind(), t.Ordinal())
}
