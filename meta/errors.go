// Package meta materializes ECMA-335 metadata tables into a graph of
// program items, resolves references between images and interns
// structural types.
package meta

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/ilmeta/internal/linkgraph"
	"github.com/skdltmxn/ilmeta/internal/table"
)

// Sentinel errors for common conditions.
var (
	// ErrMalformedTable indicates a bad index, a truncated table or an
	// undocumented core table.
	ErrMalformedTable = table.ErrMalformedTable

	// ErrUnresolvedReference indicates a type or member reference that
	// could not be matched.
	ErrUnresolvedReference = errors.New("meta: unresolved reference")

	// ErrOutOfMemory indicates the synthetic class limit was reached.
	ErrOutOfMemory = errors.New("meta: out of memory for synthetic classes")

	// ErrBrokenLinkChain indicates a link chain reached a removed link.
	ErrBrokenLinkChain = linkgraph.ErrBrokenLinkChain

	// ErrLinkCycle indicates a link would make a chain circular.
	ErrLinkCycle = linkgraph.ErrLinkCycle

	// ErrNotComposite indicates a type that has no class form.
	ErrNotComposite = errors.New("meta: type has no class")

	// ErrTokenInUse indicates a creation call named an occupied token.
	ErrTokenInUse = errors.New("meta: token already in use")

	// ErrImageNotFound indicates a missing image.
	ErrImageNotFound = errors.New("meta: image not found")

	// ErrBadSignature indicates a malformed signature blob.
	ErrBadSignature = errors.New("meta: malformed signature")

	// ErrWrongKind indicates a token or item of an unexpected kind.
	ErrWrongKind = errors.New("meta: unexpected item kind")

	// ErrNoItem indicates a token that names no row or created item.
	ErrNoItem = errors.New("meta: no item for token")

	// ErrImageExists indicates a second image with an already used name.
	ErrImageExists = errors.New("meta: image already loaded")
)

// LoadError records a failure while materializing one token.
type LoadError struct {
	Image string      // Image name
	Token table.Token // Token being loaded
	Op    string      // What was being done
	Err   error       // Underlying error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("meta: %s: failed to %s %s: %v", e.Image, e.Op, e.Token, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// UnresolvedError names a reference that could not be matched.
type UnresolvedError struct {
	Image     string      // Image holding the reference
	Token     table.Token // The TypeRef or MemberRef
	Scope     string      // Scope the reference was looked up in
	Namespace string
	Name      string
}

func (e *UnresolvedError) Error() string {
	name := e.Name
	if e.Namespace != "" {
		name = e.Namespace + "." + e.Name
	}
	return fmt.Sprintf("meta: %s: unresolved reference %s to %s in %s", e.Image, e.Token, name, e.Scope)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolvedReference }

func loadError(img *Image, tok table.Token, op string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Image: img.Name(), Token: tok, Op: op, Err: err}
}
