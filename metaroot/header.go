// Package metaroot reads and writes the ECMA-335 metadata root (the
// "BSJB" header and its stream directory) and locates it inside a PE
// image.
package metaroot

import (
	"fmt"
	"strings"

	"github.com/skdltmxn/ilmeta/internal/stream"
)

// Signature is the magic value at the start of every metadata root.
const Signature = 0x424A5342

// DefaultVersion is the runtime version string written by Write.
const DefaultVersion = "v4.0.30319"

// maxVersionLength bounds the padded version string.
const maxVersionLength = 255

// Header is the fixed part of the metadata root.
type Header struct {
	// Signature must equal the Signature constant
	Signature uint32

	MajorVersion uint16
	MinorVersion uint16
	Reserved     uint32

	// Version is the runtime version string, without its null padding
	Version string

	Flags uint16

	// NumStreams is the number of stream headers that follow
	NumStreams uint16
}

// ReadHeader reads and validates the root header. It leaves r positioned
// at the first stream header.
func ReadHeader(r *stream.Reader) (*Header, error) {
	var h Header
	var err error
	if h.Signature, err = r.ReadU32(); err != nil {
		return nil, ErrTruncated
	}
	if h.Signature != Signature {
		return nil, fmt.Errorf("%w: 0x%08x", ErrInvalidSignature, h.Signature)
	}
	if h.MajorVersion, err = r.ReadU16(); err != nil {
		return nil, ErrTruncated
	}
	if h.MinorVersion, err = r.ReadU16(); err != nil {
		return nil, ErrTruncated
	}
	if h.Reserved, err = r.ReadU32(); err != nil {
		return nil, ErrTruncated
	}
	length, err := r.ReadU32()
	if err != nil {
		return nil, ErrTruncated
	}
	if length > maxVersionLength+1 {
		return nil, fmt.Errorf("metaroot: version string length %d is too large", length)
	}
	raw, err := r.ReadBytesRef(int(length))
	if err != nil {
		return nil, ErrTruncated
	}
	h.Version = strings.TrimRight(string(raw), "\x00")
	if h.Flags, err = r.ReadU16(); err != nil {
		return nil, ErrTruncated
	}
	if h.NumStreams, err = r.ReadU16(); err != nil {
		return nil, ErrTruncated
	}
	return &h, nil
}

// paddedVersionLength returns the on-disk length of a version string:
// null terminated and rounded up to a multiple of four.
func paddedVersionLength(v string) int {
	return (len(v) + 1 + 3) &^ 3
}
