package metaroot

import (
	"bytes"
	"fmt"
	"os"

	"github.com/skdltmxn/ilmeta/internal/stream"
)

// File is a parsed metadata root. Stream contents alias the root buffer.
type File struct {
	data      []byte
	header    *Header
	directory *Directory
}

// Open reads a metadata root from path. The file may be a PE image with
// a CLI header or a bare metadata root.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metaroot: failed to read file: %w", err)
	}
	return Load(data)
}

// Load parses data as a PE image when it starts with an MZ header, and as
// a bare metadata root otherwise.
func Load(data []byte) (*File, error) {
	if len(data) >= 2 && data[0] == 'M' && data[1] == 'Z' {
		root, err := ExtractFromPE(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return Parse(root)
	}
	return Parse(data)
}

// Parse parses a bare metadata root.
func Parse(data []byte) (*File, error) {
	r := stream.NewReader(data)
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	dir, err := ReadDirectory(r, h.NumStreams, len(data))
	if err != nil {
		return nil, err
	}
	return &File{data: data, header: h, directory: dir}, nil
}

// Header returns the root header.
func (f *File) Header() *Header {
	return f.header
}

// Directory returns the stream directory.
func (f *File) Directory() *Directory {
	return f.directory
}

// Stream returns the contents of the named stream.
func (f *File) Stream(name string) ([]byte, bool) {
	sh, ok := f.directory.Lookup(name)
	if !ok {
		return nil, false
	}
	return f.data[sh.Offset : sh.Offset+sh.Size], true
}

// Size returns the size of the metadata root in bytes.
func (f *File) Size() int {
	return len(f.data)
}

// Bytes returns the raw metadata root.
func (f *File) Bytes() []byte {
	return f.data
}
