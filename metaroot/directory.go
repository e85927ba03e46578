package metaroot

import (
	"fmt"

	"github.com/skdltmxn/ilmeta/internal/stream"
)

// Well-known stream names.
const (
	StreamTables      = "#~"
	StreamTablesUnopt = "#-"
	StreamStrings     = "#Strings"
	StreamBlob        = "#Blob"
	StreamGUID        = "#GUID"
	StreamUserStrings = "#US"
)

// maxStreamName is the longest stream name, including its terminator.
const maxStreamName = 32

// StreamHeader locates one stream relative to the start of the root.
type StreamHeader struct {
	Offset uint32
	Size   uint32
	Name   string
}

// Directory is the ordered list of stream headers.
type Directory struct {
	Headers []StreamHeader
}

// ReadDirectory reads n stream headers and checks that every stream lies
// within rootSize bytes.
func ReadDirectory(r *stream.Reader, n uint16, rootSize int) (*Directory, error) {
	dir := &Directory{Headers: make([]StreamHeader, 0, n)}
	for i := uint16(0); i < n; i++ {
		var sh StreamHeader
		var err error
		if sh.Offset, err = r.ReadU32(); err != nil {
			return nil, ErrTruncated
		}
		if sh.Size, err = r.ReadU32(); err != nil {
			return nil, ErrTruncated
		}
		start := r.Offset()
		if sh.Name, err = r.ReadCString(); err != nil {
			return nil, ErrTruncated
		}
		if len(sh.Name) == 0 || r.Offset()-start > maxStreamName {
			return nil, fmt.Errorf("%w: header %d", ErrStreamName, i)
		}
		r.Align(4)
		if int64(sh.Offset)+int64(sh.Size) > int64(rootSize) {
			return nil, fmt.Errorf("%w: %s at 0x%x+0x%x", ErrStreamRange, sh.Name, sh.Offset, sh.Size)
		}
		dir.Headers = append(dir.Headers, sh)
	}
	return dir, nil
}

// Lookup returns the header named name. When a name repeats, the first
// occurrence wins.
func (d *Directory) Lookup(name string) (StreamHeader, bool) {
	for _, sh := range d.Headers {
		if sh.Name == name {
			return sh, true
		}
	}
	return StreamHeader{}, false
}

// Names returns the stream names in directory order.
func (d *Directory) Names() []string {
	names := make([]string, len(d.Headers))
	for i, sh := range d.Headers {
		names[i] = sh.Name
	}
	return names
}

// paddedNameLength returns the on-disk length of a stream name.
func paddedNameLength(name string) int {
	return (len(name) + 1 + 3) &^ 3
}
