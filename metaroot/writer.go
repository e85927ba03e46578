package metaroot

import (
	"fmt"
	"io"

	"fortio.org/safecast"

	"github.com/skdltmxn/ilmeta/internal/stream"
)

// StreamData is one named stream to be written.
type StreamData struct {
	Name string
	Data []byte
}

// Build lays out a metadata root holding streams in the given order.
// Stream contents are padded to a multiple of four bytes.
func Build(version string, streams []StreamData) ([]byte, error) {
	if version == "" {
		version = DefaultVersion
	}
	if len(version) > maxVersionLength {
		return nil, fmt.Errorf("metaroot: version string %q is too long", version)
	}
	n, err := safecast.Conv[uint16](len(streams))
	if err != nil {
		return nil, fmt.Errorf("metaroot: too many streams: %w", err)
	}

	headerSize := 16 + paddedVersionLength(version) + 4
	for _, s := range streams {
		if s.Name == "" || len(s.Name)+1 > maxStreamName {
			return nil, fmt.Errorf("%w: %q", ErrStreamName, s.Name)
		}
		headerSize += 8 + paddedNameLength(s.Name)
	}

	w := stream.NewWriter(headerSize)
	w.WriteU32(Signature)
	w.WriteU16(1)
	w.WriteU16(1)
	w.WriteU32(0)
	w.WriteU32(uint32(paddedVersionLength(version)))
	w.WriteBytes([]byte(version))
	w.WriteU8(0)
	w.Align(4)
	w.WriteU16(0)
	w.WriteU16(n)

	offset := headerSize
	for _, s := range streams {
		size := (len(s.Data) + 3) &^ 3
		off, err := safecast.Conv[uint32](offset)
		if err != nil {
			return nil, fmt.Errorf("metaroot: stream %s offset: %w", s.Name, err)
		}
		sz, err := safecast.Conv[uint32](size)
		if err != nil {
			return nil, fmt.Errorf("metaroot: stream %s size: %w", s.Name, err)
		}
		w.WriteU32(off)
		w.WriteU32(sz)
		w.WriteCString(s.Name)
		w.Align(4)
		offset += size
	}
	for _, s := range streams {
		w.WriteBytes(s.Data)
		w.Align(4)
	}
	return w.Bytes(), nil
}

// Write emits a metadata root with the default version string.
func Write(w io.Writer, streams []StreamData) error {
	data, err := Build(DefaultVersion, streams)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("metaroot: failed to write metadata root: %w", err)
	}
	return nil
}
