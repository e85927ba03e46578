package metaroot

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
)

// dirCLIHeader is the data directory slot of the CLI (COM descriptor) header.
const dirCLIHeader = 14

// cliHeaderSize is the size of the fixed CLI header.
const cliHeaderSize = 72

// CLIHeader is the part of the CLI header needed to find the metadata.
type CLIHeader struct {
	Size                uint32
	MajorRuntimeVersion uint16
	MinorRuntimeVersion uint16
	MetadataRVA         uint32
	MetadataSize        uint32
	Flags               uint32
	EntryPointToken     uint32
}

// findSection returns the section containing rva and the offset of rva
// within it.
func findSection(sections []*pe.Section, rva uint32) (*pe.Section, uint32, bool) {
	for _, s := range sections {
		size := s.VirtualSize
		if s.Size > size {
			size = s.Size
		}
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+size {
			return s, rva - s.VirtualAddress, true
		}
	}
	return nil, 0, false
}

// readRVA reads n bytes starting at rva.
func readRVA(f *pe.File, rva, n uint32) ([]byte, error) {
	s, off, ok := findSection(f.Sections, rva)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrRVA, rva)
	}
	buf := make([]byte, n)
	if _, err := s.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("metaroot: failed to read 0x%x bytes at RVA 0x%x: %w", n, rva, err)
	}
	return buf, nil
}

// cliDirectory returns the CLI header data directory entry.
func cliDirectory(f *pe.File) (pe.DataDirectory, bool) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes > dirCLIHeader {
			return oh.DataDirectory[dirCLIHeader], true
		}
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes > dirCLIHeader {
			return oh.DataDirectory[dirCLIHeader], true
		}
	}
	return pe.DataDirectory{}, false
}

// ReadCLIHeader reads the CLI header of a PE image.
func ReadCLIHeader(f *pe.File) (*CLIHeader, error) {
	dd, ok := cliDirectory(f)
	if !ok || dd.VirtualAddress == 0 {
		return nil, ErrNoCLIHeader
	}
	if dd.Size < cliHeaderSize {
		return nil, fmt.Errorf("%w: CLI header is %d bytes", ErrNoCLIHeader, dd.Size)
	}
	data, err := readRVA(f, dd.VirtualAddress, cliHeaderSize)
	if err != nil {
		return nil, err
	}
	return &CLIHeader{
		Size:                binary.LittleEndian.Uint32(data[0:]),
		MajorRuntimeVersion: binary.LittleEndian.Uint16(data[4:]),
		MinorRuntimeVersion: binary.LittleEndian.Uint16(data[6:]),
		MetadataRVA:         binary.LittleEndian.Uint32(data[8:]),
		MetadataSize:        binary.LittleEndian.Uint32(data[12:]),
		Flags:               binary.LittleEndian.Uint32(data[16:]),
		EntryPointToken:     binary.LittleEndian.Uint32(data[20:]),
	}, nil
}

// ExtractFromPE returns the metadata root bytes of a PE image.
func ExtractFromPE(r io.ReaderAt) ([]byte, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("metaroot: failed to parse PE image: %w", err)
	}
	defer f.Close()

	cli, err := ReadCLIHeader(f)
	if err != nil {
		return nil, err
	}
	if cli.MetadataRVA == 0 || cli.MetadataSize == 0 {
		return nil, fmt.Errorf("%w: no metadata directory", ErrNoCLIHeader)
	}
	return readRVA(f, cli.MetadataRVA, cli.MetadataSize)
}
