package persistence

import "errors"

// Container format constants shared by all sectioned artifact files
// (matrix containers, checkpoint bundles). Each concrete format supplies
// its own leading magic; the directory and footer framing is common.
var (
	// DirectoryMagic marks the start of the section directory.
	DirectoryMagic = [4]byte{'E', 'X', 'D', '1'}
	// FooterMagic marks the fixed-size footer at the end of the file.
	FooterMagic = [4]byte{'E', 'X', 'F', '1'}
)

// ContainerVersion is the current container framing version.
const ContainerVersion = uint16(1)

var (
	ErrInvalidMagic     = errors.New("invalid magic number")
	ErrInvalidVersion   = errors.New("unsupported version")
	ErrTruncated        = errors.New("truncated container")
	ErrUnknownSection   = errors.New("unknown section")
	ErrDuplicateSection = errors.New("duplicate section")
)

// SectionID identifies a section within a container. The meaning of each
// value belongs to the concrete format (matrix container, checkpoint bundle).
type SectionID uint16

// SectionEntry is one directory record describing a section's location.
type SectionEntry struct {
	ID       SectionID
	_        uint16 // reserved
	Offset   uint64
	Len      uint64
	Checksum uint32 // CRC32 of section bytes
	_        uint32 // reserved for alignment
}
