package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Sectioned container framing shared by matrix containers and checkpoint
// bundles.
//
// Layout:
//  1. header (magic/version/compression/codec name)
//  2. section bytes, one after another
//  3. directory (id/offset/length/checksum per section)
//  4. footer (directory offset/length)
//
// The footer is fixed-size and sits at the end of the file, so a reader
// locates the directory without scanning and then addresses each section by
// offset. Every section carries a CRC32 verified on access.

const (
	containerHeaderSize = 16
	directoryHeaderSize = 12
	directoryEntrySize  = 32
	footerSize          = 24
)

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// ContainerWriter writes a sectioned container to an underlying writer.
// Sections are written in call order; Finish writes the directory and footer.
type ContainerWriter struct {
	cw          *countingWriter
	magic       [4]byte
	codecName   string
	compression CompressionType
	declared    int
	entries     []SectionEntry
	finished    bool
}

// NewContainerWriter writes the container header and returns a writer for the
// declared number of sections.
func NewContainerWriter(w io.Writer, magic [4]byte, codecName string, compression CompressionType, sectionCount int) (*ContainerWriter, error) {
	if w == nil {
		return nil, fmt.Errorf("container: writer is nil")
	}
	if sectionCount <= 0 {
		return nil, fmt.Errorf("container: invalid section count: %d", sectionCount)
	}
	if len(codecName) > 0xFFFF {
		return nil, fmt.Errorf("container: codec name too long: %d", len(codecName))
	}

	// Header (16 bytes + codec name)
	// [0:4]   magic
	// [4:6]   container version
	// [6:7]   compression type
	// [7:8]   reserved
	// [8:10]  codec name len
	// [10:12] section count
	// [12:16] reserved
	var hdr [containerHeaderSize]byte
	copy(hdr[0:4], magic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], ContainerVersion)
	hdr[6] = byte(compression)
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(len(codecName)))
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(sectionCount))
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, err
	}
	if len(codecName) > 0 {
		if _, err := w.Write([]byte(codecName)); err != nil {
			return nil, err
		}
	}

	cw := &countingWriter{w: w, n: int64(containerHeaderSize + len(codecName))}

	return &ContainerWriter{
		cw:          cw,
		magic:       magic,
		codecName:   codecName,
		compression: compression,
		declared:    sectionCount,
		entries:     make([]SectionEntry, 0, sectionCount),
	}, nil
}

// WriteSection writes one section. The bytes produced by write are
// checksummed as written.
func (c *ContainerWriter) WriteSection(id SectionID, write func(io.Writer) error) error {
	if c.finished {
		return fmt.Errorf("container: writer already finished")
	}
	for _, e := range c.entries {
		if e.ID == id {
			return fmt.Errorf("container: %w: %d", ErrDuplicateSection, id)
		}
	}
	if len(c.entries) >= c.declared {
		return fmt.Errorf("container: too many sections: declared %d", c.declared)
	}

	offset := uint64(c.cw.n)
	checksumWriter := NewChecksumWriter(c.cw)
	if err := write(checksumWriter); err != nil {
		return fmt.Errorf("container: failed to write section %d: %w", id, err)
	}

	c.entries = append(c.entries, SectionEntry{
		ID:       id,
		Offset:   offset,
		Len:      uint64(c.cw.n) - offset,
		Checksum: checksumWriter.Sum(),
	})
	return nil
}

// Finish writes the directory and footer. It must be called exactly once,
// after all declared sections have been written.
func (c *ContainerWriter) Finish() error {
	if c.finished {
		return fmt.Errorf("container: writer already finished")
	}
	if len(c.entries) != c.declared {
		return fmt.Errorf("container: wrote %d sections, declared %d", len(c.entries), c.declared)
	}
	c.finished = true

	dirOffset := uint64(c.cw.n)

	// Directory header (12 bytes)
	// [0:4]  magic
	// [4:6]  version
	// [6:8]  reserved
	// [8:12] entry count
	var dh [directoryHeaderSize]byte
	copy(dh[0:4], DirectoryMagic[:])
	binary.LittleEndian.PutUint16(dh[4:6], ContainerVersion)
	binary.LittleEndian.PutUint32(dh[8:12], uint32(len(c.entries)))
	if _, err := c.cw.Write(dh[:]); err != nil {
		return err
	}

	// Each entry is 32 bytes
	// [0:2]   id
	// [2:4]   reserved
	// [4:8]   checksum (CRC32)
	// [8:16]  offset
	// [16:24] length
	// [24:32] reserved
	for _, e := range c.entries {
		var b [directoryEntrySize]byte
		binary.LittleEndian.PutUint16(b[0:2], uint16(e.ID))
		binary.LittleEndian.PutUint32(b[4:8], e.Checksum)
		binary.LittleEndian.PutUint64(b[8:16], e.Offset)
		binary.LittleEndian.PutUint64(b[16:24], e.Len)
		if _, err := c.cw.Write(b[:]); err != nil {
			return err
		}
	}

	dirLen := uint64(c.cw.n) - dirOffset

	// Footer (24 bytes)
	// [0:4]   magic
	// [4:6]   version
	// [6:8]   reserved
	// [8:16]  directory offset
	// [16:24] directory length
	var fb [footerSize]byte
	copy(fb[0:4], FooterMagic[:])
	binary.LittleEndian.PutUint16(fb[4:6], ContainerVersion)
	binary.LittleEndian.PutUint64(fb[8:16], dirOffset)
	binary.LittleEndian.PutUint64(fb[16:24], dirLen)
	_, err := c.cw.Write(fb[:])
	return err
}

// Container is a parsed sectioned container over an in-memory (or mapped)
// byte slice. Section returns verified views into the slice; they remain
// valid only as long as the backing bytes do.
type Container struct {
	data        []byte
	version     uint16
	codecName   string
	compression CompressionType
	entries     map[SectionID]SectionEntry
}

// OpenContainer parses the container framing in data and validates the
// expected format magic.
func OpenContainer(data []byte, magic [4]byte) (*Container, error) {
	if len(data) < containerHeaderSize+footerSize {
		return nil, ErrTruncated
	}

	if [4]byte(data[0:4]) != magic {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, binary.BigEndian.Uint32(data[0:4]))
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != ContainerVersion {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVersion, version)
	}
	compression := CompressionType(data[6])
	nameLen := int(binary.LittleEndian.Uint16(data[8:10]))
	sectionCount := int(binary.LittleEndian.Uint16(data[10:12]))
	if sectionCount <= 0 {
		return nil, fmt.Errorf("container: invalid section count: %d", sectionCount)
	}
	headerEnd := containerHeaderSize + nameLen
	if len(data) < headerEnd+footerSize {
		return nil, ErrTruncated
	}
	codecName := string(data[containerHeaderSize:headerEnd])

	// Footer (last 24 bytes)
	foot := data[len(data)-footerSize:]
	if [4]byte(foot[0:4]) != FooterMagic {
		return nil, fmt.Errorf("container: missing footer: %w", ErrInvalidMagic)
	}
	if fver := binary.LittleEndian.Uint16(foot[4:6]); fver != version {
		return nil, fmt.Errorf("container: footer %w: got %d", ErrInvalidVersion, fver)
	}
	dirOffset := binary.LittleEndian.Uint64(foot[8:16])
	dirLen := binary.LittleEndian.Uint64(foot[16:24])
	dataEnd := uint64(len(data) - footerSize)
	if dirLen < directoryHeaderSize || dirOffset > dataEnd || dirLen > dataEnd-dirOffset {
		return nil, fmt.Errorf("container: invalid directory range")
	}

	// Directory header
	dir := data[dirOffset : dirOffset+dirLen]
	if [4]byte(dir[0:4]) != DirectoryMagic {
		return nil, fmt.Errorf("container: invalid directory magic")
	}
	entryCount := int(binary.LittleEndian.Uint32(dir[8:12]))
	if entryCount != sectionCount {
		return nil, fmt.Errorf("container: directory entry count %d does not match header section count %d", entryCount, sectionCount)
	}
	if uint64(directoryHeaderSize+entryCount*directoryEntrySize) > dirLen {
		return nil, ErrTruncated
	}

	entries := make(map[SectionID]SectionEntry, entryCount)
	for i := 0; i < entryCount; i++ {
		eb := dir[directoryHeaderSize+i*directoryEntrySize:]
		id := SectionID(binary.LittleEndian.Uint16(eb[0:2]))
		checksum := binary.LittleEndian.Uint32(eb[4:8])
		off := binary.LittleEndian.Uint64(eb[8:16])
		ln := binary.LittleEndian.Uint64(eb[16:24])

		if _, exists := entries[id]; exists {
			return nil, fmt.Errorf("container: %w: %d", ErrDuplicateSection, id)
		}
		// Sections must sit between the header and the directory.
		if off < uint64(headerEnd) || off > dirOffset || ln > dirOffset-off {
			return nil, fmt.Errorf("container: invalid section range for id %d", id)
		}
		entries[id] = SectionEntry{ID: id, Offset: off, Len: ln, Checksum: checksum}
	}

	return &Container{
		data:        data,
		version:     version,
		codecName:   codecName,
		compression: compression,
		entries:     entries,
	}, nil
}

// Version returns the container framing version.
func (c *Container) Version() uint16 { return c.version }

// CodecName returns the codec name recorded in the header.
func (c *Container) CodecName() string { return c.codecName }

// Compression returns the compression type recorded in the header.
func (c *Container) Compression() CompressionType { return c.compression }

// HasSection reports whether a section with the given id exists.
func (c *Container) HasSection(id SectionID) bool {
	_, ok := c.entries[id]
	return ok
}

// Section returns the checksum-verified bytes of the section with the given
// id. The returned slice aliases the container's backing bytes and must be
// treated as read-only.
func (c *Container) Section(id SectionID) ([]byte, error) {
	e, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("container: %w: %d", ErrUnknownSection, id)
	}
	b := c.data[e.Offset : e.Offset+e.Len]
	if actual := ComputeChecksum(b); actual != e.Checksum {
		return nil, &ChecksumMismatchError{Expected: e.Checksum, Actual: actual}
	}
	return b, nil
}
