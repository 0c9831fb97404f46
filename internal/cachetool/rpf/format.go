// Package rpf reads and writes the RPF2 nested-directory archive format used
// for packed game resources.
//
// Layout of an archive:
//
//	0x0000  header (20 bytes, rest of the sector zero)
//	0x0800  entry table, entryCount * 16 bytes
//	        name blob, null-terminated names, immediately after the table
//	0x1000  file data, each payload padded to a 2048-byte boundary
//
// Entry 0 is the root directory. A directory's masked data offset is the index
// of its first child and its length is the child count; children are stored
// contiguously.
package rpf

import (
	"encoding/binary"
	"errors"
	"path"
)

const (
	// Magic is "RPF2" read as a little-endian uint32.
	Magic uint32 = 0x32465052

	// Align is the sector size of the format.
	Align = 2048

	headerSize = 20
	entrySize  = 16
	entryBase  = Align

	// reservedSize is the header sector plus the index sector that precede
	// file data in archives we write.
	reservedSize = 2 * Align

	dirFlag    uint32 = 0x80000000
	offsetMask uint32 = 0x7FFFFFFF

	// Extension is the filename extension of archive resources.
	Extension = ".rpf"
)

// ErrUnsupportedFormat is returned for any archive that cannot be read: wrong
// magic, a nonzero crypto flag or a structurally broken entry table.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

// ErrTooLarge is returned when a tree does not fit the format's 31-bit offsets.
var ErrTooLarge = errors.New("archive too large")

// Header is the fixed archive header.
type Header struct {
	Magic      uint32
	DataStart  uint32 // offset of the data region, called tocSize by other RPF tools
	EntryCount uint32
	Flags      uint32
	CryptoFlag uint32
}

func (h Header) marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], h.Magic)
	binary.LittleEndian.PutUint32(b[4:], h.DataStart)
	binary.LittleEndian.PutUint32(b[8:], h.EntryCount)
	binary.LittleEndian.PutUint32(b[12:], h.Flags)
	binary.LittleEndian.PutUint32(b[16:], h.CryptoFlag)
}

func unmarshalHeader(b []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:]),
		DataStart:  binary.LittleEndian.Uint32(b[4:]),
		EntryCount: binary.LittleEndian.Uint32(b[8:]),
		Flags:      binary.LittleEndian.Uint32(b[12:]),
		CryptoFlag: binary.LittleEndian.Uint32(b[16:]),
	}
}

// rawEntry is one 16-byte record of the entry table.
type rawEntry struct {
	NameOffset uint32
	Length     uint32
	DataOffset uint32 // top bit set for directories
	Flags      uint32
}

func (e rawEntry) isDir() bool {
	return e.DataOffset&dirFlag != 0
}

func (e rawEntry) offset() uint32 {
	return e.DataOffset & offsetMask
}

func (e rawEntry) marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], e.NameOffset)
	binary.LittleEndian.PutUint32(b[4:], e.Length)
	binary.LittleEndian.PutUint32(b[8:], e.DataOffset)
	binary.LittleEndian.PutUint32(b[12:], e.Flags)
}

func unmarshalEntry(b []byte) rawEntry {
	return rawEntry{
		NameOffset: binary.LittleEndian.Uint32(b[0:]),
		Length:     binary.LittleEndian.Uint32(b[4:]),
		DataOffset: binary.LittleEndian.Uint32(b[8:]),
		Flags:      binary.LittleEndian.Uint32(b[12:]),
	}
}

func alignUp(n int64) int64 {
	if r := n % Align; r != 0 {
		return n + Align - r
	}
	return n
}

// IsArchiveName reports whether a resource filename denotes an archive.
func IsArchiveName(name string) bool {
	return path.Ext(name) == Extension
}
