package rpf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
)

// Reader holds a parsed archive. The entry table is kept as an arena addressed
// by index; names are resolved on demand.
type Reader struct {
	buf      []byte
	header   Header
	entries  []rawEntry
	nameBase int64
}

// Open parses the header and entry table of an in-memory archive.
func Open(buf []byte) (*Reader, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrUnsupportedFormat, len(buf))
	}
	h := unmarshalHeader(buf)
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrUnsupportedFormat, h.Magic)
	}
	if h.CryptoFlag != 0 {
		return nil, fmt.Errorf("%w: crypto flag 0x%08x is set", ErrUnsupportedFormat, h.CryptoFlag)
	}
	if h.EntryCount == 0 {
		return nil, fmt.Errorf("%w: archive has no root entry", ErrUnsupportedFormat)
	}

	tableEnd := int64(entryBase) + int64(h.EntryCount)*entrySize
	if tableEnd > int64(len(buf)) {
		return nil, fmt.Errorf("%w: entry table of %d entries exceeds archive size %d", ErrUnsupportedFormat, h.EntryCount, len(buf))
	}

	entries := make([]rawEntry, h.EntryCount)
	for i := range entries {
		off := entryBase + i*entrySize
		entries[i] = unmarshalEntry(buf[off : off+entrySize])
	}

	return &Reader{buf: buf, header: h, entries: entries, nameBase: tableEnd}, nil
}

// Header returns the parsed archive header.
func (r *Reader) Header() Header {
	return r.header
}

// name reads the null-terminated name of entry i from the name blob.
func (r *Reader) name(i uint32) (string, error) {
	start := r.nameBase + int64(r.entries[i].NameOffset)
	if start >= int64(len(r.buf)) {
		return "", fmt.Errorf("%w: name of entry %d starts outside the archive", ErrUnsupportedFormat, i)
	}
	end := bytes.IndexByte(r.buf[start:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: name of entry %d is not terminated", ErrUnsupportedFormat, i)
	}
	return string(r.buf[start : start+int64(end)]), nil
}

// Entries flattens the tree depth-first from the root and returns every leaf
// with its slash-joined path.
func (r *Reader) Entries() ([]types.ArchiveFile, error) {
	root := r.entries[0]
	if !root.isDir() {
		return nil, fmt.Errorf("%w: root entry is not a directory", ErrUnsupportedFormat)
	}
	visited := make([]bool, len(r.entries))
	visited[0] = true

	var out []types.ArchiveFile
	if err := r.walk(0, "", visited, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Reader) walk(idx uint32, prefix string, visited []bool, out *[]types.ArchiveFile) error {
	dir := r.entries[idx]
	start, count := dir.offset(), dir.Length
	// Children always come after their parent, so the walk terminates and a
	// malformed table can never recurse deeper than the entry count.
	if start <= idx && count > 0 {
		return fmt.Errorf("%w: directory %d points back to entry %d", ErrUnsupportedFormat, idx, start)
	}
	if uint64(start)+uint64(count) > uint64(len(r.entries)) {
		return fmt.Errorf("%w: children %d..%d of directory %d exceed entry count %d",
			ErrUnsupportedFormat, start, uint64(start)+uint64(count), idx, len(r.entries))
	}

	for i := start; i < start+count; i++ {
		if visited[i] {
			return fmt.Errorf("%w: entry %d is referenced twice", ErrUnsupportedFormat, i)
		}
		visited[i] = true

		name, err := r.name(i)
		if err != nil {
			return err
		}
		if !validName(name) {
			return fmt.Errorf("%w: entry %d has invalid name %q", ErrUnsupportedFormat, i, name)
		}

		sub := r.entries[i]
		if sub.isDir() {
			if err := r.walk(i, prefix+name+"/", visited, out); err != nil {
				return err
			}
			continue
		}

		end := uint64(sub.offset()) + uint64(sub.Length)
		if end > uint64(len(r.buf)) {
			return fmt.Errorf("%w: data of %q (%d bytes at %d) exceeds archive size %d",
				ErrUnsupportedFormat, prefix+name, sub.Length, sub.offset(), len(r.buf))
		}
		data := make([]byte, sub.Length)
		copy(data, r.buf[sub.offset():end])
		*out = append(*out, types.ArchiveFile{Path: prefix + name, Data: data})
	}
	return nil
}

// validName rejects names that would escape the extraction directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}

// ReadEntries parses buf and returns its flattened leaves.
func ReadEntries(buf []byte) ([]types.ArchiveFile, error) {
	r, err := Open(buf)
	if err != nil {
		return nil, err
	}
	return r.Entries()
}
