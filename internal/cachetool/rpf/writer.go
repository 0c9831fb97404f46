package rpf

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
)

// WriteOption configures archive creation.
type WriteOption func(*writeOptions)

type writeOptions struct {
	keep func(name string, isDir bool) bool
}

// WithFilter drops every file or directory for which keep returns false.
// name is the slash-separated path relative to the archive root.
func WithFilter(keep func(name string, isDir bool) bool) WriteOption {
	return func(o *writeOptions) {
		o.keep = keep
	}
}

// node is one planned entry. Nodes are addressed by their entry index.
type node struct {
	name       string
	path       string
	dir        bool
	size       int64
	children   []*node
	index      uint32
	childStart uint32
	nameOffset uint32
	dataOffset int64
}

// plan holds every offset of an archive before a single byte is written.
type plan struct {
	nodes     []*node // arena, nodes[i].index == i
	files     []*node // data order
	names     []byte
	nameBase  int64
	dataStart int64
}

// Write packs the tree rooted at fsys into w. Children are ordered by byte
// comparison of their names, so the same tree always yields the same bytes.
func Write(w io.Writer, fsys fs.FS, opts ...WriteOption) error {
	o := writeOptions{keep: func(string, bool) bool { return true }}
	for _, opt := range opts {
		opt(&o)
	}

	root := &node{name: "/", path: ".", dir: true}
	if err := scan(fsys, root, o.keep); err != nil {
		return err
	}
	p, err := planLayout(root)
	if err != nil {
		return err
	}
	return p.serialize(w, fsys)
}

// Pack reads the directory dir and returns the packed archive.
func Pack(dir string, opts ...WriteOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, os.DirFS(dir), opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scan(fsys fs.FS, dir *node, keep func(string, bool) bool) error {
	dirEntries, err := fs.ReadDir(fsys, dir.path)
	if err != nil {
		return err
	}

	for _, de := range dirEntries {
		p := path.Join(dir.path, de.Name())
		info, err := fs.Stat(fsys, p) // follows symlinks
		if err != nil {
			return err
		}
		isDir := info.IsDir()
		if !isDir && !info.Mode().IsRegular() {
			continue
		}
		if !keep(p, isDir) {
			continue
		}

		child := &node{name: de.Name(), path: p, dir: isDir, size: info.Size()}
		if isDir {
			if err := scan(fsys, child, keep); err != nil {
				return err
			}
		}
		dir.children = append(dir.children, child)
	}

	sort.Slice(dir.children, func(i, j int) bool {
		return dir.children[i].name < dir.children[j].name
	})
	return nil
}

func countNodes(n *node) int {
	total := 1
	for _, c := range n.children {
		total += countNodes(c)
	}
	return total
}

func planLayout(root *node) (*plan, error) {
	count := countNodes(root)
	p := &plan{
		nodes:    make([]*node, count),
		nameBase: int64(entryBase) + int64(count)*entrySize,
	}

	root.index = 0
	root.childStart = 1
	p.nodes[0] = root
	p.appendName(root)
	p.layout(root)

	p.dataStart = int64(reservedSize)
	if end := alignUp(p.nameBase + int64(len(p.names))); end > p.dataStart {
		p.dataStart = end
	}

	cursor := p.dataStart
	for _, f := range p.files {
		f.dataOffset = cursor
		cursor += alignUp(f.size)
		if cursor > int64(offsetMask) {
			return nil, fmt.Errorf("%w: data of %q ends past offset 0x%x", ErrTooLarge, f.path, offsetMask)
		}
	}
	return p, nil
}

// layout assigns contiguous indices to dir's children and then walks them in
// order, giving each subdirectory the next free range for its own children.
// Names and file data are laid out in the same pre-order visit.
func (p *plan) layout(dir *node) (next uint32) {
	next = dir.childStart + uint32(len(dir.children))
	for i, c := range dir.children {
		c.index = dir.childStart + uint32(i)
		p.nodes[c.index] = c
		p.appendName(c)
		if c.dir {
			c.childStart = next
			next = p.layout(c)
			continue
		}
		p.files = append(p.files, c)
	}
	return next
}

func (p *plan) appendName(n *node) {
	n.nameOffset = uint32(len(p.names))
	p.names = append(p.names, n.name...)
	p.names = append(p.names, 0)
}

func (p *plan) entry(n *node) rawEntry {
	if n.dir {
		cnt := uint32(len(n.children))
		return rawEntry{NameOffset: n.nameOffset, Length: cnt, DataOffset: n.childStart | dirFlag, Flags: cnt}
	}
	return rawEntry{NameOffset: n.nameOffset, Length: uint32(n.size), DataOffset: uint32(n.dataOffset), Flags: uint32(n.size)}
}

func (p *plan) serialize(w io.Writer, fsys fs.FS) error {
	head := make([]byte, p.dataStart)
	Header{Magic: Magic, DataStart: uint32(p.dataStart), EntryCount: uint32(len(p.nodes))}.marshal(head)
	for i, n := range p.nodes {
		off := entryBase + i*entrySize
		p.entry(n).marshal(head[off : off+entrySize])
	}
	copy(head[p.nameBase:], p.names)
	if _, err := w.Write(head); err != nil {
		return err
	}

	var pad [Align]byte
	for _, f := range p.files {
		data, err := fs.ReadFile(fsys, f.path)
		if err != nil {
			return err
		}
		if int64(len(data)) != f.size {
			return fmt.Errorf("file %q changed size while packing: %d != %d", f.path, len(data), f.size)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if n := alignUp(f.size) - f.size; n > 0 {
			if _, err := w.Write(pad[:n]); err != nil {
				return err
			}
		}
	}
	return nil
}
