package rpf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packFS(t *testing.T, fsys fstest.MapFS, opts ...WriteOption) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, fsys, opts...), "Write failed")
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	fsys := fstest.MapFS{
		"b.txt":    {Data: []byte("bee")},
		"B":        {Data: []byte("upper")},
		"a.txt":    {Data: bytes.Repeat([]byte{0xAA}, Align)},
		"a/z.bin":  {Data: bytes.Repeat([]byte{1, 2, 3}, 1000)},
		"a/c/x":    {Data: []byte{}},
		"a/c/y":    {Data: []byte{0}},
		"empty":    {Mode: os.ModeDir | 0755},
		"zz/deep1": {Data: []byte("1")},
	}

	archive := packFS(t, fsys)
	files, err := ReadEntries(archive)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
		want, ok := fsys[f.Path]
		require.True(t, ok, "unexpected path %s", f.Path)
		assert.Equal(t, want.Data, f.Data, "content of %s", f.Path)
	}
	// Depth-first, each directory sorted by byte order, directories and files interleaved.
	assert.Equal(t, []string{"B", "a/c/x", "a/c/y", "a/z.bin", "a.txt", "b.txt", "zz/deep1"}, paths)
}

func TestWriteLayout(t *testing.T) {
	fsys := fstest.MapFS{
		"f1":   {Data: []byte("world!")},
		"d/f2": {Data: []byte("hello")},
	}
	archive := packFS(t, fsys)

	require.Len(t, archive, 8192)

	h := unmarshalHeader(archive)
	assert.Equal(t, Magic, h.Magic)
	assert.Equal(t, uint32(reservedSize), h.DataStart)
	assert.Equal(t, uint32(4), h.EntryCount)
	assert.Zero(t, h.Flags)
	assert.Zero(t, h.CryptoFlag)

	entry := func(i int) rawEntry {
		off := entryBase + i*entrySize
		return unmarshalEntry(archive[off : off+entrySize])
	}
	// Root and "d" are directories; "d"'s child is placed after the root's children.
	assert.Equal(t, rawEntry{NameOffset: 0, Length: 2, DataOffset: 1 | dirFlag, Flags: 2}, entry(0))
	assert.Equal(t, rawEntry{NameOffset: 2, Length: 1, DataOffset: 3 | dirFlag, Flags: 1}, entry(1))
	// Names are laid out in visit order: "/", "d", "f2", then "f1".
	assert.Equal(t, rawEntry{NameOffset: 7, Length: 6, DataOffset: 6144, Flags: 6}, entry(2))
	assert.Equal(t, rawEntry{NameOffset: 4, Length: 5, DataOffset: 4096, Flags: 5}, entry(3))

	nameBase := entryBase + 4*entrySize
	assert.Equal(t, []byte("/\x00d\x00f2\x00f1\x00"), archive[nameBase:nameBase+10])

	assert.Equal(t, []byte("hello"), archive[4096:4101])
	assert.Equal(t, make([]byte, Align-5), archive[4101:6144], "payload must be zero padded")
	assert.Equal(t, []byte("world!"), archive[6144:6150])
}

func TestRepackIsByteIdentical(t *testing.T) {
	srcDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{
		"stream/a.ytd":         strings.Repeat("texture", 500),
		"stream/sub/b.yft":     "model",
		"fxmanifest.lua":       "fx_version 'cerulean'",
		"client/client.lua":    "print('hi')",
		"client/Zed/upper.lua": "",
	})

	first, err := Pack(srcDir)
	require.NoError(t, err)

	files, err := ReadEntries(first)
	require.NoError(t, err)

	extracted := t.TempDir()
	for _, f := range files {
		dst := filepath.Join(extracted, filepath.FromSlash(f.Path))
		require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0755))
		require.NoError(t, os.WriteFile(dst, f.Data, 0644))
	}

	second, err := Pack(extracted)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second), "repacking an extracted archive must reproduce the same bytes")
}

func TestWriteFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"keep.lua":      {Data: []byte("a")},
		"drop.tmp":      {Data: []byte("b")},
		"cache/x.lua":   {Data: []byte("c")},
		"nested/y.tmp":  {Data: []byte("d")},
		"nested/z.lua":  {Data: []byte("e")},
		"cache/.marker": {Data: []byte("f")},
	}
	archive := packFS(t, fsys, WithFilter(func(name string, isDir bool) bool {
		if isDir && name == "cache" {
			return false
		}
		return !strings.HasSuffix(name, ".tmp")
	}))

	files, err := ReadEntries(archive)
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"keep.lua", "nested/z.lua"}, paths)
	assert.Equal(t, uint32(4), unmarshalHeader(archive).EntryCount)
}

func TestWriteEmptyTree(t *testing.T) {
	archive := packFS(t, fstest.MapFS{})
	assert.Len(t, archive, reservedSize)

	files, err := ReadEntries(archive)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWriteLargeIndexMovesDataStart(t *testing.T) {
	fsys := fstest.MapFS{}
	for i := 0; i < 100; i++ {
		fsys[fmt.Sprintf("%s_%03d.lua", strings.Repeat("n", 40), i)] = &fstest.MapFile{Data: []byte{byte(i)}}
	}
	archive := packFS(t, fsys)

	h := unmarshalHeader(archive)
	assert.Greater(t, h.DataStart, uint32(reservedSize))
	assert.Zero(t, h.DataStart%Align)

	files, err := ReadEntries(archive)
	require.NoError(t, err)
	require.Len(t, files, 100)
	for i, f := range files {
		assert.Equal(t, []byte{byte(i)}, f.Data)
	}
}

func TestIsArchiveName(t *testing.T) {
	assert.True(t, IsArchiveName("resource.rpf"))
	assert.False(t, IsArchiveName("resource.rpf.bak"))
	assert.False(t, IsArchiveName("resource.RPF"))
	assert.False(t, IsArchiveName("fxmanifest.lua"))
}

// rawArchive builds an archive by hand from a list of entries and a name blob.
func rawArchive(h Header, entries []rawEntry, names string, size int) []byte {
	buf := make([]byte, size)
	h.marshal(buf)
	for i, e := range entries {
		e.marshal(buf[entryBase+i*entrySize:])
	}
	copy(buf[entryBase+len(entries)*entrySize:], names)
	return buf
}

func TestReadMalformed(t *testing.T) {
	good := Header{Magic: Magic, DataStart: reservedSize, EntryCount: 2}

	testCases := []struct {
		name    string
		archive []byte
	}{
		{
			name:    "shorter than header",
			archive: []byte{0x52, 0x50, 0x46},
		},
		{
			name:    "bad magic",
			archive: rawArchive(Header{Magic: 0x33465052, EntryCount: 1}, []rawEntry{{DataOffset: 1 | dirFlag}}, "/\x00", reservedSize),
		},
		{
			name:    "crypto flag set",
			archive: rawArchive(Header{Magic: Magic, EntryCount: 1, CryptoFlag: 0x0FFFFFF9}, []rawEntry{{DataOffset: 1 | dirFlag}}, "/\x00", reservedSize),
		},
		{
			name:    "no entries",
			archive: rawArchive(Header{Magic: Magic}, nil, "", reservedSize),
		},
		{
			name:    "entry table past end",
			archive: rawArchive(Header{Magic: Magic, EntryCount: 1000}, nil, "", reservedSize),
		},
		{
			name:    "root is a file",
			archive: rawArchive(Header{Magic: Magic, EntryCount: 1}, []rawEntry{{Length: 0, DataOffset: 0}}, "/\x00", reservedSize),
		},
		{
			name: "child range exceeds entry count",
			archive: rawArchive(good, []rawEntry{
				{NameOffset: 0, Length: 5, DataOffset: 1 | dirFlag, Flags: 5},
				{NameOffset: 2, Length: 1, DataOffset: reservedSize, Flags: 1},
			}, "/\x00a\x00", reservedSize+Align),
		},
		{
			name: "directory points at itself",
			archive: rawArchive(good, []rawEntry{
				{NameOffset: 0, Length: 1, DataOffset: 1 | dirFlag, Flags: 1},
				{NameOffset: 2, Length: 1, DataOffset: 1 | dirFlag, Flags: 1},
			}, "/\x00a\x00", reservedSize),
		},
		{
			name: "directory points at an ancestor",
			archive: rawArchive(good, []rawEntry{
				{NameOffset: 0, Length: 1, DataOffset: 1 | dirFlag, Flags: 1},
				{NameOffset: 2, Length: 1, DataOffset: 0 | dirFlag, Flags: 1},
			}, "/\x00a\x00", reservedSize),
		},
		{
			name: "file data past end",
			archive: rawArchive(good, []rawEntry{
				{NameOffset: 0, Length: 1, DataOffset: 1 | dirFlag, Flags: 1},
				{NameOffset: 2, Length: 100, DataOffset: reservedSize, Flags: 100},
			}, "/\x00a\x00", reservedSize),
		},
		{
			name: "name escapes directory",
			archive: rawArchive(good, []rawEntry{
				{NameOffset: 0, Length: 1, DataOffset: 1 | dirFlag, Flags: 1},
				{NameOffset: 2, Length: 0, DataOffset: reservedSize},
			}, "/\x00..\x00", reservedSize),
		},
		{
			name: "name offset outside archive",
			archive: rawArchive(good, []rawEntry{
				{NameOffset: 0, Length: 1, DataOffset: 1 | dirFlag, Flags: 1},
				{NameOffset: 1 << 20, Length: 0, DataOffset: reservedSize},
			}, "/\x00", reservedSize),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadEntries(tc.archive)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func TestReadUnterminatedName(t *testing.T) {
	// The archive ends inside the second name.
	archive := rawArchive(Header{Magic: Magic, EntryCount: 2}, []rawEntry{
		{NameOffset: 0, Length: 1, DataOffset: 1 | dirFlag, Flags: 1},
		{NameOffset: 2, Length: 0, DataOffset: 0},
	}, "/\x00abc", entryBase+2*entrySize+5)

	_, err := ReadEntries(archive)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}
