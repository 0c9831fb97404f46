package commands_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/commands"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/crypt"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/lib"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/rpf"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/vmihailenco/msgpack/v5"
)

const testServer = "127.0.0.1_30120"

var baseTime = time.Date(2024, time.May, 17, 10, 0, 0, 0, time.UTC)

// testResource is one cached version to place in a test cache.
type testResource struct {
	blob     string
	resource string
	filename string
	payload  []byte
	modTime  time.Time
}

func (r testResource) descriptor() types.Descriptor {
	d := types.Descriptor{
		From:             "http://127.0.0.1:30120/files/" + r.resource + "/" + r.filename,
		Filename:         r.blob,
		OriginalFilename: r.filename,
		ResourceName:     r.resource,
		Hash:             "h" + r.blob,
	}
	copy(d.Key[:], bytes.Repeat([]byte(r.blob), 32))
	copy(d.IV[:], bytes.Repeat([]byte(r.blob), 8))
	return d
}

// testCache is an encrypted cache directory laid out like the client's.
type testCache struct {
	root      string
	cacheDir  string
	workDir   string
	template  string
	resources map[string]testResource
}

// outputPath returns where a resource of the default test template lands.
func (c *testCache) outputPath(resource, filename string) string {
	return filepath.Join(c.root, "dump", testServer, resource, filename)
}

func (c *testCache) blobPath(blob string) string {
	return filepath.Join(c.cacheDir, blob)
}

func (c *testCache) readBlob(t *testing.T, blob string) []byte {
	t.Helper()
	content, err := os.ReadFile(c.blobPath(blob))
	require.NoError(t, err)
	return content
}

// readResource decrypts a blob of the cache back into its payload.
func (c *testCache) readResource(t *testing.T, blob string) []byte {
	t.Helper()
	r := c.resources[blob]
	payload, _, err := lib.ReadResource(types.Version{Descriptor: r.descriptor(), BlobPath: c.blobPath(blob)})
	require.NoError(t, err)
	return payload
}

func (c *testCache) decodeOptions() commands.DecodeOptions {
	return commands.DecodeOptions{CacheDir: c.cacheDir, WorkDir: c.workDir, OutputTemplate: c.template}
}

func (c *testCache) encodeOptions() commands.EncodeOptions {
	return commands.EncodeOptions{CacheDir: c.cacheDir, WorkDir: c.workDir, OutputTemplate: c.template}
}

// buildArchive packs an in-memory tree into an archive.
func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content), Mode: 0644}
	}
	var buf bytes.Buffer
	require.NoError(t, rpf.Write(&buf, fsys))
	return buf.Bytes()
}

// buildTestCache writes resources as encrypted blobs plus a self-keyed
// encrypted descriptor database. extraRecords are stored verbatim.
func buildTestCache(t *testing.T, resources []testResource, extraRecords map[string][]byte) *testCache {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	c := &testCache{
		root:      root,
		cacheDir:  filepath.Join(root, "cache"),
		workDir:   filepath.Join(root, "work"),
		template:  filepath.Join(root, "dump", "%s", "%n"),
		resources: make(map[string]testResource),
	}
	require.NoError(t, os.MkdirAll(lib.GetCacheDatabaseDir(c.cacheDir), 0755))

	plainDB := filepath.Join(root, "plain-db")
	db, err := leveldb.OpenFile(plainDB, nil)
	require.NoError(t, err)

	for _, r := range resources {
		d := r.descriptor()
		record, err := msgpack.Marshal(map[string]interface{}{
			"fn": "cache:/" + d.Filename,
			"h":  d.Hash,
			"m": map[string]interface{}{
				"from":     d.From,
				"filename": d.OriginalFilename,
				"resource": d.ResourceName,
				"i":        d.IV[:],
				"k":        d.Key[:],
			},
		})
		require.NoError(t, err)
		require.NoError(t, db.Put([]byte("cache:/"+d.Filename), record, nil))

		if r.payload == nil {
			continue // descriptor without a blob
		}
		blob, err := crypt.EncryptSelfKeyed(crypt.EncryptWithKey(r.payload, d.Key, d.IV), nil)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(c.blobPath(r.blob), blob, 0644))
		require.NoError(t, os.Chtimes(c.blobPath(r.blob), r.modTime, r.modTime))
		c.resources[r.blob] = r
	}
	for key, value := range extraRecords {
		require.NoError(t, db.Put([]byte(key), value, nil))
	}
	require.NoError(t, db.Close())

	dbFiles, err := os.ReadDir(plainDB)
	require.NoError(t, err)
	for _, f := range dbFiles {
		content, err := os.ReadFile(filepath.Join(plainDB, f.Name()))
		require.NoError(t, err)
		encrypted, err := crypt.EncryptSelfKeyed(content, nil)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(lib.GetCacheDatabaseDir(c.cacheDir), f.Name()), encrypted, 0644))
	}
	return c
}

// snapshotBlobs reads every blob of the cache.
func snapshotBlobs(t *testing.T, c *testCache) map[string][]byte {
	t.Helper()
	blobs := make(map[string][]byte)
	for name := range c.resources {
		blobs[name] = c.readBlob(t, name)
	}
	return blobs
}

// captureStdout is a helper function to redirect os.Stdout to an in-memory
// buffer, execute a function, and then return the captured output.
func captureStdout(f func()) (string, error) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	os.Stdout = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()

	f()

	_ = w.Close()
	os.Stdout = oldStdout
	return <-outC, nil
}
