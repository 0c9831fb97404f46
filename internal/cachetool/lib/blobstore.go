package lib

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/crypt"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
)

// BlobInfo describes one encrypted file at the top level of a cache directory.
type BlobInfo struct {
	Name    string
	Path    string
	ModTime time.Time
}

// ListBlobs returns the regular files directly inside cacheDir, keyed by
// name. The database directory and anything else that is not a regular file
// is left out.
func ListBlobs(cacheDir string) (map[string]BlobInfo, error) {
	dirEntries, err := os.ReadDir(cacheDir)
	if err != nil {
		return nil, err
	}

	blobs := make(map[string]BlobInfo, len(dirEntries))
	for _, entry := range dirEntries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		blobs[entry.Name()] = BlobInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(cacheDir, entry.Name()),
			ModTime: info.ModTime(),
		}
	}
	return blobs, nil
}

// ReadResource decrypts a version's blob: first the self-keyed outer layer,
// then the resource-keyed payload. The blob's own IV is returned so an
// unchanged payload can be written back byte for byte.
func ReadResource(v types.Version) ([]byte, [crypt.IVSize]byte, error) {
	var iv [crypt.IVSize]byte
	content, err := os.ReadFile(v.BlobPath)
	if err != nil {
		return nil, iv, err
	}

	inner, iv, err := crypt.DecryptSelfKeyed(content)
	if err != nil {
		return nil, iv, fmt.Errorf("blob %s: %w", v.Descriptor.Filename, err)
	}
	return crypt.DecryptWithKey(inner, v.Descriptor.Key, v.Descriptor.IV), iv, nil
}

// WriteResource encrypts payload the way ReadResource decrypts it and
// overwrites the version's blob. The blob keeps its modification time so it
// stays the latest version of its group.
func WriteResource(v types.Version, payload []byte, iv [crypt.IVSize]byte) error {
	blob, err := crypt.EncryptSelfKeyed(crypt.EncryptWithKey(payload, v.Descriptor.Key, v.Descriptor.IV), &iv)
	if err != nil {
		return err
	}
	if err := os.WriteFile(v.BlobPath, blob, 0644); err != nil {
		return err
	}
	return os.Chtimes(v.BlobPath, v.ModTime, v.ModTime)
}
