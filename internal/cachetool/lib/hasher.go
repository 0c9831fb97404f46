package lib

import (
	_ "crypto/sha256" // registers digest.Canonical
	"os"

	"github.com/opencontainers/go-digest"
)

// GetDigest returns the canonical SHA-256 digest of an in-memory buffer.
// Resync compares these digests to decide whether content changed.
func GetDigest(content []byte) digest.Digest {
	return digest.FromBytes(content)
}

// GetFileDigest streams a file from disk and returns its canonical digest.
func GetFileDigest(filePath string) (digest.Digest, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return digest.Canonical.FromReader(file)
}
