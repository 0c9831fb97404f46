package lib

import (
	"bytes"
	"io"

	"github.com/aclements/go-rabin/rabin"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
)

// Constants for the Rabin chunker configuration.
const (
	minChunkSize = 4 * 1024  // 4KB
	avgChunkSize = 8 * 1024  // 8KB
	maxChunkSize = 16 * 1024 // 16KB

	// A 64-bit irreducible polynomial over GF(2).
	defaultPoly = rabin.Poly64
	// The size of the rolling hash window.
	defaultWindowSize = 64
)

// rabinTable is expensive to build, so it is computed once.
var rabinTable = rabin.NewTable(defaultPoly, defaultWindowSize)

// ChunkBytes splits content into content-defined chunks. Content smaller
// than the minimum chunk size becomes a single chunk; empty content has none.
func ChunkBytes(content []byte) ([]types.Chunk, error) {
	if len(content) == 0 {
		return []types.Chunk{}, nil
	}

	chunker := rabin.NewChunker(rabinTable, bytes.NewReader(content), minChunkSize, avgChunkSize, maxChunkSize)

	var chunks []types.Chunk
	var offset int
	for {
		length, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		data := content[offset : offset+length]
		offset += length
		chunks = append(chunks, types.Chunk{
			Digest: GetDigest(data).String(),
			Size:   int64(length),
			Data:   data,
		})
	}

	if len(chunks) == 0 {
		chunks = append(chunks, types.Chunk{Digest: GetDigest(content).String(), Size: int64(len(content)), Data: content})
	}
	return chunks, nil
}

// ChunkDelta reports how many chunks of after do not occur anywhere in
// before, and how many chunks after has. Chunk boundaries follow content, so
// a local edit only touches the chunks around it.
func ChunkDelta(before, after []byte) (changed, total int, err error) {
	old, err := ChunkBytes(before)
	if err != nil {
		return 0, 0, err
	}
	cur, err := ChunkBytes(after)
	if err != nil {
		return 0, 0, err
	}

	known := make(map[string]bool, len(old))
	for _, c := range old {
		known[c.Digest] = true
	}
	for _, c := range cur {
		if !known[c.Digest] {
			changed++
		}
	}
	return changed, len(cur), nil
}
