package lib

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
	"github.com/rs/zerolog/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrRecordDecode marks a database record that could not be turned into a
// descriptor. Such records are counted and skipped.
var ErrRecordDecode = errors.New("malformed cache record")

// cacheRecord is the msgpack map stored per cached file.
type cacheRecord struct {
	FileURI string     `msgpack:"fn"`
	Hash    string     `msgpack:"h"`
	Meta    recordMeta `msgpack:"m"`
}

type recordMeta struct {
	From     string      `msgpack:"from"`
	Filename string      `msgpack:"filename"`
	Resource string      `msgpack:"resource"`
	IV       interface{} `msgpack:"i"`
	Key      interface{} `msgpack:"k"`
}

// blobURIPattern extracts the blob name from values like "cache:/0a1b2c_ff".
var blobURIPattern = regexp.MustCompile(`\w+:/([0-9a-z_]+)`)

// DecodeRecord turns one raw database value into a descriptor.
func DecodeRecord(value []byte) (types.Descriptor, error) {
	var rec cacheRecord
	if err := msgpack.Unmarshal(value, &rec); err != nil {
		return types.Descriptor{}, fmt.Errorf("%w: %v", ErrRecordDecode, err)
	}

	m := blobURIPattern.FindStringSubmatch(rec.FileURI)
	if m == nil {
		return types.Descriptor{}, fmt.Errorf("%w: no blob name in %q", ErrRecordDecode, rec.FileURI)
	}
	if rec.Meta.Filename == "" || rec.Meta.Resource == "" {
		return types.Descriptor{}, fmt.Errorf("%w: record for %s lacks filename or resource", ErrRecordDecode, m[1])
	}

	d := types.Descriptor{
		From:             rec.Meta.From,
		Filename:         m[1],
		OriginalFilename: rec.Meta.Filename,
		ResourceName:     rec.Meta.Resource,
		Hash:             rec.Hash,
	}

	iv, err := decodeFixed(rec.Meta.IV, len(d.IV))
	if err != nil {
		return types.Descriptor{}, fmt.Errorf("%w: iv: %v", ErrRecordDecode, err)
	}
	key, err := decodeFixed(rec.Meta.Key, len(d.Key))
	if err != nil {
		return types.Descriptor{}, fmt.Errorf("%w: key: %v", ErrRecordDecode, err)
	}
	copy(d.IV[:], iv)
	copy(d.Key[:], key)
	return d, nil
}

// decodeFixed accepts the encodings the client has used for key material:
// raw bytes, a literal string of size characters, hex with or without a 0x
// prefix, or a UTF-8 string of size bytes.
func decodeFixed(v interface{}, size int) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		if len(val) != size {
			return nil, fmt.Errorf("got %d raw bytes, want %d", len(val), size)
		}
		return val, nil
	case string:
		if b, ok := latin1Bytes(val, size); ok {
			return b, nil
		}
		if strings.HasPrefix(val, "0x") && len(val) == size*2+2 {
			return hex.DecodeString(val[2:])
		}
		if len(val) == size*2 {
			return hex.DecodeString(val)
		}
		if len(val) == size {
			return []byte(val), nil
		}
		return nil, fmt.Errorf("string of length %d does not encode %d bytes", len(val), size)
	case nil:
		return nil, errors.New("missing")
	default:
		return nil, fmt.Errorf("unexpected type %T", v)
	}
}

// latin1Bytes maps a string of exactly size characters, each below 256, to
// one byte per character.
func latin1Bytes(s string, size int) ([]byte, bool) {
	if utf8.RuneCountInString(s) != size {
		return nil, false
	}
	out := make([]byte, 0, size)
	for _, r := range s {
		if r > 0xFF || r == utf8.RuneError {
			return nil, false
		}
		out = append(out, byte(r))
	}
	return out, true
}

// ReadDescriptors opens a decrypted database copy and decodes every record.
// Records that fail to decode are counted, not returned as errors.
func ReadDescriptors(dbDir string) ([]types.Descriptor, int, error) {
	db, err := leveldb.OpenFile(dbDir, &opt.Options{ReadOnly: true, ErrorIfMissing: true})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open database %s: %w", dbDir, err)
	}
	defer db.Close()

	var descriptors []types.Descriptor
	var errorCount int

	iter := db.NewIterator(nil, nil)
	for iter.Next() {
		d, err := DecodeRecord(iter.Value())
		if err != nil {
			errorCount++
			log.Debug().Err(err).Str("key", string(iter.Key())).Msg("skipping record")
			continue
		}
		descriptors = append(descriptors, d)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, errorCount, fmt.Errorf("failed to iterate database %s: %w", dbDir, err)
	}

	return descriptors, errorCount, nil
}
