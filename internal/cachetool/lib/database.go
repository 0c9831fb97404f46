package lib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/crypt"
	"github.com/rs/zerolog/log"
)

// DecryptDatabase decrypts every file of <cacheDir>/db into <workDir>/db and
// returns the working copy's path. Files too short to carry an IV become
// empty files, which is how the client leaves fresh log and lock files.
func DecryptDatabase(cacheDir, workDir string) (string, error) {
	src := GetCacheDatabaseDir(cacheDir)
	dst := GetWorkDatabaseDir(workDir)

	same, err := samePath(src, dst)
	if err != nil {
		return "", err
	}
	if same {
		return "", fmt.Errorf("working directory %s would overwrite the cache database", workDir)
	}

	dirEntries, err := os.ReadDir(src)
	if err != nil {
		return "", fmt.Errorf("failed to read cache database %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return "", err
	}

	for _, entry := range dirEntries {
		if !entry.Type().IsRegular() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(src, entry.Name()))
		if err != nil {
			return "", err
		}

		var plain []byte
		if len(content) >= crypt.IVSize {
			plain, _, err = crypt.DecryptSelfKeyed(content)
			if err != nil {
				return "", err
			}
		}
		if err := os.WriteFile(filepath.Join(dst, entry.Name()), plain, 0644); err != nil {
			return "", err
		}
		log.Debug().Str("file", entry.Name()).Int("size", len(plain)).Msg("decrypted database file")
	}

	return dst, nil
}

// samePath reports whether a and b resolve to the same location. Paths that
// do not exist yet are compared lexically.
func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	if absA == absB {
		return true, nil
	}

	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	if errA != nil || errB != nil {
		return false, nil
	}
	return os.SameFile(infoA, infoB), nil
}
