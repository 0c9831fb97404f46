// Package lib contains the core, reusable services for the cachetool application.
package lib

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/denormal/go-gitignore"
)

// --- Constants ---

// DatabaseDirName is the name of the descriptor database directory, both
// inside the cache directory (encrypted) and inside the working directory
// (decrypted copy).
const DatabaseDirName = "db"

// LockFilename is the advisory lock taken in the working directory for the
// duration of a run.
const LockFilename = ".cachetool.lock"

// IgnoreFilename is the name of the file, inside an extracted archive
// directory, holding patterns excluded from resync and repacking.
const IgnoreFilename = ".cacheignore"

// DefaultOutputTemplate lays extracted resources out per server and name.
const DefaultOutputTemplate = "dump/%s/%n"

// defaultIgnorePatterns are excluded from extracted archive trees unless the
// archive itself ships them.
var defaultIgnorePatterns = []string{
	".git",
	IgnoreFilename,
}

// --- Path Helper Functions ---

// GetCacheDatabaseDir returns the encrypted database directory of a cache.
func GetCacheDatabaseDir(cacheDir string) string {
	return filepath.Join(cacheDir, DatabaseDirName)
}

// GetWorkDatabaseDir returns the decrypted database copy inside a working directory.
func GetWorkDatabaseDir(workDir string) string {
	return filepath.Join(workDir, DatabaseDirName)
}

// GetLockPath returns the lock file path for a working directory.
func GetLockPath(workDir string) string {
	return filepath.Join(workDir, LockFilename)
}

// --- Ignore Rules ---

// IgnoreRules decides which paths of an extracted archive tree take part in
// diffing and repacking. Paths of the reference archive are never ignored, so
// an untouched extraction always packs back to the same archive.
type IgnoreRules struct {
	matcher   gitignore.GitIgnore
	keepFiles map[string]bool
	keepDirs  map[string]bool
}

// LoadIgnoreRules compiles the rules for the extracted tree rooted at dir.
// keep lists the slash-separated file paths of the reference archive.
func LoadIgnoreRules(dir string, keep []string) IgnoreRules {
	rules := IgnoreRules{
		matcher:   compileIgnoreRules(dir),
		keepFiles: make(map[string]bool, len(keep)),
		keepDirs:  make(map[string]bool),
	}
	for _, p := range keep {
		rules.keepFiles[p] = true
		for d := path.Dir(p); d != "."; d = path.Dir(d) {
			rules.keepDirs[d] = true
		}
	}
	return rules
}

// Ignored reports whether rel, a slash-separated path relative to the tree
// root, is excluded. A path is also excluded when one of its parent
// directories is, unless the reference archive holds it.
func (r IgnoreRules) Ignored(rel string, isDir bool) bool {
	if r.keepFiles[rel] || (isDir && r.keepDirs[rel]) {
		return false
	}
	for p := rel; p != "."; p, isDir = path.Dir(p), true {
		if match := r.matcher.Relative(p, isDir); match != nil && match.Ignore() {
			return true
		}
	}
	return false
}

func compileIgnoreRules(dir string) gitignore.GitIgnore {
	rawPatterns := append([]string{}, defaultIgnorePatterns...)
	if content, err := os.ReadFile(filepath.Join(dir, IgnoreFilename)); err == nil {
		rawPatterns = append(rawPatterns, strings.Split(string(content), "\n")...)
	}

	var patterns []string
	for _, p := range rawPatterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		patterns = append(patterns, strings.ReplaceAll(p, "\\", "/"))
	}

	matcher := gitignore.New(
		strings.NewReader(strings.Join(patterns, "\n")),
		dir,
		func(err gitignore.Error) bool { return false },
	)
	if matcher == nil {
		return gitignore.New(strings.NewReader(""), dir, nil)
	}
	return matcher
}
