package lib

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/karrick/godirwalk"
)

// ListFiles returns the slash-separated paths, relative to root, of every
// regular file below root that the ignore rules keep. Symlinks are followed
// the same way the archive writer follows them. The result is sorted.
func ListFiles(root string, rules IgnoreRules) ([]string, error) {
	var files []string

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if osPathname == root {
				return nil
			}
			relPath, err := filepath.Rel(root, osPathname)
			if err != nil {
				return err
			}
			rel := filepath.ToSlash(relPath)

			isDir, err := de.IsDirOrSymlinkToDir()
			if err != nil {
				return err
			}
			if rules.Ignored(rel, isDir) {
				if isDir {
					return godirwalk.SkipThis
				}
				return nil
			}
			if isDir {
				return nil
			}

			regular := de.IsRegular()
			if de.IsSymlink() {
				info, err := os.Stat(osPathname)
				if err != nil {
					return err
				}
				regular = info.Mode().IsRegular()
			}
			if regular {
				files = append(files, rel)
			}
			return nil
		},
		FollowSymbolicLinks: true,
		Unsorted:            false,
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
