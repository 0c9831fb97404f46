package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/lib"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
)

// ListOptions holds the configuration for the list command.
type ListOptions struct {
	CacheDir  string
	WorkDir   string
	Resources []string
}

// List prints every descriptor of the cache with the state of its blob.
func List(options ListOptions) (*CacheStats, error) {
	session, err := openCache(options.CacheDir, options.WorkDir)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	blobs, err := lib.ListBlobs(session.cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	wanted := make(map[string]bool, len(options.Resources))
	for _, r := range options.Resources {
		wanted[r] = true
	}
	var descriptors []types.Descriptor
	for _, d := range session.descriptors {
		if len(wanted) == 0 || wanted[d.ResourceName] {
			descriptors = append(descriptors, d)
		}
	}
	sort.SliceStable(descriptors, func(i, j int) bool {
		a, b := descriptors[i], descriptors[j]
		if a.ResourceName != b.ResourceName {
			return a.ResourceName < b.ResourceName
		}
		if a.OriginalFilename != b.OriginalFilename {
			return a.OriginalFilename < b.OriginalFilename
		}
		return blobs[a.Filename].ModTime.After(blobs[b.Filename].ModTime)
	})

	if len(descriptors) == 0 {
		fmt.Printf("No cached resources found in \"%s\".\n", session.cacheDir)
		printStats(session.stats)
		return &session.stats, nil
	}

	fmt.Printf("Cached resources in \"%s\":\n", session.cacheDir)
	fmt.Printf("%-24s %-32s %-20s %-24s %s\n", "RESOURCE", "FILE", "BLOB", "MODIFIED", "SERVER")
	fmt.Printf("%-24s %-32s %-20s %-24s %s\n", "========", "====", "====", "========", "======")

	for _, d := range descriptors {
		modified := "missing"
		if blob, ok := blobs[d.Filename]; ok {
			modified = blob.ModTime.UTC().Format("2006-01-02 15:04:05 MST")
		}
		fmt.Printf("%-24s %-32s %-20s %-24s %s\n",
			d.ResourceName,
			d.OriginalFilename,
			shorten(d.Filename, 20),
			modified,
			server(d.From),
		)
	}

	fmt.Println()
	printStats(session.stats)
	return &session.stats, nil
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func server(from string) string {
	name, err := lib.ServerName(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return name
}
