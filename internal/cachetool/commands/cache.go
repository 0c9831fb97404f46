// Package commands implements the verbs of the cachetool application.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/lib"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
	"github.com/rs/zerolog/log"
)

// CacheStats are the counters every verb reports about the cache it read.
type CacheStats struct {
	Descriptors          int
	DecodeErrors         int
	Matched              int
	UnmatchedDescriptors int
	UnmatchedBlobs       int
}

// cacheSession is an opened cache: the working directory is locked, the
// database decrypted and the descriptors joined to their blobs.
type cacheSession struct {
	cacheDir    string
	workDir     string
	descriptors []types.Descriptor
	catalog     *lib.Catalog
	stats       CacheStats
	unlock      func() error
}

func openCache(cacheDir, workDir string) (*cacheSession, error) {
	if cacheDir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	absCacheDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve path: %w", err)
	}
	exists, err := lib.DirExists(absCacheDir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("cache directory not found: %s", absCacheDir)
	}

	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve path: %w", err)
	}
	if err := os.MkdirAll(absWorkDir, 0755); err != nil {
		return nil, err
	}

	unlock, err := lib.LockWorkDir(absWorkDir)
	if err != nil {
		return nil, err
	}
	s := &cacheSession{cacheDir: absCacheDir, workDir: absWorkDir, unlock: unlock}

	if err := s.load(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *cacheSession) load() error {
	log.Info().Str("path", lib.GetCacheDatabaseDir(s.cacheDir)).Msg("decrypting database")
	dbDir, err := lib.DecryptDatabase(s.cacheDir, s.workDir)
	if err != nil {
		return err
	}

	log.Info().Msg("reading entries from database")
	descriptors, decodeErrors, err := lib.ReadDescriptors(dbDir)
	if err != nil {
		return err
	}
	catalog, err := lib.BuildCatalog(s.cacheDir, descriptors)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	s.descriptors = descriptors
	s.catalog = catalog
	s.stats = CacheStats{
		Descriptors:          catalog.Descriptors,
		DecodeErrors:         decodeErrors,
		Matched:              catalog.Matched,
		UnmatchedDescriptors: catalog.UnmatchedDescriptors,
		UnmatchedBlobs:       catalog.UnmatchedBlobs,
	}

	log.Info().
		Int("entries", s.stats.Descriptors).
		Int("errors", s.stats.DecodeErrors).
		Int("matched", s.stats.Matched).
		Int("skipped_entries", s.stats.UnmatchedDescriptors).
		Int("skipped_files", s.stats.UnmatchedBlobs).
		Msg("cache loaded")
	return nil
}

// Close releases the working directory lock.
func (s *cacheSession) Close() {
	if s.unlock != nil {
		if err := s.unlock(); err != nil {
			log.Warn().Err(err).Msg("failed to release the working directory lock")
		}
		s.unlock = nil
	}
}

// groups returns the resource groups, restricted to the named resources
// when any are given.
func (s *cacheSession) groups(resources []string) []*lib.ResourceGroup {
	all := s.catalog.Groups()
	if len(resources) == 0 {
		return all
	}

	wanted := make(map[string]bool, len(resources))
	for _, r := range resources {
		wanted[r] = true
	}
	var groups []*lib.ResourceGroup
	for _, g := range all {
		if wanted[g.ResourceName] {
			groups = append(groups, g)
		}
	}
	return groups
}

// outputDir resolves the output template for a version and checks that the
// original filename stays inside it.
func outputDir(template string, v types.Version) (string, error) {
	if !filepath.IsLocal(v.Descriptor.OriginalFilename) {
		return "", fmt.Errorf("unsafe original filename %q", v.Descriptor.OriginalFilename)
	}
	return lib.ResolveOutputPath(template, v.Descriptor, v.ModTime)
}

func newReport(v types.Version) types.ResourceReport {
	return types.ResourceReport{
		ResourceName:     v.Descriptor.ResourceName,
		OriginalFilename: v.Descriptor.OriginalFilename,
		Blob:             v.Descriptor.Filename,
		ModTime:          v.ModTime,
	}
}

func failed(report types.ResourceReport, err error) types.ResourceReport {
	report.Status = types.StatusFailed
	report.Reason = err.Error()
	log.Error().Err(err).
		Str("resource", report.ResourceName).
		Str("file", report.OriginalFilename).
		Str("blob", report.Blob).
		Msg("resource failed")
	return report
}

func skipped(report types.ResourceReport, reason string) types.ResourceReport {
	report.Status = types.StatusSkipped
	report.Reason = reason
	log.Info().
		Str("resource", report.ResourceName).
		Str("file", report.OriginalFilename).
		Str("path", report.OutputPath).
		Msg("skipping: " + reason)
	return report
}

func printStats(stats CacheStats) {
	fmt.Printf("   - Entries found: %d (errors reading %d)\n", stats.Descriptors, stats.DecodeErrors)
	fmt.Printf("   - Skipped entries without a file: %d\n", stats.UnmatchedDescriptors)
	fmt.Printf("   - Skipped files without an entry: %d\n", stats.UnmatchedBlobs)
}
