package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/crypt"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/lib"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/rpf"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
	"github.com/rs/zerolog/log"
)

// EncodeOptions holds the configuration for the encode command.
type EncodeOptions struct {
	CacheDir       string
	WorkDir        string
	OutputTemplate string
	DryRun         bool     // report changes without touching the cache
	Resources      []string // restrict to these resource names
}

// EncodeResult summarizes an encode run.
type EncodeResult struct {
	CacheStats
	DryRun  bool
	Reports []types.ResourceReport
}

// Overwritten returns how many blobs the run rewrote.
func (r *EncodeResult) Overwritten() int {
	n := 0
	for _, report := range r.Reports {
		if report.Status == types.StatusOverwritten {
			n++
		}
	}
	return n
}

// Encode looks for edits below previously extracted resources and writes the
// edited content back into the cache. Only the latest version of each
// resource is considered, and unchanged resources are never rewritten.
func Encode(options EncodeOptions) (*EncodeResult, error) {
	if options.OutputTemplate == "" {
		options.OutputTemplate = lib.DefaultOutputTemplate
	}

	session, err := openCache(options.CacheDir, options.WorkDir)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	fmt.Printf("🔐 Checking \"%s\" for edited resources...\n", session.cacheDir)
	result := &EncodeResult{CacheStats: session.stats, DryRun: options.DryRun}

	for _, group := range session.groups(options.Resources) {
		report, err := encodeVersion(group.Latest(), options)
		if err != nil {
			return result, err
		}
		result.Reports = append(result.Reports, report)
	}

	printStats(result.CacheStats)
	changed := 0
	for _, r := range result.Reports {
		if r.Status == types.StatusChanged || r.Status == types.StatusOverwritten {
			changed++
		}
	}
	if options.DryRun {
		fmt.Printf("✅ Encode complete (dry run, nothing was saved). %d resources would be overwritten.\n", changed)
	} else {
		fmt.Printf("✅ Encode complete! %d resources overwritten.\n", changed)
	}
	return result, nil
}

func encodeVersion(v types.Version, options EncodeOptions) (types.ResourceReport, error) {
	report := newReport(v)
	d := v.Descriptor

	reference, iv, err := lib.ReadResource(v)
	if errors.Is(err, crypt.ErrShortCiphertext) {
		return failed(report, err), nil
	}
	if err != nil {
		return report, err
	}

	outDir, err := outputDir(options.OutputTemplate, v)
	if err != nil {
		return failed(report, err), nil
	}
	report.OutputPath = filepath.Join(outDir, d.OriginalFilename)

	exists, err := lib.DirExists(outDir)
	if err != nil {
		return report, err
	}
	if !exists {
		return skipped(report, "output directory missing"), nil
	}

	var edited []byte
	if rpf.IsArchiveName(d.OriginalFilename) {
		report, edited, err = diffArchive(report, reference)
	} else {
		report, edited, err = diffFile(report, reference)
	}
	if err != nil || report.Status != "" {
		return report, err
	}

	if options.DryRun {
		report.Status = types.StatusChanged
		return report, nil
	}

	log.Info().
		Str("resource", d.ResourceName).
		Str("file", d.OriginalFilename).
		Str("blob", d.Filename).
		Msg("overwriting")
	if err := lib.WriteResource(v, edited, iv); err != nil {
		return report, err
	}
	report.Status = types.StatusOverwritten
	return report, nil
}

// diffFile compares a plain resource with its extracted copy. It returns the
// new payload when the copy differs; otherwise report.Status is already set.
func diffFile(report types.ResourceReport, reference []byte) (types.ResourceReport, []byte, error) {
	exists, err := lib.FileExists(report.OutputPath)
	if err != nil {
		return report, nil, err
	}
	if !exists {
		return skipped(report, "file missing"), nil, nil
	}
	report.Files = 1

	onDisk, err := lib.GetFileDigest(report.OutputPath)
	if err != nil {
		return report, nil, err
	}
	if onDisk == lib.GetDigest(reference) {
		report.Status = types.StatusUnchanged
		return report, nil, nil
	}

	data, err := os.ReadFile(report.OutputPath)
	if err != nil {
		return report, nil, err
	}
	changedChunks, totalChunks, err := lib.ChunkDelta(reference, data)
	if err != nil {
		return report, nil, err
	}
	report.Changed = []types.FileChange{{Path: report.OriginalFilename, ChangedChunks: changedChunks, TotalChunks: totalChunks}}
	log.Info().
		Str("resource", report.ResourceName).
		Str("file", report.OriginalFilename).
		Int("changed_chunks", changedChunks).
		Int("total_chunks", totalChunks).
		Msg("file changed")
	return report, data, nil
}

// diffArchive compares an archive resource with its extraction directory and
// repacks the directory when anything was added, changed or removed.
func diffArchive(report types.ResourceReport, reference []byte) (types.ResourceReport, []byte, error) {
	exists, err := lib.DirExists(report.OutputPath)
	if err != nil {
		return report, nil, err
	}
	if !exists {
		return skipped(report, "archive directory missing"), nil, nil
	}

	refFiles, err := rpf.ReadEntries(reference)
	if err != nil {
		return failed(report, err), nil, nil
	}
	refData := make(map[string][]byte, len(refFiles))
	refPaths := make([]string, 0, len(refFiles))
	for _, f := range refFiles {
		refData[f.Path] = f.Data
		refPaths = append(refPaths, f.Path)
	}

	rules := lib.LoadIgnoreRules(report.OutputPath, refPaths)
	onDisk, err := lib.ListFiles(report.OutputPath, rules)
	if err != nil {
		return report, nil, err
	}
	report.Files = len(onDisk)

	logger := log.With().Str("resource", report.ResourceName).Str("file", report.OriginalFilename).Logger()
	seen := make(map[string]bool, len(onDisk))
	for _, rel := range onDisk {
		seen[rel] = true
		ref, known := refData[rel]
		if !known {
			report.New = append(report.New, rel)
			logger.Info().Str("path", rel).Msg("archive file new")
			continue
		}

		diskPath := filepath.Join(report.OutputPath, filepath.FromSlash(rel))
		digest, err := lib.GetFileDigest(diskPath)
		if err != nil {
			return report, nil, err
		}
		if digest == lib.GetDigest(ref) {
			continue
		}

		data, err := os.ReadFile(diskPath)
		if err != nil {
			return report, nil, err
		}
		changedChunks, totalChunks, err := lib.ChunkDelta(ref, data)
		if err != nil {
			return report, nil, err
		}
		report.Changed = append(report.Changed, types.FileChange{Path: rel, ChangedChunks: changedChunks, TotalChunks: totalChunks})
		logger.Info().Str("path", rel).Int("changed_chunks", changedChunks).Int("total_chunks", totalChunks).Msg("archive file changed")
	}

	for _, f := range refFiles {
		if !seen[f.Path] {
			report.Removed = append(report.Removed, f.Path)
			logger.Info().Str("path", f.Path).Msg("archive file removed")
		}
	}

	if len(report.New) == 0 && len(report.Changed) == 0 && len(report.Removed) == 0 {
		report.Status = types.StatusUnchanged
		return report, nil, nil
	}

	packed, err := rpf.Pack(report.OutputPath, rpf.WithFilter(func(name string, isDir bool) bool {
		return !rules.Ignored(name, isDir)
	}))
	if errors.Is(err, rpf.ErrTooLarge) {
		return failed(report, err), nil, nil
	}
	if err != nil {
		return report, nil, fmt.Errorf("failed to repack %s: %w", report.OutputPath, err)
	}
	return report, packed, nil
}
