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

// DecodeOptions holds the configuration for the decode command.
type DecodeOptions struct {
	CacheDir       string
	WorkDir        string
	OutputTemplate string
	Duplicates     bool     // extract every cached version, not only the latest
	Resources      []string // restrict to these resource names
}

// DecodeResult summarizes a decode run.
type DecodeResult struct {
	CacheStats
	Reports []types.ResourceReport
}

// Decode decrypts the cached resources and writes them as plain files. Archive
// resources are unpacked into a directory named after the archive.
func Decode(options DecodeOptions) (*DecodeResult, error) {
	if options.OutputTemplate == "" {
		options.OutputTemplate = lib.DefaultOutputTemplate
	}

	session, err := openCache(options.CacheDir, options.WorkDir)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	fmt.Printf("🔓 Decoding cache \"%s\"...\n", session.cacheDir)
	result := &DecodeResult{CacheStats: session.stats}

	for _, group := range session.groups(options.Resources) {
		versions := group.Versions
		if !options.Duplicates {
			versions = versions[:1]
		}
		for _, v := range versions {
			report, err := decodeVersion(v, options.OutputTemplate)
			if err != nil {
				return result, err
			}
			result.Reports = append(result.Reports, report)
		}
	}

	printStats(result.CacheStats)
	extracted, failedCount := 0, 0
	for _, r := range result.Reports {
		switch r.Status {
		case types.StatusExtracted:
			extracted++
		case types.StatusFailed:
			failedCount++
		}
	}
	fmt.Printf("✅ Decode complete! %d resources extracted, %d failed.\n", extracted, failedCount)
	return result, nil
}

// decodeVersion extracts one resource version. Errors returned from here
// abort the run; per-resource problems end up in the report.
func decodeVersion(v types.Version, template string) (types.ResourceReport, error) {
	report := newReport(v)
	d := v.Descriptor

	payload, _, err := lib.ReadResource(v)
	if errors.Is(err, crypt.ErrShortCiphertext) {
		return failed(report, err), nil
	}
	if err != nil {
		return report, err
	}

	outDir, err := outputDir(template, v)
	if err != nil {
		return failed(report, err), nil
	}
	report.OutputPath = filepath.Join(outDir, d.OriginalFilename)

	if rpf.IsArchiveName(d.OriginalFilename) {
		files, err := rpf.ReadEntries(payload)
		if err != nil {
			return failed(report, err), nil
		}
		for _, f := range files {
			target := filepath.Join(report.OutputPath, filepath.FromSlash(f.Path))
			if err := lib.WriteFileWithTime(target, f.Data, v.ModTime); err != nil {
				return report, err
			}
		}
		if err := os.MkdirAll(report.OutputPath, 0755); err != nil {
			return report, err
		}
		if err := os.Chtimes(report.OutputPath, v.ModTime, v.ModTime); err != nil {
			return report, err
		}
		report.Files = len(files)
	} else {
		if err := lib.WriteFileWithTime(report.OutputPath, payload, v.ModTime); err != nil {
			return report, err
		}
		report.Files = 1
	}

	if err := os.Chtimes(outDir, v.ModTime, v.ModTime); err != nil {
		return report, err
	}

	report.Status = types.StatusExtracted
	log.Info().
		Str("resource", d.ResourceName).
		Str("file", d.OriginalFilename).
		Str("blob", d.Filename).
		Str("path", report.OutputPath).
		Int("files", report.Files).
		Msg("extracted")
	return report, nil
}
