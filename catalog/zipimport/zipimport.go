// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package zipimport loads historical TLEs from offline archives: an
// outer zip holding one zip per year, each containing JSON record
// dumps. Importing the same archive twice is a no-op, so operators can
// rerun a partially imported archive safely.
package zipimport

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/satwatch/catalog/catalogdb"
	"storj.io/satwatch/catalog/spacetrack"
)

var (
	// Error is the default error class for the archive importer.
	Error = errs.Class("zipimport")

	mon = monkit.Package()
)

// Options control one import run.
type Options struct {
	Path          string
	Years         []int
	Constellation string
	BatchSize     int
	DryRun        bool
}

// Stats summarizes one import run.
type Stats struct {
	FilesProcessed    int
	RecordsImported   int
	RecordsSkipped    int
	UnknownSatellites int
	Errors            int
}

// Importer loads archives into the catalog.
type Importer struct {
	log *zap.Logger
	db  *catalogdb.DB
}

// New creates an importer.
func New(log *zap.Logger, db *catalogdb.DB) *Importer {
	return &Importer{log: log, db: db}
}

// Run imports the archive at options.Path. Unknown satellites and
// already-archived epochs are counted and skipped, never errors.
func (importer *Importer) Run(ctx context.Context, options Options) (stats Stats, err error) {
	defer mon.Task()(&ctx)(&err)

	if options.BatchSize <= 0 {
		options.BatchSize = 500
	}

	allowed, err := importer.allowedNumbers(ctx, options.Constellation)
	if err != nil {
		return stats, err
	}

	reader, err := zip.OpenReader(options.Path)
	if err != nil {
		return stats, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(reader.Close())) }()

	run := &importRun{
		importer: importer,
		options:  options,
		allowed:  allowed,
		unknown:  map[int]struct{}{},
	}

	for _, file := range reader.File {
		if ctx.Err() != nil {
			return run.stats, Error.Wrap(ctx.Err())
		}

		switch {
		case strings.HasSuffix(file.Name, ".zip"):
			if year, ok := yearFromName(file.Name); ok && !yearWanted(options.Years, year) {
				continue
			}
			if err := run.processInnerZip(ctx, file); err != nil {
				importer.log.Warn("inner archive unreadable",
					zap.String("file", file.Name),
					zap.Error(err))
				run.stats.Errors++
			}
		case strings.HasSuffix(file.Name, ".json"):
			if err := run.processJSON(ctx, file); err != nil {
				importer.log.Warn("record file unreadable",
					zap.String("file", file.Name),
					zap.Error(err))
				run.stats.Errors++
			}
		}
	}

	if err := run.flush(ctx); err != nil {
		return run.stats, err
	}
	run.stats.UnknownSatellites = len(run.unknown)

	importer.log.Info("archive import finished",
		zap.String("archive", options.Path),
		zap.Bool("dry run", options.DryRun),
		zap.Int("files", run.stats.FilesProcessed),
		zap.Int("imported", run.stats.RecordsImported),
		zap.Int("skipped", run.stats.RecordsSkipped),
		zap.Int("unknown satellites", run.stats.UnknownSatellites),
		zap.Int("errors", run.stats.Errors))
	return run.stats, nil
}

// allowedNumbers restricts the import to one constellation's catalog
// numbers; an empty slug allows everything.
func (importer *Importer) allowedNumbers(ctx context.Context, slug string) (map[int]struct{}, error) {
	if slug == "" {
		return nil, nil
	}
	refs, err := importer.db.SatelliteRefs(ctx, slug)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	allowed := make(map[int]struct{}, len(refs))
	for _, ref := range refs {
		allowed[ref.CatalogNumber] = struct{}{}
	}
	return allowed, nil
}

// importRun carries the per-run batching state.
type importRun struct {
	importer *Importer
	options  Options
	allowed  map[int]struct{}
	unknown  map[int]struct{}

	batch []spacetrack.GPRecord
	stats Stats
}

// processInnerZip expands one per-year archive. Inner zips are read
// into memory; the yearly dumps are tens of megabytes at most.
func (run *importRun) processInnerZip(ctx context.Context, file *zip.File) error {
	opened, err := file.Open()
	if err != nil {
		return Error.Wrap(err)
	}
	data, err := io.ReadAll(opened)
	if err != nil {
		return Error.Wrap(errs.Combine(err, opened.Close()))
	}
	if err := opened.Close(); err != nil {
		return Error.Wrap(err)
	}

	inner, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Error.Wrap(err)
	}
	for _, innerFile := range inner.File {
		if ctx.Err() != nil {
			return Error.Wrap(ctx.Err())
		}
		if !strings.HasSuffix(innerFile.Name, ".json") {
			continue
		}
		if err := run.processJSON(ctx, innerFile); err != nil {
			run.importer.log.Warn("record file unreadable",
				zap.String("archive", file.Name),
				zap.String("file", innerFile.Name),
				zap.Error(err))
			run.stats.Errors++
		}
	}
	return nil
}

func (run *importRun) processJSON(ctx context.Context, file *zip.File) error {
	opened, err := file.Open()
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { _ = opened.Close() }()

	var records []spacetrack.GPRecord
	if err := json.NewDecoder(opened).Decode(&records); err != nil {
		return Error.Wrap(err)
	}
	run.stats.FilesProcessed++

	for _, record := range records {
		number, err := record.CatalogNumber()
		if err != nil {
			run.stats.RecordsSkipped++
			continue
		}
		if run.allowed != nil {
			if _, ok := run.allowed[number]; !ok {
				run.stats.RecordsSkipped++
				continue
			}
		}
		run.batch = append(run.batch, record)
		if len(run.batch) >= run.options.BatchSize {
			if err := run.flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// flush persists the pending batch, counting unknown satellites and
// deduplicated records as skipped.
func (run *importRun) flush(ctx context.Context) error {
	if len(run.batch) == 0 {
		return nil
	}
	batch := run.batch
	run.batch = nil

	numbers := make([]int, 0, len(batch))
	for _, record := range batch {
		if number, err := record.CatalogNumber(); err == nil {
			numbers = append(numbers, number)
		}
	}
	known, err := run.importer.db.SatelliteIDsByCatalogNumbers(ctx, numbers)
	if err != nil {
		return Error.Wrap(err)
	}

	matched := batch[:0]
	for _, record := range batch {
		number, err := record.CatalogNumber()
		if err != nil {
			run.stats.RecordsSkipped++
			continue
		}
		if _, ok := known[number]; !ok {
			run.unknown[number] = struct{}{}
			run.stats.RecordsSkipped++
			continue
		}
		matched = append(matched, record)
	}

	if run.options.DryRun {
		run.stats.RecordsSkipped += len(matched)
		return nil
	}

	inserted, err := run.importer.db.PersistHistoryBatch(ctx, matched, catalogdb.SourceArchiveImport)
	if err != nil {
		return Error.Wrap(err)
	}
	run.stats.RecordsImported += inserted
	run.stats.RecordsSkipped += len(matched) - inserted
	return nil
}

// yearFromName extracts a four-digit year from an archive file name.
func yearFromName(name string) (int, bool) {
	base := name
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	for i := 0; i+4 <= len(base); i++ {
		year, err := strconv.Atoi(base[i : i+4])
		if err == nil && year >= 1957 && year <= 2100 {
			return year, true
		}
	}
	return 0, false
}

func yearWanted(years []int, year int) bool {
	if len(years) == 0 {
		return true
	}
	for _, wanted := range years {
		if wanted == year {
			return true
		}
	}
	return false
}
