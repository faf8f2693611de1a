// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package loader hydrates an empty catalog on first run. It walks the
// constellations in priority order and runs the metadata, TLE and
// history stages with generous pauses, so a fresh deployment fills up
// without tripping the upstream's rate rules.
package loader

import (
	"context"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/satwatch/catalog/backfill"
	"storj.io/satwatch/catalog/catalogdb"
	"storj.io/satwatch/catalog/ingest"
	"storj.io/satwatch/catalog/registry"
)

var (
	// Error is the default error class for the loader.
	Error = errs.Class("loader")

	mon = monkit.Package()
)

// Config holds configuration for the initial loader.
type Config struct {
	MinSatellites     int           `help:"satellite count below which the catalog counts as empty" default:"100"`
	MinConstellations int           `help:"constellation count below which the catalog counts as empty" default:"3"`
	MetadataPause     time.Duration `help:"pause after each constellation's metadata stage" default:"120s" devDefault:"0"`
	StagePause        time.Duration `help:"pause between the remaining stages" default:"60s" devDefault:"0"`
	SkipHistoryAbove  int           `help:"skip the history stage for constellations larger than this" default:"500"`
	HistoryBatches    int           `help:"backfill batches per constellation during initial load" default:"2"`
}

// Harvester is the slice of the ingest service the loader drives.
type Harvester interface {
	SyncSatcat(ctx context.Context, slugs []string, force bool) ([]ingest.MetadataResult, error)
	RefreshGP(ctx context.Context, slugs []string, force bool) ([]ingest.RefreshResult, error)
}

// Backfiller runs history backfills.
type Backfiller interface {
	Run(ctx context.Context, options backfill.Options) (backfill.Result, error)
}

// Progress is a point-in-time view of a load.
type Progress struct {
	Active        bool
	Constellation string
	Stage         string
	Completed     int
	Total         int
}

// Loader performs the initial hydration.
type Loader struct {
	log       *zap.Logger
	config    Config
	db        *catalogdb.DB
	registry  *registry.Registry
	harvester Harvester
	backfill  Backfiller

	mu       sync.Mutex
	progress Progress
}

// New creates a loader.
func New(log *zap.Logger, config Config, db *catalogdb.DB, reg *registry.Registry, harvester Harvester, backfiller Backfiller) *Loader {
	return &Loader{
		log:       log,
		config:    config,
		db:        db,
		registry:  reg,
		harvester: harvester,
		backfill:  backfiller,
	}
}

// NeedsLoad reports whether the catalog is too empty to serve.
func (loader *Loader) NeedsLoad(ctx context.Context) (bool, error) {
	counts, err := loader.db.Counts(ctx)
	if err != nil {
		return false, Error.Wrap(err)
	}
	return counts.Satellites < int64(loader.config.MinSatellites) ||
		counts.Constellations < int64(loader.config.MinConstellations), nil
}

// Progress returns the current load state.
func (loader *Loader) Progress() Progress {
	loader.mu.Lock()
	defer loader.mu.Unlock()
	return loader.progress
}

func (loader *Loader) setStage(slug, stage string, completed, total int) {
	loader.mu.Lock()
	defer loader.mu.Unlock()
	loader.progress = Progress{
		Active:        stage != "",
		Constellation: slug,
		Stage:         stage,
		Completed:     completed,
		Total:         total,
	}
}

// Run hydrates the catalog when it is empty and returns immediately
// otherwise. A failing constellation is logged and skipped; the load
// continues with the next one.
func (loader *Loader) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	needed, err := loader.NeedsLoad(ctx)
	if err != nil {
		return err
	}
	if !needed {
		loader.log.Info("catalog already hydrated, skipping initial load")
		return nil
	}

	var entries []registry.Entry
	for _, entry := range loader.registry.InPriorityOrder() {
		if entry.HasQuery() {
			entries = append(entries, entry)
		}
	}
	loader.log.Info("starting initial catalog load", zap.Int("constellations", len(entries)))

	for i, entry := range entries {
		if err := loader.loadOne(ctx, entry, i, len(entries)); err != nil {
			if ctx.Err() != nil {
				loader.setStage("", "", i, len(entries))
				return Error.Wrap(err)
			}
			loader.log.Warn("initial load failed for constellation, continuing",
				zap.String("constellation", entry.Slug),
				zap.Error(err))
		}
		if i < len(entries)-1 && !sleep(ctx, loader.config.StagePause) {
			break
		}
	}
	loader.setStage("", "", len(entries), len(entries))

	counts, err := loader.db.Counts(ctx)
	if err != nil {
		return err
	}
	loader.log.Info("initial catalog load finished",
		zap.Int64("satellites", counts.Satellites),
		zap.Int64("constellations", counts.Constellations),
		zap.Int64("history records", counts.HistoryRecords))
	return nil
}

func (loader *Loader) loadOne(ctx context.Context, entry registry.Entry, index, total int) error {
	slugs := []string{entry.Slug}

	// Metadata first: it creates the satellites, including decayed
	// ones, so the later stages have rows to attach to.
	loader.setStage(entry.Slug, "metadata", index, total)
	if _, err := loader.harvester.SyncSatcat(ctx, slugs, true); err != nil {
		return err
	}
	if !sleep(ctx, loader.config.MetadataPause) {
		return ctx.Err()
	}

	loader.setStage(entry.Slug, "tle", index, total)
	if _, err := loader.harvester.RefreshGP(ctx, slugs, true); err != nil {
		return err
	}
	if !sleep(ctx, loader.config.StagePause) {
		return ctx.Err()
	}

	refs, err := loader.db.SatelliteRefs(ctx, entry.Slug)
	if err != nil {
		return err
	}
	if len(refs) > loader.config.SkipHistoryAbove {
		// Large constellations are left to the nightly backfill; a
		// full history pass here would hold the load up for hours.
		loader.log.Info("skipping history stage for large constellation",
			zap.String("constellation", entry.Slug),
			zap.Int("satellites", len(refs)))
		return nil
	}

	loader.setStage(entry.Slug, "history", index, total)
	_, err = loader.backfill.Run(ctx, backfill.Options{
		Constellation: entry.Slug,
		MaxBatches:    loader.config.HistoryBatches,
		Force:         true,
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	return sync2.Sleep(ctx, d)
}
