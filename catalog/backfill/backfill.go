// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package backfill hydrates historical TLEs in resumable batches. The
// engine plans work from what is already archived, so an interrupted
// run picks up where the previous one stopped instead of refetching.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/satwatch/catalog/accountpool"
	"storj.io/satwatch/catalog/catalogdb"
	"storj.io/satwatch/catalog/governor"
	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/catalog/spacetrack"
)

var (
	// Error is the default error class for the backfill engine.
	Error = errs.Class("backfill")

	mon = monkit.Package()
)

// Config holds configuration for the backfill engine.
type Config struct {
	HistoryYears     int           `help:"how many years of history the backfill targets" default:"3"`
	BatchSize        int           `help:"satellites planned per batch" default:"50"`
	SubBatchSize     int           `help:"catalog numbers per history query" default:"20"`
	MaxBatchesPerRun int           `help:"batches per scheduled run, 0 for unlimited" default:"10"`
	BatchPause       time.Duration `help:"pause between batches" default:"60s" devDefault:"0"`
	ChunkPause       time.Duration `help:"pause between annual chunks of one batch" default:"5s" devDefault:"0"`
	SubBatchPause    time.Duration `help:"pause between history queries" default:"10s" devDefault:"0"`
	CompleteMargin   time.Duration `help:"slack when deciding a satellite's history is complete" default:"168h"`
}

// Upstream is the slice of the catalog client the engine uses.
type Upstream interface {
	FetchGPHistory(ctx context.Context, constellation string, numbers []int, start, end time.Time) ([]spacetrack.GPRecord, error)
}

// DB is the slice of the catalog store the engine uses.
type DB interface {
	SatelliteRefs(ctx context.Context, slug string) ([]catalogdb.SatelliteRef, error)
	EarliestHistoryEpochs(ctx context.Context, satelliteIDs []int64) (map[int64]time.Time, error)
	PersistHistoryBatch(ctx context.Context, records []spacetrack.GPRecord, source string) (int, error)
}

// Options control a single run.
type Options struct {
	Constellation string
	MaxBatches    int
	Force         bool
}

// Status classifies a run's end state.
type Status string

// Possible run statuses.
const (
	StatusComplete   Status = "complete"
	StatusInProgress Status = "in_progress"
	StatusPartial    Status = "partial"
	StatusError      Status = "error"
	StatusSkipped    Status = "skipped"
)

// Result summarizes one backfill run over one constellation.
type Result struct {
	Constellation       string
	Status              Status
	RecordsAdded        int
	SatellitesProcessed int
	SatellitesRemaining int
	ProgressPercent     float64
	Message             string
}

// Engine plans and executes history backfills.
type Engine struct {
	log      *zap.Logger
	config   Config
	db       DB
	registry *registry.Registry
	upstream Upstream
	governor *governor.Governor

	nowFn func() time.Time
}

// New creates a backfill engine.
func New(log *zap.Logger, config Config, db DB, reg *registry.Registry, upstream Upstream, gov *governor.Governor) *Engine {
	return &Engine{
		log:      log,
		config:   config,
		db:       db,
		registry: reg,
		upstream: upstream,
		governor: gov,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// TestingSetNow allows tests to control the engine's clock.
func (engine *Engine) TestingSetNow(now func() time.Time) {
	engine.nowFn = now
}

// satelliteWindow is one satellite's missing history range.
type satelliteWindow struct {
	ref   catalogdb.SatelliteRef
	start time.Time
	end   time.Time
}

// plan compares archived history against the target range and returns
// the satellites still missing coverage, each with the window to fetch.
func (engine *Engine) plan(ctx context.Context, slug string) (pending []satelliteWindow, covered int, err error) {
	defer mon.Task()(&ctx)(&err)

	refs, err := engine.db.SatelliteRefs(ctx, slug)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	earliest, err := engine.db.EarliestHistoryEpochs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	now := engine.nowFn()
	targetStart := now.AddDate(-engine.config.HistoryYears, 0, 0)

	for _, ref := range refs {
		first, ok := earliest[ref.ID]
		if ok && first.Before(targetStart.Add(engine.config.CompleteMargin)) {
			covered++
			continue
		}

		end := now
		if ok {
			// Already have some history: extend backwards only.
			end = first.AddDate(0, 0, -1)
		}
		if end.Before(targetStart) {
			covered++
			continue
		}
		pending = append(pending, satelliteWindow{ref: ref, start: targetStart, end: end})
	}
	return pending, covered, nil
}

// Run backfills one constellation. Runs are bounded by MaxBatches and
// report how much of the constellation is covered so far; calling Run
// repeatedly converges on complete coverage.
func (engine *Engine) Run(ctx context.Context, options Options) (result Result, err error) {
	defer mon.Task()(&ctx)(&err)
	result.Constellation = options.Constellation

	entry, err := engine.registry.Get(options.Constellation)
	if err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return result, Error.Wrap(err)
	}
	if !entry.HasQuery() {
		result.Status = StatusSkipped
		result.Message = "no upstream predicate"
		return result, nil
	}
	if !options.Force && !engine.governor.MayCall(entry.Slug, accountpool.QueryGPHistory) {
		result.Status = StatusSkipped
		result.Message = "history interval not elapsed"
		return result, nil
	}

	pending, covered, err := engine.plan(ctx, entry.Slug)
	if err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return result, Error.Wrap(err)
	}
	total := covered + len(pending)
	if len(pending) == 0 {
		result.Status = StatusComplete
		result.ProgressPercent = 100
		result.Message = "history coverage complete"
		return result, nil
	}

	maxBatches := options.MaxBatches
	if maxBatches == 0 {
		maxBatches = engine.config.MaxBatchesPerRun
	}

	batches := chunkWindows(pending, engine.config.BatchSize)
	limited := false
	failedChunks := 0
	if maxBatches > 0 && len(batches) > maxBatches {
		batches = batches[:maxBatches]
		limited = true
	}

	for i, batch := range batches {
		if i > 0 && !sleep(ctx, engine.config.BatchPause) {
			break
		}

		added, failed, err := engine.runBatch(ctx, entry.Slug, batch)
		result.RecordsAdded += added
		failedChunks += failed
		if err != nil {
			result.SatellitesRemaining = len(pending) - result.SatellitesProcessed
			result.Status = StatusError
			if result.RecordsAdded > 0 || result.SatellitesProcessed > 0 {
				result.Status = StatusPartial
			}
			result.Message = err.Error()
			result.ProgressPercent = progress(covered+result.SatellitesProcessed, total)
			return result, Error.Wrap(err)
		}
		result.SatellitesProcessed += len(batch)
	}

	engine.governor.RecordCall(entry.Slug, accountpool.QueryGPHistory)

	result.SatellitesRemaining = len(pending) - result.SatellitesProcessed
	result.ProgressPercent = progress(covered+result.SatellitesProcessed, total)
	if result.SatellitesRemaining == 0 && !limited {
		result.Status = StatusComplete
		result.Message = "history coverage complete"
	} else {
		result.Status = StatusInProgress
		result.Message = "more batches remain"
	}
	if failedChunks > 0 {
		// The skipped chunks stay missing and get replanned next run.
		result.Status = StatusPartial
		result.Message = fmt.Sprintf("%d history chunks failed to persist", failedChunks)
	}

	engine.log.Info("backfill run finished",
		zap.String("constellation", entry.Slug),
		zap.String("status", string(result.Status)),
		zap.Int("records added", result.RecordsAdded),
		zap.Int("processed", result.SatellitesProcessed),
		zap.Int("remaining", result.SatellitesRemaining),
		zap.Float64("progress", result.ProgressPercent))
	mon.IntVal("backfill_records_added").Observe(int64(result.RecordsAdded))
	return result, nil
}

// RunAll backfills every harvestable constellation in priority order.
// A failing constellation does not abort the rest.
func (engine *Engine) RunAll(ctx context.Context, force bool) (results []Result, err error) {
	defer mon.Task()(&ctx)(&err)

	for _, entry := range engine.registry.InPriorityOrder() {
		if ctx.Err() != nil {
			return results, Error.Wrap(ctx.Err())
		}
		if !entry.HasQuery() {
			continue
		}
		result, err := engine.Run(ctx, Options{Constellation: entry.Slug, Force: force})
		if err != nil {
			engine.log.Warn("backfill failed",
				zap.String("constellation", entry.Slug),
				zap.Error(err))
		}
		results = append(results, result)
	}
	return results, nil
}

// runBatch fetches one batch's union window, split into annual chunks
// the upstream accepts, each queried in sub-batches of catalog numbers.
// A chunk that fetched fine but failed to persist is counted and
// skipped; only fetch failures abort the batch.
func (engine *Engine) runBatch(ctx context.Context, slug string, batch []satelliteWindow) (added, failedChunks int, err error) {
	defer mon.Task()(&ctx)(&err)

	start, end := unionWindow(batch)
	numbers := make([]int, 0, len(batch))
	for _, window := range batch {
		numbers = append(numbers, window.ref.CatalogNumber)
	}

	for i, chunk := range annualChunks(start, end) {
		if i > 0 && !sleep(ctx, engine.config.ChunkPause) {
			return added, failedChunks, ctx.Err()
		}

		for j := 0; j < len(numbers); j += engine.config.SubBatchSize {
			if j > 0 && !sleep(ctx, engine.config.SubBatchPause) {
				return added, failedChunks, ctx.Err()
			}
			sub := numbers[j:min(j+engine.config.SubBatchSize, len(numbers))]

			records, err := engine.upstream.FetchGPHistory(ctx, slug, sub, chunk.start, chunk.end)
			if err != nil {
				return added, failedChunks, err
			}
			inserted, err := engine.db.PersistHistoryBatch(ctx, records, catalogdb.SourceBackfill)
			if err != nil {
				failedChunks++
				mon.Event("backfill_chunk_persist_failed")
				engine.log.Warn("history chunk failed to persist",
					zap.String("constellation", slug),
					zap.Time("chunk start", chunk.start),
					zap.Time("chunk end", chunk.end),
					zap.Int("catalog numbers", len(sub)),
					zap.Error(err))
				continue
			}
			added += inserted
		}
	}
	return added, failedChunks, nil
}

// chunkWindows splits the pending satellites into batches.
func chunkWindows(pending []satelliteWindow, size int) (batches [][]satelliteWindow) {
	if size <= 0 {
		size = len(pending)
	}
	for len(pending) > 0 {
		n := min(size, len(pending))
		batches = append(batches, pending[:n])
		pending = pending[n:]
	}
	return batches
}

// unionWindow merges per-satellite windows into the one range the
// whole batch is queried over.
func unionWindow(batch []satelliteWindow) (start, end time.Time) {
	for _, window := range batch {
		if start.IsZero() || window.start.Before(start) {
			start = window.start
		}
		if window.end.After(end) {
			end = window.end
		}
	}
	return start, end
}

type dateRange struct {
	start time.Time
	end   time.Time
}

// annualChunks splits a range into spans of at most 365 days, because
// the upstream rejects wider history queries. A range of exactly 365
// days stays a single chunk.
func annualChunks(start, end time.Time) (chunks []dateRange) {
	const maxSpan = 365 * 24 * time.Hour
	for cur := start; !cur.After(end); {
		chunkEnd := cur.Add(maxSpan)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, dateRange{start: cur, end: chunkEnd})
		if !chunkEnd.Before(end) {
			break
		}
		cur = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks
}

func progress(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

// sleep pauses unless the duration is zero; it returns false when the
// context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	return sync2.Sleep(ctx, d)
}
