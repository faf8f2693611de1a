// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package ingest runs the harvest operations: TLE refreshes, catalog
// metadata syncs, decay sweeps and launch enrichment. Every operation
// goes through the rate governor before it touches the upstream and
// through the catalog writer before anything is persisted.
package ingest

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/satwatch/catalog/accountpool"
	"storj.io/satwatch/catalog/catalogdb"
	"storj.io/satwatch/catalog/governor"
	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/catalog/spacetrack"
)

var (
	// Error is the default error class for the ingest service.
	Error = errs.Class("ingest")

	mon = monkit.Package()
)

// Config holds configuration for the ingest service.
type Config struct {
	TLECacheExpiry    time.Duration `help:"skip a constellation refresh when its catalog row is newer than this" default:"1h"`
	DecayLookbackDays int           `help:"how many days of confirmed re-entries each metadata sync examines" default:"30" devDefault:"7"`
	TIPLimit          int           `help:"how many re-entry predictions each metadata sync examines" default:"50"`
}

// Upstream is the slice of the catalog client the service uses. Tests
// substitute a fake.
type Upstream interface {
	FetchGP(ctx context.Context, entry registry.Entry) ([]spacetrack.GPRecord, error)
	FetchSatcat(ctx context.Context, entry registry.Entry) ([]spacetrack.SatcatRecord, error)
	FetchDecay(ctx context.Context, days int) ([]spacetrack.DecayRecord, error)
	FetchTIP(ctx context.Context, limit int) ([]spacetrack.TIPRecord, error)
}

// Service coordinates harvest operations against one catalog database.
type Service struct {
	log      *zap.Logger
	config   Config
	db       *catalogdb.DB
	registry *registry.Registry
	upstream Upstream
	governor *governor.Governor
	pool     *accountpool.Pool

	nowFn func() time.Time
}

// New creates an ingest service.
func New(log *zap.Logger, config Config, db *catalogdb.DB, reg *registry.Registry, upstream Upstream, gov *governor.Governor, pool *accountpool.Pool) *Service {
	return &Service{
		log:      log,
		config:   config,
		db:       db,
		registry: reg,
		upstream: upstream,
		governor: gov,
		pool:     pool,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Outcome classifies one per-constellation result.
type Outcome string

// Per-constellation outcomes.
const (
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeError     Outcome = "error"
)

// RefreshResult is the per-constellation outcome of a TLE refresh.
type RefreshResult struct {
	Slug        string
	Outcome     Outcome
	Reason      string
	NextAllowed time.Time
	Fetched     int
	Batch       catalogdb.GPBatchResult
	Err         error
}

// RefreshGP refreshes the latest TLEs for the given constellations, or
// for every harvestable constellation in priority order when slugs is
// empty. Force bypasses the freshness gates but never the per-account
// rate rules. A failing constellation does not abort the rest.
func (service *Service) RefreshGP(ctx context.Context, slugs []string, force bool) (results []RefreshResult, err error) {
	defer mon.Task()(&ctx)(&err)

	entries, err := service.resolve(slugs)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return results, Error.Wrap(ctx.Err())
		}
		results = append(results, service.refreshOne(ctx, entry, force))
	}
	return results, nil
}

func (service *Service) refreshOne(ctx context.Context, entry registry.Entry, force bool) (result RefreshResult) {
	defer mon.Task()(&ctx)(nil)
	result.Slug = entry.Slug

	if !entry.HasQuery() {
		result.Outcome = OutcomeSkipped
		result.Reason = "no upstream predicate"
		return result
	}

	if !force {
		if !service.governor.MayCall(entry.Slug, accountpool.QueryGP) {
			result.Outcome = OutcomeSkipped
			result.Reason = "refresh interval not elapsed"
			result.NextAllowed = service.governor.NextAllowed(entry.Slug, accountpool.QueryGP)
			return result
		}
		if fresh, until := service.cacheFresh(ctx, entry.Slug); fresh {
			result.Outcome = OutcomeSkipped
			result.Reason = "catalog data still fresh"
			result.NextAllowed = until
			return result
		}
	}

	records, err := service.upstream.FetchGP(ctx, entry)
	if err != nil {
		service.log.Warn("tle refresh failed",
			zap.String("constellation", entry.Slug),
			zap.Error(err))
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}
	result.Fetched = len(records)

	batch, err := service.db.UpsertGPBatch(ctx, entry, records)
	if err != nil {
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}
	service.governor.RecordCall(entry.Slug, accountpool.QueryGP)

	result.Outcome = OutcomeRefreshed
	result.Batch = batch
	service.log.Info("tle refresh complete",
		zap.String("constellation", entry.Slug),
		zap.Int("fetched", result.Fetched),
		zap.Int("new", batch.New),
		zap.Int("updated", batch.Updated),
		zap.Int("history", batch.HistoryAppended))
	mon.IntVal("refresh_fetched").Observe(int64(result.Fetched))
	return result
}

// cacheFresh reports whether the constellation's catalog row was
// refreshed within the cache expiry. The row timestamp survives
// restarts, unlike the governor's in-memory record.
func (service *Service) cacheFresh(ctx context.Context, slug string) (bool, time.Time) {
	if service.config.TLECacheExpiry <= 0 {
		return false, time.Time{}
	}
	constellation, err := service.db.ConstellationBySlug(ctx, slug)
	if err != nil || constellation.UpdatedAt == nil || constellation.SatelliteCount == 0 {
		return false, time.Time{}
	}
	until := constellation.UpdatedAt.Add(service.config.TLECacheExpiry)
	if service.nowFn().Before(until) {
		return true, until
	}
	return false, time.Time{}
}

// MetadataResult is the per-constellation outcome of a metadata sync.
type MetadataResult struct {
	Slug    string
	Outcome Outcome
	Reason  string
	Fetched int
	Batch   catalogdb.SatcatBatchResult
	Err     error
}

// SyncSatcat syncs full catalog metadata, including decayed objects and
// launch information, then sweeps recent confirmed re-entries and the
// current re-entry predictions. Metadata moves slowly, so the governor
// holds each constellation to one sync per metadata interval.
func (service *Service) SyncSatcat(ctx context.Context, slugs []string, force bool) (results []MetadataResult, err error) {
	defer mon.Task()(&ctx)(&err)

	entries, err := service.resolve(slugs)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return results, Error.Wrap(ctx.Err())
		}
		results = append(results, service.syncOne(ctx, entry, force))
	}

	if err := service.sweepDecays(ctx); err != nil {
		service.log.Warn("decay sweep failed", zap.Error(err))
	}
	if err := service.sweepPredictions(ctx); err != nil {
		service.log.Warn("reentry prediction sweep failed", zap.Error(err))
	}
	if _, err := service.EnrichLaunches(ctx); err != nil {
		service.log.Warn("launch enrichment failed", zap.Error(err))
	}
	return results, nil
}

func (service *Service) syncOne(ctx context.Context, entry registry.Entry, force bool) (result MetadataResult) {
	defer mon.Task()(&ctx)(nil)
	result.Slug = entry.Slug

	if !entry.HasQuery() {
		result.Outcome = OutcomeSkipped
		result.Reason = "no upstream predicate"
		return result
	}
	if !force && !service.governor.MayCall(entry.Slug, accountpool.QuerySatcat) {
		result.Outcome = OutcomeSkipped
		result.Reason = "metadata interval not elapsed"
		return result
	}

	records, err := service.upstream.FetchSatcat(ctx, entry)
	if err != nil {
		service.log.Warn("metadata sync failed",
			zap.String("constellation", entry.Slug),
			zap.Error(err))
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}
	result.Fetched = len(records)

	batch, err := service.db.UpsertSatcatBatch(ctx, entry, records)
	if err != nil {
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}
	service.governor.RecordCall(entry.Slug, accountpool.QuerySatcat)

	result.Outcome = OutcomeRefreshed
	result.Batch = batch
	service.log.Info("metadata sync complete",
		zap.String("constellation", entry.Slug),
		zap.Int("fetched", result.Fetched),
		zap.Int("new", batch.New),
		zap.Int("launches", batch.LaunchesCreated))
	return result
}

// sweepDecays marks satellites whose re-entry the upstream has
// confirmed recently.
func (service *Service) sweepDecays(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	records, err := service.upstream.FetchDecay(ctx, service.config.DecayLookbackDays)
	if err != nil {
		return err
	}
	decayed, err := service.db.ApplyDecayBatch(ctx, records)
	if err != nil {
		return err
	}
	if decayed > 0 {
		service.log.Info("decay sweep complete",
			zap.Int("records", len(records)),
			zap.Int("newly decayed", decayed))
	}
	mon.IntVal("decay_swept").Observe(int64(decayed))
	return nil
}

// sweepPredictions surfaces upcoming predicted re-entries in the logs.
// Predictions are advisory; only confirmed decays change the catalog.
func (service *Service) sweepPredictions(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	records, err := service.upstream.FetchTIP(ctx, service.config.TIPLimit)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.HighInterest != "Y" && record.HighInterest != "true" {
			continue
		}
		service.log.Info("high-interest reentry prediction",
			zap.String("catalog number", record.NoradCatID),
			zap.String("predicted decay", record.DecayEpoch),
			zap.String("window hours", record.WindowHours))
	}
	mon.IntVal("tip_predictions").Observe(int64(len(records)))
	return nil
}

// EnrichLaunches fills mission names and dates on launches that were
// created before their satellites had metadata. It works entirely from
// persisted data and issues no upstream calls.
func (service *Service) EnrichLaunches(ctx context.Context) (updated int, err error) {
	defer mon.Task()(&ctx)(&err)

	missing, err := service.db.LaunchesMissingDetails(ctx)
	if err != nil {
		return 0, err
	}

	for _, launch := range missing {
		ref, launchDate, err := service.db.FirstSatelliteForCospar(ctx, launch.CosparID)
		if err != nil {
			if catalogdb.ErrNotFound.Has(err) {
				continue
			}
			return updated, err
		}

		name := ref.Name
		if launch.MissionName != "" {
			name = ""
		}
		if launchDate == nil && name == "" {
			continue
		}
		if err := service.db.UpdateLaunchDetails(ctx, launch.ID, name, launchDate); err != nil {
			return updated, err
		}
		updated++
	}

	if updated > 0 {
		service.log.Info("launch enrichment complete", zap.Int("updated", updated))
	}
	return updated, nil
}

// PoolHealth logs and returns the account pool's current state.
func (service *Service) PoolHealth(ctx context.Context) accountpool.Snapshot {
	defer mon.Task()(&ctx)(nil)

	snapshot := service.pool.StatusSnapshot()
	service.log.Info("account pool health",
		zap.Int("total", snapshot.TotalAccounts),
		zap.Int("active", snapshot.ActiveAccounts),
		zap.Int("rate limited", snapshot.RateLimitedAccounts),
		zap.Int("suspended", snapshot.SuspendedAccounts),
		zap.Int("auth failed", snapshot.AuthFailedAccounts),
		zap.Int64("requests", snapshot.TotalRequests))
	for _, account := range snapshot.Accounts {
		if account.Status == accountpool.StatusActive {
			continue
		}
		service.log.Warn("account unavailable",
			zap.String("account", account.Username),
			zap.String("status", string(account.Status)),
			zap.String("last error", account.LastError),
			zap.Duration("available in", account.AvailableIn))
	}
	mon.IntVal("pool_available").Observe(int64(service.pool.AvailableCount()))
	return snapshot
}

// TestingSetNow allows tests to control the service's clock.
func (service *Service) TestingSetNow(now func() time.Time) {
	service.nowFn = now
}

// resolve maps slugs to registry entries, or returns every entry in
// priority order when no slugs were given.
func (service *Service) resolve(slugs []string) ([]registry.Entry, error) {
	if len(slugs) == 0 {
		return service.registry.InPriorityOrder(), nil
	}
	entries := make([]registry.Entry, 0, len(slugs))
	for _, slug := range slugs {
		entry, err := service.registry.Get(slug)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
