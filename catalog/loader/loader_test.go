// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package loader_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/satwatch/catalog/backfill"
	"storj.io/satwatch/catalog/catalogdb"
	"storj.io/satwatch/catalog/ingest"
	"storj.io/satwatch/catalog/loader"
	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/catalog/spacetrack"
)

// fakeStages records which stage ran for which constellation, in order.
type fakeStages struct {
	mu    sync.Mutex
	calls []string
}

func (fake *fakeStages) record(stage, slug string) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.calls = append(fake.calls, stage+":"+slug)
}

func (fake *fakeStages) recorded() []string {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return append([]string(nil), fake.calls...)
}

func (fake *fakeStages) SyncSatcat(ctx context.Context, slugs []string, force bool) ([]ingest.MetadataResult, error) {
	fake.record("metadata", slugs[0])
	return nil, nil
}

func (fake *fakeStages) RefreshGP(ctx context.Context, slugs []string, force bool) ([]ingest.RefreshResult, error) {
	fake.record("tle", slugs[0])
	return nil, nil
}

func (fake *fakeStages) Run(ctx context.Context, options backfill.Options) (backfill.Result, error) {
	fake.record("history", options.Constellation)
	return backfill.Result{Status: backfill.StatusComplete}, nil
}

func openTestDB(t *testing.T, ctx *testcontext.Context) *catalogdb.DB {
	db, err := catalogdb.Open(ctx, zaptest.NewLogger(t),
		"sqlite3://file:"+ctx.File("catalog.db"),
		catalogdb.Options{ApplicationName: "satwatch-test"})
	require.NoError(t, err)
	require.NoError(t, db.MigrateToLatest(ctx))
	return db
}

func seedSatellites(t *testing.T, ctx *testcontext.Context, db *catalogdb.DB, slug string, count int) {
	entry, err := registry.Builtin().Get(slug)
	require.NoError(t, err)

	var records []spacetrack.GPRecord
	for i := 0; i < count; i++ {
		records = append(records, spacetrack.GPRecord{
			NoradCatID: strconv.Itoa(50000 + i),
			ObjectName: "SAT-" + strconv.Itoa(i),
			Epoch:      "2024-01-01 12:00:00",
			TLELine1:   "1 44713U 19074A   22123.45678901  .00001234  00000-0  12345-3 0  9999",
			TLELine2:   "2 44713  53.0541 186.0533 0001341  90.1267 269.9876 15.0639102312345",
		})
	}
	_, err = db.UpsertGPBatch(ctx, entry, records)
	require.NoError(t, err)
}

func TestNeedsLoad(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	fake := &fakeStages{}
	l := loader.New(zaptest.NewLogger(t), loader.Config{
		MinSatellites:     100,
		MinConstellations: 3,
	}, db, registry.Builtin(), fake, fake)

	needed, err := l.NeedsLoad(ctx)
	require.NoError(t, err)
	require.True(t, needed)

	// A single small constellation is still below both thresholds.
	seedSatellites(t, ctx, db, "starlink", 10)
	needed, err = l.NeedsLoad(ctx)
	require.NoError(t, err)
	require.True(t, needed)
}

func TestRunStagesInOrder(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	fake := &fakeStages{}
	l := loader.New(zaptest.NewLogger(t), loader.Config{
		MinSatellites:     100,
		MinConstellations: 3,
		SkipHistoryAbove:  500,
		HistoryBatches:    2,
	}, db, registry.Builtin(), fake, fake)

	require.NoError(t, l.Run(ctx))

	calls := fake.recorded()
	require.NotEmpty(t, calls)

	// The highest-priority constellation loads first, stages in order.
	require.Equal(t, "metadata:starlink", calls[0])
	require.Equal(t, "tle:starlink", calls[1])
	require.Equal(t, "history:starlink", calls[2])
	require.Equal(t, "metadata:oneweb", calls[3])

	progress := l.Progress()
	require.False(t, progress.Active)
	require.Equal(t, progress.Total, progress.Completed)
}

func TestRunSkipsHistoryForLargeConstellations(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	seedSatellites(t, ctx, db, "starlink", 5)

	fake := &fakeStages{}
	l := loader.New(zaptest.NewLogger(t), loader.Config{
		MinSatellites:     100,
		MinConstellations: 3,
		SkipHistoryAbove:  2,
	}, db, registry.Builtin(), fake, fake)

	require.NoError(t, l.Run(ctx))

	for _, call := range fake.recorded() {
		require.NotEqual(t, "history:starlink", call)
	}
}

func TestRunSkipsWhenHydrated(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	fake := &fakeStages{}
	l := loader.New(zaptest.NewLogger(t), loader.Config{
		MinSatellites:     1,
		MinConstellations: 1,
	}, db, registry.Builtin(), fake, fake)

	seedSatellites(t, ctx, db, "starlink", 3)

	require.NoError(t, l.Run(ctx))
	require.Empty(t, fake.recorded())
}
