// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingest_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/satwatch/catalog/accountpool"
	"storj.io/satwatch/catalog/catalogdb"
	"storj.io/satwatch/catalog/governor"
	"storj.io/satwatch/catalog/ingest"
	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/catalog/spacetrack"
)

type fakeUpstream struct {
	gp     map[string][]spacetrack.GPRecord
	satcat map[string][]spacetrack.SatcatRecord
	decays []spacetrack.DecayRecord
	tips   []spacetrack.TIPRecord

	gpCalls     map[string]int
	satcatCalls map[string]int
	failGP      error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		gp:          map[string][]spacetrack.GPRecord{},
		satcat:      map[string][]spacetrack.SatcatRecord{},
		gpCalls:     map[string]int{},
		satcatCalls: map[string]int{},
	}
}

func (fake *fakeUpstream) FetchGP(ctx context.Context, entry registry.Entry) ([]spacetrack.GPRecord, error) {
	fake.gpCalls[entry.Slug]++
	if fake.failGP != nil {
		return nil, fake.failGP
	}
	return fake.gp[entry.Slug], nil
}

func (fake *fakeUpstream) FetchSatcat(ctx context.Context, entry registry.Entry) ([]spacetrack.SatcatRecord, error) {
	fake.satcatCalls[entry.Slug]++
	return fake.satcat[entry.Slug], nil
}

func (fake *fakeUpstream) FetchDecay(ctx context.Context, days int) ([]spacetrack.DecayRecord, error) {
	return fake.decays, nil
}

func (fake *fakeUpstream) FetchTIP(ctx context.Context, limit int) ([]spacetrack.TIPRecord, error) {
	return fake.tips, nil
}

func gpRecord(number int, name, epoch string) spacetrack.GPRecord {
	return spacetrack.GPRecord{
		NoradCatID: strconv.Itoa(number),
		ObjectName: name,
		IntlDes:    "2019-074A",
		Epoch:      epoch,
		TLELine1:   "1 44713U 19074A   22123.45678901  .00001234  00000-0  12345-3 0  9999",
		TLELine2:   "2 44713  53.0541 186.0533 0001341  90.1267 269.9876 15.0639102312345",
	}
}

type testService struct {
	*ingest.Service
	db       *catalogdb.DB
	upstream *fakeUpstream
	governor *governor.Governor
}

func newTestService(t *testing.T, ctx *testcontext.Context) testService {
	log := zaptest.NewLogger(t)

	db, err := catalogdb.Open(ctx, log, "sqlite3://file:"+ctx.File("catalog.db"),
		catalogdb.Options{ApplicationName: "satwatch-test"})
	require.NoError(t, err)
	require.NoError(t, db.MigrateToLatest(ctx))

	pool, err := accountpool.New(log, accountpool.Config{
		Credentials: []string{"alice@example.com:secret"},
	})
	require.NoError(t, err)

	gov := governor.New(governor.Config{
		RefreshInterval:  time.Hour,
		MetadataInterval: 24 * time.Hour,
		HistoryInterval:  168 * time.Hour,
	})
	upstream := newFakeUpstream()
	service := ingest.New(log, ingest.Config{
		TLECacheExpiry:    time.Hour,
		DecayLookbackDays: 30,
		TIPLimit:          50,
	}, db, registry.Builtin(), upstream, gov, pool)

	return testService{Service: service, db: db, upstream: upstream, governor: gov}
}

func TestRefreshGPPersistsAndGoverns(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service := newTestService(t, ctx)
	defer ctx.Check(service.db.Close)

	service.upstream.gp["starlink"] = []spacetrack.GPRecord{
		gpRecord(44713, "STARLINK-1007", "2024-01-01 12:00:00"),
		gpRecord(44714, "STARLINK-1008", "2024-01-01 12:00:00"),
	}

	results, err := service.RefreshGP(ctx, []string{"starlink"}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, ingest.OutcomeRefreshed, results[0].Outcome)
	require.Equal(t, 2, results[0].Fetched)
	require.Equal(t, 2, results[0].Batch.New)

	counts, err := service.db.Counts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, counts.Satellites)

	// The refresh interval has not elapsed: the second run is skipped
	// without an upstream call.
	results, err = service.RefreshGP(ctx, []string{"starlink"}, false)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeSkipped, results[0].Outcome)
	require.False(t, results[0].NextAllowed.IsZero())
	require.Equal(t, 1, service.upstream.gpCalls["starlink"])

	// Force bypasses the freshness gates.
	results, err = service.RefreshGP(ctx, []string{"starlink"}, true)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeRefreshed, results[0].Outcome)
	require.Equal(t, 2, service.upstream.gpCalls["starlink"])
}

func TestRefreshGPCacheExpirySurvivesRestart(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service := newTestService(t, ctx)
	defer ctx.Check(service.db.Close)

	service.upstream.gp["starlink"] = []spacetrack.GPRecord{
		gpRecord(44713, "STARLINK-1007", "2024-01-01 12:00:00"),
	}
	_, err := service.RefreshGP(ctx, []string{"starlink"}, false)
	require.NoError(t, err)

	// A fresh governor simulates a process restart; the catalog row's
	// timestamp still blocks the refetch.
	service.governor.TestingSetNow(func() time.Time { return time.Now().Add(2 * time.Hour) })
	results, err := service.RefreshGP(ctx, []string{"starlink"}, false)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeSkipped, results[0].Outcome)
	require.Equal(t, "catalog data still fresh", results[0].Reason)
	require.Equal(t, 1, service.upstream.gpCalls["starlink"])
}

func TestRefreshGPContinuesPastFailures(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service := newTestService(t, ctx)
	defer ctx.Check(service.db.Close)

	service.upstream.failGP = errs.New("upstream down")

	results, err := service.RefreshGP(ctx, []string{"starlink", "oneweb"}, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		require.Equal(t, ingest.OutcomeError, result.Outcome)
		require.Error(t, result.Err)
	}
	require.Equal(t, 1, service.upstream.gpCalls["starlink"])
	require.Equal(t, 1, service.upstream.gpCalls["oneweb"])
}

func TestRefreshGPUnknownSlug(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service := newTestService(t, ctx)
	defer ctx.Check(service.db.Close)

	_, err := service.RefreshGP(ctx, []string{"unknown-constellation"}, false)
	require.Error(t, err)
}

func TestSyncSatcatWithDecaySweep(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service := newTestService(t, ctx)
	defer ctx.Check(service.db.Close)

	service.upstream.gp["starlink"] = []spacetrack.GPRecord{
		gpRecord(44713, "STARLINK-1007", "2024-01-01 12:00:00"),
	}
	_, err := service.RefreshGP(ctx, []string{"starlink"}, false)
	require.NoError(t, err)

	service.upstream.satcat["starlink"] = []spacetrack.SatcatRecord{
		{
			NoradCatID: "44713", ObjectName: "STARLINK-1007", IntlDes: "2019-074A",
			Country: "US", Launch: "2019-11-11", Site: "AFETR", ObjectType: "PAYLOAD",
		},
	}
	service.upstream.decays = []spacetrack.DecayRecord{
		{NoradCatID: "44713", DecayEpoch: "2024-03-01 00:00:00"},
	}
	service.upstream.tips = []spacetrack.TIPRecord{
		{NoradCatID: "44713", DecayEpoch: "2024-03-01 00:00:00", HighInterest: "Y"},
	}

	results, err := service.SyncSatcat(ctx, []string{"starlink"}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, ingest.OutcomeRefreshed, results[0].Outcome)
	require.Equal(t, 1, results[0].Batch.Updated)
	require.Equal(t, 1, results[0].Batch.LaunchesCreated)

	sat, err := service.db.SatelliteByCatalogNumber(ctx, 44713)
	require.NoError(t, err)
	require.Equal(t, "US", sat.CountryCode)
	require.False(t, sat.IsActive)
	require.NotNil(t, sat.DecayDate)

	// Launch enrichment ran as part of the sync.
	missing, err := service.db.LaunchesMissingDetails(ctx)
	require.NoError(t, err)
	require.Empty(t, missing)

	// Metadata interval gates the second run.
	results, err = service.SyncSatcat(ctx, []string{"starlink"}, false)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeSkipped, results[0].Outcome)
	require.Equal(t, 1, service.upstream.satcatCalls["starlink"])
}

func TestEnrichLaunches(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service := newTestService(t, ctx)
	defer ctx.Check(service.db.Close)

	entry, err := registry.Builtin().Get("starlink")
	require.NoError(t, err)

	// A satcat record without a name creates a launch missing details.
	_, err = service.db.UpsertSatcatBatch(ctx, entry, []spacetrack.SatcatRecord{
		{NoradCatID: "44713", IntlDes: "2019-074A", Launch: "2019-11-11"},
	})
	require.NoError(t, err)

	updated, err := service.EnrichLaunches(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	launch, err := service.db.LaunchByCosparID(ctx, "2019-074")
	require.NoError(t, err)
	require.NotEmpty(t, launch.MissionName)
	require.NotNil(t, launch.LaunchDate)
}

func TestPoolHealth(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	service := newTestService(t, ctx)
	defer ctx.Check(service.db.Close)

	snapshot := service.PoolHealth(ctx)
	require.Equal(t, 1, snapshot.TotalAccounts)
	require.Equal(t, 1, snapshot.ActiveAccounts)
	require.Equal(t, "ali***@example.com", snapshot.Accounts[0].Username)
}
