// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package catalog assembles the harvester: account pool, upstream
// client, rate governor, ingest service, backfill engine, initial
// loader and the scheduler that drives them.
package catalog

import (
	"context"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/satwatch/catalog/accountpool"
	"storj.io/satwatch/catalog/backfill"
	"storj.io/satwatch/catalog/catalogdb"
	"storj.io/satwatch/catalog/governor"
	"storj.io/satwatch/catalog/ingest"
	"storj.io/satwatch/catalog/loader"
	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/catalog/scheduler"
	"storj.io/satwatch/catalog/spacetrack"
	"storj.io/satwatch/private/lifecycle"
)

// Config is the harvester's combined configuration.
type Config struct {
	Database string `help:"satellite catalog database URL" default:"sqlite3://file:$CONFDIR/catalog.db"`

	TLERefreshHours  string `help:"UTC hours of the TLE refresh slots, comma separated" default:"2,8,14,20"`
	TLERefreshMinute int    `help:"minute past the hour of the TLE refresh slots" default:"17"`

	Registry  registry.Config
	Accounts  accountpool.Config
	Client    spacetrack.Config
	Governor  governor.Config
	Ingest    ingest.Config
	Backfill  backfill.Config
	Loader    loader.Config
	Scheduler scheduler.Config
}

// Core is the assembled harvester process.
//
// architecture: Peer
type Core struct {
	Log *zap.Logger
	DB  *catalogdb.DB

	Services lifecycle.Group

	Registry *registry.Registry
	Pool     *accountpool.Pool
	Client   *spacetrack.Client
	Governor *governor.Governor

	Ingest    *ingest.Service
	Backfill  *backfill.Engine
	Loader    *loader.Loader
	Scheduler *scheduler.Scheduler
}

// New creates the harvester peer on an opened catalog database.
func New(log *zap.Logger, db *catalogdb.DB, config Config) (*Core, error) {
	peer := &Core{
		Log:      log,
		DB:       db,
		Services: *lifecycle.NewGroup(log.Named("services")),
	}

	var err error
	peer.Registry, err = registry.Open(config.Registry)
	if err != nil {
		return nil, errs.Wrap(err)
	}

	peer.Pool, err = accountpool.New(log.Named("accountpool"), config.Accounts)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	if peer.Pool.Size() == 0 {
		return nil, errs.New("no upstream accounts configured")
	}

	peer.Client = spacetrack.NewClient(log.Named("spacetrack"), config.Client, peer.Pool)
	peer.Governor = governor.New(config.Governor)

	peer.Ingest = ingest.New(log.Named("ingest"), config.Ingest,
		db, peer.Registry, peer.Client, peer.Governor, peer.Pool)
	peer.Backfill = backfill.New(log.Named("backfill"), config.Backfill,
		db, peer.Registry, peer.Client, peer.Governor)
	peer.Loader = loader.New(log.Named("loader"), config.Loader,
		db, peer.Registry, peer.Ingest, peer.Backfill)

	peer.Scheduler = scheduler.New(log.Named("scheduler"), config.Scheduler)
	if err := peer.registerJobs(config); err != nil {
		return nil, err
	}

	peer.Services.Add(lifecycle.Item{
		Name: "loader",
		Run:  peer.Loader.Run,
	})
	peer.Services.Add(lifecycle.Item{
		Name:  "scheduler",
		Run:   peer.Scheduler.Run,
		Close: peer.Scheduler.Close,
	})
	return peer, nil
}

// registerJobs wires the recurring harvest slots. Minutes are offset
// from the top of the hour on purpose.
func (peer *Core) registerJobs(config Config) error {
	refreshHours, err := parseSlotHours(config.TLERefreshHours)
	if err != nil {
		return err
	}
	if config.TLERefreshMinute < 0 || config.TLERefreshMinute > 59 {
		return errs.New("invalid TLE refresh minute %d", config.TLERefreshMinute)
	}

	peer.Scheduler.Add(scheduler.Job{
		Name:   "tle-refresh",
		Hours:  refreshHours,
		Minute: config.TLERefreshMinute,
		Run: func(ctx context.Context) error {
			_, err := peer.Ingest.RefreshGP(ctx, nil, false)
			return err
		},
	})
	peer.Scheduler.Add(scheduler.Job{
		Name:   "metadata-sync",
		Hours:  []int{17},
		Minute: 27,
		Run: func(ctx context.Context) error {
			_, err := peer.Ingest.SyncSatcat(ctx, nil, false)
			return err
		},
	})
	peer.Scheduler.Add(scheduler.Job{
		Name:   "history-backfill",
		Hours:  []int{3},
		Minute: 47,
		Run: func(ctx context.Context) error {
			_, err := peer.Backfill.RunAll(ctx, false)
			return err
		},
	})
	peer.Scheduler.Add(scheduler.Job{
		Name:   "launch-enrich",
		Hours:  []int{6, 18},
		Minute: 17,
		Run: func(ctx context.Context) error {
			_, err := peer.Ingest.EnrichLaunches(ctx)
			return err
		},
	})
	peer.Scheduler.Add(scheduler.Job{
		Name:   "pool-health",
		Minute: 47,
		Run: func(ctx context.Context) error {
			peer.Ingest.PoolHealth(ctx)
			return nil
		},
	})
	return nil
}

// parseSlotHours parses a comma separated list of UTC hours.
func parseSlotHours(s string) ([]int, error) {
	var hours []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hour, err := strconv.Atoi(part)
		if err != nil || hour < 0 || hour > 23 {
			return nil, errs.New("invalid slot hour %q", part)
		}
		hours = append(hours, hour)
	}
	if len(hours) == 0 {
		return nil, errs.New("no slot hours configured")
	}
	return hours, nil
}

// Run starts all services and blocks until the context is canceled or
// a service fails.
func (peer *Core) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	peer.Services.Run(ctx, group)
	return group.Wait()
}

// Close shuts the services down in reverse start order. The database
// is owned by the caller and stays open.
func (peer *Core) Close() error {
	return peer.Services.Close()
}
