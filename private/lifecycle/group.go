// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package lifecycle allows controlling a group of items.
package lifecycle

import (
	"context"
	"runtime"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/errs2"
	"storj.io/common/sync2"
)

var mon = monkit.Package()

// Group implements a collection of items that have a specific lifecycle.
type Group struct {
	log   *zap.Logger
	items []Item

	shutdownWarningDelay time.Duration
}

// Item is the lifecycle item that group runs and closes.
type Item struct {
	Name  string
	Run   func(ctx context.Context) error
	Close func() error
}

// NewGroup creates a new group.
func NewGroup(log *zap.Logger) *Group {
	return &Group{
		log:                  log,
		shutdownWarningDelay: 15 * time.Second,
	}
}

// Add adds item to the group.
func (group *Group) Add(item Item) {
	group.items = append(group.items, item)
}

// Run starts all items concurrently under group g.
func (group *Group) Run(ctx context.Context, g *errgroup.Group) {
	defer mon.Task()(&ctx)(nil)

	var started []string
	for _, item := range group.items {
		item := item
		started = append(started, item.Name)
		if item.Run == nil {
			continue
		}

		finished := new(sync2.Fence)
		g.Go(func() error {
			defer finished.Release()

			err := item.Run(ctx)
			if errs2.IsCanceled(err) {
				err = nil
			}
			if err != nil {
				group.log.Error("unexpected shutdown of a runner",
					zap.String("name", item.Name),
					zap.Error(err))
			}
			return err
		})
		go group.monitorSlowShutdown(ctx, item.Name, finished)
	}
	group.log.Debug("started", zap.Strings("items", started))
}

// monitorSlowShutdown dumps goroutines when a runner does not return
// in a reasonable time after cancellation.
func (group *Group) monitorSlowShutdown(ctx context.Context, name string, finished *sync2.Fence) {
	select {
	case <-ctx.Done():
	case <-finished.Done():
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), group.shutdownWarningDelay)
	defer cancel()

	select {
	case <-finished.Done():
	case <-shutdownCtx.Done():
		buf := make([]byte, 1<<20)
		buf = buf[:runtime.Stack(buf, true)]
		group.log.Warn("slow shutdown of a runner",
			zap.String("name", name),
			zap.String("stack", string(condenseStack(buf))))
	}
}

// Close closes all items in reverse order.
func (group *Group) Close() error {
	var errlist errs.Group

	for i := len(group.items) - 1; i >= 0; i-- {
		item := group.items[i]
		if item.Close == nil {
			continue
		}
		errlist.Add(item.Close())
	}

	return errlist.Err()
}
