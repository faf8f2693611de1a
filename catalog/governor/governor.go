// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package governor enforces the upstream's data-freshness policy: the
// same refresh data is not fetched more often than the policy allows,
// per constellation and query type, no matter how many accounts the
// pool could serve it with.
package governor

import (
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"

	"storj.io/satwatch/catalog/accountpool"
)

var mon = monkit.Package()

// Config holds the minimum intervals between same-data fetches.
type Config struct {
	RefreshInterval  time.Duration `help:"minimum interval between TLE refreshes of the same constellation" default:"1h"`
	MetadataInterval time.Duration `help:"minimum interval between catalog metadata syncs of the same constellation" default:"24h"`
	HistoryInterval  time.Duration `help:"minimum interval between history backfills of the same constellation" default:"168h"`
}

type callKey struct {
	constellation string
	queryType     accountpool.QueryType
}

// Governor tracks the last successful call per (constellation, query
// type) pair. It is orthogonal to the account pool's per-account rules.
type Governor struct {
	config Config

	mu       sync.Mutex
	lastCall map[callKey]time.Time

	nowFn func() time.Time
}

// New creates a governor.
func New(config Config) *Governor {
	return &Governor{
		config:   config,
		lastCall: map[callKey]time.Time{},
		nowFn:    time.Now,
	}
}

// minInterval returns the configured interval for the query type.
// Query types without a freshness policy return zero.
func (governor *Governor) minInterval(queryType accountpool.QueryType) time.Duration {
	switch queryType {
	case accountpool.QueryGP:
		return governor.config.RefreshInterval
	case accountpool.QuerySatcat:
		return governor.config.MetadataInterval
	case accountpool.QueryGPHistory:
		return governor.config.HistoryInterval
	default:
		return 0
	}
}

// MayCall reports whether enough time has passed since the last
// recorded call for the pair.
func (governor *Governor) MayCall(constellation string, queryType accountpool.QueryType) bool {
	interval := governor.minInterval(queryType)
	if interval <= 0 {
		return true
	}

	governor.mu.Lock()
	defer governor.mu.Unlock()

	last, ok := governor.lastCall[callKey{constellation, queryType}]
	if !ok {
		return true
	}
	return governor.nowFn().Sub(last) >= interval
}

// NextAllowed returns when the pair may be called again. The zero time
// means it may be called right away.
func (governor *Governor) NextAllowed(constellation string, queryType accountpool.QueryType) time.Time {
	interval := governor.minInterval(queryType)
	if interval <= 0 {
		return time.Time{}
	}

	governor.mu.Lock()
	defer governor.mu.Unlock()

	last, ok := governor.lastCall[callKey{constellation, queryType}]
	if !ok {
		return time.Time{}
	}
	next := last.Add(interval)
	if !governor.nowFn().Before(next) {
		return time.Time{}
	}
	return next
}

// RecordCall stamps a successful call for the pair.
func (governor *Governor) RecordCall(constellation string, queryType accountpool.QueryType) {
	governor.mu.Lock()
	defer governor.mu.Unlock()

	governor.lastCall[callKey{constellation, queryType}] = governor.nowFn()
	mon.Event("governor_call_recorded")
}

// TestingSetNow allows tests to control the governor's clock.
func (governor *Governor) TestingSetNow(now func() time.Time) {
	governor.mu.Lock()
	defer governor.mu.Unlock()
	governor.nowFn = now
}
