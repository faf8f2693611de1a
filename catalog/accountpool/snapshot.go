// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package accountpool

import (
	"strings"
	"time"
)

// Snapshot is a point-in-time view of the pool for the status surface.
type Snapshot struct {
	TotalAccounts       int
	ActiveAccounts      int
	RateLimitedAccounts int
	SuspendedAccounts   int
	AuthFailedAccounts  int
	CooldownAccounts    int
	TotalRequests       int64
	Accounts            []AccountStatus
}

// AccountStatus is the per-account portion of a Snapshot. Username is
// masked: credentials never leave the pool through the status surface.
type AccountStatus struct {
	Username           string
	Status             Status
	Available          bool
	RequestsThisMinute int
	RequestsThisHour   int
	TotalRequests      int64
	LastError          string
	AvailableIn        time.Duration
}

// StatusSnapshot reports per-account counters and health.
func (pool *Pool) StatusSnapshot() Snapshot {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	now := pool.nowFn()
	snapshot := Snapshot{TotalAccounts: len(pool.accounts)}
	for _, state := range pool.accounts {
		available := state.available(now)

		switch {
		case state.status == StatusActive && available:
			snapshot.ActiveAccounts++
		case state.status == StatusRateLimited:
			snapshot.RateLimitedAccounts++
		case state.status == StatusSuspended:
			snapshot.SuspendedAccounts++
		case state.status == StatusAuthFailed:
			snapshot.AuthFailedAccounts++
		default:
			snapshot.CooldownAccounts++
		}
		snapshot.TotalRequests += state.totalRequests

		var availableIn time.Duration
		if now.Before(state.cooldownUntil) {
			availableIn = state.cooldownUntil.Sub(now)
		}
		snapshot.Accounts = append(snapshot.Accounts, AccountStatus{
			Username:           maskUsername(state.username),
			Status:             state.status,
			Available:          available,
			RequestsThisMinute: state.requestsThisMinute,
			RequestsThisHour:   state.requestsThisHour,
			TotalRequests:      state.totalRequests,
			LastError:          state.lastError,
			AvailableIn:        availableIn,
		})
	}
	return snapshot
}

// AvailableCount returns how many accounts could serve a request right now.
func (pool *Pool) AvailableCount() int {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	now := pool.nowFn()
	count := 0
	for _, state := range pool.accounts {
		if state.available(now) {
			count++
		}
	}
	return count
}

// maskUsername hides most of a credential identity for logs and status.
func maskUsername(username string) string {
	local, domain, found := strings.Cut(username, "@")
	if found && len(local) > 3 {
		return local[:3] + "***@" + domain
	}
	if len(username) > 3 {
		username = username[:3]
	}
	return username + "***"
}
