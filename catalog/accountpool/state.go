// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package accountpool

import (
	"time"
)

// Status describes the health of a single account.
type Status string

// Possible account statuses.
const (
	StatusActive      Status = "active"
	StatusRateLimited Status = "rate_limited"
	StatusSuspended   Status = "suspended"
	StatusAuthFailed  Status = "auth_failed"
	StatusCooldown    Status = "cooldown"
)

type queryKey struct {
	queryType     QueryType
	constellation string
}

// accountState tracks one account. All access goes through the pool mutex.
type accountState struct {
	username string
	password string
	status   Status

	requestsThisMinute int
	requestsThisHour   int
	totalRequests      int64

	lastRequestTime   time.Time
	minuteWindowStart time.Time
	hourWindowStart   time.Time
	cooldownUntil     time.Time

	lastQuery map[queryKey]time.Time

	consecutiveErrors int
	lastError         string
	lastErrorTime     time.Time
}

// available reports whether the account can issue a request right now.
// Elapsed cooldowns and expired counter windows are reset lazily here, so
// the transition back to active happens on the next read.
func (state *accountState) available(now time.Time) bool {
	switch state.status {
	case StatusSuspended:
		return false
	case StatusAuthFailed:
		if now.Before(state.cooldownUntil) {
			return false
		}
		state.status = StatusActive
		state.consecutiveErrors = 0
	case StatusRateLimited, StatusCooldown:
		if now.Before(state.cooldownUntil) {
			return false
		}
		state.status = StatusActive
	}

	if state.minuteWindowStart.IsZero() || now.Sub(state.minuteWindowStart) >= time.Minute {
		state.requestsThisMinute = 0
		state.minuteWindowStart = now
	}
	if state.hourWindowStart.IsZero() || now.Sub(state.hourWindowStart) >= time.Hour {
		state.requestsThisHour = 0
		state.hourWindowStart = now
	}

	return state.requestsThisMinute < maxRequestsPerMinute &&
		state.requestsThisHour < maxRequestsPerHour
}

// canQuery applies the per-endpoint cooldown for the requested query.
// Catalog metadata syncs are limited per account, the rest per account
// and constellation.
func (state *accountState) canQuery(now time.Time, queryType QueryType, constellation string) bool {
	var minInterval time.Duration
	key := queryKey{queryType: queryType, constellation: constellation}
	switch queryType {
	case QueryGP:
		if constellation == "" {
			return true
		}
		minInterval = gpCooldown
	case QueryGPHistory:
		if constellation == "" {
			return true
		}
		minInterval = historyCooldown
	case QuerySatcat:
		key.constellation = ""
		minInterval = satcatCooldown
	default:
		return true
	}

	last, ok := state.lastQuery[key]
	if !ok {
		return true
	}
	return now.Sub(last) >= minInterval
}

// stampQuery records a successful per-endpoint call for cooldown purposes.
func (state *accountState) stampQuery(now time.Time, queryType QueryType, constellation string) {
	key := queryKey{queryType: queryType, constellation: constellation}
	switch queryType {
	case QueryGP, QueryGPHistory:
		if constellation == "" {
			return
		}
	case QuerySatcat:
		key.constellation = ""
	default:
		return
	}

	if state.lastQuery == nil {
		state.lastQuery = map[queryKey]time.Time{}
	}
	state.lastQuery[key] = now
}

func (state *accountState) noteError(now time.Time, reason string) {
	state.consecutiveErrors++
	state.lastError = reason
	state.lastErrorTime = now
}
