// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package accountpool manages the set of upstream credentials and decides
// which account may issue the next request.
package accountpool

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
)

var (
	// Error is the default error class for the account pool.
	Error = errs.Class("account pool")

	// ErrNoAccount is returned when no account can serve a query right now.
	// Callers decide whether to wait or to skip the work.
	ErrNoAccount = errs.Class("no account available")

	mon = monkit.Package()
)

const (
	// The upstream allows 30 requests per minute and 300 per hour per
	// account. Both caps keep headroom below the published limits.
	maxRequestsPerMinute = 25
	maxRequestsPerHour   = 280

	// requestFloor is the minimum spacing between requests across the
	// whole pool, regardless of which account serves them.
	requestFloor = 2 * time.Second

	rateLimitCooldown = 30 * time.Minute
	authFailCooldown  = time.Hour

	maxConsecutiveErrors = 5

	gpCooldown      = time.Hour
	satcatCooldown  = 24 * time.Hour
	historyCooldown = 7 * 24 * time.Hour

	awaitPollInterval = 5 * time.Second
)

// RotationDelay is how long a client should pause before retrying a query
// on a different account.
const RotationDelay = 2 * time.Second

// QueryType tags a request so the pool can apply per-endpoint cooldowns.
type QueryType string

// Supported query types.
const (
	QueryGP        QueryType = "gp"
	QueryGPHistory QueryType = "gp_history"
	QuerySatcat    QueryType = "satcat"
	QueryDecay     QueryType = "decay"
	QueryTIP       QueryType = "tip"
	QueryOther     QueryType = "other"
)

// Config holds configuration for the account pool.
type Config struct {
	Credentials []string `help:"upstream accounts as username:password, in rotation order" default:""`
}

// Account is a credential handed out to the upstream client.
type Account struct {
	Username string
	Password string
}

// Pool hands out accounts in round-robin order while honoring per-account
// request caps, per-endpoint cooldowns and error-induced benching.
//
// A single mutex covers all state. Acquire holds it across the short
// inter-request floor, which intentionally serializes handouts.
type Pool struct {
	log *zap.Logger

	mu           sync.Mutex
	accounts     []*accountState
	index        int
	lastDispatch time.Time

	nowFn func() time.Time
}

// New creates a pool from the configured credentials.
func New(log *zap.Logger, config Config) (*Pool, error) {
	pool := &Pool{
		log:   log,
		nowFn: time.Now,
	}
	for _, credential := range config.Credentials {
		username, password, ok := strings.Cut(credential, ":")
		if !ok || username == "" || password == "" {
			return nil, Error.New("malformed credential %q: expected username:password", maskUsername(credential))
		}
		if pool.lookup(username) != nil {
			return nil, Error.New("duplicate account %s", maskUsername(username))
		}
		pool.accounts = append(pool.accounts, &accountState{
			username: username,
			password: password,
			status:   StatusActive,
		})
	}
	return pool, nil
}

// Size returns the number of configured accounts.
func (pool *Pool) Size() int {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return len(pool.accounts)
}

// lookup must be called with the mutex held.
func (pool *Pool) lookup(username string) *accountState {
	for _, state := range pool.accounts {
		if state.username == username {
			return state
		}
	}
	return nil
}

// Acquire selects an account able to serve the query and advances the
// round-robin index past it. It enforces the pool-wide floor between
// consecutive requests by sleeping the caller. When every account is
// benched or over its caps it returns ErrNoAccount immediately rather
// than waiting for a cooldown to elapse.
func (pool *Pool) Acquire(ctx context.Context, queryType QueryType, constellation string) (_ Account, err error) {
	defer mon.Task()(&ctx)(&err)

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if len(pool.accounts) == 0 {
		return Account{}, Error.New("no accounts configured")
	}

	if !pool.lastDispatch.IsZero() {
		if wait := requestFloor - pool.nowFn().Sub(pool.lastDispatch); wait > 0 {
			if !sync2.Sleep(ctx, wait) {
				return Account{}, ctx.Err()
			}
		}
	}

	now := pool.nowFn()
	for i := range pool.accounts {
		idx := (pool.index + i) % len(pool.accounts)
		state := pool.accounts[idx]
		if !state.available(now) || !state.canQuery(now, queryType, constellation) {
			continue
		}
		pool.index = (idx + 1) % len(pool.accounts)
		return Account{Username: state.username, Password: state.password}, nil
	}

	return Account{}, ErrNoAccount.New("query %s on %q", queryType, constellation)
}

// AwaitAccount polls Acquire until an account frees up or maxWait passes.
func (pool *Pool) AwaitAccount(ctx context.Context, queryType QueryType, constellation string, maxWait time.Duration) (_ Account, err error) {
	defer mon.Task()(&ctx)(&err)

	deadline := pool.now().Add(maxWait)
	for {
		account, err := pool.Acquire(ctx, queryType, constellation)
		if err == nil {
			return account, nil
		}
		if !ErrNoAccount.Has(err) {
			return Account{}, err
		}
		if !pool.now().Before(deadline) {
			return Account{}, ErrNoAccount.New("timed out after %s waiting for %s on %q", maxWait, queryType, constellation)
		}
		if !sync2.Sleep(ctx, awaitPollInterval) {
			return Account{}, ctx.Err()
		}
	}
}

func (pool *Pool) now() time.Time {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return pool.nowFn()
}

// Record notes a completed request against the account's windows.
// Successful requests clear the error streak and stamp the per-endpoint
// cooldown.
func (pool *Pool) Record(username string, queryType QueryType, constellation string, success bool) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	state := pool.lookup(username)
	if state == nil {
		return
	}

	now := pool.nowFn()
	state.requestsThisMinute++
	state.requestsThisHour++
	state.totalRequests++
	state.lastRequestTime = now
	pool.lastDispatch = now

	if success {
		state.consecutiveErrors = 0
		state.stampQuery(now, queryType, constellation)
	}
}

// MarkRateLimited benches the account after an upstream rate-limit signal.
func (pool *Pool) MarkRateLimited(username string) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	state := pool.lookup(username)
	if state == nil {
		return
	}

	now := pool.nowFn()
	state.status = StatusRateLimited
	state.cooldownUntil = now.Add(rateLimitCooldown)
	state.noteError(now, "rate limited")
	mon.Event("accountpool_rate_limited")

	pool.log.Warn("account rate limited",
		zap.String("username", maskUsername(username)),
		zap.Time("cooldown until", state.cooldownUntil))

	pool.maybeSuspend(state)
}

// MarkAuthFailed benches the account after a login rejection or a 401/403.
func (pool *Pool) MarkAuthFailed(username string, reason string) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	state := pool.lookup(username)
	if state == nil {
		return
	}

	now := pool.nowFn()
	state.status = StatusAuthFailed
	state.cooldownUntil = now.Add(authFailCooldown)
	if reason == "" {
		reason = "authentication failed"
	}
	state.noteError(now, reason)
	mon.Event("accountpool_auth_failed")

	pool.log.Warn("account auth failed",
		zap.String("username", maskUsername(username)),
		zap.String("reason", reason))

	pool.maybeSuspend(state)
}

// MarkTransientError notes a timeout or a server-side failure. The account
// stays in rotation until the error streak reaches the suspension
// threshold.
func (pool *Pool) MarkTransientError(username string, reason string) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	state := pool.lookup(username)
	if state == nil {
		return
	}

	state.noteError(pool.nowFn(), reason)
	pool.log.Debug("account transient error",
		zap.String("username", maskUsername(username)),
		zap.String("reason", reason))

	pool.maybeSuspend(state)
}

// maybeSuspend must be called with the mutex held. Suspension is terminal
// until an operator reset.
func (pool *Pool) maybeSuspend(state *accountState) {
	if state.consecutiveErrors < maxConsecutiveErrors || state.status == StatusSuspended {
		return
	}
	state.status = StatusSuspended
	mon.Event("accountpool_suspended")
	pool.log.Error("account suspended",
		zap.String("username", maskUsername(state.username)),
		zap.Int("consecutive errors", state.consecutiveErrors))
}

// ResetAccount returns a benched or suspended account to service.
func (pool *Pool) ResetAccount(username string) bool {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	state := pool.lookup(username)
	if state == nil {
		return false
	}
	state.status = StatusActive
	state.consecutiveErrors = 0
	state.cooldownUntil = time.Time{}
	return true
}

// TestingSetNow allows tests to control the pool's clock.
func (pool *Pool) TestingSetNow(now func() time.Time) {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	pool.nowFn = now
}
