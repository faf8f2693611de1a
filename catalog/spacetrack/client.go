// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package spacetrack implements the upstream catalog client: it
// authenticates per account, issues queries through the account pool
// with rotate-and-retry, and normalizes responses into record DTOs.
package spacetrack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/satwatch/catalog/accountpool"
)

var (
	// Error is the default error class for the upstream client.
	Error = errs.Class("spacetrack client")

	// ErrRateLimited is an upstream rate-limit signal: HTTP 429, or a
	// 500 whose body carries the rate-limit sentinel text.
	ErrRateLimited = errs.Class("upstream rate limited")

	// ErrAuthFailed is a login rejection or a 401/403 response.
	ErrAuthFailed = errs.Class("upstream auth failed")

	// ErrTransient is a timeout, a network error or a 5xx without the
	// rate-limit sentinel. Recovered locally by rotation and retry.
	ErrTransient = errs.Class("upstream transient error")

	// ErrMalformedResponse is an unparsable body or the HTML sentinel
	// on a 200. Treated like a transient upstream failure.
	ErrMalformedResponse = errs.Class("malformed upstream response")

	mon = monkit.Package()
)

// Config holds configuration for the upstream client.
type Config struct {
	BaseURL        string        `help:"upstream base URL" default:"https://www.space-track.org"`
	RequestTimeout time.Duration `help:"timeout for regular queries" default:"2m"`
	HistoryTimeout time.Duration `help:"timeout for bulk history queries" default:"5m"`
	AuthTimeout    time.Duration `help:"timeout for authentication requests" default:"30s"`
	SessionMaxAge  time.Duration `help:"re-authenticate sessions older than this" default:"1h"`
	AccountWait    time.Duration `help:"how long to wait for an account to free up" default:"2m"`
}

// Client executes logical queries against the upstream with account
// rotation. Account choice is delegated to the pool; the client holds
// no state beyond per-account authenticated session handles.
type Client struct {
	log    *zap.Logger
	config Config
	pool   *accountpool.Pool

	transport http.RoundTripper

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one account's authenticated HTTP handle. The per-session
// mutex prevents a double login for the same account.
type session struct {
	mu     sync.Mutex
	client *http.Client
	authed time.Time
}

// NewClient creates an upstream client on top of the account pool.
func NewClient(log *zap.Logger, config Config, pool *accountpool.Pool) *Client {
	return &Client{
		log:       log,
		config:    config,
		pool:      pool,
		transport: http.DefaultTransport,
		sessions:  map[string]*session{},
	}
}

// TestingSetTransport replaces the HTTP transport used for every
// account session.
func (client *Client) TestingSetTransport(transport http.RoundTripper) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.transport = transport
	client.sessions = map[string]*session{}
}

func (client *Client) session(username string) *session {
	client.mu.Lock()
	defer client.mu.Unlock()

	sess, ok := client.sessions[username]
	if !ok {
		jar, _ := cookiejar.New(nil)
		sess = &session{client: &http.Client{Transport: client.transport, Jar: jar}}
		client.sessions[username] = sess
	}
	return sess
}

// dropSession discards an account's session so the next use logs in
// again from scratch.
func (client *Client) dropSession(username string) {
	client.mu.Lock()
	defer client.mu.Unlock()
	delete(client.sessions, username)
}

// ensureAuthenticated logs the account in unless its session is still
// fresh. Success is HTTP 200 with a body that does not carry the
// upstream's "error" marker.
func (client *Client) ensureAuthenticated(ctx context.Context, account accountpool.Account) (err error) {
	defer mon.Task()(&ctx)(&err)

	sess := client.session(account.Username)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.authed.IsZero() && time.Since(sess.authed) < client.config.SessionMaxAge {
		return nil
	}

	authCtx, cancel := context.WithTimeout(ctx, client.config.AuthTimeout)
	defer cancel()

	form := url.Values{}
	form.Set("identity", account.Username)
	form.Set("password", account.Password)

	req, err := http.NewRequestWithContext(authCtx, http.MethodPost,
		strings.TrimSuffix(client.config.BaseURL, "/")+"/ajaxauth/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := sess.client.Do(req)
	if err != nil {
		return ErrTransient.New("login request failed: %w", err)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
	if err != nil {
		return ErrTransient.New("reading login response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || strings.Contains(strings.ToLower(string(body)), "error") {
		return ErrAuthFailed.New("login rejected with status %d", resp.StatusCode)
	}

	sess.authed = time.Now()
	return nil
}

// rateLimitSentinels are body fragments that mark a 500 as a
// rate-limit signal rather than a server fault.
var rateLimitSentinels = []string{"rate limit", "violated your query"}

func isRateLimitBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, sentinel := range rateLimitSentinels {
		if strings.Contains(lower, sentinel) {
			return true
		}
	}
	return false
}

// looksLikeHTML reports whether a 200 body is the upstream's HTML error
// page instead of the requested JSON.
func looksLikeHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "<") ||
		strings.HasPrefix(strings.ToLower(trimmed), "<!doctype")
}

// execute runs one logical query with retry-and-rotate: up to
// min(5, accounts) attempts, each on an account selected by the pool.
func (client *Client) execute(ctx context.Context, queryType accountpool.QueryType, constellation string, queryURL string, timeout time.Duration) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	attempts := client.pool.Size()
	if attempts > 5 {
		attempts = 5
	}
	if attempts == 0 {
		return nil, Error.New("no accounts configured")
	}

	backoff := 2 * time.Second
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		account, err := client.pool.AwaitAccount(ctx, queryType, constellation, client.config.AccountWait)
		if err != nil {
			if accountpool.ErrNoAccount.Has(err) {
				return nil, err
			}
			return nil, Error.Wrap(err)
		}

		if err := client.ensureAuthenticated(ctx, account); err != nil {
			if ErrAuthFailed.Has(err) {
				client.pool.MarkAuthFailed(account.Username, err.Error())
				client.dropSession(account.Username)
			} else {
				client.pool.MarkTransientError(account.Username, err.Error())
			}
			lastErr = err
			continue
		}

		body, err := client.issue(ctx, account, queryURL, timeout)
		if err == nil {
			client.pool.Record(account.Username, queryType, constellation, true)
			return body, nil
		}

		client.pool.Record(account.Username, queryType, constellation, false)
		lastErr = err

		switch {
		case ErrRateLimited.Has(err):
			client.pool.MarkRateLimited(account.Username)
			mon.Event("spacetrack_rate_limited")
			if !sync2.Sleep(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff *= 2

		case ErrAuthFailed.Has(err):
			client.pool.MarkAuthFailed(account.Username, err.Error())
			client.dropSession(account.Username)

		default:
			client.pool.MarkTransientError(account.Username, err.Error())
			if !sync2.Sleep(ctx, accountpool.RotationDelay) {
				return nil, ctx.Err()
			}
		}
	}

	return nil, ErrTransient.New("all %d attempts failed: %w", attempts, lastErr)
}

// issue performs a single HTTP GET on the account's session and
// classifies the outcome.
func (client *Client) issue(ctx context.Context, account accountpool.Account, queryURL string, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	sess := client.session(account.Username)
	resp, err := sess.client.Do(req)
	if err != nil {
		return nil, ErrTransient.New("request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, ErrTransient.New("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if looksLikeHTML(body) {
			return nil, ErrMalformedResponse.New("HTML response to a JSON query")
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited.New("status 429")

	case resp.StatusCode == http.StatusInternalServerError && isRateLimitBody(body):
		return nil, ErrRateLimited.New("status 500 with rate-limit sentinel")

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAuthFailed.New("status %d", resp.StatusCode)

	default:
		return nil, ErrTransient.New("status %d", resp.StatusCode)
	}
}

// query executes the request and decodes the JSON array of records.
func query[T any](ctx context.Context, client *Client, queryType accountpool.QueryType, constellation string, req *Request, timeout time.Duration) ([]T, error) {
	body, err := client.execute(ctx, queryType, constellation, req.URL(client.config.BaseURL), timeout)
	if err != nil {
		return nil, err
	}

	var records []T
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, ErrMalformedResponse.New("decoding records: %w", err)
	}
	return records, nil
}
