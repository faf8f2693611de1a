// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package spacetrack_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/satwatch/catalog/accountpool"
	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/catalog/spacetrack"
	"storj.io/satwatch/private/httpmock"
)

const loginURL = base + "/ajaxauth/login"

func newTestClient(t *testing.T, credentials ...string) (*spacetrack.Client, *accountpool.Pool, *httpmock.Transport) {
	log := zaptest.NewLogger(t)
	pool, err := accountpool.New(log, accountpool.Config{Credentials: credentials})
	require.NoError(t, err)

	client := spacetrack.NewClient(log, spacetrack.Config{
		BaseURL:        base,
		RequestTimeout: 10 * time.Second,
		HistoryTimeout: 10 * time.Second,
		AuthTimeout:    10 * time.Second,
		SessionMaxAge:  time.Hour,
		AccountWait:    time.Minute,
	}, pool)

	transport := httpmock.NewTransport()
	client.TestingSetTransport(transport)
	transport.AddResponse(loginURL, httpmock.Response{StatusCode: 200, Body: `""`})
	return client, pool, transport
}

func starlinkEntry() registry.Entry {
	return registry.Entry{Slug: "starlink", Name: "Starlink", Query: "OBJECT_NAME~~STARLINK"}
}

const starlinkGPURL = base + "/basicspacedata/query/class/gp/DECAY_DATE/null-val/OBJECT_NAME/~~STARLINK/orderby/NORAD_CAT_ID%20asc/format/json"

func TestFetchGP(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, pool, transport := newTestClient(t, "alice@example.com:a")
	transport.AddResponse(starlinkGPURL, httpmock.Response{
		StatusCode: 200,
		Body: `[
			{"NORAD_CAT_ID":"44714","OBJECT_NAME":"STARLINK-1008","EPOCH":"2025-03-01T12:00:00","TLE_LINE1":"1 ...","TLE_LINE2":"2 ..."},
			{"NORAD_CAT_ID":"44713","OBJECT_NAME":"STARLINK-1007","EPOCH":"2025-03-01T12:00:00","TLE_LINE1":"1 ...","TLE_LINE2":"2 ..."}
		]`,
	})

	records, err := client.FetchGP(ctx, starlinkEntry())
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Records come back sorted by catalog number.
	require.Equal(t, "STARLINK-1007", records[0].ObjectName)
	require.Equal(t, "STARLINK-1008", records[1].ObjectName)

	snapshot := pool.StatusSnapshot()
	require.Equal(t, int64(1), snapshot.TotalRequests)

	// The login happened exactly once, before the query.
	requests := transport.Requests()
	require.Equal(t, loginURL, requests[0])
}

func TestFetchGPMergesPatterns(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, _, transport := newTestClient(t, "alice@example.com:a", "bobby@example.com:b")

	flockURL := base + "/basicspacedata/query/class/gp/DECAY_DATE/null-val/OBJECT_NAME/~~FLOCK/orderby/NORAD_CAT_ID%20asc/format/json"
	doveURL := base + "/basicspacedata/query/class/gp/DECAY_DATE/null-val/OBJECT_NAME/~~DOVE/orderby/NORAD_CAT_ID%20asc/format/json"
	transport.AddResponse(flockURL, httpmock.Response{
		StatusCode: 200,
		Body:       `[{"NORAD_CAT_ID":"40019","OBJECT_NAME":"FLOCK 1C-1","EPOCH":"2025-03-01T12:00:00"}]`,
	})
	transport.AddResponse(doveURL, httpmock.Response{
		StatusCode: 200,
		Body: `[
			{"NORAD_CAT_ID":"40019","OBJECT_NAME":"FLOCK 1C-1","EPOCH":"2025-03-01T12:00:00"},
			{"NORAD_CAT_ID":"40021","OBJECT_NAME":"DOVE 2","EPOCH":"2025-03-01T12:00:00"}
		]`,
	})

	records, err := client.FetchGP(ctx, registry.Entry{
		Slug:  "planet",
		Query: "OBJECT_NAME~~FLOCK,OBJECT_NAME~~DOVE",
	})
	require.NoError(t, err)
	// The overlapping record is merged by catalog number.
	require.Len(t, records, 2)
	require.Equal(t, "FLOCK 1C-1", records[0].ObjectName)
	require.Equal(t, "DOVE 2", records[1].ObjectName)
}

func TestRateLimitRotatesAccounts(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, pool, transport := newTestClient(t, "alice@example.com:a", "bobby@example.com:b")
	transport.AddResponse(starlinkGPURL, httpmock.Response{StatusCode: 429, Body: "too many requests"})
	transport.AddResponse(starlinkGPURL, httpmock.Response{
		StatusCode: 200,
		Body:       `[{"NORAD_CAT_ID":"44713","OBJECT_NAME":"STARLINK-1007","EPOCH":"2025-03-01T12:00:00"}]`,
	})

	records, err := client.FetchGP(ctx, starlinkEntry())
	require.NoError(t, err)
	require.Len(t, records, 1)

	snapshot := pool.StatusSnapshot()
	require.Equal(t, 1, snapshot.RateLimitedAccounts)
	for _, status := range snapshot.Accounts {
		switch status.Username {
		case "ali***@example.com":
			require.Equal(t, accountpool.StatusRateLimited, status.Status)
			require.False(t, status.Available)
		case "bob***@example.com":
			require.Equal(t, 1, status.RequestsThisMinute)
		}
	}
}

func TestRateLimitSentinelOn500(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, pool, transport := newTestClient(t, "alice@example.com:a", "bobby@example.com:b")
	transport.AddResponse(starlinkGPURL, httpmock.Response{
		StatusCode: 500,
		Body:       "You have violated your query rate limit, come back later",
	})
	transport.AddResponse(starlinkGPURL, httpmock.Response{StatusCode: 200, Body: `[]`})

	records, err := client.FetchGP(ctx, starlinkEntry())
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, 1, pool.StatusSnapshot().RateLimitedAccounts)
}

func TestHTMLSentinelIsTransient(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, pool, transport := newTestClient(t, "alice@example.com:a", "bobby@example.com:b")
	transport.AddResponse(starlinkGPURL, httpmock.Response{
		StatusCode: 200,
		Body:       "<!DOCTYPE html><html><body>maintenance</body></html>",
	})
	transport.AddResponse(starlinkGPURL, httpmock.Response{StatusCode: 200, Body: `[]`})

	_, err := client.FetchGP(ctx, starlinkEntry())
	require.NoError(t, err)
	// The HTML sentinel does not bench the account.
	require.Equal(t, 0, pool.StatusSnapshot().RateLimitedAccounts)
	require.Equal(t, 2, pool.AvailableCount())
}

func TestAuthFailureRotates(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, pool, transport := newTestClient(t, "alice@example.com:a", "bobby@example.com:b")
	transport.AddResponse(starlinkGPURL, httpmock.Response{StatusCode: 403, Body: "forbidden"})
	transport.AddResponse(starlinkGPURL, httpmock.Response{StatusCode: 200, Body: `[]`})

	_, err := client.FetchGP(ctx, starlinkEntry())
	require.NoError(t, err)
	require.Equal(t, 1, pool.StatusSnapshot().AuthFailedAccounts)
}

func TestLoginRejected(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)
	pool, err := accountpool.New(log, accountpool.Config{
		Credentials: []string{"alice@example.com:wrong"},
	})
	require.NoError(t, err)

	client := spacetrack.NewClient(log, spacetrack.Config{
		BaseURL:        base,
		RequestTimeout: 10 * time.Second,
		AuthTimeout:    10 * time.Second,
		SessionMaxAge:  time.Hour,
		AccountWait:    time.Minute,
	}, pool)

	transport := httpmock.NewTransport()
	client.TestingSetTransport(transport)
	transport.AddResponse(loginURL, httpmock.Response{
		StatusCode: 200,
		Body:       `{"error":"invalid credentials"}`,
	})

	_, err = client.FetchGP(ctx, starlinkEntry())
	require.Error(t, err)
	require.Equal(t, 1, pool.StatusSnapshot().AuthFailedAccounts)
}

func TestHistoryShapeFallback(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	client, _, transport := newTestClient(t, "alice@example.com:a")

	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	rangeURL := base + "/basicspacedata/query/class/gp_history/NORAD_CAT_ID/44713/EPOCH/2022-01-01--2023-01-01/orderby/EPOCH%20asc/format/json"
	pairedURL := base + "/basicspacedata/query/class/gp_history/NORAD_CAT_ID/44713/EPOCH/%3E2021-12-31/EPOCH/%3C2023-01-02/orderby/EPOCH%20asc/format/json"

	// The range shape fails server-side; the paired shape works.
	transport.AddResponse(rangeURL, httpmock.Response{StatusCode: 500, Body: "bad predicate"})
	transport.AddResponse(pairedURL, httpmock.Response{
		StatusCode: 200,
		Body:       `[{"NORAD_CAT_ID":"44713","EPOCH":"2022-06-01T00:00:00","TLE_LINE1":"1 ...","TLE_LINE2":"2 ..."}]`,
	})

	records, err := client.FetchGPHistory(ctx, "starlink", []int{44713}, start, end)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
