// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package spacetrack

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/satwatch/catalog/accountpool"
	"storj.io/satwatch/catalog/registry"
)

// FetchGP returns the latest TLE for every active object matching the
// constellation's predicate. Multi-pattern predicates run as parallel
// single-pattern queries and are merged by catalog number, because the
// upstream cannot OR name patterns natively.
func (client *Client) FetchGP(ctx context.Context, entry registry.Entry) (_ []GPRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	patterns := SplitPatterns(entry.Query)
	if len(patterns) == 0 {
		return nil, Error.New("constellation %q has no upstream predicate", entry.Slug)
	}

	var mu sync.Mutex
	merged := map[int]GPRecord{}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, pattern := range patterns {
		pattern := pattern
		group.Go(func() error {
			field, value, ok := ParsePattern(pattern)
			if !ok {
				return Error.New("malformed predicate %q for %q", pattern, entry.Slug)
			}

			req := NewRequest(ClassGP).
				NullVal("DECAY_DATE").
				Predicate(field, value).
				OrderBy("NORAD_CAT_ID")

			records, err := query[GPRecord](groupCtx, client, accountpool.QueryGP, entry.Slug, req, client.config.RequestTimeout)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, record := range records {
				number, err := record.CatalogNumber()
				if err != nil {
					continue
				}
				merged[number] = record
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	numbers := make([]int, 0, len(merged))
	for number := range merged {
		numbers = append(numbers, number)
	}
	sort.Ints(numbers)

	records := make([]GPRecord, 0, len(merged))
	for _, number := range numbers {
		records = append(records, merged[number])
	}

	client.log.Debug("gp fetch complete",
		zap.String("constellation", entry.Slug),
		zap.Int("patterns", len(patterns)),
		zap.Int("records", len(records)))
	return records, nil
}

// FetchSatcat returns full catalog metadata, including decayed objects,
// for the constellation's predicate.
func (client *Client) FetchSatcat(ctx context.Context, entry registry.Entry) (_ []SatcatRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	patterns := SplitPatterns(entry.Query)
	if len(patterns) == 0 {
		return nil, Error.New("constellation %q has no upstream predicate", entry.Slug)
	}

	var mu sync.Mutex
	merged := map[int]SatcatRecord{}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, pattern := range patterns {
		pattern := pattern
		group.Go(func() error {
			field, value, ok := ParsePattern(pattern)
			if !ok {
				return Error.New("malformed predicate %q for %q", pattern, entry.Slug)
			}
			// The satcat class names its object field SATNAME.
			if field == "OBJECT_NAME" {
				field = "SATNAME"
			}

			req := NewRequest(ClassSatcat).
				Predicate(field, value).
				OrderBy("NORAD_CAT_ID")

			records, err := query[SatcatRecord](groupCtx, client, accountpool.QuerySatcat, entry.Slug, req, client.config.RequestTimeout)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, record := range records {
				number, err := record.CatalogNumber()
				if err != nil {
					continue
				}
				merged[number] = record
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	numbers := make([]int, 0, len(merged))
	for number := range merged {
		numbers = append(numbers, number)
	}
	sort.Ints(numbers)

	records := make([]SatcatRecord, 0, len(merged))
	for _, number := range numbers {
		records = append(records, merged[number])
	}
	return records, nil
}

// historyShapes are the predicate encodings probed for history queries,
// in order. The upstream's gp_history endpoint is historically
// sensitive to syntax, so a failing shape falls through to the next.
var historyShapes = []func(req *Request, start, end time.Time) *Request{
	func(req *Request, start, end time.Time) *Request {
		return req.Range("EPOCH", start, end)
	},
	func(req *Request, start, end time.Time) *Request {
		return req.After("EPOCH", start.AddDate(0, 0, -1)).Before("EPOCH", end.AddDate(0, 0, 1))
	},
	func(req *Request, start, end time.Time) *Request {
		return req.Range("CREATION_DATE", start, end)
	},
}

// FetchGPHistory returns historical TLEs for the given catalog numbers
// over the date range, ordered by epoch ascending.
func (client *Client) FetchGPHistory(ctx context.Context, constellation string, numbers []int, start, end time.Time) (_ []GPRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(numbers) == 0 {
		return nil, nil
	}

	var lastErr error
	for i, shape := range historyShapes {
		req := NewRequest(ClassGPHistory).CatalogNumbers(numbers)
		req = shape(req, start, end)
		req.OrderBy("EPOCH")

		records, err := query[GPRecord](ctx, client, accountpool.QueryGPHistory, constellation, req, client.config.HistoryTimeout)
		if err == nil {
			return records, nil
		}
		if ctx.Err() != nil || accountpool.ErrNoAccount.Has(err) {
			return nil, err
		}

		lastErr = err
		client.log.Warn("history predicate shape failed, trying next",
			zap.String("constellation", constellation),
			zap.Int("shape", i),
			zap.Error(err))
	}
	return nil, lastErr
}

// FetchDecay returns re-entries confirmed in the last days.
func (client *Client) FetchDecay(ctx context.Context, days int) (_ []DecayRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	req := NewRequest(ClassDecay).
		After("DECAY_EPOCH", time.Now().UTC().AddDate(0, 0, -days)).
		OrderByDesc("DECAY_EPOCH")

	return query[DecayRecord](ctx, client, accountpool.QueryDecay, "", req, client.config.RequestTimeout)
}

// FetchTIP returns the most recent re-entry predictions.
func (client *Client) FetchTIP(ctx context.Context, limit int) (_ []TIPRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	req := NewRequest(ClassTIP).
		OrderByDesc("MSG_EPOCH").
		Limit(limit)

	return query[TIPRecord](ctx, client, accountpool.QueryTIP, "", req, client.config.RequestTimeout)
}

// FetchBoxscore returns the per-country object census.
func (client *Client) FetchBoxscore(ctx context.Context) (_ []BoxscoreRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	req := NewRequest(ClassBoxscore).OrderBy("COUNTRY")
	return query[BoxscoreRecord](ctx, client, accountpool.QueryOther, "", req, client.config.RequestTimeout)
}

// FetchAnnouncements returns the latest operator announcements.
func (client *Client) FetchAnnouncements(ctx context.Context, limit int) (_ []AnnouncementRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	req := NewRequest(ClassAnnouncement).
		OrderByDesc("announcement_start").
		Limit(limit)

	return query[AnnouncementRecord](ctx, client, accountpool.QueryOther, "", req, client.config.RequestTimeout)
}
