// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package spacetrack

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Upstream query classes.
const (
	ClassGP           = "gp"
	ClassGPHistory    = "gp_history"
	ClassSatcat       = "satcat"
	ClassDecay        = "decay"
	ClassTIP          = "tip"
	ClassAnnouncement = "announcement"
	ClassBoxscore     = "boxscore"
)

// Request builds an upstream query URL. The upstream addresses records
// by path-segment pairs of field and operator-bearing value:
//
//	/basicspacedata/query/class/gp/DECAY_DATE/null-val/OBJECT_NAME/~~STARLINK/orderby/NORAD_CAT_ID asc/format/json
//
// Supported value operators: ~~ (contains), ^ (starts with), $ (ends
// with), <> (not equal), < and > (comparison), -- (inclusive range) and
// null-val.
type Request struct {
	class    string
	segments []string
	orderBy  string
	limit    int
}

// NewRequest starts a query against the given upstream class.
func NewRequest(class string) *Request {
	return &Request{class: class}
}

// Predicate adds a field/value path segment pair. The value carries its
// operator prefix, if any.
func (req *Request) Predicate(field, value string) *Request {
	req.segments = append(req.segments, field, value)
	return req
}

// NullVal restricts the field to records where it is unset.
func (req *Request) NullVal(field string) *Request {
	return req.Predicate(field, "null-val")
}

// Range restricts the field to an inclusive date range.
func (req *Request) Range(field string, start, end time.Time) *Request {
	return req.Predicate(field, queryDate(start)+"--"+queryDate(end))
}

// After restricts the field to values strictly after the date.
func (req *Request) After(field string, t time.Time) *Request {
	return req.Predicate(field, ">"+queryDate(t))
}

// Before restricts the field to values strictly before the date.
func (req *Request) Before(field string, t time.Time) *Request {
	return req.Predicate(field, "<"+queryDate(t))
}

// CatalogNumbers restricts NORAD_CAT_ID to the given list.
func (req *Request) CatalogNumbers(numbers []int) *Request {
	list := make([]string, 0, len(numbers))
	for _, number := range numbers {
		list = append(list, strconv.Itoa(number))
	}
	return req.Predicate("NORAD_CAT_ID", strings.Join(list, ","))
}

// OrderBy sorts the result ascending by the field.
func (req *Request) OrderBy(field string) *Request {
	req.orderBy = field + " asc"
	return req
}

// OrderByDesc sorts the result descending by the field.
func (req *Request) OrderByDesc(field string) *Request {
	req.orderBy = field + " desc"
	return req
}

// Limit caps the number of returned records.
func (req *Request) Limit(n int) *Request {
	req.limit = n
	return req
}

// URL renders the request against the upstream base URL. Values are
// percent-encoded; the upstream requires %20 for spaces.
func (req *Request) URL(base string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(base, "/"))
	b.WriteString("/basicspacedata/query/class/")
	b.WriteString(req.class)
	for i := 0; i+1 < len(req.segments); i += 2 {
		b.WriteString("/")
		b.WriteString(req.segments[i])
		b.WriteString("/")
		b.WriteString(escapeSegment(req.segments[i+1]))
	}
	if req.orderBy != "" {
		b.WriteString("/orderby/")
		b.WriteString(escapeSegment(req.orderBy))
	}
	if req.limit > 0 {
		b.WriteString("/limit/")
		b.WriteString(strconv.Itoa(req.limit))
	}
	b.WriteString("/format/json")
	return b.String()
}

// escapeSegment percent-encodes a path segment. The upstream requires
// %20 for spaces and percent-encoded operator characters.
func escapeSegment(value string) string {
	return url.PathEscape(value)
}

// queryDate formats a time the way the upstream expects date values.
func queryDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SplitPatterns splits a registry query string into its alternative
// patterns. The upstream cannot OR name patterns natively, so each
// pattern becomes its own query and the results are merged client-side.
func SplitPatterns(query string) []string {
	var patterns []string
	for _, part := range strings.Split(query, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			patterns = append(patterns, part)
		}
	}
	return patterns
}

// patternOperators in the order they must be probed: two-character
// operators first so that "<>" is not mistaken for "<".
var patternOperators = []string{"~~", "<>", "^", "<", ">", "="}

// ParsePattern splits a single registry pattern like "OBJECT_NAME~~STARLINK"
// into the field and the operator-bearing value for a path segment pair.
func ParsePattern(pattern string) (field, value string, ok bool) {
	for _, op := range patternOperators {
		if i := strings.Index(pattern, op); i > 0 {
			if op == "=" {
				// Equality has no operator prefix on the wire.
				return pattern[:i], pattern[i+len(op):], true
			}
			return pattern[:i], pattern[i:], true
		}
	}
	return "", "", false
}
