// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package catalogdb implements the relational satellite catalog and its
// single writer. All persistent mutations go through this package.
package catalogdb

import (
	"context"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver.
	_ "github.com/mattn/go-sqlite3"    // registers the sqlite3 driver.
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/satwatch/shared/dbutil"
	"storj.io/satwatch/shared/dbutil/pgutil"
	"storj.io/satwatch/shared/dbutil/sqliteutil"
	"storj.io/satwatch/shared/tagsql"
)

var (
	// Error is the default error class for the catalog database.
	Error = errs.Class("catalogdb")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errs.Class("catalogdb: not found")

	mon = monkit.Package()
)

// Options configure how the database is opened.
type Options struct {
	ApplicationName string
}

// DB is the catalog database handle.
type DB struct {
	log  *zap.Logger
	db   tagsql.DB
	impl dbutil.Implementation

	nowFn func() time.Time
}

// Open opens the catalog database. SQLite is used for dev deployments
// and tests, PostgreSQL for production.
func Open(ctx context.Context, log *zap.Logger, connstr string, opts Options) (*DB, error) {
	driver, source, impl, err := dbutil.SplitConnStr(connstr)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	switch impl {
	case dbutil.SQLite3:
		source = sqliteSource(source)
	case dbutil.Postgres:
		source, err = pgutil.CheckApplicationName(source, opts.ApplicationName)
		if err != nil {
			return nil, Error.Wrap(err)
		}
	default:
		return nil, Error.New("unsupported database implementation %q", impl)
	}

	handle, err := tagsql.Open(ctx, driver, source)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	dbutil.Configure(ctx, handle, "catalog", mon)

	db := &DB{
		log:   log,
		impl:  impl,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	db.db = rebindDB{DB: handle, impl: impl}
	return db, nil
}

// sqliteSource appends the pragmas every deployment needs: WAL mode,
// NORMAL synchronous and a 30 s busy timeout.
func sqliteSource(source string) string {
	pragmas := "_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_loc=UTC"
	if strings.Contains(source, "?") {
		return source + "&" + pragmas
	}
	return source + "?" + pragmas
}

// Close closes the database.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// Implementation returns the underlying database implementation.
func (db *DB) Implementation() dbutil.Implementation {
	return db.impl
}

// TestingSetNow allows tests to control the writer's clock.
func (db *DB) TestingSetNow(now func() time.Time) {
	db.nowFn = now
}

// isUniqueViolation reports whether the error is a uniqueness-constraint
// violation on either implementation.
func (db *DB) isUniqueViolation(err error) bool {
	return pgutil.IsUniqueViolation(err) || sqliteutil.IsUniqueViolation(err)
}

// rebindDB rewrites `?` placeholders into the dialect's own form, so
// every query in this package can be written once.
type rebindDB struct {
	tagsql.DB
	impl dbutil.Implementation
}

// Rebind converts `?` placeholders to `$n` for postgres. SQLite takes
// them as-is.
func (db rebindDB) Rebind(query string) string {
	if db.impl != dbutil.Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 10)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// rebind applies the dialect's placeholder form to a query.
func (db *DB) rebind(query string) string {
	if r, ok := db.db.(interface{ Rebind(string) string }); ok {
		return r.Rebind(query)
	}
	return query
}

// placeholders renders `?, ?, ...` for an IN clause of n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
