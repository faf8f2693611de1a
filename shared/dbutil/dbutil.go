// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package dbutil contains helpers for working with connection strings
// and for putting reasonable bounds on database handles.
package dbutil

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

// Implementation type of valid DBs.
type Implementation int

const (
	// Unknown is an unknown db type.
	Unknown Implementation = iota
	// Postgres is a PostgreSQL db type.
	Postgres
	// SQLite3 is a sqlite3 db type.
	SQLite3
)

// String returns the name of the implementation.
func (impl Implementation) String() string {
	switch impl {
	case Postgres:
		return "postgres"
	case SQLite3:
		return "sqlite3"
	default:
		return "unknown"
	}
}

// ImplementationForScheme returns the Implementation that is used for
// the url with the provided scheme.
func ImplementationForScheme(scheme string) Implementation {
	switch scheme {
	case "postgres", "postgresql", "pgx":
		return Postgres
	case "sqlite", "sqlite3", "file":
		return SQLite3
	default:
		return Unknown
	}
}

// SplitConnStr returns the driver and source name to use with sql.Open,
// as well as the implementation the connection string refers to.
func SplitConnStr(s string) (driver string, source string, impl Implementation, err error) {
	parts := strings.SplitN(s, "://", 2)
	if len(parts) != 2 {
		return "", "", Unknown, errs.New("could not parse DB URL %q", s)
	}

	impl = ImplementationForScheme(parts[0])
	switch impl {
	case Postgres:
		driver = "pgx"
		// the postgres driver wants the full connection string.
		source = s
	case SQLite3:
		driver = "sqlite3"
		source = parts[1]
	default:
		return "", "", Unknown, errs.New("unsupported database scheme %q in %q", parts[0], s)
	}
	return driver, source, impl, nil
}

const (
	maxIdleConns    = 2
	maxOpenConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// ConfigurableDB contains methods for configuring a database.
type ConfigurableDB interface {
	SetMaxIdleConns(int)
	SetMaxOpenConns(int)
	SetConnMaxLifetime(time.Duration)
	Stats() sql.DBStats
}

// Configure sets connection boundaries and adds db_stats monitoring to monkit.
func Configure(ctx context.Context, db ConfigurableDB, dbName string, mon *monkit.Scope) {
	db.SetMaxIdleConns(maxIdleConns)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	mon.Chain(monkit.StatSourceFunc(
		func(cb func(key monkit.SeriesKey, field string, val float64)) {
			monkit.StatSourceFromStruct(monkit.NewSeriesKey(dbName+"_db_stats"), db.Stats()).Stats(cb)
		}))
}
