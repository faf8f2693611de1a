// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package tagsql implements a tagged wrapper for databases.
//
// It hides the non-context methods of *sql.DB and chooses whether to pass
// the context down to the driver, because not every driver supports
// context cancellation inside transactions.
package tagsql

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"
)

// Open opens *sql.DB and wraps the implementation with tagging.
func Open(ctx context.Context, driverName, dataSourceName string) (DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	err = db.PingContext(ctx)
	if err != nil {
		return nil, errs.Combine(err, db.Close())
	}
	return WrapWithDriver(db, driverName), nil
}

// Wrap turns a *sql.DB into a DB-matching interface.
func Wrap(db *sql.DB) DB {
	return &sqlDB{
		db:           db,
		useTxContext: true,
	}
}

// WrapWithDriver turns a *sql.DB into a DB-matching interface,
// with driver-specific workarounds.
func WrapWithDriver(db *sql.DB, driverName string) DB {
	return &sqlDB{
		db: db,
		// mattn/go-sqlite3 does not handle context cancellation
		// inside transactions.
		useTxContext: driverName != "sqlite3",
	}
}

// DB implements a wrapper for *sql.DB-like database.
//
// The wrapper adds a context to all of the calls and chooses whether the
// context is passed to the underlying query.
type DB interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Conn(ctx context.Context) (*sql.Conn, error)

	// Exec and other non-Context methods take a context for tracing
	// purposes, but do not pass the context to the underlying database query.
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row

	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row

	PingContext(ctx context.Context) error

	SetConnMaxLifetime(d time.Duration)
	SetMaxIdleConns(n int)
	SetMaxOpenConns(n int)
	Stats() sql.DBStats

	Close() error
}

// Rows implements a wrapper for *sql.Rows.
type Rows interface {
	Close() error
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...interface{}) error
}

type sqlDB struct {
	db           *sql.DB
	useTxContext bool
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTx{
		tx:         tx,
		useContext: s.useTxContext,
	}, nil
}

func (s *sqlDB) Conn(ctx context.Context) (*sql.Conn, error) {
	return s.db.Conn(ctx)
}

func (s *sqlDB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.Exec(query, args...)
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return s.db.Query(query, args...)
}

func (s *sqlDB) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRow(query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlDB) SetConnMaxLifetime(d time.Duration) { s.db.SetConnMaxLifetime(d) }
func (s *sqlDB) SetMaxIdleConns(n int)              { s.db.SetMaxIdleConns(n) }
func (s *sqlDB) SetMaxOpenConns(n int)              { s.db.SetMaxOpenConns(n) }
func (s *sqlDB) Stats() sql.DBStats                 { return s.db.Stats() }

func (s *sqlDB) Close() error { return s.db.Close() }
