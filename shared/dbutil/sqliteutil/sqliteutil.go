// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package sqliteutil contains sqlite3-specific helpers.
package sqliteutil

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// IsConstraintError checks if given error is about constraint violation.
func IsConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// IsUniqueViolation checks if given error is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
