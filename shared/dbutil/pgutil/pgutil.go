// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package pgutil contains postgres-specific connection string and
// error-inspection helpers.
package pgutil

import (
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zeebo/errs"
)

// UniqueViolation is the postgres error code for unique constraint violations.
const UniqueViolation = "23505"

// CheckApplicationName ensures that the connection string contains an
// application name, so server-side logs can tell connections apart.
func CheckApplicationName(s string, app string) (string, error) {
	if strings.Contains(s, "application_name") {
		return s, nil
	}
	if app == "" {
		return s, errs.New("application name cannot be empty")
	}

	if !strings.Contains(s, "?") {
		return s + "?application_name=" + url.QueryEscape(app), nil
	}
	return s + "&application_name=" + url.QueryEscape(app), nil
}

// IsConstraintError checks if given error is about constraint violation.
func IsConstraintError(err error) bool {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return strings.HasPrefix(pgerr.Code, "23")
	}
	return false
}

// IsUniqueViolation checks if given error is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) {
		return pgerr.Code == UniqueViolation
	}
	return false
}
