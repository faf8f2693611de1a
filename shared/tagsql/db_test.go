// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package tagsql_test

import (
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/satwatch/shared/tagsql"
)

func TestNonContextMethods(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db, err := tagsql.Open(ctx, "sqlite3", "file:"+ctx.File("tagsql.db"))
	require.NoError(t, err)
	defer ctx.Check(db.Close)

	_, err = db.Exec(ctx, `CREATE TABLE kv ( k TEXT PRIMARY KEY, v TEXT )`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO kv ( k, v ) VALUES ( ?, ? )`, "a", "1")
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO kv ( k, v ) VALUES ( ?, ? )`, "b", "2")
	require.NoError(t, err)

	var value string
	err = db.QueryRow(ctx, `SELECT v FROM kv WHERE k = ?`, "b").Scan(&value)
	require.NoError(t, err)
	require.Equal(t, "2", value)

	rows, err := db.Query(ctx, `SELECT k FROM kv ORDER BY k`)
	require.NoError(t, err)
	defer ctx.Check(rows.Close)

	var keys []string
	for rows.Next() {
		var key string
		require.NoError(t, rows.Scan(&key))
		keys = append(keys, key)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"a", "b"}, keys)
}
