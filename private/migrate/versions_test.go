// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package migrate_test

import (
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/satwatch/private/migrate"
	"storj.io/satwatch/shared/tagsql"
)

func TestRunBasic(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)

	db, err := tagsql.Open(ctx, "sqlite3", "file:"+ctx.File("basic.db"))
	require.NoError(t, err)
	defer ctx.Check(db.Close)
	db.SetMaxOpenConns(1)

	m := migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{
			{
				DB:          db,
				Description: "initial setup",
				Version:     1,
				Action: migrate.SQL{
					`CREATE TABLE users (id int)`,
				},
			},
			{
				DB:          db,
				Description: "add name column",
				Version:     2,
				Action: migrate.SQL{
					`ALTER TABLE users ADD COLUMN name text`,
				},
			},
		},
	}

	require.NoError(t, m.Run(ctx, log))

	// all steps recorded
	version, err := m.CurrentVersion(ctx, log, db)
	require.NoError(t, err)
	require.Equal(t, 2, version)

	// repeated run applies nothing
	require.NoError(t, m.Run(ctx, log))
	require.NoError(t, m.ValidateVersions(ctx, log))

	_, err = db.ExecContext(ctx, `INSERT INTO users (id, name) VALUES (1, 'mercury')`)
	require.NoError(t, err)
}

func TestRunInvalidTable(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	m := migrate.Migration{Table: "no spaces allowed"}
	require.Error(t, m.Run(ctx, zaptest.NewLogger(t)))
}

func TestTargetVersion(t *testing.T) {
	m := migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{
			{Version: 1}, {Version: 2}, {Version: 3},
		},
	}
	trimmed := m.TargetVersion(2)
	require.Len(t, trimmed.Steps, 2)
	require.Len(t, m.Steps, 3)
}

func TestValidateSteps(t *testing.T) {
	m := migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{
			{Version: 2}, {Version: 1},
		},
	}
	require.Error(t, m.ValidateSteps())
}
