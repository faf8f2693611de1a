// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"

	"storj.io/satwatch/private/migrate"
	"storj.io/satwatch/shared/dbutil"
)

// MigrateToLatest brings the schema to the current version.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return db.Migration().Run(ctx, db.log.Named("migrate"))
}

// CheckVersion verifies that the schema matches the steps of this
// binary without applying anything.
func (db *DB) CheckVersion(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return db.Migration().ValidateVersions(ctx, db.log.Named("migrate"))
}

// Migration returns the schema steps. Each step is written per dialect
// only where the dialects genuinely differ.
func (db *DB) Migration() *migrate.Migration {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.impl == dbutil.Postgres {
		pk = "BIGSERIAL PRIMARY KEY"
	}

	return &migrate.Migration{
		Table: "catalog_versions",
		Steps: []*migrate.Step{
			{
				DB:          db.db,
				Description: "Initial setup: constellations, satellites, TLE history",
				Version:     0,
				Action: migrate.SQL{
					`CREATE TABLE constellations (
						id ` + pk + `,
						slug TEXT NOT NULL UNIQUE,
						display_name TEXT NOT NULL,
						query TEXT NOT NULL DEFAULT '',
						category TEXT NOT NULL DEFAULT '',
						color TEXT NOT NULL DEFAULT '',
						description TEXT NOT NULL DEFAULT '',
						satellite_count INTEGER NOT NULL DEFAULT 0,
						updated_at TIMESTAMP
					)`,
					`CREATE TABLE satellites (
						id ` + pk + `,
						catalog_number INTEGER NOT NULL UNIQUE,
						name TEXT NOT NULL,
						constellation_id INTEGER REFERENCES constellations (id),
						intl_designator TEXT NOT NULL DEFAULT '',
						launch_date TIMESTAMP,
						decay_date TIMESTAMP,
						country_code TEXT NOT NULL DEFAULT '',
						object_type TEXT NOT NULL DEFAULT '',
						rcs_size TEXT NOT NULL DEFAULT '',
						tle_line1 TEXT NOT NULL DEFAULT '',
						tle_line2 TEXT NOT NULL DEFAULT '',
						tle_epoch TIMESTAMP,
						inclination DOUBLE PRECISION NOT NULL DEFAULT 0,
						eccentricity DOUBLE PRECISION NOT NULL DEFAULT 0,
						mean_motion DOUBLE PRECISION NOT NULL DEFAULT 0,
						period_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
						semi_major_axis_km DOUBLE PRECISION NOT NULL DEFAULT 0,
						apogee_km DOUBLE PRECISION NOT NULL DEFAULT 0,
						perigee_km DOUBLE PRECISION NOT NULL DEFAULT 0,
						is_active BOOLEAN NOT NULL DEFAULT TRUE,
						tle_updated_at TIMESTAMP,
						created_at TIMESTAMP NOT NULL
					)`,
					`CREATE INDEX satellites_constellation_index ON satellites (constellation_id)`,
					`CREATE TABLE tle_history (
						id ` + pk + `,
						satellite_id INTEGER NOT NULL REFERENCES satellites (id),
						tle_line1 TEXT NOT NULL,
						tle_line2 TEXT NOT NULL,
						epoch TIMESTAMP NOT NULL,
						inclination DOUBLE PRECISION NOT NULL DEFAULT 0,
						eccentricity DOUBLE PRECISION NOT NULL DEFAULT 0,
						mean_motion DOUBLE PRECISION NOT NULL DEFAULT 0,
						period_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
						semi_major_axis_km DOUBLE PRECISION NOT NULL DEFAULT 0,
						apogee_km DOUBLE PRECISION NOT NULL DEFAULT 0,
						perigee_km DOUBLE PRECISION NOT NULL DEFAULT 0,
						source TEXT NOT NULL DEFAULT '',
						recorded_at TIMESTAMP NOT NULL,
						CONSTRAINT tle_history_satellite_epoch UNIQUE (satellite_id, epoch)
					)`,
					`CREATE INDEX tle_history_satellite_index ON tle_history (satellite_id)`,
				},
			},
			{
				DB:          db.db,
				Description: "Add launches",
				Version:     1,
				Action: migrate.SQL{
					`CREATE TABLE launches (
						id ` + pk + `,
						cospar_id TEXT NOT NULL UNIQUE,
						mission_name TEXT NOT NULL DEFAULT '',
						launch_date TIMESTAMP,
						launch_site TEXT NOT NULL DEFAULT '',
						rocket_type TEXT NOT NULL DEFAULT '',
						created_at TIMESTAMP NOT NULL
					)`,
				},
			},
		},
	}
}
