// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeebo/errs"

	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/shared/dbutil/txutil"
	"storj.io/satwatch/shared/tagsql"
)

// CatalogCounts summarizes catalog size for bootstrap and status checks.
type CatalogCounts struct {
	Satellites       int64
	ActiveSatellites int64
	Constellations   int64
	HistoryRecords   int64
	Launches         int64
}

// Counts returns catalog-wide row counts.
func (db *DB) Counts(ctx context.Context) (counts CatalogCounts, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM satellites),
			(SELECT COUNT(*) FROM satellites WHERE is_active),
			(SELECT COUNT(*) FROM constellations),
			(SELECT COUNT(*) FROM tle_history),
			(SELECT COUNT(*) FROM launches)`).Scan(
		&counts.Satellites, &counts.ActiveSatellites, &counts.Constellations,
		&counts.HistoryRecords, &counts.Launches)
	return counts, Error.Wrap(err)
}

// ConstellationBySlug returns one constellation or ErrNotFound.
func (db *DB) ConstellationBySlug(ctx context.Context, slug string) (c Constellation, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.db.QueryRow(ctx, db.rebind(`
		SELECT id, slug, display_name, query, category, color, description, satellite_count, updated_at
		FROM constellations WHERE slug = ?`), slug).Scan(
		&c.ID, &c.Slug, &c.DisplayName, &c.Query, &c.Category, &c.Color,
		&c.Description, &c.SatelliteCount, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Constellation{}, ErrNotFound.New("constellation %q", slug)
	}
	return c, Error.Wrap(err)
}

// Constellations returns all constellations ordered by slug.
func (db *DB) Constellations(ctx context.Context) (list []Constellation, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.Query(ctx, `
		SELECT id, slug, display_name, query, category, color, description, satellite_count, updated_at
		FROM constellations ORDER BY slug`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for rows.Next() {
		var c Constellation
		err := rows.Scan(&c.ID, &c.Slug, &c.DisplayName, &c.Query, &c.Category,
			&c.Color, &c.Description, &c.SatelliteCount, &c.UpdatedAt)
		if err != nil {
			return nil, Error.Wrap(errs.Combine(err, rows.Close()))
		}
		list = append(list, c)
	}
	return list, Error.Wrap(errs.Combine(rows.Err(), rows.Close()))
}

// SatelliteByCatalogNumber returns one satellite or ErrNotFound.
func (db *DB) SatelliteByCatalogNumber(ctx context.Context, number int) (s Satellite, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.db.QueryRow(ctx, db.rebind(`
		SELECT id, catalog_number, name, constellation_id, intl_designator,
			launch_date, decay_date, country_code, object_type, rcs_size,
			tle_line1, tle_line2, tle_epoch,
			inclination, eccentricity, mean_motion, period_minutes,
			semi_major_axis_km, apogee_km, perigee_km,
			is_active, tle_updated_at, created_at
		FROM satellites WHERE catalog_number = ?`), number).Scan(
		&s.ID, &s.CatalogNumber, &s.Name, &s.ConstellationID, &s.IntlDesignator,
		&s.LaunchDate, &s.DecayDate, &s.CountryCode, &s.ObjectType, &s.RCSSize,
		&s.TLELine1, &s.TLELine2, &s.TLEEpoch,
		&s.Orbital.Inclination, &s.Orbital.Eccentricity, &s.Orbital.MeanMotion, &s.Orbital.PeriodMinutes,
		&s.Orbital.SemiMajorAxisKm, &s.Orbital.ApogeeKm, &s.Orbital.PerigeeKm,
		&s.IsActive, &s.TLEUpdatedAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Satellite{}, ErrNotFound.New("satellite %d", number)
	}
	return s, Error.Wrap(err)
}

// SatelliteRefs returns the satellites of a constellation ordered by
// catalog number.
func (db *DB) SatelliteRefs(ctx context.Context, slug string) (refs []SatelliteRef, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.Query(ctx, db.rebind(`
		SELECT s.id, s.catalog_number, s.name
		FROM satellites s
		JOIN constellations c ON c.id = s.constellation_id
		WHERE c.slug = ?
		ORDER BY s.catalog_number`), slug)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for rows.Next() {
		var ref SatelliteRef
		if err := rows.Scan(&ref.ID, &ref.CatalogNumber, &ref.Name); err != nil {
			return nil, Error.Wrap(errs.Combine(err, rows.Close()))
		}
		refs = append(refs, ref)
	}
	return refs, Error.Wrap(errs.Combine(rows.Err(), rows.Close()))
}

// SatelliteIDsByCatalogNumbers maps catalog numbers to row ids. Numbers
// without a row are absent from the result.
func (db *DB) SatelliteIDsByCatalogNumbers(ctx context.Context, numbers []int) (ids map[int]int64, err error) {
	defer mon.Task()(&ctx)(&err)

	set := map[int]struct{}{}
	for _, number := range numbers {
		set[number] = struct{}{}
	}
	err = txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		ids, err = db.satelliteIDs(ctx, tx, set)
		return err
	})
	return ids, Error.Wrap(err)
}

// EarliestHistoryEpochs returns, per satellite, the earliest archived
// TLE epoch. Satellites with no history are absent from the result.
func (db *DB) EarliestHistoryEpochs(ctx context.Context, satelliteIDs []int64) (earliest map[int64]time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	earliest = map[int64]time.Time{}
	if len(satelliteIDs) == 0 {
		return earliest, nil
	}

	args := make([]interface{}, 0, len(satelliteIDs))
	for _, id := range satelliteIDs {
		args = append(args, id)
	}
	rows, err := db.db.Query(ctx, db.rebind(`
		SELECT satellite_id, MIN(epoch) FROM tle_history
		WHERE satellite_id IN (`+placeholders(len(args))+`)
		GROUP BY satellite_id`), args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for rows.Next() {
		var id int64
		var epoch time.Time
		if err := rows.Scan(&id, &epoch); err != nil {
			return nil, Error.Wrap(errs.Combine(err, rows.Close()))
		}
		earliest[id] = epoch.UTC()
	}
	return earliest, Error.Wrap(errs.Combine(rows.Err(), rows.Close()))
}

// HistoryCountBySatellite returns how many archived TLEs a satellite has.
func (db *DB) HistoryCountBySatellite(ctx context.Context, satelliteID int64) (count int64, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.db.QueryRow(ctx, db.rebind(`
		SELECT COUNT(*) FROM tle_history WHERE satellite_id = ?`), satelliteID).Scan(&count)
	return count, Error.Wrap(err)
}

// SeedConstellations upserts the registry entries into the database,
// refreshing metadata on rows that already exist. Returns how many rows
// were created.
func (db *DB) SeedConstellations(ctx context.Context, entries []registry.Entry) (created int, err error) {
	defer mon.Task()(&ctx)(&err)

	err = txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		created = 0
		for _, entry := range entries {
			res, err := tx.Exec(ctx, db.rebind(`
				UPDATE constellations SET
					display_name = ?, query = ?, category = ?, color = ?, description = ?, updated_at = ?
				WHERE slug = ?`),
				displayName(entry), entry.Query, entry.Category, entry.Color, entry.Description,
				db.nowFn(), entry.Slug)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected > 0 {
				continue
			}
			if _, err := db.ensureConstellation(ctx, tx, entry); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	return created, Error.Wrap(err)
}

// LaunchesMissingDetails returns launches still lacking a mission name
// or a launch date.
func (db *DB) LaunchesMissingDetails(ctx context.Context) (list []Launch, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.db.Query(ctx, `
		SELECT id, cospar_id, mission_name, launch_date, launch_site, rocket_type
		FROM launches
		WHERE mission_name = '' OR launch_date IS NULL
		ORDER BY cospar_id`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for rows.Next() {
		var launch Launch
		err := rows.Scan(&launch.ID, &launch.CosparID, &launch.MissionName,
			&launch.LaunchDate, &launch.LaunchSite, &launch.RocketType)
		if err != nil {
			return nil, Error.Wrap(errs.Combine(err, rows.Close()))
		}
		list = append(list, launch)
	}
	return list, Error.Wrap(errs.Combine(rows.Err(), rows.Close()))
}

// LaunchByCosparID returns one launch or ErrNotFound.
func (db *DB) LaunchByCosparID(ctx context.Context, cosparID string) (launch Launch, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.db.QueryRow(ctx, db.rebind(`
		SELECT id, cospar_id, mission_name, launch_date, launch_site, rocket_type
		FROM launches WHERE cospar_id = ?`), cosparID).Scan(
		&launch.ID, &launch.CosparID, &launch.MissionName,
		&launch.LaunchDate, &launch.LaunchSite, &launch.RocketType)
	if errors.Is(err, sql.ErrNoRows) {
		return Launch{}, ErrNotFound.New("launch %q", cosparID)
	}
	return launch, Error.Wrap(err)
}

// FirstSatelliteForCospar returns the lowest-numbered satellite whose
// international designator starts with the launch's COSPAR id, along
// with its launch date.
func (db *DB) FirstSatelliteForCospar(ctx context.Context, cosparID string) (ref SatelliteRef, launchDate *time.Time, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.db.QueryRow(ctx, db.rebind(`
		SELECT id, catalog_number, name, launch_date
		FROM satellites
		WHERE intl_designator LIKE ?
		ORDER BY catalog_number
		LIMIT 1`), cosparID+"%").Scan(&ref.ID, &ref.CatalogNumber, &ref.Name, &launchDate)
	if errors.Is(err, sql.ErrNoRows) {
		return SatelliteRef{}, nil, ErrNotFound.New("no satellite for launch %q", cosparID)
	}
	return ref, launchDate, Error.Wrap(err)
}

// UpdateLaunchDetails fills in mission metadata discovered after the
// launch row was created.
func (db *DB) UpdateLaunchDetails(ctx context.Context, id int64, missionName string, launchDate *time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.db.Exec(ctx, db.rebind(`
		UPDATE launches SET
			mission_name = CASE WHEN ? <> '' THEN ? ELSE mission_name END,
			launch_date = COALESCE(?, launch_date)
		WHERE id = ?`),
		missionName, missionName, launchDate, id)
	return Error.Wrap(err)
}
