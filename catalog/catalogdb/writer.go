// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package catalogdb

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/catalog/spacetrack"
	"storj.io/satwatch/shared/dbutil/txutil"
	"storj.io/satwatch/shared/tagsql"
)

// GPBatchResult counts the outcome of one GP upsert batch.
type GPBatchResult struct {
	New             int
	Updated         int
	HistoryAppended int
	Skipped         int
}

// SatcatBatchResult counts the outcome of one SATCAT upsert batch.
type SatcatBatchResult struct {
	New             int
	Updated         int
	LaunchesCreated int
	Skipped         int
}

// UpsertGPBatch merges a batch of GP records into the catalog, keyed by
// catalog number. New objects are created under the given constellation;
// existing ones have their TLE, derived elements and active state
// updated and are re-linked when the constellation changed. An epoch
// change appends the TLE to history. Upserts happen in catalog-number
// ascending order.
func (db *DB) UpsertGPBatch(ctx context.Context, entry registry.Entry, records []spacetrack.GPRecord) (result GPBatchResult, err error) {
	defer mon.Task()(&ctx)(&err)

	sorted := append([]spacetrack.GPRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, _ := sorted[i].CatalogNumber()
		b, _ := sorted[j].CatalogNumber()
		return a < b
	})

	err = txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		result = GPBatchResult{}

		constellationID, err := db.ensureConstellation(ctx, tx, entry)
		if err != nil {
			return err
		}
		touched := map[int64]struct{}{constellationID: {}}

		for _, record := range sorted {
			number, err := record.CatalogNumber()
			if err != nil {
				result.Skipped++
				continue
			}
			epoch, err := record.EpochTime()
			if err != nil {
				result.Skipped++
				continue
			}
			epoch = epoch.Truncate(time.Second)

			// A TLE the derivation cannot read still gets stored; the
			// derived elements stay zero.
			orbital, _ := DeriveOrbitalParams(record.TLELine2)

			now := db.nowFn()
			decay, hasDecay := record.DecayTime()
			var decayDate *time.Time
			if hasDecay {
				decayDate = &decay
			}

			var id int64
			var oldEpoch sql.NullTime
			var oldConstellation sql.NullInt64
			err = tx.QueryRow(ctx, db.rebind(`
				SELECT id, tle_epoch, constellation_id FROM satellites WHERE catalog_number = ?`),
				number).Scan(&id, &oldEpoch, &oldConstellation)

			switch {
			case errors.Is(err, sql.ErrNoRows):
				_, err = tx.Exec(ctx, db.rebind(`
					INSERT INTO satellites (
						catalog_number, name, constellation_id, intl_designator,
						tle_line1, tle_line2, tle_epoch,
						inclination, eccentricity, mean_motion, period_minutes,
						semi_major_axis_km, apogee_km, perigee_km,
						decay_date, is_active, tle_updated_at, created_at
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
					number, objectName(record.ObjectName, number), constellationID, record.IntlDes,
					record.TLELine1, record.TLELine2, epoch,
					orbital.Inclination, orbital.Eccentricity, orbital.MeanMotion, orbital.PeriodMinutes,
					orbital.SemiMajorAxisKm, orbital.ApogeeKm, orbital.PerigeeKm,
					decayDate, !hasDecay, now, now)
				if err != nil {
					return err
				}
				result.New++

			case err != nil:
				return err

			default:
				_, err = tx.Exec(ctx, db.rebind(`
					UPDATE satellites SET
						name = ?, constellation_id = ?, intl_designator = ?,
						tle_line1 = ?, tle_line2 = ?, tle_epoch = ?,
						inclination = ?, eccentricity = ?, mean_motion = ?, period_minutes = ?,
						semi_major_axis_km = ?, apogee_km = ?, perigee_km = ?,
						decay_date = ?, is_active = ?, tle_updated_at = ?
					WHERE id = ?`),
					objectName(record.ObjectName, number), constellationID, record.IntlDes,
					record.TLELine1, record.TLELine2, epoch,
					orbital.Inclination, orbital.Eccentricity, orbital.MeanMotion, orbital.PeriodMinutes,
					orbital.SemiMajorAxisKm, orbital.ApogeeKm, orbital.PerigeeKm,
					decayDate, !hasDecay, now,
					id)
				if err != nil {
					return err
				}
				result.Updated++

				if oldConstellation.Valid && oldConstellation.Int64 != constellationID {
					touched[oldConstellation.Int64] = struct{}{}
				}

				epochChanged := !oldEpoch.Valid || !oldEpoch.Time.UTC().Truncate(time.Second).Equal(epoch)
				if epochChanged && record.TLELine1 != "" && record.TLELine2 != "" {
					appended, err := db.appendHistory(ctx, tx, id, record, epoch, orbital, SourceLiveRefresh, now)
					if err != nil {
						return err
					}
					if appended {
						result.HistoryAppended++
					}
				}
			}
		}

		return db.refreshConstellationCounts(ctx, tx, touched)
	})
	if err != nil {
		db.log.Error("gp batch rolled back",
			zap.String("constellation", entry.Slug),
			zap.Error(err))
		return GPBatchResult{}, Error.Wrap(err)
	}
	return result, nil
}

// UpsertSatcatBatch merges a batch of catalog-metadata records,
// including decayed objects. Launches are created opportunistically
// from the COSPAR prefix of the international designator.
func (db *DB) UpsertSatcatBatch(ctx context.Context, entry registry.Entry, records []spacetrack.SatcatRecord) (result SatcatBatchResult, err error) {
	defer mon.Task()(&ctx)(&err)

	err = txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		result = SatcatBatchResult{}

		constellationID, err := db.ensureConstellation(ctx, tx, entry)
		if err != nil {
			return err
		}
		touched := map[int64]struct{}{constellationID: {}}

		type satRef struct {
			id              int64
			constellationID sql.NullInt64
		}

		numbers := make([]int, 0, len(records))
		cospars := map[string]struct{}{}
		for _, record := range records {
			number, err := record.CatalogNumber()
			if err != nil {
				continue
			}
			numbers = append(numbers, number)
			if cospar, ok := record.CosparID(); ok {
				cospars[cospar] = struct{}{}
			}
		}

		existing := map[int]satRef{}
		if len(numbers) > 0 {
			args := make([]interface{}, 0, len(numbers))
			for _, number := range numbers {
				args = append(args, number)
			}
			rows, err := tx.Query(ctx, db.rebind(`
				SELECT id, catalog_number, constellation_id FROM satellites
				WHERE catalog_number IN (`+placeholders(len(numbers))+`)`), args...)
			if err != nil {
				return err
			}
			for rows.Next() {
				var ref satRef
				var number int
				if err := rows.Scan(&ref.id, &number, &ref.constellationID); err != nil {
					return errs.Combine(err, rows.Close())
				}
				existing[number] = ref
			}
			if err := errs.Combine(rows.Err(), rows.Close()); err != nil {
				return err
			}
		}

		launches, err := db.preloadLaunches(ctx, tx, cospars)
		if err != nil {
			return err
		}

		for _, record := range records {
			number, err := record.CatalogNumber()
			if err != nil {
				result.Skipped++
				continue
			}

			now := db.nowFn()
			launchDate, hasLaunch := record.LaunchTime()
			var launchPtr *time.Time
			if hasLaunch {
				launchPtr = &launchDate
			}
			decayDate, hasDecay := record.DecayTime()
			var decayPtr *time.Time
			if hasDecay {
				decayPtr = &decayDate
			}

			ref, ok := existing[number]
			if !ok {
				var id int64
				err = tx.QueryRow(ctx, db.rebind(`
					INSERT INTO satellites (
						catalog_number, name, constellation_id, intl_designator,
						launch_date, decay_date, country_code, object_type, rcs_size,
						is_active, created_at
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
					RETURNING id`),
					number, objectName(record.ObjectName, number), constellationID, record.IntlDes,
					launchPtr, decayPtr, record.Country, record.ObjectType, record.RCS,
					!hasDecay, now).Scan(&id)
				if err != nil {
					return err
				}
				existing[number] = satRef{id: id, constellationID: sql.NullInt64{Int64: constellationID, Valid: true}}
				result.New++
			} else {
				// Metadata fields update only when the upstream sent
				// them; an absent decay does not re-activate here.
				_, err = tx.Exec(ctx, db.rebind(`
					UPDATE satellites SET
						name = CASE WHEN ? <> '' THEN ? ELSE name END,
						constellation_id = ?,
						intl_designator = CASE WHEN ? <> '' THEN ? ELSE intl_designator END,
						launch_date = COALESCE(?, launch_date),
						decay_date = COALESCE(?, decay_date),
						is_active = CASE WHEN ? THEN FALSE ELSE is_active END,
						country_code = CASE WHEN ? <> '' THEN ? ELSE country_code END,
						object_type = CASE WHEN ? <> '' THEN ? ELSE object_type END,
						rcs_size = CASE WHEN ? <> '' THEN ? ELSE rcs_size END
					WHERE id = ?`),
					record.ObjectName, record.ObjectName,
					constellationID,
					record.IntlDes, record.IntlDes,
					launchPtr,
					decayPtr,
					hasDecay,
					record.Country, record.Country,
					record.ObjectType, record.ObjectType,
					record.RCS, record.RCS,
					ref.id)
				if err != nil {
					return err
				}
				if ref.constellationID.Valid && ref.constellationID.Int64 != constellationID {
					touched[ref.constellationID.Int64] = struct{}{}
				}
				result.Updated++
			}

			cospar, ok := record.CosparID()
			if !ok {
				continue
			}
			if _, ok := launches[cospar]; ok {
				continue
			}
			launchID, created, err := db.createLaunch(ctx, tx, Launch{
				CosparID:    cospar,
				MissionName: record.ObjectName,
				LaunchDate:  launchPtr,
				LaunchSite:  record.Site,
			})
			if err != nil {
				return err
			}
			launches[cospar] = launchID
			if created {
				result.LaunchesCreated++
			}
		}

		return db.refreshConstellationCounts(ctx, tx, touched)
	})
	if err != nil {
		db.log.Error("satcat batch rolled back",
			zap.String("constellation", entry.Slug),
			zap.Error(err))
		return SatcatBatchResult{}, Error.Wrap(err)
	}
	return result, nil
}

// PersistHistoryBatch appends historical TLE records, skipping any
// (satellite, epoch) pair already present and any record whose catalog
// number is unknown. Returns the number of rows actually inserted.
func (db *DB) PersistHistoryBatch(ctx context.Context, records []spacetrack.GPRecord, source string) (inserted int, err error) {
	defer mon.Task()(&ctx)(&err)

	err = txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		inserted = 0

		numbers := map[int]struct{}{}
		for _, record := range records {
			if number, err := record.CatalogNumber(); err == nil {
				numbers[number] = struct{}{}
			}
		}
		satellites, err := db.satelliteIDs(ctx, tx, numbers)
		if err != nil {
			return err
		}

		seen, err := db.existingEpochs(ctx, tx, satellites)
		if err != nil {
			return err
		}

		for _, record := range records {
			number, err := record.CatalogNumber()
			if err != nil {
				continue
			}
			satelliteID, ok := satellites[number]
			if !ok {
				continue
			}
			epoch, err := record.EpochTime()
			if err != nil {
				continue
			}
			epoch = epoch.Truncate(time.Second)
			if _, ok := seen[epochKey{satelliteID, epoch.Unix()}]; ok {
				continue
			}

			orbital, _ := DeriveOrbitalParams(record.TLELine2)
			appended, err := db.appendHistory(ctx, tx, satelliteID, record, epoch, orbital, source, db.nowFn())
			if err != nil {
				return err
			}
			if appended {
				seen[epochKey{satelliteID, epoch.Unix()}] = struct{}{}
				inserted++
			}
		}
		return nil
	})
	return inserted, Error.Wrap(err)
}

// ApplyDecayBatch marks satellites as decayed from confirmed re-entry
// records. Satellites that already carry a decay date are untouched.
func (db *DB) ApplyDecayBatch(ctx context.Context, records []spacetrack.DecayRecord) (decayed int, err error) {
	defer mon.Task()(&ctx)(&err)

	err = txutil.WithTx(ctx, db.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		decayed = 0
		for _, record := range records {
			number, err := record.CatalogNumber()
			if err != nil {
				continue
			}
			decayTime, err := record.DecayTime()
			if err != nil {
				continue
			}

			res, err := tx.Exec(ctx, db.rebind(`
				UPDATE satellites SET decay_date = ?, is_active = FALSE
				WHERE catalog_number = ? AND decay_date IS NULL`),
				decayTime.Truncate(time.Second), number)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			decayed += int(affected)
		}
		return nil
	})
	return decayed, Error.Wrap(err)
}

// ensureConstellation returns the constellation id for the slug,
// creating the row on first ingest.
func (db *DB) ensureConstellation(ctx context.Context, tx tagsql.Tx, entry registry.Entry) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, db.rebind(`SELECT id FROM constellations WHERE slug = ?`), entry.Slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRow(ctx, db.rebind(`
			INSERT INTO constellations (slug, display_name, query, category, color, description, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			entry.Slug, displayName(entry), entry.Query, entry.Category, entry.Color, entry.Description,
			db.nowFn()).Scan(&id)
	}
	return id, err
}

// appendHistory inserts one history row, relying on the
// (satellite, epoch) uniqueness to make re-ingestion a no-op.
func (db *DB) appendHistory(ctx context.Context, tx tagsql.Tx, satelliteID int64, record spacetrack.GPRecord, epoch time.Time, orbital OrbitalParams, source string, now time.Time) (bool, error) {
	res, err := tx.Exec(ctx, db.rebind(`
		INSERT INTO tle_history (
			satellite_id, tle_line1, tle_line2, epoch,
			inclination, eccentricity, mean_motion, period_minutes,
			semi_major_axis_km, apogee_km, perigee_km,
			source, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (satellite_id, epoch) DO NOTHING`),
		satelliteID, record.TLELine1, record.TLELine2, epoch,
		orbital.Inclination, orbital.Eccentricity, orbital.MeanMotion, orbital.PeriodMinutes,
		orbital.SemiMajorAxisKm, orbital.ApogeeKm, orbital.PerigeeKm,
		source, now)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// createLaunch inserts a launch inside a savepoint so a concurrent
// creation rolls back just this insert and re-reads the winner.
func (db *DB) createLaunch(ctx context.Context, tx tagsql.Tx, launch Launch) (id int64, created bool, err error) {
	if _, err := tx.Exec(ctx, `SAVEPOINT create_launch`); err != nil {
		return 0, false, err
	}

	err = tx.QueryRow(ctx, db.rebind(`
		INSERT INTO launches (cospar_id, mission_name, launch_date, launch_site, rocket_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		launch.CosparID, launch.MissionName, launch.LaunchDate, launch.LaunchSite, launch.RocketType,
		db.nowFn()).Scan(&id)
	if err != nil {
		if _, rollbackErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT create_launch`); rollbackErr != nil {
			return 0, false, errs.Combine(err, rollbackErr)
		}
		if !db.isUniqueViolation(err) {
			return 0, false, err
		}
		err = tx.QueryRow(ctx, db.rebind(`SELECT id FROM launches WHERE cospar_id = ?`), launch.CosparID).Scan(&id)
		return id, false, err
	}

	if _, err := tx.Exec(ctx, `RELEASE SAVEPOINT create_launch`); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// preloadLaunches maps the cospar ids that already exist to their row id.
func (db *DB) preloadLaunches(ctx context.Context, tx tagsql.Tx, cospars map[string]struct{}) (map[string]int64, error) {
	launches := map[string]int64{}
	if len(cospars) == 0 {
		return launches, nil
	}

	args := make([]interface{}, 0, len(cospars))
	for cospar := range cospars {
		args = append(args, cospar)
	}
	rows, err := tx.Query(ctx, db.rebind(`
		SELECT id, cospar_id FROM launches WHERE cospar_id IN (`+placeholders(len(args))+`)`), args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id int64
		var cospar string
		if err := rows.Scan(&id, &cospar); err != nil {
			return nil, errs.Combine(err, rows.Close())
		}
		launches[cospar] = id
	}
	return launches, errs.Combine(rows.Err(), rows.Close())
}

// satelliteIDs maps catalog numbers to satellite row ids inside a
// transaction.
func (db *DB) satelliteIDs(ctx context.Context, tx tagsql.Tx, numbers map[int]struct{}) (map[int]int64, error) {
	satellites := map[int]int64{}
	if len(numbers) == 0 {
		return satellites, nil
	}

	args := make([]interface{}, 0, len(numbers))
	for number := range numbers {
		args = append(args, number)
	}
	rows, err := tx.Query(ctx, db.rebind(`
		SELECT id, catalog_number FROM satellites WHERE catalog_number IN (`+placeholders(len(args))+`)`), args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id int64
		var number int
		if err := rows.Scan(&id, &number); err != nil {
			return nil, errs.Combine(err, rows.Close())
		}
		satellites[number] = id
	}
	return satellites, errs.Combine(rows.Err(), rows.Close())
}

type epochKey struct {
	satelliteID int64
	epochUnix   int64
}

// existingEpochs loads the already-present history epochs for the
// given satellites, truncated to seconds.
func (db *DB) existingEpochs(ctx context.Context, tx tagsql.Tx, satellites map[int]int64) (map[epochKey]struct{}, error) {
	seen := map[epochKey]struct{}{}
	if len(satellites) == 0 {
		return seen, nil
	}

	args := make([]interface{}, 0, len(satellites))
	for _, id := range satellites {
		args = append(args, id)
	}
	rows, err := tx.Query(ctx, db.rebind(`
		SELECT satellite_id, epoch FROM tle_history WHERE satellite_id IN (`+placeholders(len(args))+`)`), args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var satelliteID int64
		var epoch time.Time
		if err := rows.Scan(&satelliteID, &epoch); err != nil {
			return nil, errs.Combine(err, rows.Close())
		}
		seen[epochKey{satelliteID, epoch.UTC().Truncate(time.Second).Unix()}] = struct{}{}
	}
	return seen, errs.Combine(rows.Err(), rows.Close())
}

// refreshConstellationCounts recomputes the cached satellite count and
// stamps updated_at for every touched constellation, inside the same
// transaction as the batch itself.
func (db *DB) refreshConstellationCounts(ctx context.Context, tx tagsql.Tx, touched map[int64]struct{}) error {
	for id := range touched {
		_, err := tx.Exec(ctx, db.rebind(`
			UPDATE constellations SET
				satellite_count = (SELECT COUNT(*) FROM satellites WHERE constellation_id = ?),
				updated_at = ?
			WHERE id = ?`),
			id, db.nowFn(), id)
		if err != nil {
			return err
		}
	}
	return nil
}

func objectName(name string, number int) string {
	if name != "" {
		return name
	}
	return "UNKNOWN-" + strconv.Itoa(number)
}

func displayName(entry registry.Entry) string {
	if entry.Name != "" {
		return entry.Name
	}
	return entry.Slug
}
