// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package zipimport_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/satwatch/catalog/catalogdb"
	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/catalog/spacetrack"
	"storj.io/satwatch/catalog/zipimport"
)

func openTestDB(t *testing.T, ctx *testcontext.Context) *catalogdb.DB {
	db, err := catalogdb.Open(ctx, zaptest.NewLogger(t),
		"sqlite3://file:"+ctx.File("catalog.db"),
		catalogdb.Options{ApplicationName: "satwatch-test"})
	require.NoError(t, err)
	require.NoError(t, db.MigrateToLatest(ctx))
	return db
}

func gpRecord(number int, epoch string) spacetrack.GPRecord {
	return spacetrack.GPRecord{
		NoradCatID: strconv.Itoa(number),
		ObjectName: "STARLINK-" + strconv.Itoa(number),
		Epoch:      epoch,
		TLELine1:   "1 44713U 19074A   22123.45678901  .00001234  00000-0  12345-3 0  9999",
		TLELine2:   "2 44713  53.0541 186.0533 0001341  90.1267 269.9876 15.0639102312345",
	}
}

func seedSatellite(t *testing.T, ctx *testcontext.Context, db *catalogdb.DB, slug string, number int) {
	entry, err := registry.Builtin().Get(slug)
	require.NoError(t, err)
	_, err = db.UpsertGPBatch(ctx, entry, []spacetrack.GPRecord{
		gpRecord(number, "2024-01-01 12:00:00"),
	})
	require.NoError(t, err)
}

// writeArchive builds an outer zip with one inner zip per year, each
// holding one records.json.
func writeArchive(t *testing.T, ctx *testcontext.Context, byYear map[int][]spacetrack.GPRecord) string {
	var outer bytes.Buffer
	outerWriter := zip.NewWriter(&outer)

	for year, records := range byYear {
		var inner bytes.Buffer
		innerWriter := zip.NewWriter(&inner)

		entry, err := innerWriter.Create("records.json")
		require.NoError(t, err)
		require.NoError(t, json.NewEncoder(entry).Encode(records))
		require.NoError(t, innerWriter.Close())

		name := "history_" + strconv.Itoa(year) + ".zip"
		outerEntry, err := outerWriter.Create(name)
		require.NoError(t, err)
		_, err = outerEntry.Write(inner.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, outerWriter.Close())

	path := ctx.File("archive.zip")
	require.NoError(t, os.WriteFile(path, outer.Bytes(), 0644))
	return path
}

func TestImportIsIdempotent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	seedSatellite(t, ctx, db, "starlink", 44713)

	path := writeArchive(t, ctx, map[int][]spacetrack.GPRecord{
		2021: {
			gpRecord(44713, "2021-03-01 00:00:00"),
			gpRecord(44713, "2021-03-02 00:00:00"),
			// Sub-second duplicate of the previous epoch.
			gpRecord(44713, "2021-03-02 00:00:00.501"),
		},
		2022: {
			gpRecord(44713, "2022-03-01 00:00:00"),
		},
	})

	importer := zipimport.New(zaptest.NewLogger(t), db)

	stats, err := importer.Run(ctx, zipimport.Options{Path: path})
	require.NoError(t, err)
	require.Equal(t, 2, stats.FilesProcessed)
	require.Equal(t, 3, stats.RecordsImported)
	require.Equal(t, 1, stats.RecordsSkipped)
	require.Zero(t, stats.UnknownSatellites)
	require.Zero(t, stats.Errors)

	// The second run imports nothing.
	stats, err = importer.Run(ctx, zipimport.Options{Path: path})
	require.NoError(t, err)
	require.Zero(t, stats.RecordsImported)
	require.Equal(t, 4, stats.RecordsSkipped)

	sat, err := db.SatelliteByCatalogNumber(ctx, 44713)
	require.NoError(t, err)
	count, err := db.HistoryCountBySatellite(ctx, sat.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestImportYearFilter(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	seedSatellite(t, ctx, db, "starlink", 44713)

	path := writeArchive(t, ctx, map[int][]spacetrack.GPRecord{
		2021: {gpRecord(44713, "2021-03-01 00:00:00")},
		2022: {gpRecord(44713, "2022-03-01 00:00:00")},
	})

	importer := zipimport.New(zaptest.NewLogger(t), db)
	stats, err := importer.Run(ctx, zipimport.Options{Path: path, Years: []int{2022}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesProcessed)
	require.Equal(t, 1, stats.RecordsImported)
}

func TestImportConstellationFilter(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	seedSatellite(t, ctx, db, "starlink", 44713)
	seedSatellite(t, ctx, db, "oneweb", 45000)

	path := writeArchive(t, ctx, map[int][]spacetrack.GPRecord{
		2021: {
			gpRecord(44713, "2021-03-01 00:00:00"),
			gpRecord(45000, "2021-03-01 00:00:00"),
		},
	})

	importer := zipimport.New(zaptest.NewLogger(t), db)
	stats, err := importer.Run(ctx, zipimport.Options{Path: path, Constellation: "starlink"})
	require.NoError(t, err)
	require.Equal(t, 1, stats.RecordsImported)
	require.Equal(t, 1, stats.RecordsSkipped)
}

func TestImportCountsUnknownSatellites(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	seedSatellite(t, ctx, db, "starlink", 44713)

	path := writeArchive(t, ctx, map[int][]spacetrack.GPRecord{
		2021: {
			gpRecord(44713, "2021-03-01 00:00:00"),
			gpRecord(99998, "2021-03-01 00:00:00"),
			gpRecord(99998, "2021-03-02 00:00:00"),
			gpRecord(99999, "2021-03-01 00:00:00"),
		},
	})

	importer := zipimport.New(zaptest.NewLogger(t), db)
	stats, err := importer.Run(ctx, zipimport.Options{Path: path})
	require.NoError(t, err)
	require.Equal(t, 1, stats.RecordsImported)
	require.Equal(t, 3, stats.RecordsSkipped)
	require.Equal(t, 2, stats.UnknownSatellites)
}

func TestImportDryRun(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	seedSatellite(t, ctx, db, "starlink", 44713)

	path := writeArchive(t, ctx, map[int][]spacetrack.GPRecord{
		2021: {gpRecord(44713, "2021-03-01 00:00:00")},
	})

	importer := zipimport.New(zaptest.NewLogger(t), db)
	stats, err := importer.Run(ctx, zipimport.Options{Path: path, DryRun: true})
	require.NoError(t, err)
	require.Zero(t, stats.RecordsImported)

	counts, err := db.Counts(ctx)
	require.NoError(t, err)
	require.Zero(t, counts.HistoryRecords)
}

func TestImportMissingArchive(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := openTestDB(t, ctx)
	defer ctx.Check(db.Close)

	importer := zipimport.New(zaptest.NewLogger(t), db)
	_, err := importer.Run(ctx, zipimport.Options{Path: ctx.File("nope.zip")})
	require.Error(t, err)
}
