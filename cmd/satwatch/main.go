// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/cfgstruct"
	"storj.io/common/fpath"
	"storj.io/common/process"
	"storj.io/satwatch/catalog"
	"storj.io/satwatch/catalog/backfill"
	"storj.io/satwatch/catalog/catalogdb"
	"storj.io/satwatch/catalog/ingest"
	"storj.io/satwatch/catalog/registry"
	"storj.io/satwatch/catalog/zipimport"
)

var (
	rootCmd = &cobra.Command{
		Use:   "satwatch",
		Short: "Satellite catalog harvester",
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the harvester with its scheduled jobs",
		RunE:  cmdRun,
	}
	initDBCmd = &cobra.Command{
		Use:   "init-db",
		Short: "Create or migrate the catalog database schema",
		RunE:  cmdInitDB,
	}
	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Seed the constellation registry into the database",
		RunE:  cmdSeed,
	}
	updateTLECmd = &cobra.Command{
		Use:   "update-tle",
		Short: "Fetch the latest TLEs once and exit",
		RunE:  cmdUpdateTLE,
	}
	backfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Run one bounded history backfill and exit",
		RunE:  cmdBackfill,
	}
	importHistoryCmd = &cobra.Command{
		Use:   "import-history",
		Short: "Import historical TLEs from a zip archive",
		RunE:  cmdImportHistory,
	}

	confDir string

	runCfg    catalog.Config
	setupCfg  catalog.Config
	toolFlags struct {
		Constellations []string
		Force          bool
		MaxBatches     int

		Zip    string
		Years  []int
		Batch  int
		DryRun bool
	}
)

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	valid, _ := fpath.IsValidSetupDir(setupDir)
	if !valid {
		return fmt.Errorf("satwatch configuration already exists (%v)", setupDir)
	}

	err = os.MkdirAll(setupDir, 0700)
	if err != nil {
		return err
	}

	return process.SaveConfig(cmd, filepath.Join(setupDir, "config.yaml"))
}

func openDB(cmd *cobra.Command, applicationName string) (*catalogdb.DB, error) {
	ctx, _ := process.Ctx(cmd)
	db, err := catalogdb.Open(ctx, zap.L().Named("db"), runCfg.Database, catalogdb.Options{
		ApplicationName: applicationName,
	})
	if err != nil {
		return nil, errs.New("error opening catalog database: %+v", err)
	}
	return db, nil
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	db, err := openDB(cmd, "satwatch")
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.CheckVersion(ctx); err != nil {
		return errs.New("failed catalog version check: %+v", err)
	}

	peer, err := catalog.New(log.Named("catalog"), db, runCfg)
	if err != nil {
		return err
	}

	runErr := peer.Run(ctx)
	closeErr := peer.Close()
	return errs.Combine(runErr, closeErr)
}

func cmdInitDB(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)

	db, err := openDB(cmd, "satwatch-init")
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	return db.MigrateToLatest(ctx)
}

func cmdSeed(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	reg, err := registry.Open(runCfg.Registry)
	if err != nil {
		return err
	}

	db, err := openDB(cmd, "satwatch-seed")
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	created, err := db.SeedConstellations(ctx, reg.All())
	if err != nil {
		return err
	}
	log.Info("constellations seeded",
		zap.Int("total", len(reg.All())),
		zap.Int("created", created))
	return nil
}

// harvester assembles the peer for the one-shot commands, which drive
// its services directly instead of starting the scheduler.
func harvester(cmd *cobra.Command) (*catalog.Core, *catalogdb.DB, error) {
	db, err := openDB(cmd, "satwatch-tool")
	if err != nil {
		return nil, nil, err
	}
	peer, err := catalog.New(zap.L().Named("catalog"), db, runCfg)
	if err != nil {
		return nil, nil, errs.Combine(err, db.Close())
	}
	return peer, db, nil
}

func cmdUpdateTLE(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	peer, db, err := harvester(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	results, err := peer.Ingest.RefreshGP(ctx, toolFlags.Constellations, toolFlags.Force)
	if err != nil {
		return err
	}
	for _, result := range results {
		switch result.Outcome {
		case ingest.OutcomeRefreshed:
			log.Info("refreshed",
				zap.String("constellation", result.Slug),
				zap.Int("fetched", result.Fetched),
				zap.Int("new", result.Batch.New),
				zap.Int("updated", result.Batch.Updated))
		case ingest.OutcomeSkipped:
			log.Info("skipped",
				zap.String("constellation", result.Slug),
				zap.String("reason", result.Reason))
		default:
			log.Error("failed",
				zap.String("constellation", result.Slug),
				zap.Error(result.Err))
		}
	}
	return nil
}

func cmdBackfill(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	peer, db, err := harvester(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	slugs := toolFlags.Constellations
	if len(slugs) == 0 {
		results, err := peer.Backfill.RunAll(ctx, toolFlags.Force)
		logBackfillResults(log, results)
		return err
	}

	for _, slug := range slugs {
		result, err := peer.Backfill.Run(ctx, backfill.Options{
			Constellation: slug,
			MaxBatches:    toolFlags.MaxBatches,
			Force:         toolFlags.Force,
		})
		logBackfillResults(log, []backfill.Result{result})
		if err != nil {
			return err
		}
	}
	return nil
}

func logBackfillResults(log *zap.Logger, results []backfill.Result) {
	for _, result := range results {
		log.Info("backfill result",
			zap.String("constellation", result.Constellation),
			zap.String("status", string(result.Status)),
			zap.Int("records added", result.RecordsAdded),
			zap.Int("processed", result.SatellitesProcessed),
			zap.Int("remaining", result.SatellitesRemaining),
			zap.Float64("progress", result.ProgressPercent),
			zap.String("message", result.Message))
	}
}

func cmdImportHistory(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	if toolFlags.Zip == "" {
		return errs.New("--zip is required")
	}

	db, err := openDB(cmd, "satwatch-import")
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	constellation := ""
	if len(toolFlags.Constellations) > 0 {
		constellation = toolFlags.Constellations[0]
	}

	importer := zipimport.New(log.Named("zipimport"), db)
	stats, err := importer.Run(ctx, zipimport.Options{
		Path:          toolFlags.Zip,
		Years:         toolFlags.Years,
		Constellation: constellation,
		BatchSize:     toolFlags.Batch,
		DryRun:        toolFlags.DryRun,
	})
	if err != nil {
		return err
	}

	log.Info("import finished",
		zap.Int("files", stats.FilesProcessed),
		zap.Int("imported", stats.RecordsImported),
		zap.Int("skipped", stats.RecordsSkipped),
		zap.Int("unknown satellites", stats.UnknownSatellites),
		zap.Int("errors", stats.Errors))
	return nil
}

func init() {
	defaultConfDir := fpath.ApplicationDir("storj", "satwatch")
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfDir, "main directory for satwatch configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(updateTLECmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(importHistoryCmd)

	process.Bind(runCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir), cfgstruct.SetupMode())
	process.Bind(initDBCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(seedCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(updateTLECmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(backfillCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(importHistoryCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))

	updateTLECmd.Flags().StringSliceVar(&toolFlags.Constellations, "constellations", nil, "restrict to these constellation slugs")
	updateTLECmd.Flags().BoolVar(&toolFlags.Force, "force", false, "bypass the freshness gates")

	backfillCmd.Flags().StringSliceVar(&toolFlags.Constellations, "constellations", nil, "restrict to these constellation slugs")
	backfillCmd.Flags().BoolVar(&toolFlags.Force, "force", false, "bypass the history interval gate")
	backfillCmd.Flags().IntVar(&toolFlags.MaxBatches, "max-batches", 0, "cap batches per constellation, 0 for the configured default")

	importHistoryCmd.Flags().StringVar(&toolFlags.Zip, "zip", "", "path to the history archive")
	importHistoryCmd.Flags().IntSliceVar(&toolFlags.Years, "years", nil, "restrict to these years")
	importHistoryCmd.Flags().StringSliceVar(&toolFlags.Constellations, "constellation", nil, "restrict to one constellation slug")
	importHistoryCmd.Flags().IntVar(&toolFlags.Batch, "batch", 500, "records per database batch")
	importHistoryCmd.Flags().BoolVar(&toolFlags.DryRun, "dry-run", false, "parse and report without writing")
}

func main() {
	logger, _, _ := process.NewLogger("satwatch")
	zap.ReplaceGlobals(logger)

	process.Exec(rootCmd)
}
