package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/planfit/internal/config"
	"github.com/claude/planfit/internal/importer"
	"github.com/claude/planfit/internal/ingest"
	"github.com/claude/planfit/internal/logging"
	"github.com/claude/planfit/internal/storage"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to config file")
	plansPath := pflag.String("path", "", "directory of plan JSON files (required)")
	athleteID := pflag.String("athlete", "", "athlete id the plans belong to (required)")
	dryRun := pflag.Bool("dry-run", false, "validate plans without generating or storing anything")
	pflag.Parse()

	if *plansPath == "" || *athleteID == "" {
		fmt.Fprintf(os.Stderr, "Usage: planfit-import --config config.yaml --path /path/to/plans --athlete i12345 [--dry-run]\n")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, logCloser := logging.New(cfg.Log, os.Stdout)
	defer logCloser.Close()

	// Verify plan directory exists
	info, err := os.Stat(*plansPath)
	if err != nil || !info.IsDir() {
		log.Error("plan path does not exist or is not a directory", "path", *plansPath)
		os.Exit(1)
	}

	ctx := context.Background()

	var ingester importer.Ingester
	if *dryRun {
		log.Info("DRY RUN mode: no files will be generated or stored")
	} else {
		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, "migrations"); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")

		db, err := storage.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		log.Info("database connected")

		ingester = ingest.NewProvider(db, cfg.Generator.Assembler(), log)
	}

	// Run import
	imp := importer.New(ingester, *athleteID, log, *dryRun)
	stats, err := imp.Import(ctx, *plansPath)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_errored", stats.FilesErrored,
		"workouts_received", stats.WorkoutsReceived,
		"workouts_generated", stats.WorkoutsGenerated,
		"workouts_failed", stats.WorkoutsFailed,
	)
	if len(stats.PartialRuns) > 0 {
		log.Info("runs with failed workouts", "run_ids", stats.PartialRuns)
	}
}
