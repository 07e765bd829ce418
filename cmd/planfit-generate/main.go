package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/claude/planfit/internal/config"
	"github.com/claude/planfit/internal/fitgen"
	"github.com/claude/planfit/internal/logging"
	"github.com/claude/planfit/internal/models"
	"github.com/claude/planfit/internal/upload"
	"github.com/spf13/pflag"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	planPath := pflag.StringP("plan", "p", "", "path to training plan JSON (required)")
	configPath := pflag.StringP("config", "c", "", "optional config file")
	outputDir := pflag.StringP("output", "o", "", "output directory (overrides generator.output_dir)")
	workers := pflag.IntP("workers", "w", 0, "parallel workouts (overrides generator.workers)")
	athleteID := pflag.String("athlete", "", "intervals.icu athlete id (overrides intervals.athlete_id)")
	doUpload := pflag.Bool("upload", false, "upload generated files to intervals.icu")
	dryRun := pflag.Bool("dry-run", false, "with --upload, log what would be sent without sending")
	version := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *version {
		fmt.Println("planfit-generate", Version)
		return
	}

	if *planPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: planfit-generate --plan plan.json [--output dir] [--workers N] [--upload [--dry-run]]\n\n")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.LoadGenerator(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Generator.OutputDir = *outputDir
	}
	if *workers > 0 {
		cfg.Generator.Workers = *workers
	}
	if *athleteID != "" {
		cfg.Intervals.AthleteID = *athleteID
	}

	log, logCloser := logging.New(cfg.Log, os.Stdout)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := models.LoadPlan(*planPath)
	if err != nil {
		log.Error("failed to load plan", "path", *planPath, "error", err)
		os.Exit(1)
	}

	res, err := fitgen.New(cfg.Generator.Assembler(), log).Generate(ctx, plan)
	if err != nil {
		log.Error("generation failed", "error", err)
		if res == nil {
			os.Exit(1)
		}
	}
	printResult(res)

	if *doUpload {
		if !cfg.Intervals.Enabled() && !*dryRun {
			log.Error("upload requires intervals.api_key and intervals.athlete_id")
			os.Exit(1)
		}
		if err := runUpload(ctx, cfg, res, *dryRun, log); err != nil {
			log.Error("upload failed", "error", err)
			os.Exit(1)
		}
	}

	if err != nil || len(res.Failures) > 0 {
		os.Exit(1)
	}
}

func runUpload(ctx context.Context, cfg *config.Config, res *fitgen.Result, dryRun bool, log *slog.Logger) error {
	state, err := upload.OpenStateDB(cfg.Intervals.StateDir)
	if err != nil {
		return err
	}
	defer state.Close()

	// Client is nil-safe in dry-run mode
	var client *upload.Client
	if !dryRun {
		client = upload.NewClient(cfg.Intervals.BaseURL, cfg.Intervals.AthleteID, cfg.Intervals.APIKey)
	} else {
		log.Info("DRY RUN mode: files will be prepared but not sent")
	}

	uploader := upload.New(client, state, cfg.Intervals.StartTime, dryRun, cfg.Intervals.BatchSize, log)
	stats, err := uploader.Run(ctx, upload.ItemsFromResult(cfg.Intervals.AthleteID, res))
	printStats(stats)
	return err
}

func printResult(res *fitgen.Result) {
	ids := make([]string, 0, len(res.Artifacts))
	for id := range res.Artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println()
	fmt.Println("=== Generation Summary ===")
	for _, id := range ids {
		a := res.Artifacts[id]
		fmt.Printf("  %-40s %3d steps  %s\n", id, a.StepCount, a.Path)
	}
	for _, f := range res.Failures {
		fmt.Printf("  %-40s FAILED     %v\n", f.WorkoutID, f.Err)
	}
	fmt.Printf("\n  Generated: %d   Failed: %d\n\n", len(res.Artifacts), len(res.Failures))
}

func printStats(stats *upload.Stats) {
	if stats == nil {
		return
	}
	fmt.Println("=== Upload Summary ===")
	fmt.Printf("  Files total:      %d\n", stats.FilesTotal)
	fmt.Printf("  Files uploaded:   %d\n", stats.FilesUploaded)
	fmt.Printf("  Files skipped:    %d (already uploaded)\n", stats.FilesSkipped)
	fmt.Printf("  Files errored:    %d\n", stats.FilesErrored)
	fmt.Printf("  Batches:          %d\n", stats.Batches)
	fmt.Println()
}
