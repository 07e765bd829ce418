package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/claude/planfit/internal/fitgen"
	"github.com/claude/planfit/internal/ingest"
	"github.com/claude/planfit/internal/models"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesErrored   int

	WorkoutsReceived  int
	WorkoutsGenerated int
	WorkoutsFailed    int

	PartialRuns []string
}

// Ingester stores a plan and generates its workout files.
type Ingester interface {
	Ingest(ctx context.Context, r io.Reader, athleteID, source string) (*ingest.Result, error)
}

// Importer reads plan JSON files from a directory and ingests each one for
// a single athlete.
type Importer struct {
	ingester  Ingester
	athleteID string
	log       *slog.Logger
	dryRun    bool
	stats     Stats
}

// New creates a new Importer. In dry-run mode plans are only decoded and
// validated.
func New(ingester Ingester, athleteID string, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{ingester: ingester, athleteID: athleteID, log: log, dryRun: dryRun}
}

// Import processes every *.json file in dir in name order. Invalid plans are
// logged and counted; any other error stops the import.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return &imp.stats, err
	}
	sort.Strings(files)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &imp.stats, err
		}
		if err := imp.importFile(ctx, f); err != nil {
			return &imp.stats, fmt.Errorf("importing %s: %w", filepath.Base(f), err)
		}
	}
	return &imp.stats, nil
}

func (imp *Importer) importFile(ctx context.Context, path string) error {
	name := filepath.Base(path)

	if imp.dryRun {
		plan, err := models.LoadPlan(path)
		if err == nil {
			err = fitgen.Validate(plan)
		}
		if err != nil {
			imp.log.Warn("invalid plan", "file", name, "error", err)
			imp.stats.FilesErrored++
			return nil
		}
		imp.stats.FilesProcessed++
		for _, w := range plan.Weeks {
			imp.stats.WorkoutsReceived += len(w.Workouts)
		}
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		imp.log.Warn("open failed", "file", name, "error", err)
		imp.stats.FilesErrored++
		return nil
	}
	defer f.Close()

	res, err := imp.ingester.Ingest(ctx, f, imp.athleteID, "import:"+name)
	if errors.Is(err, ingest.ErrInvalidPlan) {
		imp.log.Warn("invalid plan", "file", name, "error", err)
		imp.stats.FilesErrored++
		return nil
	}
	if err != nil {
		return err
	}

	imp.stats.FilesProcessed++
	imp.stats.WorkoutsReceived += res.Workouts
	imp.stats.WorkoutsGenerated += res.Generated
	imp.stats.WorkoutsFailed += res.Failed
	if res.Failed > 0 {
		imp.stats.PartialRuns = append(imp.stats.PartialRuns, res.RunID.String())
	}
	imp.log.Info("plan imported", "file", name, "run_id", res.RunID, "status", res.Status)
	return nil
}
