package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/claude/planfit/internal/fitgen"
	"github.com/claude/planfit/internal/models"
	"github.com/claude/planfit/internal/storage"
	"github.com/google/uuid"
)

// Request errors. Callers map them to client errors.
var (
	ErrInvalidPlan    = errors.New("invalid training plan")
	ErrInvalidAthlete = errors.New("invalid athlete id")
)

var athleteIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Store is the persistence the provider writes runs and artifacts to.
type Store interface {
	InsertRun(ctx context.Context, run storage.GenerationRun) (uuid.UUID, error)
	FinishRun(ctx context.Context, id uuid.UUID, run storage.GenerationRun) error
	SaveArtifacts(ctx context.Context, runID uuid.UUID, artifacts []storage.WorkoutArtifact) error
}

// Result holds the outcome of one plan ingest.
type Result struct {
	RunID     uuid.UUID                 `json:"run_id"`
	Status    string                    `json:"status"`
	Workouts  int                       `json:"workouts"`
	Generated int                       `json:"generated"`
	Failed    int                       `json:"failed"`
	Artifacts []storage.WorkoutArtifact `json:"artifacts"`
	Failures  []FailedWorkout           `json:"failures,omitempty"`
}

// FailedWorkout is a workout that produced no file.
type FailedWorkout struct {
	WorkoutID     string `json:"workout_id"`
	ScheduledDate string `json:"scheduled_date"`
	Error         string `json:"error"`
}

// Provider turns plan JSON into stored FIT artifacts.
type Provider struct {
	store Store
	gen   fitgen.Config
	log   *slog.Logger
	now   func() time.Time
}

// NewProvider creates a provider. gen.OutputDir is the root under which each
// run stages its files in {athlete_id}/{run_id}; the directory is removed
// once the contents are read.
func NewProvider(store Store, gen fitgen.Config, log *slog.Logger) *Provider {
	return &Provider{store: store, gen: gen, log: log, now: time.Now}
}

// Ingest decodes and validates a plan, generates its workout files and
// records the run. Invalid input is rejected before a run is created.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, athleteID, source string) (*Result, error) {
	if !athleteIDPattern.MatchString(athleteID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAthlete, athleteID)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	plan, err := models.DecodePlan(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := fitgen.Validate(plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	workouts := 0
	for _, w := range plan.Weeks {
		workouts += len(w.Workouts)
	}

	start := p.now()
	planJSON := json.RawMessage(raw)
	runID, err := p.store.InsertRun(ctx, storage.GenerationRun{
		AthleteID: athleteID,
		Source:    source,
		Workouts:  workouts,
		PlanJSON:  &planJSON,
	})
	if err != nil {
		return nil, err
	}

	result, genErr := p.generate(ctx, runID, athleteID, plan)
	result.RunID = runID
	result.Workouts = workouts

	finish := storage.GenerationRun{
		Status:    result.Status,
		Generated: result.Generated,
		Failed:    result.Failed,
	}
	ms := int(p.now().Sub(start).Milliseconds())
	finish.DurationMs = &ms
	if genErr != nil {
		msg := genErr.Error()
		finish.Status = storage.RunError
		finish.ErrorMessage = &msg
		result.Status = storage.RunError
	}
	// The run row must be closed even when ctx is done.
	if err := p.store.FinishRun(context.WithoutCancel(ctx), runID, finish); err != nil {
		p.log.Error("failed to finish generation run", "run_id", runID, "error", err)
	}

	if genErr != nil {
		return result, genErr
	}
	p.log.Info("plan ingested",
		"run_id", runID, "athlete_id", athleteID, "status", result.Status,
		"generated", result.Generated, "failed", result.Failed)
	return result, nil
}

func (p *Provider) generate(ctx context.Context, runID uuid.UUID, athleteID string, plan *models.TrainingPlan) (*Result, error) {
	result := &Result{}

	// Stored artifact content is authoritative; the files are staging only.
	cfg := p.gen
	cfg.OutputDir = filepath.Join(p.gen.OutputDir, athleteID, runID.String())
	defer func() {
		if err := os.RemoveAll(cfg.OutputDir); err != nil {
			p.log.Warn("failed to remove staging dir", "dir", cfg.OutputDir, "error", err)
		}
	}()
	res, err := fitgen.New(cfg, p.log).Generate(ctx, plan)
	if res == nil {
		return result, fmt.Errorf("generating workouts: %w", err)
	}

	for _, f := range res.Failures {
		result.Failures = append(result.Failures, FailedWorkout{
			WorkoutID:     f.WorkoutID,
			ScheduledDate: f.ScheduledDate,
			Error:         f.Err.Error(),
		})
	}

	for _, a := range res.Artifacts {
		content, rerr := os.ReadFile(a.Path)
		if rerr != nil {
			p.log.Warn("generated file unreadable", "workout_id", a.WorkoutID, "error", rerr)
			result.Failures = append(result.Failures, FailedWorkout{
				WorkoutID:     a.WorkoutID,
				ScheduledDate: a.ScheduledDate,
				Error:         rerr.Error(),
			})
			continue
		}
		result.Artifacts = append(result.Artifacts, storage.WorkoutArtifact{
			ExternalID:    fitgen.ExternalID(athleteID, a.WorkoutID),
			RunID:         runID,
			AthleteID:     athleteID,
			WorkoutID:     a.WorkoutID,
			WeekNumber:    a.WeekNumber,
			ScheduledDate: a.ScheduledDate,
			StepCount:     a.StepCount,
			Notes:         a.Notes,
			FileName:      filepath.Base(a.Path),
			Content:       content,
			SHA256:        storage.Checksum(content),
		})
	}
	sortArtifacts(result.Artifacts)

	result.Generated = len(result.Artifacts)
	result.Failed = len(result.Failures)
	result.Status = storage.RunStatus(result.Generated, result.Failed)

	if err != nil {
		return result, fmt.Errorf("generating workouts: %w", err)
	}
	if serr := p.store.SaveArtifacts(ctx, runID, result.Artifacts); serr != nil {
		return result, fmt.Errorf("saving artifacts: %w", serr)
	}
	return result, nil
}

func sortArtifacts(as []storage.WorkoutArtifact) {
	slices.SortFunc(as, func(a, b storage.WorkoutArtifact) int {
		if c := strings.Compare(a.ScheduledDate, b.ScheduledDate); c != 0 {
			return c
		}
		return strings.Compare(a.WorkoutID, b.WorkoutID)
	})
}
