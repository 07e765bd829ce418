package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claude/planfit/internal/fitgen"
	"github.com/claude/planfit/internal/storage"
	"github.com/claude/planfit/internal/upload"
	"github.com/google/uuid"
)

const planJSON = `{
  "plan_duration": {"value": 1, "unit": "weeks"},
  "athlete_level": "beginner",
  "primary_goal": "5k",
  "plan_notes": "",
  "weeks": [{
    "week_number": 1,
    "start_date": "2025-01-06",
    "end_date": "2025-01-12",
    "area_of_focus": "base_training",
    "total_distance": {"value": 5000, "unit": "meters"},
    "total_time": {"value": 1800, "unit": "seconds"},
    "rest_days": [],
    "week_notes": "",
    "workouts": [
      {
        "workout_type": "run",
        "workout_subtype": ["easy"],
        "scheduled_date": "2025-01-07",
        "total_distance": {"value": 5000, "unit": "meters"},
        "estimated_duration": {"value": 1800, "unit": "seconds"},
        "terrain": "road",
        "additional_instructions": "",
        "phases": [{
          "type": "steady_state",
          "duration_type": "time",
          "duration_value": 1800,
          "duration_unit": "seconds",
          "intensity": {"effort": "easy", "pace_min": 2.6, "pace_max": 2.9, "perceived_exertion_min": 3, "perceived_exertion_max": 4},
          "notes": "Conversational."
        }]
      },
      {
        "workout_type": "run",
        "workout_subtype": ["tempo"],
        "scheduled_date": "2025-01-09",
        "total_distance": {"value": 5000, "unit": "meters"},
        "estimated_duration": {"value": 1500, "unit": "seconds"},
        "terrain": "road",
        "additional_instructions": "",
        "phases": [{
          "type": "steady_state",
          "duration_type": "time",
          "duration_value": -20,
          "duration_unit": "seconds",
          "intensity": {"effort": "hard", "pace_min": 3.6, "pace_max": 3.8, "perceived_exertion_min": 7, "perceived_exertion_max": 8},
          "notes": ""
        }]
      }
    ]
  }]
}`

type fakeStore struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]storage.GenerationRun
	artifacts map[string]storage.WorkoutArtifact
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:      map[uuid.UUID]storage.GenerationRun{},
		artifacts: map[string]storage.WorkoutArtifact{},
	}
}

func (f *fakeStore) InsertRun(ctx context.Context, run storage.GenerationRun) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.ID = uuid.New()
	run.Status = storage.RunRunning
	f.runs[run.ID] = run
	return run.ID, nil
}

func (f *fakeStore) FinishRun(ctx context.Context, id uuid.UUID, run storage.GenerationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[id]
	r.Status, r.Generated, r.Failed, r.ErrorMessage = run.Status, run.Generated, run.Failed, run.ErrorMessage
	f.runs[id] = r
	return nil
}

func (f *fakeStore) SaveArtifacts(ctx context.Context, runID uuid.UUID, artifacts []storage.WorkoutArtifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, a := range artifacts {
		f.artifacts[a.ExternalID] = a
	}
	return nil
}

func (f *fakeStore) PendingUploads(ctx context.Context, athleteID string, limit int) ([]storage.WorkoutArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.WorkoutArtifact
	for _, a := range f.artifacts {
		if a.AthleteID == athleteID && a.UploadedAt == nil {
			out = append(out, a)
		}
	}
	sortArtifacts(out)
	return out, nil
}

func (f *fakeStore) MarkUploaded(ctx context.Context, ids []string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		a := f.artifacts[id]
		a.UploadedAt = &at
		f.artifacts[id] = a
	}
	return nil
}

func newTestProvider(t *testing.T, store Store) *Provider {
	t.Helper()
	return NewProvider(store, fitgen.Config{OutputDir: t.TempDir(), Workers: 2}, slog.New(slog.DiscardHandler))
}

// TestIngestPartial verifies that one bad workout yields a partial run with
// the good workout stored.
func TestIngestPartial(t *testing.T) {
	store := newFakeStore()
	p := newTestProvider(t, store)

	res, err := p.Ingest(context.Background(), strings.NewReader(planJSON), "i42", "test")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Status != storage.RunPartial {
		t.Errorf("status = %q, want %q", res.Status, storage.RunPartial)
	}
	if res.Workouts != 2 || res.Generated != 1 || res.Failed != 1 {
		t.Errorf("workouts/generated/failed = %d/%d/%d, want 2/1/1", res.Workouts, res.Generated, res.Failed)
	}

	a, ok := store.artifacts["i42_week1_2025-01-07_easy"]
	if !ok {
		t.Fatalf("artifact not stored, have %v", store.artifacts)
	}
	if len(a.Content) == 0 || a.SHA256 != storage.Checksum(a.Content) {
		t.Errorf("artifact content/checksum mismatch")
	}
	if a.FileName != "week1_2025-01-07_easy.fit" {
		t.Errorf("file name = %q", a.FileName)
	}
	if a.Notes != "Steady_State Phase: Conversational." {
		t.Errorf("notes = %q", a.Notes)
	}

	run := store.runs[res.RunID]
	if run.Status != storage.RunPartial || run.Generated != 1 || run.Failed != 1 {
		t.Errorf("stored run = %+v", run)
	}
	if run.PlanJSON == nil || run.Source != "test" {
		t.Errorf("stored run missing plan or source: %+v", run)
	}
}

// TestIngestRemovesStagingDir verifies generated files do not outlive the
// ingest once their content is stored.
func TestIngestRemovesStagingDir(t *testing.T) {
	store := newFakeStore()
	root := t.TempDir()
	p := NewProvider(store, fitgen.Config{OutputDir: root, Workers: 2}, slog.New(slog.DiscardHandler))

	res, err := p.Ingest(context.Background(), strings.NewReader(planJSON), "i42", "test")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(store.artifacts["i42_week1_2025-01-07_easy"].Content) == 0 {
		t.Error("artifact content not stored")
	}
	runDir := filepath.Join(root, "i42", res.RunID.String())
	if _, err := os.Stat(runDir); !os.IsNotExist(err) {
		t.Errorf("staging dir %s still present: %v", runDir, err)
	}
}

// TestIngestRejects verifies invalid input is rejected before a run exists.
func TestIngestRejects(t *testing.T) {
	tests := []struct {
		name    string
		athlete string
		body    string
		wantErr error
	}{
		{"bad athlete", "../etc", planJSON, ErrInvalidAthlete},
		{"empty athlete", "", planJSON, ErrInvalidAthlete},
		{"malformed json", "i42", "{", ErrInvalidPlan},
		{"unknown field", "i42", strings.Replace(planJSON, `"weeks": [{`, `"coach": "x", "weeks": [{`, 1), ErrInvalidPlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			p := newTestProvider(t, store)
			_, err := p.Ingest(context.Background(), strings.NewReader(tt.body), tt.athlete, "test")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if len(store.runs) != 0 {
				t.Errorf("runs = %d, want 0", len(store.runs))
			}
		})
	}
}

// TestIngestSaveFailure verifies a storage failure marks the run as errored.
func TestIngestSaveFailure(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	p := newTestProvider(t, store)

	res, err := p.Ingest(context.Background(), strings.NewReader(planJSON), "i42", "test")
	if err == nil {
		t.Fatal("expected error")
	}
	run := store.runs[res.RunID]
	if run.Status != storage.RunError || run.ErrorMessage == nil {
		t.Errorf("stored run = %+v, want error status with message", run)
	}
}

// TestSyncUploadsPending verifies pending artifacts reach the uploader and
// that a dry run leaves them pending.
func TestSyncUploadsPending(t *testing.T) {
	store := newFakeStore()
	p := newTestProvider(t, store)
	if _, err := p.Ingest(context.Background(), strings.NewReader(planJSON), "i42", "test"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	log := slog.New(slog.DiscardHandler)
	u := upload.New(nil, nil, "09:00", true, 10, log)
	s := NewSyncer(store, u, "i42", 100, log)

	stats, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.FilesUploaded != 1 {
		t.Errorf("uploaded = %d, want 1", stats.FilesUploaded)
	}
	if store.artifacts["i42_week1_2025-01-07_easy"].UploadedAt != nil {
		t.Error("dry run must not report uploaded ids")
	}
}
