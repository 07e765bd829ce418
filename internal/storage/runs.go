package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunPartial = "partial"
	RunError   = "error"
)

// GenerationRun records one plan → FIT generation.
type GenerationRun struct {
	ID           uuid.UUID        `json:"id"`
	AthleteID    string           `json:"athlete_id"`
	Source       string           `json:"source"`
	Status       string           `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	Workouts     int              `json:"workouts"`
	Generated    int              `json:"generated"`
	Failed       int              `json:"failed"`
	DurationMs   *int             `json:"duration_ms"`
	ErrorMessage *string          `json:"error_message"`
	PlanJSON     *json.RawMessage `json:"plan_json,omitempty"`
}

// RunStatus derives the final status of a run from its counts.
func RunStatus(generated, failed int) string {
	switch {
	case failed == 0:
		return RunSuccess
	case generated == 0:
		return RunError
	default:
		return RunPartial
	}
}

// InsertRun creates a run in the "running" state and returns its ID.
// A zero run.ID is replaced by a new random UUID.
func (db *DB) InsertRun(ctx context.Context, run GenerationRun) (uuid.UUID, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO generation_runs (id, athlete_id, source, status, workouts, plan_json)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		run.ID, run.AthleteID, run.Source, run.Status, run.Workouts, run.PlanJSON)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting generation run: %w", err)
	}
	return run.ID, nil
}

// FinishRun stores the outcome of a run.
func (db *DB) FinishRun(ctx context.Context, id uuid.UUID, run GenerationRun) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE generation_runs SET
		 status = $2, generated = $3, failed = $4, duration_ms = $5, error_message = $6
		 WHERE id = $1`,
		id, run.Status, run.Generated, run.Failed, run.DurationMs, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("updating generation run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating generation run %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first, without plan JSON.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]GenerationRun, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, athlete_id, source, status, created_at, workouts, generated, failed,
		 duration_ms, error_message
		 FROM generation_runs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("querying generation runs: %w", err)
	}
	defer rows.Close()

	var result []GenerationRun
	for rows.Next() {
		var r GenerationRun
		if err := rows.Scan(&r.ID, &r.AthleteID, &r.Source, &r.Status, &r.CreatedAt,
			&r.Workouts, &r.Generated, &r.Failed, &r.DurationMs, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning generation run: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetRun returns one run including its plan JSON.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*GenerationRun, error) {
	var r GenerationRun
	err := db.Pool.QueryRow(ctx,
		`SELECT id, athlete_id, source, status, created_at, workouts, generated, failed,
		 duration_ms, error_message, plan_json
		 FROM generation_runs
		 WHERE id = $1`, id).
		Scan(&r.ID, &r.AthleteID, &r.Source, &r.Status, &r.CreatedAt,
			&r.Workouts, &r.Generated, &r.Failed, &r.DurationMs, &r.ErrorMessage, &r.PlanJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying generation run %s: %w", id, err)
	}
	return &r, nil
}

// clampLimit maps non-positive limits to def and caps at 500.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 500 {
		return 500
	}
	return limit
}
