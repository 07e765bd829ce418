package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WorkoutArtifact is a generated FIT file and its metadata. Content is only
// populated by GetArtifact and PendingUploads.
type WorkoutArtifact struct {
	ExternalID    string     `json:"external_id"`
	RunID         uuid.UUID  `json:"run_id"`
	AthleteID     string     `json:"athlete_id"`
	WorkoutID     string     `json:"workout_id"`
	WeekNumber    int        `json:"week_number"`
	ScheduledDate string     `json:"scheduled_date"`
	StepCount     int        `json:"step_count"`
	Notes         string     `json:"notes"`
	FileName      string     `json:"file_name"`
	Content       []byte     `json:"-"`
	SHA256        string     `json:"sha256"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	UploadedAt    *time.Time `json:"uploaded_at"`
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SaveArtifacts upserts the artifacts of a run in one transaction. A changed
// file clears uploaded_at so it is sent again; an identical one keeps it.
func (db *DB) SaveArtifacts(ctx context.Context, runID uuid.UUID, artifacts []WorkoutArtifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	return db.withTx(ctx, func(tx pgx.Tx) error {
		for _, a := range artifacts {
			date, err := time.Parse(time.DateOnly, a.ScheduledDate)
			if err != nil {
				return fmt.Errorf("artifact %s: parsing scheduled date: %w", a.ExternalID, err)
			}
			if a.SHA256 == "" {
				a.SHA256 = Checksum(a.Content)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO workout_artifacts (external_id, run_id, athlete_id, workout_id, week_number,
				 scheduled_date, step_count, notes, file_name, content, sha256)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
				 ON CONFLICT (external_id) DO UPDATE SET
				 run_id = EXCLUDED.run_id, week_number = EXCLUDED.week_number,
				 scheduled_date = EXCLUDED.scheduled_date, step_count = EXCLUDED.step_count,
				 notes = EXCLUDED.notes, file_name = EXCLUDED.file_name, content = EXCLUDED.content,
				 sha256 = EXCLUDED.sha256, updated_at = now(),
				 uploaded_at = CASE WHEN workout_artifacts.sha256 = EXCLUDED.sha256
				                    THEN workout_artifacts.uploaded_at END`,
				a.ExternalID, runID, a.AthleteID, a.WorkoutID, a.WeekNumber,
				date, a.StepCount, a.Notes, a.FileName, a.Content, a.SHA256)
			if err != nil {
				return fmt.Errorf("upserting artifact %s: %w", a.ExternalID, err)
			}
		}
		return nil
	})
}

const artifactColumns = `external_id, run_id, athlete_id, workout_id, week_number,
	scheduled_date::text, step_count, notes, file_name, sha256, created_at, updated_at, uploaded_at`

func scanArtifact(row pgx.Row, withContent bool) (WorkoutArtifact, error) {
	var a WorkoutArtifact
	dest := []any{&a.ExternalID, &a.RunID, &a.AthleteID, &a.WorkoutID, &a.WeekNumber,
		&a.ScheduledDate, &a.StepCount, &a.Notes, &a.FileName, &a.SHA256,
		&a.CreatedAt, &a.UpdatedAt, &a.UploadedAt}
	if withContent {
		dest = append(dest, &a.Content)
	}
	err := row.Scan(dest...)
	return a, err
}

// ListArtifacts returns an athlete's artifacts ordered by scheduled date,
// without file content. An empty athleteID lists all athletes.
func (db *DB) ListArtifacts(ctx context.Context, athleteID string, limit int) ([]WorkoutArtifact, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+artifactColumns+`
		 FROM workout_artifacts
		 WHERE ($1 = '' OR athlete_id = $1)
		 ORDER BY scheduled_date, workout_id
		 LIMIT $2`,
		athleteID, clampLimit(limit, 100))
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	var result []WorkoutArtifact
	for rows.Next() {
		a, err := scanArtifact(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// GetArtifact returns one artifact including its file content.
func (db *DB) GetArtifact(ctx context.Context, externalID string) (*WorkoutArtifact, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+artifactColumns+`, content
		 FROM workout_artifacts
		 WHERE external_id = $1`, externalID)
	a, err := scanArtifact(row, true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact %s: %w", externalID, err)
	}
	return &a, nil
}

// PendingUploads returns artifacts with content that have not been uploaded
// since they last changed, oldest scheduled date first.
func (db *DB) PendingUploads(ctx context.Context, athleteID string, limit int) ([]WorkoutArtifact, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+artifactColumns+`, content
		 FROM workout_artifacts
		 WHERE athlete_id = $1 AND uploaded_at IS NULL
		 ORDER BY scheduled_date, workout_id
		 LIMIT $2`,
		athleteID, clampLimit(limit, 100))
	if err != nil {
		return nil, fmt.Errorf("querying pending uploads: %w", err)
	}
	defer rows.Close()

	var result []WorkoutArtifact
	for rows.Next() {
		a, err := scanArtifact(rows, true)
		if err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// MarkUploaded sets uploaded_at on the given artifacts.
func (db *DB) MarkUploaded(ctx context.Context, externalIDs []string, at time.Time) error {
	if len(externalIDs) == 0 {
		return nil
	}
	_, err := db.Pool.Exec(ctx,
		`UPDATE workout_artifacts SET uploaded_at = $2 WHERE external_id = ANY($1)`,
		externalIDs, at)
	if err != nil {
		return fmt.Errorf("marking %d artifacts uploaded: %w", len(externalIDs), err)
	}
	return nil
}
