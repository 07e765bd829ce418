package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/planfit/internal/storage"
	"github.com/claude/planfit/internal/upload"
)

// PendingStore lists and acknowledges artifacts awaiting upload.
type PendingStore interface {
	PendingUploads(ctx context.Context, athleteID string, limit int) ([]storage.WorkoutArtifact, error)
	MarkUploaded(ctx context.Context, externalIDs []string, at time.Time) error
}

// Syncer uploads stored artifacts that changed since their last upload.
// Concurrent Sync calls run one at a time.
type Syncer struct {
	mu        sync.Mutex
	store     PendingStore
	uploader  *upload.Uploader
	athleteID string
	limit     int
	log       *slog.Logger
}

// NewSyncer creates a Syncer for the athlete the uploader's client targets.
func NewSyncer(store PendingStore, uploader *upload.Uploader, athleteID string, limit int, log *slog.Logger) *Syncer {
	return &Syncer{store: store, uploader: uploader, athleteID: athleteID, limit: limit, log: log}
}

// Sync uploads one page of pending artifacts and marks the accepted ones.
func (s *Syncer) Sync(ctx context.Context) (*upload.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.store.PendingUploads(ctx, s.athleteID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending uploads: %w", err)
	}
	if len(pending) == 0 {
		s.log.Debug("no pending uploads", "athlete_id", s.athleteID)
		return &upload.Stats{}, nil
	}

	items := make([]upload.Item, len(pending))
	for i, a := range pending {
		items[i] = upload.Item{
			ExternalID:    a.ExternalID,
			WorkoutID:     a.WorkoutID,
			ScheduledDate: a.ScheduledDate,
			Path:          a.FileName,
			Notes:         a.Notes,
			Content:       a.Content,
		}
	}

	stats, err := s.uploader.Run(ctx, items)
	if err != nil {
		return stats, fmt.Errorf("uploading: %w", err)
	}
	if err := s.store.MarkUploaded(ctx, stats.UploadedIDs, time.Now()); err != nil {
		return stats, err
	}
	return stats, nil
}
