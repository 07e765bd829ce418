package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/claude/planfit/internal/fitgen"
)

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int
	Batches       int

	// UploadedIDs lists the external IDs accepted by the server.
	UploadedIDs []string
}

// Item is one workout file to upload. Content is read from Path when nil.
type Item struct {
	ExternalID    string
	WorkoutID     string
	ScheduledDate string
	Path          string
	Notes         string
	Content       []byte
}

// ItemsFromResult turns generated artifacts into upload items for an
// athlete, ordered by scheduled date.
func ItemsFromResult(athleteID string, res *fitgen.Result) []Item {
	items := make([]Item, 0, len(res.Artifacts))
	for _, a := range res.Artifacts {
		items = append(items, Item{
			ExternalID:    fitgen.ExternalID(athleteID, a.WorkoutID),
			WorkoutID:     a.WorkoutID,
			ScheduledDate: a.ScheduledDate,
			Path:          a.Path,
			Notes:         a.Notes,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ScheduledDate != items[j].ScheduledDate {
			return items[i].ScheduledDate < items[j].ScheduledDate
		}
		return items[i].WorkoutID < items[j].WorkoutID
	})
	return items
}

// Uploader sends workout files to intervals.icu in batches, skipping files
// the state DB has already seen with the same content.
type Uploader struct {
	client    *Client
	state     *StateDB
	startTime string
	dryRun    bool
	batchSize int
	log       *slog.Logger
	stats     Stats
}

// New creates a new Uploader. state may be nil to always upload.
// startTime is the local "HH:MM" each workout is scheduled at.
func New(client *Client, state *StateDB, startTime string, dryRun bool, batchSize int, log *slog.Logger) *Uploader {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Uploader{
		client:    client,
		state:     state,
		startTime: startTime,
		dryRun:    dryRun,
		batchSize: batchSize,
		log:       log,
	}
}

type pending struct {
	item  Item
	hash  string
	event Event
}

// Run uploads items. A failing batch is logged and counted; the remaining
// batches still run. Only a done context stops the run early.
func (u *Uploader) Run(ctx context.Context, items []Item) (*Stats, error) {
	u.stats = Stats{FilesTotal: len(items)}

	var batch []pending
	for _, it := range items {
		p, skip, err := u.prepare(it)
		if err != nil {
			u.log.Warn("skipping workout file", "external_id", it.ExternalID, "error", err)
			u.stats.FilesErrored++
			continue
		}
		if skip {
			u.stats.FilesSkipped++
			continue
		}

		batch = append(batch, p)
		if len(batch) >= u.batchSize {
			if err := u.flush(ctx, batch); err != nil {
				return &u.stats, err
			}
			batch = nil
		}
	}
	if err := u.flush(ctx, batch); err != nil {
		return &u.stats, err
	}

	u.log.Info("upload complete",
		"total", u.stats.FilesTotal, "uploaded", u.stats.FilesUploaded,
		"skipped", u.stats.FilesSkipped, "errored", u.stats.FilesErrored)
	return &u.stats, nil
}

func (u *Uploader) prepare(it Item) (pending, bool, error) {
	content := it.Content
	if content == nil {
		data, err := os.ReadFile(it.Path)
		if err != nil {
			return pending{}, false, fmt.Errorf("reading %s: %w", it.Path, err)
		}
		content = data
	}
	hash := HashContent(content)

	if u.state != nil {
		done, err := u.state.IsUploaded(it.ExternalID, hash)
		if err != nil {
			return pending{}, false, err
		}
		if done {
			u.log.Debug("already uploaded", "external_id", it.ExternalID)
			return pending{}, true, nil
		}
	}

	filename := filepath.Base(it.Path)
	if it.Path == "" {
		filename = it.WorkoutID + ".fit"
	}
	return pending{
		item: it,
		hash: hash,
		event: Event{
			Category:           "WORKOUT",
			StartDateLocal:     fmt.Sprintf("%sT%s:00", it.ScheduledDate, u.startTime),
			Filename:           filename,
			FileContentsBase64: base64.StdEncoding.EncodeToString(content),
			ExternalID:         it.ExternalID,
			Description:        it.Notes,
		},
	}, false, nil
}

func (u *Uploader) flush(ctx context.Context, batch []pending) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u.stats.Batches++

	if u.dryRun {
		for _, p := range batch {
			u.log.Info("dry run: would upload", "external_id", p.item.ExternalID, "start", p.event.StartDateLocal)
		}
		u.stats.FilesUploaded += len(batch)
		return nil
	}

	events := make([]Event, len(batch))
	for i, p := range batch {
		events[i] = p.event
	}
	if err := u.client.UploadEvents(ctx, events); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		u.log.Warn("batch upload failed", "files", len(batch), "error", err)
		u.stats.FilesErrored += len(batch)
		return nil
	}

	for _, p := range batch {
		u.stats.FilesUploaded++
		u.stats.UploadedIDs = append(u.stats.UploadedIDs, p.item.ExternalID)
		if u.state == nil {
			continue
		}
		if err := u.state.MarkUploaded(p.item.ExternalID, p.hash); err != nil {
			u.log.Warn("failed to record upload", "external_id", p.item.ExternalID, "error", err)
		}
	}
	u.log.Info("batch uploaded", "files", len(batch))
	return nil
}
