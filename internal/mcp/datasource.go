package mcp

import (
	"context"
	"io"

	"github.com/claude/planfit/internal/ingest"
	"github.com/claude/planfit/internal/storage"
)

// DataSource abstracts the generator and artifact store for MCP tools. Local
// (in-process) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	Ingest(ctx context.Context, r io.Reader, athleteID, source string) (*ingest.Result, error)
	ListArtifacts(ctx context.Context, athleteID string, limit int) ([]storage.WorkoutArtifact, error)
	RecentRuns(ctx context.Context, limit int) ([]storage.GenerationRun, error)
}

// Local serves MCP requests from the database and generator of this process.
type Local struct {
	*storage.DB
	*ingest.Provider
}

// Compile-time check: Local satisfies DataSource.
var _ DataSource = Local{}
