package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("planfit", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("planfit turns structured running plans into Garmin FIT workout files. Generate files from plan JSON and inspect what was generated."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGenerateWorkoutFiles, Handler: h.generateWorkoutFiles},
		server.ServerTool{Tool: toolListWorkoutArtifacts, Handler: h.listWorkoutArtifacts},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resRecentRuns, Handler: h.recentRuns},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resRecentRuns = mcp.NewResource(
	"planfit://recent_runs",
	"Recent Generation Runs",
	mcp.WithResourceDescription("The most recent plan generation runs with their status and workout counts"),
	mcp.WithMIMEType("application/json"),
)
