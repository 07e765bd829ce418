package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/claude/planfit/internal/ingest"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultArtifactLimit = 20

// --- Tool definitions ---

var toolGenerateWorkoutFiles = mcp.NewTool("generate_workout_files",
	mcp.WithDescription("Generate one FIT workout file per workout in a training plan. Returns the stored artifacts, per-workout failures and the run status (success, partial or error)."),
	mcp.WithString("plan_json", mcp.Required(), mcp.Description("The complete training plan as JSON. Every field is required and unknown fields are rejected.")),
	mcp.WithString("athlete_id", mcp.Required(), mcp.Description("intervals.icu athlete id (e.g. i12345). Prefixes every external id.")),
)

var toolListWorkoutArtifacts = mcp.NewTool("list_workout_artifacts",
	mcp.WithDescription("List generated workout files ordered by scheduled date, with notes, step counts and upload status."),
	mcp.WithString("athlete_id", mcp.Description("Only list files for this athlete. Defaults to all athletes.")),
	mcp.WithNumber("limit", mcp.Description("Maximum number of files. Defaults to 20.")),
)

// --- Tool handlers ---

func (h *handlers) generateWorkoutFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	planJSON, err := req.RequireString("plan_json")
	if err != nil {
		return mcp.NewToolResultError("plan_json parameter is required"), nil
	}
	athleteID, err := req.RequireString("athlete_id")
	if err != nil {
		return mcp.NewToolResultError("athlete_id parameter is required"), nil
	}

	res, err := h.ds.Ingest(ctx, strings.NewReader(planJSON), athleteID, "mcp")
	if errors.Is(err, ingest.ErrInvalidPlan) || errors.Is(err, ingest.ErrInvalidAthlete) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		h.log.Error("mcp generate_workout_files", "athlete_id", athleteID, "error", err)
		return mcp.NewToolResultError("generation failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(res)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listWorkoutArtifacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	athleteID := req.GetString("athlete_id", "")
	limit := req.GetInt("limit", defaultArtifactLimit)
	if limit <= 0 {
		limit = defaultArtifactLimit
	}

	artifacts, err := h.ds.ListArtifacts(ctx, athleteID, limit)
	if err != nil {
		h.log.Error("mcp list_workout_artifacts", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(artifacts)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
