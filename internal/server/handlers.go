package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/claude/planfit/internal/ingest"
	"github.com/claude/planfit/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxPlanBytes = 10 << 20

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	athleteID := r.URL.Query().Get("athlete_id")
	body := http.MaxBytesReader(w, r.Body, maxPlanBytes)
	source := "api:" + userInfoFromContext(r).Login

	result, err := s.gen.Ingest(r.Context(), body, athleteID, source)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		case errors.Is(err, ingest.ErrInvalidPlan), errors.Is(err, ingest.ErrInvalidAthlete):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			s.log.Error("plan generation error", "athlete_id", athleteID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "intervals.icu upload not configured"})
		return
	}
	stats, err := s.syncer.Sync(r.Context())
	if err != nil {
		s.log.Error("upload sync error", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":    stats.FilesTotal,
		"uploaded": stats.FilesUploaded,
		"skipped":  stats.FilesSkipped,
		"errored":  stats.FilesErrored,
		"batches":  stats.Batches,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.RecentRuns(r.Context(), parseLimit(r, 50))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid run ID"})
		return
	}

	run, err := s.store.GetRun(r.Context(), runID)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	athleteID := r.URL.Query().Get("athlete_id")
	artifacts, err := s.store.ListArtifacts(r.Context(), athleteID, parseLimit(r, 100))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

func (s *Server) handleArtifactFile(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetArtifact(r.Context(), chi.URLParam(r, "externalID"))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "artifact not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.ant.fit")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Content)))
	w.Header().Set("ETag", strconv.Quote(a.SHA256))
	w.WriteHeader(http.StatusOK)
	w.Write(a.Content) //nolint:errcheck
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
