package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/claude/planfit/internal/ingest"
	"github.com/claude/planfit/internal/storage"
	"github.com/claude/planfit/internal/upload"
	"github.com/google/uuid"
)

type fakeStore struct {
	runs      []storage.GenerationRun
	artifacts []storage.WorkoutArtifact
	gotLimit  int
	gotAth    string
}

func (f *fakeStore) RecentRuns(ctx context.Context, limit int) ([]storage.GenerationRun, error) {
	f.gotLimit = limit
	return f.runs, nil
}

func (f *fakeStore) GetRun(ctx context.Context, id uuid.UUID) (*storage.GenerationRun, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListArtifacts(ctx context.Context, athleteID string, limit int) ([]storage.WorkoutArtifact, error) {
	f.gotAth, f.gotLimit = athleteID, limit
	return f.artifacts, nil
}

func (f *fakeStore) GetArtifact(ctx context.Context, externalID string) (*storage.WorkoutArtifact, error) {
	for _, a := range f.artifacts {
		if a.ExternalID == externalID {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("artifact %s: %w", externalID, storage.ErrNotFound)
}

type fakeGenerator struct {
	result  *ingest.Result
	err     error
	body    string
	athlete string
	source  string
}

func (f *fakeGenerator) Ingest(ctx context.Context, r io.Reader, athleteID, source string) (*ingest.Result, error) {
	b, _ := io.ReadAll(r)
	f.body, f.athlete, f.source = string(b), athleteID, source
	return f.result, f.err
}

type fakeSyncer struct {
	stats *upload.Stats
	err   error
}

func (f *fakeSyncer) Sync(ctx context.Context) (*upload.Stats, error) {
	return f.stats, f.err
}

func newTestServer(store *fakeStore, gen *fakeGenerator, syncer Syncer) *Server {
	return New(store, gen, syncer, "secret", slog.New(slog.DiscardHandler))
}

func do(s *Server, method, target, body string, apiKey bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if apiKey {
		req.Header.Set("X-API-Key", "secret")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeGenerator{}, nil)
	rec := do(s, http.MethodGet, "/api/v1/me", "", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
	if info.DisplayName != "Local Dev User" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Local Dev User")
	}
}

// TestHandleMeTailscaleUser verifies the /api/v1/me endpoint returns the
// Tailscale user identity when set in context.
func TestHandleMeTailscaleUser(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "alice@example.com", DisplayName: "Alice"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "alice@example.com" {
		t.Errorf("login = %q, want %q", info.Login, "alice@example.com")
	}
	if info.DisplayName != "Alice" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Alice")
	}
}

// TestHandleGenerate verifies the plan body, athlete and caller reach the
// generator and the result is returned.
func TestHandleGenerate(t *testing.T) {
	gen := &fakeGenerator{result: &ingest.Result{Status: storage.RunSuccess, Workouts: 1, Generated: 1}}
	s := newTestServer(&fakeStore{}, gen, nil)

	rec := do(s, http.MethodPost, "/api/v1/plans/generate?athlete_id=i42", `{"weeks":[]}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if gen.athlete != "i42" || gen.body != `{"weeks":[]}` || gen.source != "api:local" {
		t.Errorf("generator got athlete=%q body=%q source=%q", gen.athlete, gen.body, gen.source)
	}

	var res ingest.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if res.Status != storage.RunSuccess || res.Generated != 1 {
		t.Errorf("result = %+v", res)
	}
}

// TestHandleGenerateErrors verifies error mapping and that the API key is
// required.
func TestHandleGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		apiKey bool
		want   int
	}{
		{"no api key", nil, false, http.StatusUnauthorized},
		{"invalid plan", fmt.Errorf("%w: unexpected EOF", ingest.ErrInvalidPlan), true, http.StatusBadRequest},
		{"invalid athlete", fmt.Errorf("%w: %q", ingest.ErrInvalidAthlete, ""), true, http.StatusBadRequest},
		{"storage failure", errors.New("connection refused"), true, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.err}
			s := newTestServer(&fakeStore{}, gen, nil)
			rec := do(s, http.MethodPost, "/api/v1/plans/generate?athlete_id=i42", "{}", tt.apiKey)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// TestHandleArtifactFile verifies FIT bytes are served as a download and
// unknown ids yield 404.
func TestHandleArtifactFile(t *testing.T) {
	store := &fakeStore{artifacts: []storage.WorkoutArtifact{{
		ExternalID: "i42_week1_2025-01-07_easy",
		FileName:   "week1_2025-01-07_easy.fit",
		Content:    []byte{0x0e, 0x20, 'F', 'I', 'T'},
		SHA256:     "abc",
	}}}
	s := newTestServer(store, &fakeGenerator{}, nil)

	rec := do(s, http.MethodGet, "/api/v1/artifacts/i42_week1_2025-01-07_easy/file", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="week1_2025-01-07_easy.fit"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if rec.Body.Len() != 5 {
		t.Errorf("body length = %d, want 5", rec.Body.Len())
	}

	rec = do(s, http.MethodGet, "/api/v1/artifacts/missing/file", "", false)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}

// TestHandleListArtifacts verifies query parameters reach the store.
func TestHandleListArtifacts(t *testing.T) {
	store := &fakeStore{artifacts: []storage.WorkoutArtifact{{ExternalID: "a"}, {ExternalID: "b"}}}
	s := newTestServer(store, &fakeGenerator{}, nil)

	rec := do(s, http.MethodGet, "/api/v1/artifacts?athlete_id=i42&limit=5", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.gotAth != "i42" || store.gotLimit != 5 {
		t.Errorf("store got athlete=%q limit=%d", store.gotAth, store.gotLimit)
	}
	var got []storage.WorkoutArtifact
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("artifacts = %d, want 2", len(got))
	}
}

// TestHandleRuns verifies run listing defaults and single-run lookup.
func TestHandleRuns(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{runs: []storage.GenerationRun{{ID: id, AthleteID: "i42", Status: storage.RunSuccess}}}
	s := newTestServer(store, &fakeGenerator{}, nil)

	rec := do(s, http.MethodGet, "/api/v1/runs?limit=bogus", "", false)
	if rec.Code != http.StatusOK || store.gotLimit != 50 {
		t.Errorf("status = %d limit = %d, want 200/50", rec.Code, store.gotLimit)
	}

	if rec := do(s, http.MethodGet, "/api/v1/runs/"+id.String(), "", false); rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), "", false); rec.Code != http.StatusNotFound {
		t.Errorf("unknown status = %d, want 404", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/api/v1/runs/not-a-uuid", "", false); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

// TestHandleSync verifies sync results and the unconfigured case.
func TestHandleSync(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeGenerator{}, nil)
	if rec := do(s, http.MethodPost, "/api/v1/uploads/sync", "", true); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d, want 503", rec.Code)
	}

	s = newTestServer(&fakeStore{}, &fakeGenerator{}, &fakeSyncer{stats: &upload.Stats{FilesTotal: 3, FilesUploaded: 2, FilesSkipped: 1}})
	rec := do(s, http.MethodPost, "/api/v1/uploads/sync", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got["uploaded"] != 2 || got["skipped"] != 1 {
		t.Errorf("sync stats = %v", got)
	}

	s = newTestServer(&fakeStore{}, &fakeGenerator{}, &fakeSyncer{err: errors.New("intervals down")})
	if rec := do(s, http.MethodPost, "/api/v1/uploads/sync", "", true); rec.Code != http.StatusBadGateway {
		t.Errorf("failing status = %d, want 502", rec.Code)
	}
}

// TestTailscaleIdentityAfterRoutes verifies SetTailscale takes effect on a
// server whose routes are already built.
func TestTailscaleIdentityAfterRoutes(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeGenerator{}, nil)
	s.SetTailscale(&fakeWhoIs{err: errors.New("unknown peer")})

	if rec := do(s, http.MethodGet, "/api/v1/me", "", false); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

// TestMountMCP verifies the MCP transport is reachable only with the API key.
func TestMountMCP(t *testing.T) {
	s := newTestServer(&fakeStore{}, &fakeGenerator{}, nil)
	var hits int
	s.MountMCP("/mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusAccepted)
	}))

	if rec := do(s, http.MethodPost, "/mcp", "{}", false); rec.Code != http.StatusUnauthorized {
		t.Errorf("without key status = %d, want 401", rec.Code)
	}
	if rec := do(s, http.MethodPost, "/mcp", "{}", true); rec.Code != http.StatusAccepted {
		t.Errorf("with key status = %d, want 202", rec.Code)
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}
