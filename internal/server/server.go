package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/claude/planfit/internal/ingest"
	"github.com/claude/planfit/internal/storage"
	"github.com/claude/planfit/internal/upload"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ArtifactStore is the read side of generation runs and workout files.
type ArtifactStore interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.GenerationRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*storage.GenerationRun, error)
	ListArtifacts(ctx context.Context, athleteID string, limit int) ([]storage.WorkoutArtifact, error)
	GetArtifact(ctx context.Context, externalID string) (*storage.WorkoutArtifact, error)
}

// Generator turns an uploaded plan into workout files.
type Generator interface {
	Ingest(ctx context.Context, r io.Reader, athleteID, source string) (*ingest.Result, error)
}

// Syncer pushes pending workout files to intervals.icu.
type Syncer interface {
	Sync(ctx context.Context) (*upload.Stats, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store  ArtifactStore
	gen    Generator
	syncer Syncer
	whois  WhoIser
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates a new Server with all routes configured. syncer may be nil when
// uploads are not configured.
func New(store ArtifactStore, gen Generator, syncer Syncer, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		store:  store,
		gen:    gen,
		syncer: syncer,
		log:    log,
		apiKey: apiKey,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// SetTailscale resolves request identities through the tailnet. Without it
// every request runs as the local dev user.
func (s *Server) SetTailscale(wc WhoIser) {
	s.whois = wc
}

// MountMCP serves an MCP transport under pattern behind the API key.
func (s *Server) MountMCP(pattern string, h http.Handler) {
	s.router.Route(pattern, func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Handle("/", h)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.identity)

	// Write endpoints (API key required)
	s.router.Route("/api/v1/plans", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/generate", s.handleGenerate)
	})
	s.router.Route("/api/v1/uploads", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/sync", s.handleSync)
	})

	// Read endpoints (no auth, tsnet handles access)
	s.router.Get("/api/v1/me", s.handleMe)
	s.router.Get("/api/v1/runs", s.handleRecentRuns)
	s.router.Get("/api/v1/runs/{id}", s.handleGetRun)
	s.router.Get("/api/v1/artifacts", s.handleListArtifacts)
	s.router.Get("/api/v1/artifacts/{externalID}/file", s.handleArtifactFile)
}

// identity picks the identity middleware per request so SetTailscale may be
// called after the routes are built.
func (s *Server) identity(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois == nil {
			dev.ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(s.whois, s.log)(next).ServeHTTP(w, r)
	})
}
