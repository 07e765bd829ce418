package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/planfit/internal/config"
	"github.com/claude/planfit/internal/ingest"
	"github.com/claude/planfit/internal/logging"
	planmcp "github.com/claude/planfit/internal/mcp"
	"github.com/claude/planfit/internal/server"
	"github.com/claude/planfit/internal/storage"
	"github.com/claude/planfit/internal/upload"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron"
	"github.com/spf13/pflag"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to config file")
	migrateOnly := pflag.Bool("migrate-only", false, "run migrations and exit")
	mcpStdio := pflag.Bool("mcp-stdio", false, "serve MCP over stdio against a remote planfit server")
	remote := pflag.String("remote", "", "planfit server URL for --mcp-stdio")
	apiKey := pflag.String("api-key", os.Getenv("PLANFIT_AUTH_API_KEY"), "API key for --mcp-stdio")
	version := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *version {
		fmt.Println("planfit", Version)
		return
	}

	if *mcpStdio {
		serveStdio(*remote, *apiKey)
		return
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, logCloser := logging.New(cfg.Log, os.Stdout)
	defer logCloser.Close()
	log.Info("planfit starting", "version", Version)

	// Run migrations
	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Connect database
	ctx := context.Background()
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	// Create generator
	provider := ingest.NewProvider(db, cfg.Generator.Assembler(), log)

	// Optional intervals.icu sync
	var syncer *ingest.Syncer
	if cfg.Intervals.Enabled() {
		client := upload.NewClient(cfg.Intervals.BaseURL, cfg.Intervals.AthleteID, cfg.Intervals.APIKey)
		uploader := upload.New(client, nil, cfg.Intervals.StartTime, false, cfg.Intervals.BatchSize, log)
		syncer = ingest.NewSyncer(db, uploader, cfg.Intervals.AthleteID, 500, log)

		c := cron.New()
		if err := c.AddFunc(cfg.Intervals.Schedule, func() { runSync(syncer, log) }); err != nil {
			log.Error("invalid upload schedule", "schedule", cfg.Intervals.Schedule, "error", err)
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
		log.Info("intervals.icu sync scheduled", "athlete_id", cfg.Intervals.AthleteID, "schedule", cfg.Intervals.Schedule)
	}

	// Create server. A nil *ingest.Syncer must stay a nil interface.
	var srv *server.Server
	if syncer != nil {
		srv = server.New(db, provider, syncer, cfg.Auth.APIKey, log)
	} else {
		srv = server.New(db, provider, nil, cfg.Auth.APIKey, log)
	}

	mcpSrv := planmcp.New(planmcp.Local{DB: db, Provider: provider}, Version, log)
	srv.MountMCP("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv))

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}

func runSync(syncer *ingest.Syncer, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	stats, err := syncer.Sync(ctx)
	if err != nil {
		log.Error("scheduled upload sync failed", "error", err)
		return
	}
	if stats.FilesTotal > 0 {
		log.Info("scheduled upload sync", "uploaded", stats.FilesUploaded, "errored", stats.FilesErrored)
	}
}

// serveStdio runs the MCP server on stdin/stdout backed by a remote planfit.
// Logs go to stderr so they do not corrupt the protocol stream.
func serveStdio(remote, apiKey string) {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if remote == "" {
		log.Error("--remote is required with --mcp-stdio")
		os.Exit(1)
	}

	s := planmcp.New(planmcp.NewHTTPClient(remote, apiKey), Version, log)
	if err := mcpserver.ServeStdio(s); err != nil {
		log.Error("mcp stdio server error", "error", err)
		os.Exit(1)
	}
}
