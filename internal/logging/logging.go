// Package logging builds the slog logger used by the planfit binaries.
package logging

import (
	"io"
	"log/slog"

	"github.com/claude/planfit/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a config level name to a slog level. Unknown names map to
// Info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger writing to console. When cfg.File is set, output
// is also written to that file, rotated by size. The returned closer must be
// closed on exit.
func New(cfg config.LogConfig, console io.Writer) (*slog.Logger, io.Closer) {
	out := console
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = io.MultiWriter(console, rotated)
		closer = rotated
	}
	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}))
	return log, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
