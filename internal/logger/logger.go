package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/loykin/gridnode/internal/config"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Setup builds the daemon's base slog handler from config. With a file
// configured the output rotates via lumberjack and the returned closer owns
// the file; otherwise logs go to stderr with ANSI colors when attached to a
// terminal.
func Setup(cfg config.LogConfig) (slog.Handler, io.Closer) {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	if cfg.File != "" {
		w := &lj.Logger{
			Filename:   cfg.File,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
		return slog.NewTextHandler(w, opts), w
	}

	if isTerminal(os.Stderr) {
		return NewColorTextHandler(os.Stderr, opts, true), nopCloser{}
	}
	return slog.NewTextHandler(os.Stderr, opts), nopCloser{}
}

func parseLevel(s string) slog.Level {
	switch s {
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

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
