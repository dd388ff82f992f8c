// Package logging builds the process logger from the logger config.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MatusOllah/slogcolor"
	"github.com/mattn/go-isatty"

	"github.com/sakif/sql-snippets/internal/config"
)

// ParseLevel accepts debug, info, warn, or error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: invalid level %q: %w", s, err)
	}
	return l, nil
}

// New returns a logger writing to w.
//
//   - format "json" → slog.JSONHandler
//   - color on and w is a terminal → slogcolor
//   - otherwise → slog.TextHandler
func New(w io.Writer, cfg config.LoggerConfig) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var h slog.Handler
	switch {
	case cfg.Format == "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case cfg.Color && IsTerminal(w):
		opts := *slogcolor.DefaultOptions
		opts.Level = level
		opts.TimeFormat = time.TimeOnly
		h = slogcolor.NewHandler(w, &opts)
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h), nil
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
