// Package logging wires structured logging for the coordinator and agent
// binaries: log/slog everywhere (grounded on the pack's agent/orchestrator
// stack, which logs exclusively through slog), rendered through
// lmittmann/tint for a readable colorized console and falling back to
// plain text when stderr isn't a terminal (mattn/go-isatty), piped
// through mattn/go-colorable so ANSI sequences still work on Windows
// consoles.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// New builds the process-wide logger. level is parsed case-insensitively
// ("debug", "info", "warn", "error"); an unrecognized value falls back to
// info.
func New(levelName string) *slog.Logger {
	var out io.Writer = os.Stderr
	useColor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if useColor {
		out = colorable.NewColorable(os.Stderr)
	}

	handler := tint.NewHandler(out, &tint.Options{
		Level:      parseLevel(levelName),
		TimeFormat: time.Kitchen,
		NoColor:    !useColor,
	})
	return slog.New(handler)
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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
