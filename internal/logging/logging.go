package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// consoleTime keeps console lines short; runs rarely span midnight.
const consoleTime = "15:04:05.000"

// Logger is the process-wide structured logger. Setup replaces it.
var Logger = slog.New(newHandler(os.Stderr, slog.LevelInfo, false))

// Setup installs the logger for a command invocation. verbose enables
// debug records; jsonOutput switches to one JSON object per line.
func Setup(verbose bool, jsonOutput bool, w io.Writer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if w == nil {
		w = os.Stderr
	}
	Logger = slog.New(newHandler(w, level, jsonOutput))
}

func newHandler(w io.Writer, level slog.Level, jsonOutput bool) slog.Handler {
	if jsonOutput {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: dropEmpty})
	}
	color := colorEnabled(w)
	if f, ok := w.(*os.File); ok && color {
		w = colorable.NewColorable(f)
	}
	return tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  consoleTime,
		NoColor:     !color,
		ReplaceAttr: dropEmpty,
	})
}

// colorEnabled reports whether w is a terminal that should get ANSI colors.
// NO_COLOR turns colors off everywhere.
func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// dropEmpty removes top-level attributes that carry nothing, such as an
// empty string or a nil error. Optional fields like "fork" or "reason" are
// passed unconditionally by callers.
func dropEmpty(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key == slog.MessageKey {
		return a
	}
	switch v := a.Value.Any().(type) {
	case string:
		if v == "" {
			return slog.Attr{}
		}
	case nil:
		return slog.Attr{}
	}
	return a
}

// Debug logs at debug level; shown only with --verbose.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// With returns a child logger, e.g. one carrying the run ID.
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}
