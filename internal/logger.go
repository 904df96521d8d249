package internal

import (
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var (
	logLevel = &slog.LevelVar{}
	runID    string
)

// SetDebug switches every logger between debug and info level.
func SetDebug(enabled bool) {
	if enabled {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(slog.LevelInfo)
}

// SetRunID sets the identifier attached to every log record.
// It must be called before any logger is created.
func SetRunID(id string) {
	runID = id
}

func newHandler() slog.Handler {
	opts := &tint.Options{
		Level: logLevel,
	}

	var w io.Writer
	if runtime.GOOS == "windows" {
		w = colorable.NewColorableStdout()
	} else {
		w = os.Stderr
		opts.NoColor = !isatty.IsTerminal(os.Stderr.Fd())
	}

	return tint.NewHandler(w, opts)
}

type Logger struct {
	*slog.Logger

	kind string
	name string
}

func NewLogger(kind, name string) *Logger {
	l := slog.New(newHandler())
	if runID != "" {
		l = l.With(slog.String("run_id", runID))
	}

	return &Logger{
		Logger: l,

		kind: kind,
		name: name,
	}
}

func (l *Logger) getInfo() slog.Attr {
	return slog.Group("info", slog.String("kind", l.kind), slog.String("name", l.name))
}

func (l *Logger) getArgs(args ...any) []any {
	return append([]any{l.getInfo()}, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, l.getArgs(args...)...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, l.getArgs(args...)...)
}

func (l *Logger) Error(msg string, err error, args ...any) {
	tmpArgs := append([]any{tint.Err(err)}, args...)
	l.Logger.Error(msg, l.getArgs(tmpArgs...)...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, l.getArgs(args...)...)
}
