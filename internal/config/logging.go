package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// LogOptions controls where log records go.
type LogOptions struct {
	File  string     // JSON log file, empty for stderr only
	Level slog.Level // minimum level written to the file

	// Quiet raises the stderr threshold to WARN so info records do not
	// interleave with interactive output. The file still gets Level.
	Quiet bool
}

// LogOptions derives logging options from the configuration.
func (c Config) LogOptions(quiet bool) LogOptions {
	return LogOptions{File: c.LogFile, Level: c.LogLevel, Quiet: quiet}
}

func (o LogOptions) stderrLevel() slog.Level {
	if o.Quiet && o.Level < slog.LevelWarn {
		return slog.LevelWarn
	}
	return o.Level
}

// SetupLogger creates a dual-output logger: text to stderr, JSON to file.
// Returns the logger and a cleanup function to close the file.
func SetupLogger(opts LogOptions) (*slog.Logger, func() error) {
	noop := func() error { return nil }
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: opts.stderrLevel()})

	if opts.File == "" {
		return slog.New(stderrHandler), noop
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(stderrHandler)
		logger.Warn("failed to open log file, using stderr only", "error", err, "file", opts.File)
		return logger, noop
	}

	return newFanout(stderrHandler, file, opts.Level), file.Close
}

// SetupLoggerWithWriters creates a logger with custom writers (for testing).
func SetupLoggerWithWriters(stderr, file io.Writer, opts LogOptions) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: opts.stderrLevel()})
	return newFanout(stderrHandler, file, opts.Level)
}

func newFanout(stderrHandler slog.Handler, file io.Writer, level slog.Level) *slog.Logger {
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}
