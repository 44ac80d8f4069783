// Package logging builds the structured loggers used by the harness, the
// runner and the served application.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures a logger.
type Options struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer
	// Prefix is usually the run id of the test the logger belongs to
	Prefix string
	// ReportTimestamp adds timestamps to log entries
	ReportTimestamp bool
}

// DefaultOptions returns the options used by the command line tools.
func DefaultOptions() Options {
	return Options{
		Level:           "info",
		Output:          os.Stderr,
		ReportTimestamp: true,
	}
}

// ParseLevel converts a level name to a log.Level, falling back to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// New creates a logger with the given options.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return log.NewWithOptions(out, log.Options{
		Level:           ParseLevel(opts.Level),
		Prefix:          opts.Prefix,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: opts.ReportTimestamp,
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return New(Options{Output: io.Discard, Level: "fatal"})
}

// NewFileLogger creates a logger appending to path, creating parent
// directories as needed. The returned closer releases the file.
func NewFileLogger(path string, opts Options) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, err
	}
	opts.Output = f
	opts.ReportTimestamp = true
	return New(opts), f, nil
}
