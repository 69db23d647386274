// package shared defines shared helpers
package shared

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewFileLogger creates a [log.Logger] that writes to a size-rotated file described by cfg.
//
// When tee is non-nil, entries are written to both the file and tee.
// The returned [io.Closer] releases the file handle.
func NewFileLogger(cfg LogConfig, tee io.Writer) (*log.Logger, io.Closer) {
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	var w io.Writer = rotator
	if tee != nil {
		w = io.MultiWriter(tee, rotator)
	}

	logger := NewLogger(w)
	logger.SetLevel(ParseLogLevel(cfg.Level))
	return logger, rotator
}

// ConfigureLogger builds the application logger from cfg.
//
// Without a log file the logger writes to w only and the closer is a no-op.
func ConfigureLogger(cfg LogConfig, w io.Writer) (*log.Logger, io.Closer) {
	if cfg.File != "" {
		return NewFileLogger(cfg, w)
	}

	logger := NewLogger(w)
	logger.SetLevel(ParseLogLevel(cfg.Level))
	return logger, io.NopCloser(nil)
}

// ParseLogLevel converts a level name into a [log.Level], defaulting to [log.InfoLevel].
func ParseLogLevel(level string) log.Level {
	ll, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return ll
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}
