// Package elog provides structured logging for the sync engine using zerolog.
package elog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents a log level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// zerologLevels maps our Level to zerolog's, so Init never needs a
// branch per level; an unrecognized Level falls back to Info.
var zerologLevels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger from cfg.
func Init(cfg Config) {
	level, ok := zerologLevels[cfg.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	Logger = zerolog.New(writerFor(cfg)).With().Timestamp().Logger()
}

// writerFor picks the console writer (human-readable, timestamped) or
// a bare io.Writer for JSON lines, defaulting to stdout.
func writerFor(cfg Config) io.Writer {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.JSONOutput {
		return output
	}
	return zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
}

func init() {
	// Sensible default so packages that log before Init (e.g. unit
	// tests) don't panic on a zero-value Logger.
	Init(Config{Level: InfoLevel})
}

// With creates a child logger tagged with one string field. The
// domain-specific wrappers below exist for call-site readability and
// to pin field names across packages.
func With(field, value string) zerolog.Logger {
	return Logger.With().Str(field, value).Logger()
}

// WithComponent creates a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return With("component", component)
}

// WithSD creates a child logger tagged with a sync-directory id.
func WithSD(sdID string) zerolog.Logger {
	return With("sd_id", sdID)
}

// WithNote creates a child logger tagged with a note id.
func WithNote(noteID string) zerolog.Logger {
	return With("note_id", noteID)
}

// WithInstance creates a child logger tagged with an instance id.
func WithInstance(instanceID string) zerolog.Logger {
	return With("instance_id", instanceID)
}
