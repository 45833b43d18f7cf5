// Package elog provides the ambient structured logger shared by every
// engine component (C1-C8). It wraps zerolog the way the rest of the
// ecosystem does: a package-global Logger, an Init(Config) to configure
// it once at process start, and With* helpers for component-scoped
// child loggers.
package elog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger tagged with the owning engine
// component (e.g. "buffer", "wal", "lockmgr").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithPartition tags a child logger with the log partition number it is
// operating on. Used by the WAL manager's flush/rotation paths.
func WithPartition(partition int64) zerolog.Logger {
	return Logger.With().Int64("partition", partition).Logger()
}

// WithXct tags a child logger with a transaction id, for per-xct logging
// during commit/abort/rollback.
func WithXct(tid uint64) zerolog.Logger {
	return Logger.With().Uint64("tid", tid).Logger()
}

// WithPage tags a child logger with a page identifier, for buffer pool
// fix/unfix and cleaner diagnostics.
func WithPage(pageID string) zerolog.Logger {
	return Logger.With().Str("page_id", pageID).Logger()
}

func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
