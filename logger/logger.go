// Package logger constructs the logr.Logger used across the engine,
// backed by zap. Every Host and Engine is handed one of these
// by value at construction time rather than reaching for a package-level
// global, per the "no process-wide mutable state" redesign note.
package logger

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level selects the verbosity of a Logger.
type Level string

const (
	Debug Level = "debug"
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a logr.Logger at the requested level. Production encoding
// (JSON, ISO8601 timestamps) is used unconditionally — this engine runs
// embedded in a host agent, not a terminal.
func New(level Level) logr.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		// Build only fails on a malformed config; this one is static and
		// known-good, so this path is unreachable outside programmer error.
		zl = zap.NewNop()
	}
	return zapr.NewLogger(zl)
}

// Discard returns a Logger that drops everything, for tests that don't
// care about log output.
func Discard() logr.Logger {
	return logr.Discard()
}
