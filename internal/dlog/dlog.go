// Package dlog exposes a simple leveled zap logger.
package dlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelInfo sets the log level to info.
	LevelInfo = "info"

	// LevelDebug sets the log level to debug.
	LevelDebug = "debug"

	// LevelNone disables logging.
	LevelNone = "none"
)

// New returns a zap logger at the given level.
func New(level string) (*zap.Logger, error) {
	if level == LevelNone || level == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Must returns a logger at the given level or panics.
func Must(level string) *zap.Logger {
	l, err := New(level)
	if err != nil {
		panic(err)
	}
	return l
}
