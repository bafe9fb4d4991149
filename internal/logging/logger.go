// Package logging builds the structured zap logger. Output goes to
// .compass/logs/compass.log so it never interferes with the TUI.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the structured log file inside the logs directory.
const FileName = "compass.log"

// ParseLevel maps a config level name onto a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logging: level %q: %w", name, err)
	}
	return level, nil
}

// New builds a production JSON logger appending to dir/compass.log. The
// returned AtomicLevel can be changed at runtime.
func New(dir, level string) (*zap.Logger, zap.AtomicLevel, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Sampling = nil

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger.With(zap.Int("pid", os.Getpid())), config.Level, nil
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
