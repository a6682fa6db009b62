// Package logger provides structured logging using zap.
// It sets up a JSON logger with service-level context and provides
// run ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const runIDKey ctxKey = "run_id"

// Init creates a JSON logger for the given service at level ("debug",
// "info", "warn", "error") and installs it as the zap global logger.
func Init(service, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "time"

	l, err := cfg.Build(zap.Fields(zap.String("service", service)))
	if err != nil {
		return nil, fmt.Errorf("logger: build: %w", err)
	}
	zap.ReplaceGlobals(l)
	return l, nil
}

// NewRunID returns a fresh batch run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID stores a run ID in the context for downstream propagation.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID extracts the run ID from context. Returns "" if not set.
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// Fields returns zap fields carrying the run ID from context.
// Usage: log.Info("msg", logger.Fields(ctx)...)
func Fields(ctx context.Context) []zap.Field {
	id := RunID(ctx)
	if id == "" {
		return nil
	}
	return []zap.Field{zap.String("run_id", id)}
}

// For returns the global logger named after component, carrying the run ID
// from ctx when one is set.
func For(ctx context.Context, component string) *zap.Logger {
	return zap.L().Named(component).With(Fields(ctx)...)
}
