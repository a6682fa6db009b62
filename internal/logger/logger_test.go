package logger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	l, err := Init("test-service", "debug")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if zap.L() != l {
		t.Error("expected Init to replace the global logger")
	}
}

func TestInit_BadLevel(t *testing.T) {
	if _, err := Init("svc", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestRunID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No run ID set
	if id := RunID(ctx); id != "" {
		t.Errorf("expected empty run id, got %q", id)
	}

	ctx = WithRunID(ctx, "run-123")
	if id := RunID(ctx); id != "run-123" {
		t.Errorf("expected 'run-123', got %q", id)
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Fatal("expected distinct run ids")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("expected a UUID, got %q: %v", a, err)
	}
}

func TestFields(t *testing.T) {
	if f := Fields(context.Background()); f != nil {
		t.Errorf("expected nil fields when no run id, got %v", f)
	}

	core, logs := observer.New(zap.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	ctx := WithRunID(context.Background(), "abc-123")
	For(ctx, "pipeline").Info("batch done")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "pipeline" {
		t.Errorf("expected logger name 'pipeline', got %q", entries[0].LoggerName)
	}
	if got := entries[0].ContextMap()["run_id"]; got != "abc-123" {
		t.Errorf("expected run_id 'abc-123', got %v", got)
	}
}
