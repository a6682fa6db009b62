package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the batch pipeline from concrete storage
// implementations (SQLite, Redis, ClickHouse, websocket fan-out).

// BarReader supplies raw vendor bars for a symbol.
type BarReader interface {
	// ReadBars returns rows with from <= datetime <= to. A zero from or to
	// leaves that side unbounded. Rows come back in storage order.
	ReadBars(ctx context.Context, symbol string, from, to time.Time) ([]RawBar, error)

	// ListSymbols returns every symbol the source holds bars for.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RowWriter persists or publishes assembled feature rows.
type RowWriter interface {
	// WriteRows writes rows for a single symbol in one batch.
	WriteRows(ctx context.Context, rows []FeatureRow) error

	// Close releases underlying resources.
	Close() error
}

// RunLedger records the outcome of each batch.
type RunLedger interface {
	SaveRun(ctx context.Context, run RunRecord) error
}
