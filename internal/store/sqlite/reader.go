package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"market-features/internal/model"
)

// Reader provides read-only access to bars, feature rows and the run ledger.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	zap.L().Named("sqlite-reader").Info("opened database", zap.String("path", dbPath))
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadBars returns raw rows for symbol in insertion order. Rows whose
// datetime could not be parsed at ingest are always included so the
// normalizer can account for them.
func (r *Reader) ReadBars(ctx context.Context, symbol string, from, to time.Time) ([]model.RawBar, error) {
	lo, hi := int64(-1<<62), int64(1<<62)
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, datetime, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND (ts IS NULL OR ts BETWEEN ? AND ?)
		ORDER BY id ASC
	`, symbol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.RawBar
	for rows.Next() {
		var b model.RawBar
		if err := rows.Scan(&b.Symbol, &b.Datetime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListSymbols returns every symbol with stored bars, sorted.
func (r *Reader) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// ReadRows returns stored feature rows for symbol and source ordered by time.
func (r *Reader) ReadRows(ctx context.Context, symbol, source string) ([]model.FeatureRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, features, run_id, computed_at
		FROM feature_rows
		WHERE symbol = ? AND source = ?
		ORDER BY ts ASC
	`, symbol, source)
	if err != nil {
		return nil, fmt.Errorf("sqlite query feature_rows: %w", err)
	}
	defer rows.Close()

	var out []model.FeatureRow
	for rows.Next() {
		var (
			fr         model.FeatureRow
			ts, compAt int64
			volume     sql.NullFloat64
			features   string
			runID      sql.NullString
		)
		if err := rows.Scan(&ts, &fr.Open, &fr.High, &fr.Low, &fr.Close, &volume, &features, &runID, &compAt); err != nil {
			return nil, fmt.Errorf("sqlite scan feature_rows: %w", err)
		}
		if err := json.Unmarshal([]byte(features), &fr.Values); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
		fr.Symbol = symbol
		fr.Source = source
		fr.TS = time.Unix(ts, 0).UTC()
		fr.ComputedAt = time.Unix(compAt, 0).UTC()
		fr.RunID = runID.String
		if volume.Valid {
			fr.Volume = model.Float(volume.Float64)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

// Runs returns the most recent ledger entries, newest first.
func (r *Reader) Runs(ctx context.Context, limit int) ([]model.RunRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, profile, started_at, finished_at, symbols, succeeded, insufficient, failed, rows, status
		FROM feature_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query feature_runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var (
			run             model.RunRecord
			started, finish int64
		)
		if err := rows.Scan(&run.RunID, &run.Profile, &started, &finish, &run.Symbols,
			&run.Succeeded, &run.Insufficient, &run.Failed, &run.Rows, &run.Status); err != nil {
			return nil, fmt.Errorf("sqlite scan feature_runs: %w", err)
		}
		run.StartedAt = time.UnixMilli(started).UTC()
		run.FinishedAt = time.UnixMilli(finish).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
