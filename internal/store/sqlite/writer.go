package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"market-features/internal/model"
	"market-features/internal/series"
)

// keepRuns is how many ledger entries survive pruning.
const keepRuns = 500

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/market.db"
}

// Writer persists feature rows and the run ledger, and ingests raw bars.
// The connection pool is a single connection so writes serialize.
type Writer struct {
	db  *sql.DB
	log *zap.Logger
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := zap.L().Named("sqlite")
	log.Info("opened database", zap.String("path", cfg.DBPath))
	return &Writer{db: db, log: log}, nil
}

func open(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol   TEXT NOT NULL,
			datetime TEXT,
			ts       INTEGER,
			open,
			high,
			low,
			close,
			volume
		);
		CREATE INDEX IF NOT EXISTS idx_bars_symbol_ts ON bars (symbol, ts);

		CREATE TABLE IF NOT EXISTS feature_rows (
			symbol      TEXT    NOT NULL,
			source      TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			volume      REAL,
			features    TEXT    NOT NULL,
			run_id      TEXT,
			computed_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, source, ts)
		);

		CREATE TABLE IF NOT EXISTS feature_runs (
			run_id       TEXT PRIMARY KEY,
			profile      TEXT    NOT NULL,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER NOT NULL,
			symbols      INTEGER NOT NULL,
			succeeded    INTEGER NOT NULL,
			insufficient INTEGER NOT NULL,
			failed       INTEGER NOT NULL,
			rows         INTEGER NOT NULL,
			status       TEXT    NOT NULL
		);
	`)
	return err
}

// WriteBars stores vendor rows verbatim. ts is filled when the datetime
// parses so range reads can use the index; unparseable rows keep a NULL ts
// and are still returned to the normalizer.
func (w *Writer) WriteBars(ctx context.Context, bars []model.RawBar) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, datetime, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		var ts any
		if t, ok := series.ParseTimestamp(b.Datetime); ok {
			ts = t.Unix()
		}
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Datetime, ts, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar: %w", err)
		}
	}
	return tx.Commit()
}

// WriteRows upserts feature rows in a single transaction. Rows for the same
// symbol, source and timestamp replace earlier runs.
func (w *Writer) WriteRows(ctx context.Context, rows []model.FeatureRow) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO feature_rows
			(symbol, source, ts, open, high, low, close, volume, features, run_id, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range rows {
		r := &rows[i]
		features, err := r.ValuesJSON()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal features: %w", err)
		}
		_, err = stmt.ExecContext(ctx, r.Symbol, r.Source, r.TS.Unix(),
			r.Open, r.High, r.Low, r.Close, r.Volume, string(features), r.RunID, r.ComputedAt.Unix())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert feature row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	w.log.Debug("committed feature rows",
		zap.String("symbol", rows[0].Symbol),
		zap.Int("rows", len(rows)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// SaveRun records a batch in the run ledger and prunes old entries.
func (w *Writer) SaveRun(ctx context.Context, run model.RunRecord) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO feature_runs
			(run_id, profile, started_at, finished_at, symbols, succeeded, insufficient, failed, rows, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Profile, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Symbols, run.Succeeded, run.Insufficient, run.Failed, run.Rows, run.Status)
	if err != nil {
		return fmt.Errorf("sqlite insert run: %w", err)
	}

	// prune to the most recent keepRuns
	_, err = w.db.ExecContext(ctx, `
		DELETE FROM feature_runs WHERE run_id NOT IN
			(SELECT run_id FROM feature_runs ORDER BY started_at DESC LIMIT ?)
	`, keepRuns)
	if err != nil {
		w.log.Warn("prune runs", zap.Error(err))
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
