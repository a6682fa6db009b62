package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-features/internal/model"
)

// schema returns the statements creating the database and feature table.
// ReplacingMergeTree keeps the row with the newest computed_at per
// (symbol, source, ts), so recomputing a range replaces it on merge.
func schema(database, table string) []string {
	stmts := make([]string, 0, 2)
	if database != "" {
		stmts = append(stmts, "CREATE DATABASE IF NOT EXISTS "+database)
	}
	stmts = append(stmts, `CREATE TABLE IF NOT EXISTS `+table+` (
		symbol      LowCardinality(String),
		source      LowCardinality(String),
		ts          DateTime('UTC'),
		open        Float64,
		high        Float64,
		low         Float64,
		close       Float64,
		volume      Nullable(Float64),
		features    String,
		run_id      String,
		computed_at DateTime('UTC')
	) ENGINE = ReplacingMergeTree(computed_at)
	ORDER BY (symbol, source, ts)`)
	return stmts
}

const insertColumns = "symbol, source, ts, open, high, low, close, volume, features, run_id, computed_at"

// rowArgs returns the insert arguments for r in insertColumns order.
func rowArgs(r *model.FeatureRow) ([]any, error) {
	features, err := r.ValuesJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal features: %w", err)
	}
	return []any{
		r.Symbol,
		r.Source,
		r.TS.UTC(),
		r.Open,
		r.High,
		r.Low,
		r.Close,
		r.Volume,
		string(features),
		r.RunID,
		r.ComputedAt.UTC(),
	}, nil
}

// WriteRows inserts rows as one block.
func (s *Store) WriteRows(ctx context.Context, rows []model.FeatureRow) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+s.table+" ("+insertColumns+")")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clickhouse prepare: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		args, err := rowArgs(&rows[i])
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clickhouse append: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clickhouse commit: %w", err)
	}

	s.log.Debug("inserted block",
		zap.String("symbol", rows[0].Symbol),
		zap.Int("rows", len(rows)),
		zap.Duration("took", time.Since(start)))
	return nil
}
