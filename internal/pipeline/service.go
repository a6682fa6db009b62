// Package pipeline runs indicator batches: read bars per symbol, normalize,
// compute the active profile, and hand the rows to every sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-features/internal/indicator"
	"market-features/internal/logger"
	"market-features/internal/metrics"
	"market-features/internal/model"
	"market-features/internal/notification"
	"market-features/internal/profile"
	"market-features/internal/series"
)

// ErrBatchRunning is returned when a batch is requested while one is in flight.
var ErrBatchRunning = errors.New("pipeline: batch already running")

// Per-symbol outcomes.
const (
	SymbolOK           = "ok"
	SymbolInsufficient = "insufficient"
	SymbolFailed       = "failed"
)

// Sink is a named row writer. A failed write to a required sink fails the
// symbol; other sinks are best effort.
type Sink struct {
	Name     string
	Writer   model.RowWriter
	Required bool
}

// Options tune a Service.
type Options struct {
	Symbols        []string      // empty: every symbol the bar source lists
	Source         string        // overrides the profile's data source label
	Workers        int           // concurrent symbols
	HistoryWindow  time.Duration // 0: read all stored bars
	AlertThreshold int           // failed symbols that trigger an alert
}

// Deps are the collaborators of a Service. Bars and Metrics are required.
type Deps struct {
	Bars     model.BarReader
	Sinks    []Sink
	Ledger   model.RunLedger
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
}

// SymbolResult is the outcome for one symbol within a batch.
type SymbolResult struct {
	Symbol      string
	Status      string
	Rows        int
	Report      series.Report
	Diagnostics []indicator.Diagnostic
	Err         error
}

// Service orchestrates batches. The engine itself is pure; all state here
// is the active profile, swapped atomically on reload.
type Service struct {
	opts Options
	deps Deps

	mu     sync.RWMutex
	active *profile.Compiled

	running atomic.Bool
	now     func() time.Time
}

// New creates a Service running active.
func New(opts Options, deps Deps, active *profile.Compiled) (*Service, error) {
	if deps.Bars == nil {
		return nil, fmt.Errorf("pipeline: bar source is required")
	}
	if deps.Metrics == nil {
		return nil, fmt.Errorf("pipeline: metrics are required")
	}
	if active == nil {
		return nil, fmt.Errorf("pipeline: active profile is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.AlertThreshold < 1 {
		opts.AlertThreshold = 1
	}
	s := &Service{opts: opts, deps: deps, active: active, now: time.Now}
	if deps.Health != nil {
		deps.Health.SetProfile(active.Name)
	}
	return s, nil
}

// Active returns the profile batches currently run.
func (s *Service) Active() *profile.Compiled {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Reload compiles p and makes it active for the next batch. A batch in
// flight keeps the profile it started with.
func (s *Service) Reload(p profile.Profile) (*profile.Compiled, error) {
	c, err := profile.Compile(p)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	prev := s.active.Name
	s.active = c
	s.mu.Unlock()

	if s.deps.Health != nil {
		s.deps.Health.SetProfile(c.Name)
	}
	zap.L().Named("pipeline").Info("profile reloaded",
		zap.String("from", prev),
		zap.String("to", c.Name),
		zap.Int("columns", len(c.Columns)),
		zap.Int("min_bars", c.MinBars))
	return c, nil
}

// RunBatch processes every symbol once. Symbol failures are counted, not
// returned; the error is non-nil only when the symbol list cannot be read
// or ctx is canceled.
func (s *Service) RunBatch(ctx context.Context) (model.RunRecord, error) {
	if !s.running.CompareAndSwap(false, true) {
		return model.RunRecord{}, ErrBatchRunning
	}
	defer s.running.Store(false)

	c := s.Active()
	runID := logger.NewRunID()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.For(ctx, "pipeline")

	run := model.RunRecord{RunID: runID, Profile: c.Name, StartedAt: s.now().UTC()}
	symbols, err := s.symbols(ctx)
	if err != nil {
		run.Status = model.RunFailed
		s.finish(ctx, &run, nil)
		return run, fmt.Errorf("pipeline: list symbols: %w", err)
	}
	run.Symbols = len(symbols)
	log.Info("batch started", zap.String("profile", c.Name), zap.Int("symbols", len(symbols)), zap.Int("workers", s.opts.Workers))

	meta := indicator.RowMeta{Source: s.source(c), RunID: runID, ComputedAt: run.StartedAt}
	results := make([]SymbolResult, len(symbols))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, sym := range symbols {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = SymbolResult{Symbol: sym, Status: SymbolFailed, Err: err}
				return nil
			}
			results[i] = s.safeProcess(ctx, c, sym, meta)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for _, r := range results {
		switch r.Status {
		case SymbolOK:
			run.Succeeded++
			run.Rows += r.Rows
		case SymbolInsufficient:
			run.Insufficient++
		default:
			run.Failed++
			failed = append(failed, r.Symbol)
		}
	}

	switch {
	case ctx.Err() != nil:
		run.Status = model.RunCanceled
	case run.Symbols > 0 && run.Failed == run.Symbols:
		run.Status = model.RunFailed
	case run.Failed > 0:
		run.Status = model.RunPartial
	default:
		run.Status = model.RunOK
	}
	s.finish(ctx, &run, failed)
	return run, ctx.Err()
}

// ProcessSymbol runs one symbol through the active profile outside a batch.
func (s *Service) ProcessSymbol(ctx context.Context, symbol string) SymbolResult {
	c := s.Active()
	runID := logger.RunID(ctx)
	if runID == "" {
		runID = logger.NewRunID()
		ctx = logger.WithRunID(ctx, runID)
	}
	return s.safeProcess(ctx, c, symbol, indicator.RowMeta{Source: s.source(c), RunID: runID, ComputedAt: s.now().UTC()})
}

func (s *Service) safeProcess(ctx context.Context, c *profile.Compiled, symbol string, meta indicator.RowMeta) (res SymbolResult) {
	log := logger.For(ctx, "pipeline").With(zap.String("symbol", symbol))
	defer func() {
		if p := recover(); p != nil {
			res = SymbolResult{Symbol: symbol, Status: SymbolFailed, Err: fmt.Errorf("panic: %v", p)}
		}
		s.deps.Metrics.SymbolsTotal.WithLabelValues(res.Status).Inc()
		switch res.Status {
		case SymbolFailed:
			log.Error("symbol failed", zap.Error(res.Err))
		case SymbolInsufficient:
			log.Info("insufficient history",
				zap.Int("kept", res.Report.Kept),
				zap.Int("min_bars", res.Report.MinBars))
		default:
			log.Debug("symbol done", zap.Int("rows", res.Rows), zap.Int("dropped", res.Report.DroppedTotal()))
		}
	}()
	return s.process(ctx, c, symbol, meta)
}

func (s *Service) process(ctx context.Context, c *profile.Compiled, symbol string, meta indicator.RowMeta) SymbolResult {
	res := SymbolResult{Symbol: symbol, Status: SymbolFailed}
	m := s.deps.Metrics

	var from time.Time
	if s.opts.HistoryWindow > 0 {
		from = s.now().Add(-s.opts.HistoryWindow)
	}
	raw, err := s.deps.Bars.ReadBars(ctx, symbol, from, time.Time{})
	if err != nil {
		res.Err = fmt.Errorf("read bars: %w", err)
		return res
	}

	ser, rep, err := series.Normalize(raw, series.Options{Symbol: symbol, MinBars: c.MinBars})
	res.Report = rep
	if err != nil {
		res.Err = fmt.Errorf("normalize: %w", err)
		return res
	}
	for reason, n := range rep.Dropped {
		m.BarsDropped.WithLabelValues(string(reason)).Add(float64(n))
	}
	m.BarsKept.Add(float64(rep.Kept))
	if rep.Insufficient {
		res.Status = SymbolInsufficient
		return res
	}

	start := time.Now()
	frame, err := c.Engine.Compute(ser, c.Columns)
	if err != nil {
		res.Err = fmt.Errorf("compute: %w", err)
		return res
	}
	rows, err := indicator.Assemble(frame, c.Columns, meta)
	if err != nil {
		res.Err = fmt.Errorf("assemble: %w", err)
		return res
	}
	m.ComputeDur.Observe(time.Since(start).Seconds())

	res.Diagnostics = frame.Diagnostics()
	for _, d := range res.Diagnostics {
		m.Diagnostics.WithLabelValues(d.Spec).Inc()
	}

	if err := s.write(ctx, rows); err != nil {
		res.Err = err
		return res
	}
	res.Status = SymbolOK
	res.Rows = len(rows)
	return res
}

func (s *Service) write(ctx context.Context, rows []model.FeatureRow) error {
	m := s.deps.Metrics
	for _, sink := range s.deps.Sinks {
		start := time.Now()
		err := sink.Writer.WriteRows(ctx, rows)
		m.SinkDur.WithLabelValues(sink.Name).Observe(time.Since(start).Seconds())
		if err != nil {
			m.SinkErrors.WithLabelValues(sink.Name).Inc()
			if sink.Required {
				return fmt.Errorf("sink %s: %w", sink.Name, err)
			}
			logger.For(ctx, "pipeline").Warn("sink write failed",
				zap.String("sink", sink.Name), zap.Error(err))
			continue
		}
		m.RowsWritten.WithLabelValues(sink.Name).Add(float64(len(rows)))
	}
	return nil
}

func (s *Service) symbols(ctx context.Context) ([]string, error) {
	if len(s.opts.Symbols) > 0 {
		return s.opts.Symbols, nil
	}
	syms, err := s.deps.Bars.ListSymbols(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(syms)
	return syms, nil
}

func (s *Service) source(c *profile.Compiled) string {
	if s.opts.Source != "" {
		return s.opts.Source
	}
	return c.Source
}

// finish stamps the run, records metrics, health and ledger, and alerts
// when enough symbols failed.
func (s *Service) finish(ctx context.Context, run *model.RunRecord, failed []string) {
	run.FinishedAt = s.now().UTC()
	log := logger.For(ctx, "pipeline")
	m := s.deps.Metrics

	m.BatchesTotal.WithLabelValues(run.Status).Inc()
	m.BatchDur.Observe(run.Duration().Seconds())
	m.LastBatchTS.Set(float64(run.FinishedAt.Unix()))
	if s.deps.Health != nil {
		s.deps.Health.RecordBatch(run.RunID, run.Status, run.FinishedAt)
	}

	// the ledger and alerts must survive a canceled batch context
	bg := context.WithoutCancel(ctx)
	if s.deps.Ledger != nil {
		if err := s.deps.Ledger.SaveRun(bg, *run); err != nil {
			log.Error("save run", zap.Error(err))
		}
	}

	log.Info("batch finished",
		zap.String("status", run.Status),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("insufficient", run.Insufficient),
		zap.Int("failed", run.Failed),
		zap.Int("rows", run.Rows),
		zap.Duration("took", run.Duration()))

	listFailed := run.Status == model.RunFailed && run.Symbols == 0
	if s.deps.Notifier != nil && run.Status != model.RunCanceled &&
		(listFailed || len(failed) >= s.opts.AlertThreshold) {
		if err := s.deps.Notifier.Send(bg, batchAlert(*run, failed)); err != nil {
			log.Warn("send alert", zap.Error(err))
		}
	}
}

func batchAlert(run model.RunRecord, failed []string) notification.Alert {
	level := notification.AlertWarning
	if run.Status == model.RunFailed {
		level = notification.AlertCritical
	}
	msg := fmt.Sprintf("%d of %d symbols failed", run.Failed, run.Symbols)
	if run.Symbols == 0 {
		msg = "could not list symbols"
	}
	return notification.Alert{
		Level:   level,
		Title:   fmt.Sprintf("feature batch %s (%s)", run.Status, run.Profile),
		Message: msg,
		RunID:   run.RunID,
		Fields: map[string]any{
			"failed":       failed,
			"succeeded":    run.Succeeded,
			"insufficient": run.Insufficient,
			"rows":         run.Rows,
		},
	}
}
