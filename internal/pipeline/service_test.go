package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-features/internal/indicator"
	"market-features/internal/metrics"
	"market-features/internal/model"
	"market-features/internal/notification"
	"market-features/internal/profile"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func makeBars(symbol string, n int) []model.RawBar {
	out := make([]model.RawBar, n)
	for i := range out {
		c := 100 + 0.5*float64(i) + 2*math.Sin(float64(i)/3)
		out[i] = model.RawBar{
			Symbol:   symbol,
			Datetime: t0.AddDate(0, 0, i),
			Open:     c - 0.2,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   1000.0 + float64(i),
		}
	}
	return out
}

type fakeBars struct {
	bars  map[string][]model.RawBar
	errs  map[string]error
	panic string

	mu    sync.Mutex
	froms []time.Time
}

func (f *fakeBars) ReadBars(_ context.Context, symbol string, from, _ time.Time) ([]model.RawBar, error) {
	f.mu.Lock()
	f.froms = append(f.froms, from)
	f.mu.Unlock()
	if symbol == f.panic {
		panic("vendor row exploded")
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

func (f *fakeBars) ListSymbols(context.Context) ([]string, error) {
	out := make([]string, 0, len(f.bars)+len(f.errs))
	for s := range f.bars {
		out = append(out, s)
	}
	for s := range f.errs {
		out = append(out, s)
	}
	return out, nil
}

type fakeSink struct {
	mu     sync.Mutex
	rows   map[string][]model.FeatureRow
	err    error
	closed bool
}

func newFakeSink() *fakeSink { return &fakeSink{rows: make(map[string][]model.FeatureRow)} }

func (f *fakeSink) WriteRows(_ context.Context, rows []model.FeatureRow) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.rows[r.Symbol] = append(f.rows[r.Symbol], r)
	}
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

type fakeLedger struct {
	mu   sync.Mutex
	runs []model.RunRecord
}

func (f *fakeLedger) SaveRun(_ context.Context, run model.RunRecord) error {
	f.mu.Lock()
	f.runs = append(f.runs, run)
	f.mu.Unlock()
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (f *fakeNotifier) Send(_ context.Context, a notification.Alert) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, a)
	f.mu.Unlock()
	return nil
}

func testProfile(name string) profile.Profile {
	return profile.Profile{
		Name:       name,
		Source:     "unit",
		Indicators: []string{"sma_20", "rsi"},
		MinBars:    30,
		Params:     indicator.DefaultParams(),
	}
}

type harness struct {
	svc      *Service
	bars     *fakeBars
	sink     *fakeSink
	ledger   *fakeLedger
	notifier *fakeNotifier
	health   *metrics.HealthStatus
}

func newHarness(t *testing.T, opts Options, bars *fakeBars, extra ...Sink) *harness {
	t.Helper()
	c, err := profile.Compile(testProfile("unit-test"))
	require.NoError(t, err)

	h := &harness{
		bars:     bars,
		sink:     newFakeSink(),
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
		health:   metrics.NewHealthStatus(),
	}
	sinks := append([]Sink{{Name: "primary", Writer: h.sink, Required: true}}, extra...)
	h.svc, err = New(opts, Deps{
		Bars:     bars,
		Sinks:    sinks,
		Ledger:   h.ledger,
		Notifier: h.notifier,
		Metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
		Health:   h.health,
	}, c)
	require.NoError(t, err)
	return h
}

func TestNew_RequiresDependencies(t *testing.T) {
	c, err := profile.Compile(testProfile("x"))
	require.NoError(t, err)
	m := metrics.NewMetrics(prometheus.NewRegistry())

	_, err = New(Options{}, Deps{Metrics: m}, c)
	assert.Error(t, err)
	_, err = New(Options{}, Deps{Bars: &fakeBars{}}, c)
	assert.Error(t, err)
	_, err = New(Options{}, Deps{Bars: &fakeBars{}, Metrics: m}, nil)
	assert.Error(t, err)
}

func TestRunBatch_PartialFailure(t *testing.T) {
	bars := &fakeBars{
		bars: map[string][]model.RawBar{
			"AAA":   makeBars("AAA", 40),
			"SHORT": makeBars("SHORT", 10),
		},
		errs: map[string]error{"BAD": errors.New("disk on fire")},
	}
	h := newHarness(t, Options{Workers: 2}, bars)

	run, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.RunPartial, run.Status)
	assert.Equal(t, 3, run.Symbols)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Insufficient)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 40, run.Rows)
	assert.Equal(t, "unit-test", run.Profile)
	assert.NotEmpty(t, run.RunID)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	rows := h.sink.rows["AAA"]
	require.Len(t, rows, 40)
	for _, r := range rows {
		assert.Equal(t, run.RunID, r.RunID)
		assert.Equal(t, "unit", r.Source)
	}
	_, ok := rows[0].Value("sma_20")
	assert.False(t, ok)
	_, ok = rows[39].Value("sma_20")
	assert.True(t, ok)
	assert.Empty(t, h.sink.rows["SHORT"])

	require.Len(t, h.ledger.runs, 1)
	assert.Equal(t, run, h.ledger.runs[0])

	require.Len(t, h.notifier.alerts, 1)
	a := h.notifier.alerts[0]
	assert.Equal(t, notification.AlertWarning, a.Level)
	assert.Equal(t, run.RunID, a.RunID)
	assert.Equal(t, []string{"BAD"}, a.Fields["failed"])

	assert.Equal(t, run.RunID, h.health.LastRunID)
	assert.Equal(t, model.RunPartial, h.health.LastBatchStatus)
}

func TestRunBatch_AllFailedIsCritical(t *testing.T) {
	bars := &fakeBars{errs: map[string]error{
		"A": errors.New("x"),
		"B": errors.New("y"),
	}}
	h := newHarness(t, Options{}, bars)

	run, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
	assert.Equal(t, 2, run.Failed)
	require.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, notification.AlertCritical, h.notifier.alerts[0].Level)
}

func TestRunBatch_AlertThreshold(t *testing.T) {
	bars := &fakeBars{
		bars: map[string][]model.RawBar{"AAA": makeBars("AAA", 40)},
		errs: map[string]error{"BAD": errors.New("x")},
	}
	h := newHarness(t, Options{AlertThreshold: 2}, bars)

	run, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunPartial, run.Status)
	assert.Empty(t, h.notifier.alerts)
}

func TestRunBatch_InsufficientIsNotFailure(t *testing.T) {
	bars := &fakeBars{bars: map[string][]model.RawBar{"SHORT": makeBars("SHORT", 5)}}
	h := newHarness(t, Options{}, bars)

	run, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunOK, run.Status)
	assert.Equal(t, 1, run.Insufficient)
	assert.Zero(t, run.Rows)
	assert.Empty(t, h.notifier.alerts)
}

func TestRunBatch_ExplicitSymbols(t *testing.T) {
	bars := &fakeBars{bars: map[string][]model.RawBar{
		"AAA": makeBars("AAA", 40),
		"BBB": makeBars("BBB", 40),
	}}
	h := newHarness(t, Options{Symbols: []string{"BBB"}}, bars)

	run, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Symbols)
	assert.Empty(t, h.sink.rows["AAA"])
	assert.Len(t, h.sink.rows["BBB"], 40)
}

func TestRunBatch_SourceOverride(t *testing.T) {
	bars := &fakeBars{bars: map[string][]model.RawBar{"AAA": makeBars("AAA", 40)}}
	h := newHarness(t, Options{Source: "vendor-b"}, bars)

	_, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "vendor-b", h.sink.rows["AAA"][0].Source)
}

func TestRunBatch_HistoryWindow(t *testing.T) {
	bars := &fakeBars{bars: map[string][]model.RawBar{"AAA": makeBars("AAA", 40)}}
	h := newHarness(t, Options{HistoryWindow: 48 * time.Hour}, bars)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return now }

	_, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, bars.froms, 1)
	assert.Equal(t, now.Add(-48*time.Hour), bars.froms[0])
}

func TestRunBatch_OptionalSinkFailureIsTolerated(t *testing.T) {
	bars := &fakeBars{bars: map[string][]model.RawBar{"AAA": makeBars("AAA", 40)}}
	flaky := newFakeSink()
	flaky.err = errors.New("connection refused")
	h := newHarness(t, Options{}, bars, Sink{Name: "cache", Writer: flaky})

	run, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunOK, run.Status)
	assert.Len(t, h.sink.rows["AAA"], 40)
}

func TestRunBatch_RequiredSinkFailureFailsSymbol(t *testing.T) {
	bars := &fakeBars{bars: map[string][]model.RawBar{"AAA": makeBars("AAA", 40)}}
	h := newHarness(t, Options{}, bars)
	h.sink.err = errors.New("disk full")

	run, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
	assert.Equal(t, 1, run.Failed)
}

func TestRunBatch_RecoversPanics(t *testing.T) {
	bars := &fakeBars{
		bars:  map[string][]model.RawBar{"AAA": makeBars("AAA", 40), "BOOM": nil},
		panic: "BOOM",
	}
	h := newHarness(t, Options{Workers: 4}, bars)

	run, err := h.svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunPartial, run.Status)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
}

func TestRunBatch_Canceled(t *testing.T) {
	bars := &fakeBars{bars: map[string][]model.RawBar{"AAA": makeBars("AAA", 40)}}
	h := newHarness(t, Options{}, bars)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := h.svc.RunBatch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.RunCanceled, run.Status)
	require.Len(t, h.ledger.runs, 1)
	assert.Equal(t, model.RunCanceled, h.ledger.runs[0].Status)
	assert.Empty(t, h.notifier.alerts)
}

type blockingBars struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBars) ReadBars(context.Context, string, time.Time, time.Time) ([]model.RawBar, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

func (b *blockingBars) ListSymbols(context.Context) ([]string, error) { return []string{"AAA"}, nil }

func TestRunBatch_RejectsOverlap(t *testing.T) {
	c, err := profile.Compile(testProfile("x"))
	require.NoError(t, err)
	bars := &blockingBars{entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := New(Options{}, Deps{Bars: bars, Metrics: metrics.NewMetrics(prometheus.NewRegistry())}, c)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunBatch(context.Background())
	}()
	<-bars.entered

	_, err = svc.RunBatch(context.Background())
	assert.ErrorIs(t, err, ErrBatchRunning)

	close(bars.release)
	<-done
}

func TestReload(t *testing.T) {
	h := newHarness(t, Options{}, &fakeBars{})

	bad := testProfile("broken")
	bad.Indicators = []string{"no_such_indicator"}
	_, err := h.svc.Reload(bad)
	require.ErrorIs(t, err, indicator.ErrUnknownIndicator)
	assert.Equal(t, "unit-test", h.svc.Active().Name)

	next := testProfile("wide")
	next.Indicators = []string{"macd"}
	next.MinBars = 0
	c, err := h.svc.Reload(next)
	require.NoError(t, err)
	assert.Equal(t, "wide", h.svc.Active().Name)
	assert.Same(t, c, h.svc.Active())
	assert.Equal(t, "wide", h.health.Profile)
	assert.Greater(t, c.MinBars, 26)
}

func TestProcessSymbol(t *testing.T) {
	bars := &fakeBars{bars: map[string][]model.RawBar{"AAA": makeBars("AAA", 40)}}
	h := newHarness(t, Options{}, bars)

	res := h.svc.ProcessSymbol(context.Background(), "AAA")
	require.NoError(t, res.Err)
	assert.Equal(t, SymbolOK, res.Status)
	assert.Equal(t, 40, res.Rows)
	assert.Equal(t, 40, res.Report.Kept)
	assert.Empty(t, res.Diagnostics)
}

func TestBatchAlert(t *testing.T) {
	run := model.RunRecord{RunID: "r1", Profile: "daily", Symbols: 4, Failed: 2, Status: model.RunPartial}
	a := batchAlert(run, []string{"X", "Y"})
	assert.Equal(t, notification.AlertWarning, a.Level)
	assert.Equal(t, "feature batch partial (daily)", a.Title)
	assert.Equal(t, fmt.Sprintf("%d of %d symbols failed", 2, 4), a.Message)
}
