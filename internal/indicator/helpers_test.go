package indicator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"market-features/internal/model"
	"market-features/internal/series"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertMissing(t *testing.T, label string, got float64) {
	t.Helper()
	if !math.IsNaN(got) {
		t.Errorf("%s: expected missing, got %.6f", label, got)
	}
}

func mustSeries(t *testing.T, bars []model.PriceBar) *series.Series {
	t.Helper()
	s, err := series.FromBars("TEST", bars)
	if err != nil {
		t.Fatalf("FromBars: %v", err)
	}
	return s
}

// closesSeries builds bars whose open, high and low sit one unit around close.
func closesSeries(t *testing.T, closes []float64) *series.Series {
	t.Helper()
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = model.PriceBar{
			TS: t0.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		}
	}
	return mustSeries(t, bars)
}

func flatSeries(t *testing.T, n int, price, volume float64) *series.Series {
	t.Helper()
	bars := make([]model.PriceBar, n)
	for i := range bars {
		bars[i] = model.PriceBar{
			TS: t0.AddDate(0, 0, i), Open: price, High: price, Low: price, Close: price, Volume: volume,
		}
	}
	return mustSeries(t, bars)
}

// randomWalk is a reproducible OHLCV walk with consistent bars.
func randomWalk(t *testing.T, n int, seed int64) *series.Series {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	bars := make([]model.PriceBar, n)
	price := 100.0
	for i := range bars {
		o := price
		c := o * (1 + r.NormFloat64()*0.02)
		bars[i] = model.PriceBar{
			TS:     t0.AddDate(0, 0, i),
			Open:   o,
			High:   math.Max(o, c) * (1 + r.Float64()*0.01),
			Low:    math.Min(o, c) * (1 - r.Float64()*0.01),
			Close:  c,
			Volume: 1000 + r.Float64()*500,
		}
		price = c
	}
	return mustSeries(t, bars)
}

func noVolume(s *series.Series) *series.Series {
	bars := make([]model.PriceBar, s.Len())
	for i := range bars {
		bars[i] = s.Bar(i)
		bars[i].Volume = math.NaN()
	}
	out, _ := series.FromBars(s.Symbol, bars)
	return out
}

// sameColumn compares bit patterns so NaN positions must match too.
func sameColumn(a, b Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}
