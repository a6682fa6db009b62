package validation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-features/internal/indicator"
	"market-features/internal/model"
	"market-features/internal/series"
)

func walk(t *testing.T, n int, seed int64) *series.Series {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	t0 := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.PriceBar, n)
	price := 100.0
	for i := range bars {
		o := price
		c := o * (1 + r.NormFloat64()*0.015)
		bars[i] = model.PriceBar{
			Symbol: "TEST",
			TS:     t0.AddDate(0, 0, i),
			Open:   o,
			High:   math.Max(o, c) * (1 + r.Float64()*0.01),
			Low:    math.Min(o, c) * (1 - r.Float64()*0.01),
			Close:  c,
			Volume: 1000 + r.Float64()*500,
		}
		price = c
	}
	s, err := series.FromBars("TEST", bars)
	require.NoError(t, err)
	return s
}

func TestCompareAgreesWithTALib(t *testing.T) {
	e := indicator.NewEngine(indicator.DefaultCatalog())
	s := walk(t, 3000, 7)

	rep, err := Compare(e, s, 50, 1e-6)
	require.NoError(t, err)
	assert.Equal(t, 3000, rep.Bars)
	assert.Empty(t, rep.Failures())
	assert.True(t, rep.Passed())

	byCol := map[string]Result{}
	for _, r := range rep.Results {
		byCol[r.Column] = r
		assert.Equal(t, 50, r.Compared, r.Column)
	}
	for _, col := range []string{"rsi", "macd_hist", "atr", "adx", "cci", "stoch_d", "sma_200", "ema_200", "roc_10"} {
		assert.Contains(t, byCol, col)
	}
	// exact windows agree to rounding
	assert.Less(t, byCol["sma_20"].MaxAbsDiff, 1e-9)
	assert.Less(t, byCol["williams_r"].MaxAbsDiff, 1e-9)
}

func TestChecks_EachPeriodKeepsItsOwnWindow(t *testing.T) {
	p := indicator.DefaultParams()
	p.SMAPeriods = []int{5, 20}
	p.EMAPeriods = []int{9, 50}
	s := walk(t, 120, 3)

	refs := map[string][]float64{}
	for _, c := range Checks(p) {
		refs[c.Column] = c.Reference(s)
	}
	assert.Equal(t, talib.Sma(s.Close, 5), refs["sma_5"])
	assert.Equal(t, talib.Sma(s.Close, 20), refs["sma_20"])
	assert.Equal(t, talib.Ema(s.Close, 9), refs["ema_9"])
	assert.Equal(t, talib.Ema(s.Close, 50), refs["ema_50"])
}

func TestCompareTooShort(t *testing.T) {
	e := indicator.NewEngine(indicator.DefaultCatalog())
	_, err := Compare(e, walk(t, 150, 1), 10, 1e-6)
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = Compare(e, walk(t, 400, 1), 0, 1e-6)
	assert.Error(t, err)
}

func TestCompareColumn(t *testing.T) {
	nan := math.NaN()
	got := []float64{nan, 1, 2, 3.5}
	ref := []float64{0, 1, 2, 3}

	res := compareColumn(got, ref, 1, 0.1)
	assert.Equal(t, 3, res.Compared)
	assert.InDelta(t, 0.5, res.MaxAbsDiff, 1e-12)
	assert.Equal(t, 3, res.worst)
	assert.False(t, res.Pass)

	res = compareColumn(got, ref, 1, 0.2)
	assert.True(t, res.Pass)

	// a missing engine value inside the tail fails the column
	res = compareColumn(got, ref, 0, 1)
	assert.False(t, res.Pass)
}

func TestReportFailures(t *testing.T) {
	rep := Report{Results: []Result{{Column: "rsi", Pass: true}, {Column: "adx"}}}
	assert.False(t, rep.Passed())
	assert.Equal(t, []string{"adx"}, rep.Failures())
}
