// Package validation cross-checks engine columns against TA-Lib.
//
// TA-Lib seeds its recursive smoothers with a simple average where the
// engine seeds on the first observation, so recursive columns agree only
// once the seed has decayed. Compare therefore looks at the tail of a long
// series.
package validation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"market-features/internal/indicator"
	"market-features/internal/series"
)

// ErrTooShort is returned when the series cannot cover warmup plus tail.
var ErrTooShort = errors.New("validation: series too short")

// Check pairs an engine column with its TA-Lib reference.
type Check struct {
	Column    string
	Reference func(s *series.Series) []float64
}

// Checks returns the reference set for p. OBV is absent: TA-Lib starts the
// running total at the first volume, the engine at zero.
func Checks(p indicator.Params) []Check {
	out := []Check{
		{Column: "rsi", Reference: func(s *series.Series) []float64 { return talib.Rsi(s.Close, p.RSIPeriod) }},
		{Column: "macd", Reference: func(s *series.Series) []float64 {
			line, _, _ := talib.Macd(s.Close, p.MACDFast, p.MACDSlow, p.MACDSignal)
			return line
		}},
		{Column: "macd_signal", Reference: func(s *series.Series) []float64 {
			_, sig, _ := talib.Macd(s.Close, p.MACDFast, p.MACDSlow, p.MACDSignal)
			return sig
		}},
		{Column: "macd_hist", Reference: func(s *series.Series) []float64 {
			_, _, hist := talib.Macd(s.Close, p.MACDFast, p.MACDSlow, p.MACDSignal)
			return hist
		}},
		{Column: "bollinger_upper", Reference: func(s *series.Series) []float64 {
			up, _, _ := talib.BBands(s.Close, p.BollingerPeriod, p.BollingerK, p.BollingerK, talib.SMA)
			return up
		}},
		{Column: "bollinger_lower", Reference: func(s *series.Series) []float64 {
			_, _, lo := talib.BBands(s.Close, p.BollingerPeriod, p.BollingerK, p.BollingerK, talib.SMA)
			return lo
		}},
		{Column: "atr", Reference: func(s *series.Series) []float64 { return talib.Atr(s.High, s.Low, s.Close, p.ATRPeriod) }},
		{Column: "adx", Reference: func(s *series.Series) []float64 { return talib.Adx(s.High, s.Low, s.Close, p.ADXPeriod) }},
		{Column: "plus_di", Reference: func(s *series.Series) []float64 { return talib.PlusDI(s.High, s.Low, s.Close, p.ADXPeriod) }},
		{Column: "minus_di", Reference: func(s *series.Series) []float64 { return talib.MinusDI(s.High, s.Low, s.Close, p.ADXPeriod) }},
		{Column: "stoch_d", Reference: func(s *series.Series) []float64 {
			// TA-Lib's slow %K is the engine's %D
			slowK, _ := talib.Stoch(s.High, s.Low, s.Close, p.StochK, p.StochD, talib.SMA, p.StochD, talib.SMA)
			return slowK
		}},
		{Column: "williams_r", Reference: func(s *series.Series) []float64 { return talib.WillR(s.High, s.Low, s.Close, p.WilliamsPeriod) }},
		{Column: "cci", Reference: func(s *series.Series) []float64 { return talib.Cci(s.High, s.Low, s.Close, p.CCIPeriod) }},
		{Column: "momentum_" + itoa(p.MomentumPeriod), Reference: func(s *series.Series) []float64 { return talib.Mom(s.Close, p.MomentumPeriod) }},
	}
	for _, n := range p.SMAPeriods {
		out = append(out, Check{Column: "sma_" + itoa(n), Reference: func(s *series.Series) []float64 { return talib.Sma(s.Close, n) }})
	}
	for _, n := range p.EMAPeriods {
		out = append(out, Check{Column: "ema_" + itoa(n), Reference: func(s *series.Series) []float64 { return talib.Ema(s.Close, n) }})
	}
	for _, n := range p.ROCPeriods {
		out = append(out, Check{Column: "roc_" + itoa(n), Reference: func(s *series.Series) []float64 { return talib.Roc(s.Close, n) }})
	}
	return out
}

// Result is the outcome for one column.
type Result struct {
	Column     string    `json:"column"`
	Compared   int       `json:"compared"`
	MaxAbsDiff float64   `json:"max_abs_diff"`
	WorstAt    time.Time `json:"worst_at"`
	Pass       bool      `json:"pass"`
}

// Report collects the results for one symbol.
type Report struct {
	Symbol    string   `json:"symbol"`
	Bars      int      `json:"bars"`
	Tail      int      `json:"tail"`
	Tolerance float64  `json:"tolerance"`
	Results   []Result `json:"results"`
}

// Passed reports whether every column agreed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Pass {
			return false
		}
	}
	return true
}

// Failures returns the columns that disagreed.
func (r *Report) Failures() []string {
	var out []string
	for _, res := range r.Results {
		if !res.Pass {
			out = append(out, res.Column)
		}
	}
	return out
}

// Compare evaluates every check on the last tail bars of s. A difference
// passes when it is within tol relative to max(1, |reference|).
func Compare(e *indicator.Engine, s *series.Series, tail int, tol float64) (Report, error) {
	cat := e.Catalog()
	checks := Checks(cat.Params())
	names := make([]string, len(checks))
	for i, c := range checks {
		names[i] = c.Column
	}
	minBars, err := e.MinBars(names)
	if err != nil {
		return Report{}, err
	}
	if tail <= 0 {
		return Report{}, fmt.Errorf("validation: tail must be positive")
	}
	if s.Len() < minBars+tail {
		return Report{}, fmt.Errorf("%w: %d bars, need %d", ErrTooShort, s.Len(), minBars+tail)
	}

	frame := e.NewFrame(s)
	rep := Report{Symbol: s.Symbol, Bars: s.Len(), Tail: tail, Tolerance: tol}
	start := s.Len() - tail
	for _, c := range checks {
		got, err := frame.Column(c.Column)
		if err != nil {
			return Report{}, err
		}
		res := compareColumn(got, c.Reference(s), start, tol)
		res.Column = c.Column
		if res.worst >= 0 {
			res.WorstAt = s.Time[res.worst]
		}
		rep.Results = append(rep.Results, res.Result)
	}
	return rep, nil
}

type columnResult struct {
	Result
	worst int
}

func compareColumn(got, ref []float64, start int, tol float64) columnResult {
	res := columnResult{worst: -1, Result: Result{Pass: true}}
	for i := start; i < len(got) && i < len(ref); i++ {
		g, r := got[i], ref[i]
		if math.IsNaN(g) || math.IsNaN(r) {
			res.Pass = false
			continue
		}
		res.Compared++
		d := math.Abs(g - r)
		if d > res.MaxAbsDiff || res.worst < 0 {
			res.MaxAbsDiff = math.Max(d, res.MaxAbsDiff)
			res.worst = i
		}
		if d > tol*math.Max(1, math.Abs(r)) {
			res.Pass = false
		}
	}
	if res.Compared == 0 {
		res.Pass = false
	}
	return res
}

func itoa(n int) string { return fmt.Sprint(n) }
