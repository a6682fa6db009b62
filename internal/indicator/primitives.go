package indicator

import "math"

// Epsilon replaces an exactly-zero denominator in ratio indicators.
const Epsilon = 1e-4

// Column is one indicator output aligned to the series. NaN marks a
// missing value.
type Column []float64

// Missing returns a column of n missing values.
func Missing(n int) Column {
	c := make(Column, n)
	for i := range c {
		c[i] = math.NaN()
	}
	return c
}

// Valid reports whether x is a usable observation.
func Valid(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// CountValid returns how many entries of c are not missing.
func (c Column) CountValid() int {
	n := 0
	for _, v := range c {
		if Valid(v) {
			n++
		}
	}
	return n
}

// FirstValid returns the index of the first non-missing value, or -1.
func (c Column) FirstValid() int {
	for i, v := range c {
		if Valid(v) {
			return i
		}
	}
	return -1
}

// SafeDiv divides num by den, substituting Epsilon for an exactly-zero
// denominator. Missing inputs and non-finite results give NaN.
func SafeDiv(num, den float64) float64 {
	if !Valid(num) || !Valid(den) {
		return math.NaN()
	}
	if den == 0 {
		den = Epsilon
	}
	r := num / den
	if !Valid(r) {
		return math.NaN()
	}
	return r
}

// ── rolling windows ──

func clampMinPeriods(window, minPeriods int) int {
	if minPeriods <= 0 || minPeriods > window {
		return window
	}
	return minPeriods
}

// rolling applies agg to the valid values of each trailing window. Each
// window is evaluated from scratch so results never accumulate rounding
// drift from earlier windows.
func rolling(x []float64, window, minPeriods int, agg func(win []float64) float64) Column {
	out := Missing(len(x))
	if window <= 0 {
		return out
	}
	minPeriods = clampMinPeriods(window, minPeriods)
	buf := make([]float64, 0, window)
	for i := range x {
		buf = buf[:0]
		for j := max(0, i-window+1); j <= i; j++ {
			if Valid(x[j]) {
				buf = append(buf, x[j])
			}
		}
		if len(buf) > 0 && len(buf) >= minPeriods {
			out[i] = agg(buf)
		}
	}
	return out
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

// flat reports whether every value equals the first. Rounding in the mean
// of such a window would otherwise leave a deviation of order 1e-17.
func flat(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

func mean(v []float64) float64 {
	return sum(v) / float64(len(v))
}

// RollingMean is the trailing arithmetic mean. minPeriods <= 0 means window.
func RollingMean(x []float64, window, minPeriods int) Column {
	return rolling(x, window, minPeriods, mean)
}

// RollingSum is the trailing sum of valid observations.
func RollingSum(x []float64, window, minPeriods int) Column {
	return rolling(x, window, minPeriods, sum)
}

// RollingStd is the trailing standard deviation. population selects the
// n divisor, otherwise n-1 is used and a single observation gives NaN.
func RollingStd(x []float64, window, minPeriods int, population bool) Column {
	return rolling(x, window, minPeriods, func(v []float64) float64 {
		if flat(v) {
			if !population && len(v) < 2 {
				return math.NaN()
			}
			return 0
		}
		m := mean(v)
		ss := 0.0
		for _, x := range v {
			d := x - m
			ss += d * d
		}
		n := float64(len(v))
		if !population {
			n--
		}
		if n <= 0 {
			return math.NaN()
		}
		return math.Sqrt(ss / n)
	})
}

// RollingMax is the trailing maximum.
func RollingMax(x []float64, window, minPeriods int) Column {
	return rolling(x, window, minPeriods, func(v []float64) float64 {
		m := v[0]
		for _, x := range v[1:] {
			m = math.Max(m, x)
		}
		return m
	})
}

// RollingMin is the trailing minimum.
func RollingMin(x []float64, window, minPeriods int) Column {
	return rolling(x, window, minPeriods, func(v []float64) float64 {
		m := v[0]
		for _, x := range v[1:] {
			m = math.Min(m, x)
		}
		return m
	})
}

// RollingMeanAbsDev is the trailing mean absolute deviation from the window mean.
func RollingMeanAbsDev(x []float64, window, minPeriods int) Column {
	return rolling(x, window, minPeriods, func(v []float64) float64 {
		m := mean(v)
		s := 0.0
		for _, x := range v {
			s += math.Abs(x - m)
		}
		return s / float64(len(v))
	})
}

// ── shifts and differences ──

// Shift moves values k positions later (k > 0) or earlier (k < 0).
func Shift(x []float64, k int) Column {
	out := Missing(len(x))
	for i := range x {
		j := i - k
		if j >= 0 && j < len(x) {
			out[i] = x[j]
		}
	}
	return out
}

// Diff returns x[i] - x[i-lag].
func Diff(x []float64, lag int) Column {
	out := Missing(len(x))
	if lag < 1 {
		return out
	}
	for i := lag; i < len(x); i++ {
		if Valid(x[i]) && Valid(x[i-lag]) {
			out[i] = x[i] - x[i-lag]
		}
	}
	return out
}

// PctChange returns the fractional change over lag bars, epsilon-guarded.
func PctChange(x []float64, lag int) Column {
	out := Missing(len(x))
	if lag < 1 {
		return out
	}
	for i := lag; i < len(x); i++ {
		out[i] = SafeDiv(x[i]-x[i-lag], x[i-lag])
	}
	return out
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|). The first
// bar, or any bar without a previous close, uses high-low.
func TrueRange(high, low, close []float64) Column {
	out := Missing(len(close))
	for i := range close {
		if !Valid(high[i]) || !Valid(low[i]) {
			continue
		}
		tr := high[i] - low[i]
		if i > 0 && Valid(close[i-1]) {
			pc := close[i-1]
			tr = math.Max(tr, math.Max(math.Abs(high[i]-pc), math.Abs(low[i]-pc)))
		}
		out[i] = tr
	}
	return out
}

// ── element-wise helpers ──

func zip(a, b []float64, f func(x, y float64) float64) Column {
	out := Missing(len(a))
	for i := range a {
		if Valid(a[i]) && Valid(b[i]) {
			out[i] = f(a[i], b[i])
		}
	}
	return out
}

func mapc(a []float64, f func(x float64) float64) Column {
	out := Missing(len(a))
	for i, x := range a {
		if Valid(x) {
			out[i] = f(x)
		}
	}
	return out
}

func sub(a, b []float64) Column { return zip(a, b, func(x, y float64) float64 { return x - y }) }
func add(a, b []float64) Column { return zip(a, b, func(x, y float64) float64 { return x + y }) }

// ratio is SafeDiv applied element-wise and scaled by k.
func ratio(num, den []float64, k float64) Column {
	out := Missing(len(num))
	for i := range num {
		if r := SafeDiv(num[i], den[i]); Valid(r) {
			out[i] = k * r
		}
	}
	return out
}

func scale(a []float64, k float64) Column {
	return mapc(a, func(x float64) float64 { return k * x })
}
