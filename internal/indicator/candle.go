package indicator

import "math"

// CandleShape holds per-bar geometry. Body and shadows are percentages of
// the bar range; RangePct is the range as a percentage of close.
type CandleShape struct {
	BodyPct        Column
	UpperShadowPct Column
	LowerShadowPct Column
	RangePct       Column
	Direction      Column
}

// Candle computes bar geometry. A zero range is guarded by Epsilon so a
// flat bar has zero body and shadows.
func Candle(open, high, low, close []float64) CandleShape {
	n := len(close)
	cs := CandleShape{
		BodyPct:        Missing(n),
		UpperShadowPct: Missing(n),
		LowerShadowPct: Missing(n),
		RangePct:       Missing(n),
		Direction:      Missing(n),
	}
	for i := 0; i < n; i++ {
		o, h, l, c := open[i], high[i], low[i], close[i]
		if !Valid(o) || !Valid(h) || !Valid(l) || !Valid(c) {
			continue
		}
		rng := h - l
		top, bottom := math.Max(o, c), math.Min(o, c)
		cs.BodyPct[i] = 100 * SafeDiv(math.Abs(c-o), rng)
		cs.UpperShadowPct[i] = 100 * SafeDiv(h-top, rng)
		cs.LowerShadowPct[i] = 100 * SafeDiv(bottom-l, rng)
		cs.RangePct[i] = 100 * SafeDiv(rng, c)
		cs.Direction[i] = sign(c - o)
	}
	return cs
}

// Pivots flags local extremes using window bars on each side. A bar is a
// pivot high when its high beats every earlier bar in the window and is
// not exceeded by any later one, so a plateau yields a single pivot.
// Bars without a complete window on both sides are missing.
//
// Pivots look ahead and must not feed live decisions.
func Pivots(high, low []float64, window int) (pivotHigh, pivotLow Column) {
	n := len(high)
	pivotHigh, pivotLow = Missing(n), Missing(n)
	if window <= 0 {
		return pivotHigh, pivotLow
	}
	for i := window; i < n-window; i++ {
		if !Valid(high[i]) || !Valid(low[i]) {
			continue
		}
		isHigh, isLow, ok := true, true, true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if !Valid(high[j]) || !Valid(low[j]) {
				ok = false
				break
			}
			if j < i {
				isHigh = isHigh && high[i] > high[j]
				isLow = isLow && low[i] < low[j]
			} else {
				isHigh = isHigh && high[i] >= high[j]
				isLow = isLow && low[i] <= low[j]
			}
		}
		if !ok {
			continue
		}
		pivotHigh[i] = flag(isHigh)
		pivotLow[i] = flag(isLow)
	}
	return pivotHigh, pivotLow
}

// DistToPivot is the percent distance of close from the level of the most
// recent flagged pivot. Missing until the first pivot.
func DistToPivot(close, pivot, level []float64) Column {
	out := Missing(len(close))
	last := math.NaN()
	for i := range close {
		if pivot[i] == 1 && Valid(level[i]) {
			last = level[i]
		}
		if Valid(last) {
			out[i] = 100 * SafeDiv(close[i]-last, last)
		}
	}
	return out
}
