package indicator

import "math"

// LogReturn is ln(close[i] / close[i-1]).
func LogReturn(close []float64) Column {
	out := Missing(len(close))
	for i := 1; i < len(close); i++ {
		a, b := close[i], close[i-1]
		if Valid(a) && Valid(b) && a > 0 && b > 0 {
			out[i] = math.Log(a / b)
		}
	}
	return out
}

// Return is the percent change over lag bars.
func Return(close []float64, lag int) Column {
	return scale(PctChange(close, lag), 100)
}

// RelativeTo is the percent distance of x from a reference line.
func RelativeTo(x, ref []float64) Column {
	return ratio(sub(x, ref), ref, 100)
}

// Slope is the change of x over lag bars.
func Slope(x []float64, lag int) Column {
	return Diff(x, lag)
}

// SlopePct is the percent change of x over lag bars.
func SlopePct(x []float64, lag int) Column {
	return scale(PctChange(x, lag), 100)
}

// zeroStdTol is the deviation, relative to max(1, |mean|), below which a
// window counts as flat.
const zeroStdTol = 1e-12

// ZScore standardizes x against its trailing mean and population standard
// deviation. A flat window scores 0.
func ZScore(x []float64, window, minPeriods int) Column {
	m := RollingMean(x, window, minPeriods)
	sd := RollingStd(x, window, minPeriods, true)
	out := Missing(len(x))
	for i := range x {
		if !Valid(x[i]) || !Valid(m[i]) || !Valid(sd[i]) {
			continue
		}
		if sd[i] <= zeroStdTol*math.Max(1, math.Abs(m[i])) {
			out[i] = 0
			continue
		}
		out[i] = SafeDiv(x[i]-m[i], sd[i])
	}
	return out
}

// Above flags x > threshold as 1, else 0.
func Above(x []float64, threshold float64) Column {
	return mapc(x, func(v float64) float64 { return flag(v > threshold) })
}

// Below flags x < threshold as 1, else 0.
func Below(x []float64, threshold float64) Column {
	return mapc(x, func(v float64) float64 { return flag(v < threshold) })
}

// AboveLine flags a > b as 1, else 0.
func AboveLine(a, b []float64) Column {
	return zip(a, b, func(x, y float64) float64 { return flag(x > y) })
}

// CrossFlag is +1 on the bar where a - b turns from negative to positive,
// -1 where it turns from positive to negative and 0 otherwise. Touching
// zero is not a cross.
func CrossFlag(a, b []float64) Column {
	d := sub(a, b)
	out := Missing(len(d))
	for i := 1; i < len(d); i++ {
		prev, cur := d[i-1], d[i]
		if !Valid(prev) || !Valid(cur) {
			continue
		}
		switch {
		case prev < 0 && cur > 0:
			out[i] = 1
		case prev > 0 && cur < 0:
			out[i] = -1
		default:
			out[i] = 0
		}
	}
	return out
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
