package indicator

import "math"

// ewm is an exponentially weighted mean without bias adjustment:
//
//	s[first] = x[first]
//	s[t]     = alpha*x[t] + (1-alpha)*s[t-1]
//
// Missing inputs emit missing and leave the state untouched. Output stays
// missing until minPeriods valid observations have been seen.
func ewm(x []float64, alpha float64, minPeriods int) Column {
	out := Missing(len(x))
	if !(alpha > 0 && alpha <= 1) || math.IsNaN(alpha) {
		return out
	}
	if minPeriods < 1 {
		minPeriods = 1
	}
	var state float64
	seen := 0
	for i, v := range x {
		if !Valid(v) {
			continue
		}
		if seen == 0 {
			state = v
		} else {
			state = alpha*v + (1-alpha)*state
		}
		seen++
		if seen >= minPeriods {
			out[i] = state
		}
	}
	return out
}

// EWM smooths with a span: alpha = 2/(span+1).
func EWM(x []float64, span, minPeriods int) Column {
	if span <= 0 {
		return Missing(len(x))
	}
	return ewm(x, 2/(float64(span)+1), minPeriods)
}

// Wilder smooths with alpha = 1/period (Wilder's SMMA / RMA).
func Wilder(x []float64, period, minPeriods int) Column {
	if period <= 0 {
		return Missing(len(x))
	}
	return ewm(x, 1/float64(period), minPeriods)
}
