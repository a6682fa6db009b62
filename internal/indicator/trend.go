package indicator

import "math"

// SMA is the simple moving average, missing until period observations.
func SMA(x []float64, period int) Column {
	return RollingMean(x, period, period)
}

// EMA is the span-smoothed exponential average, missing until period observations.
func EMA(x []float64, period int) Column {
	return EWM(x, period, period)
}

// MACD returns the fast-minus-slow EMA line, its signal EMA and the histogram.
func MACD(close []float64, fast, slow, signal int) (line, sig, hist Column) {
	line = sub(EMA(close, fast), EMA(close, slow))
	sig = EWM(line, signal, signal)
	hist = sub(line, sig)
	return line, sig, hist
}

// ADX returns the average directional index and the +DI / -DI lines.
// Directional movement, true range and DX are all Wilder-smoothed.
func ADX(high, low, close []float64, period int) (adx, plusDI, minusDI Column) {
	n := len(close)
	plusDM := Missing(n)
	minusDM := Missing(n)
	tr := TrueRange(high, low, close)
	if n > 0 {
		tr[0] = math.NaN()
	}
	for i := 1; i < n; i++ {
		if !Valid(high[i]) || !Valid(high[i-1]) || !Valid(low[i]) || !Valid(low[i-1]) {
			continue
		}
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		plusDM[i], minusDM[i] = 0, 0
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	atr := Wilder(tr, period, period)
	plusDI = ratio(Wilder(plusDM, period, period), atr, 100)
	minusDI = ratio(Wilder(minusDM, period, period), atr, 100)

	dx := Missing(n)
	for i := range dx {
		if Valid(plusDI[i]) && Valid(minusDI[i]) {
			dx[i] = 100 * SafeDiv(math.Abs(plusDI[i]-minusDI[i]), plusDI[i]+minusDI[i])
		}
	}
	adx = Wilder(dx, period, period)
	return adx, plusDI, minusDI
}

// Aroon measures bars since the highest high and lowest low over the last
// period+1 bars. Ties resolve to the most recent extreme.
func Aroon(high, low []float64, period int) (up, down, osc Column) {
	n := len(high)
	up, down, osc = Missing(n), Missing(n), Missing(n)
	if period <= 0 {
		return up, down, osc
	}
	p := float64(period)
	for i := period; i < n; i++ {
		hiIdx, loIdx := -1, -1
		ok := true
		for j := i - period; j <= i; j++ {
			if !Valid(high[j]) || !Valid(low[j]) {
				ok = false
				break
			}
			if hiIdx < 0 || high[j] >= high[hiIdx] {
				hiIdx = j
			}
			if loIdx < 0 || low[j] <= low[loIdx] {
				loIdx = j
			}
		}
		if !ok {
			continue
		}
		up[i] = 100 * (p - float64(i-hiIdx)) / p
		down[i] = 100 * (p - float64(i-loIdx)) / p
		osc[i] = up[i] - down[i]
	}
	return up, down, osc
}

// KAMA is Kaufman's adaptive moving average. The efficiency ratio over
// period bars scales the smoothing constant between the fast and slow
// EMA constants. The average seeds at close[period-1].
func KAMA(close []float64, period, fast, slow int) Column {
	n := len(close)
	out := Missing(n)
	if period <= 0 || n < period {
		return out
	}
	fastSC := 2 / (float64(fast) + 1)
	slowSC := 2 / (float64(slow) + 1)

	k := close[period-1]
	if !Valid(k) {
		return out
	}
	out[period-1] = k
	for i := period; i < n; i++ {
		if !Valid(close[i]) || !Valid(close[i-period]) {
			continue
		}
		vol := 0.0
		for j := i - period + 1; j <= i; j++ {
			vol += math.Abs(close[j] - close[j-1])
		}
		er := SafeDiv(math.Abs(close[i]-close[i-period]), vol)
		if !Valid(er) {
			continue
		}
		sc := er*(fastSC-slowSC) + slowSC
		sc *= sc
		k += sc * (close[i] - k)
		out[i] = k
	}
	return out
}

// TRIX is the one-bar percent change of a triple-smoothed EMA, times 100.
func TRIX(close []float64, period int) Column {
	e3 := EMA(EMA(EMA(close, period), period), period)
	return scale(PctChange(e3, 1), 100)
}
