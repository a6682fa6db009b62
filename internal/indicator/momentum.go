package indicator

import "math"

// RSI is the relative strength index with Wilder-smoothed gains and losses.
// A flat window, where both averages are zero, reads as the neutral 50.
func RSI(close []float64, period int) Column {
	delta := Diff(close, 1)
	gain := mapc(delta, func(d float64) float64 { return math.Max(d, 0) })
	loss := mapc(delta, func(d float64) float64 { return math.Max(-d, 0) })
	avgGain := Wilder(gain, period, period)
	avgLoss := Wilder(loss, period, period)

	out := Missing(len(close))
	for i := range out {
		g, l := avgGain[i], avgLoss[i]
		if !Valid(g) || !Valid(l) {
			continue
		}
		if g == 0 && l == 0 {
			out[i] = 50
			continue
		}
		v := 100 - 100/(1+SafeDiv(g, l))
		if Valid(v) {
			out[i] = v
		}
	}
	return out
}

// Stochastic returns %K over kPeriod bars and %D, its dPeriod mean.
func Stochastic(high, low, close []float64, kPeriod, dPeriod int) (k, d Column) {
	hh := RollingMax(high, kPeriod, kPeriod)
	ll := RollingMin(low, kPeriod, kPeriod)
	k = ratio(sub(close, ll), sub(hh, ll), 100)
	d = RollingMean(k, dPeriod, dPeriod)
	return k, d
}

// WilliamsR is Williams %R in [-100, 0].
func WilliamsR(high, low, close []float64, period int) Column {
	hh := RollingMax(high, period, period)
	ll := RollingMin(low, period, period)
	return ratio(sub(hh, close), sub(hh, ll), -100)
}

// CCI is the commodity channel index over the typical price.
func CCI(high, low, close []float64, period int) Column {
	tp := Missing(len(close))
	for i := range tp {
		if Valid(high[i]) && Valid(low[i]) && Valid(close[i]) {
			tp[i] = (high[i] + low[i] + close[i]) / 3
		}
	}
	ma := RollingMean(tp, period, period)
	mad := RollingMeanAbsDev(tp, period, period)
	return ratio(sub(tp, ma), scale(mad, 0.015), 1)
}

// ROC is the percent rate of change over period bars.
func ROC(close []float64, period int) Column {
	return scale(PctChange(close, period), 100)
}

// Momentum is the absolute change over period bars.
func Momentum(close []float64, period int) Column {
	return Diff(close, period)
}

// UltimateOscillator blends buying pressure over three horizons with
// weights 4:2:1.
func UltimateOscillator(high, low, close []float64, short, mid, long int) Column {
	n := len(close)
	bp := Missing(n)
	tr := Missing(n)
	for i := 1; i < n; i++ {
		pc := close[i-1]
		if !Valid(pc) || !Valid(high[i]) || !Valid(low[i]) || !Valid(close[i]) {
			continue
		}
		lo := math.Min(low[i], pc)
		bp[i] = close[i] - lo
		tr[i] = math.Max(high[i], pc) - lo
	}
	avg := func(p int) Column {
		return ratio(RollingSum(bp, p, p), RollingSum(tr, p, p), 1)
	}
	a1, a2, a3 := avg(short), avg(mid), avg(long)

	out := Missing(n)
	for i := range out {
		if Valid(a1[i]) && Valid(a2[i]) && Valid(a3[i]) {
			out[i] = 100 * (4*a1[i] + 2*a2[i] + a3[i]) / 7
		}
	}
	return out
}

// AwesomeOscillator is SMA(fast) - SMA(slow) of the bar midpoint.
func AwesomeOscillator(high, low []float64, fast, slow int) Column {
	mid := scale(add(high, low), 0.5)
	return sub(SMA(mid, fast), SMA(mid, slow))
}

// PPO is the percentage price oscillator: (EMAfast - EMAslow) / EMAslow * 100,
// with a signal EMA and histogram. PVO applies the same to volume.
func PPO(x []float64, fast, slow, signal int) (line, sig, hist Column) {
	slowEMA := EMA(x, slow)
	line = ratio(sub(EMA(x, fast), slowEMA), slowEMA, 100)
	sig = EWM(line, signal, signal)
	hist = sub(line, sig)
	return line, sig, hist
}
