package indicator

// Bollinger returns the middle band (SMA) and the bands k population
// standard deviations away.
func Bollinger(close []float64, period int, k float64) (upper, middle, lower Column) {
	middle = SMA(close, period)
	sd := RollingStd(close, period, period, true)
	upper = add(middle, scale(sd, k))
	lower = sub(middle, scale(sd, k))
	return upper, middle, lower
}

// BandWidth is (upper - lower) / middle * 100.
func BandWidth(upper, middle, lower []float64) Column {
	return ratio(sub(upper, lower), middle, 100)
}

// PercentB locates close inside the bands: 0 at the lower, 1 at the upper.
func PercentB(close, upper, lower []float64) Column {
	return ratio(sub(close, lower), sub(upper, lower), 1)
}

// ATR is the Wilder-smoothed true range.
func ATR(high, low, close []float64, period int) Column {
	return Wilder(TrueRange(high, low, close), period, period)
}
