package indicator

// TrendRegime labels each bar +1 (uptrend), -1 (downtrend) or 0
// (consolidation). A trend needs adx above threshold; its direction is the
// sign of slopePct.
func TrendRegime(adx, slopePct []float64, threshold float64) Column {
	return zip(adx, slopePct, func(a, s float64) float64 {
		if a <= threshold {
			return 0
		}
		return sign(s)
	})
}

// VolatilityRegime is 1 when the ATR% z-score exceeds threshold, else 0.
func VolatilityRegime(atrPctZ []float64, threshold float64) Column {
	return Above(atrPctZ, threshold)
}
