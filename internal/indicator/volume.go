package indicator

// OBV is on-balance volume: OBV[0] = 0, then volume is added on up closes
// and subtracted on down closes. A bar without volume is missing and
// leaves the running total unchanged.
func OBV(close, volume []float64) Column {
	out := Missing(len(close))
	if len(close) == 0 {
		return out
	}
	total := 0.0
	out[0] = 0
	for i := 1; i < len(close); i++ {
		if !Valid(volume[i]) || !Valid(close[i]) || !Valid(close[i-1]) {
			continue
		}
		switch {
		case close[i] > close[i-1]:
			total += volume[i]
		case close[i] < close[i-1]:
			total -= volume[i]
		}
		out[i] = total
	}
	return out
}
