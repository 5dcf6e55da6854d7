package ta

// BollingerResult holds the Bollinger band levels and the %B position of
// the latest price within them.
type BollingerResult struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	Width    float64 `json:"width"`
	PercentB float64 `json:"percentB"`
}

// Bollinger computes period-sample Bollinger bands at stdDev deviations.
// Fallback: all bands collapse onto the latest price and %B is 0.5 when
// fewer than period samples exist.
func Bollinger(prices []float64, period int, stdDev float64) BollingerResult {
	if len(prices) == 0 || period <= 0 {
		return BollingerResult{PercentB: 0.5}
	}
	last := prices[len(prices)-1]
	if len(prices) < period {
		return BollingerResult{Upper: last, Middle: last, Lower: last, PercentB: 0.5}
	}

	middle := SMA(prices, period)
	sd := StdDev(prices, period)
	upper := middle + stdDev*sd
	lower := middle - stdDev*sd

	percentB := 0.5
	if upper != lower {
		percentB = (last - lower) / (upper - lower)
	}

	width := 0.0
	if middle != 0 {
		width = (upper - lower) / middle
	}

	return BollingerResult{
		Upper:    upper,
		Middle:   middle,
		Lower:    lower,
		Width:    width,
		PercentB: percentB,
	}
}

// BollingerDefault computes Bollinger bands with the conventional 20/2.
func BollingerDefault(prices []float64) BollingerResult {
	return Bollinger(prices, 20, 2)
}
