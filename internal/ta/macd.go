package ta

// MACDResult holds the MACD line, its signal line, and the histogram.
type MACDResult struct {
	Line      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD computes the moving average convergence divergence with the given
// fast/slow/signal periods. The signal line is the signal-period EMA of
// the MACD-line series, not a scalar multiple of the line. For a constant
// price series every field is exactly 0.
// Fallback: zero result when fewer than slow+signal samples exist.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return MACDResult{}
	}
	if len(prices) < slow+signal {
		return MACDResult{}
	}

	fastEMA := EMASeries(prices, fast)
	slowEMA := EMASeries(prices, slow)

	line := make([]float64, len(prices))
	for i := range prices {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	signalSeries := EMASeries(line, signal)

	last := len(prices) - 1
	return MACDResult{
		Line:      line[last],
		Signal:    signalSeries[last],
		Histogram: line[last] - signalSeries[last],
	}
}

// MACDDefault computes MACD with the conventional 12/26/9 periods.
func MACDDefault(prices []float64) MACDResult {
	return MACD(prices, 12, 26, 9)
}
