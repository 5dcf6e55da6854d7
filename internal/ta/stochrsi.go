package ta

// StochRSIResult holds the stochastic RSI %K and %D lines.
type StochRSIResult struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// StochRSI computes the stochastic oscillator applied to the RSI series.
// rsiPeriod controls the underlying RSI, stochPeriod the lookback over the
// RSI series, and dPeriod the smoothing of %K into %D.
// Fallback: K = D = 50 when the input cannot cover the full window.
func StochRSI(prices []float64, rsiPeriod, stochPeriod, dPeriod int) StochRSIResult {
	if rsiPeriod <= 0 || stochPeriod <= 0 || dPeriod <= 0 {
		return StochRSIResult{K: 50, D: 50}
	}
	need := rsiPeriod + stochPeriod + dPeriod
	if len(prices) < need {
		return StochRSIResult{K: 50, D: 50}
	}

	// RSI series at successive trailing windows.
	count := len(prices) - rsiPeriod
	rsis := make([]float64, 0, count)
	for i := rsiPeriod; i < len(prices); i++ {
		rsis = append(rsis, RSI(prices[:i+1], rsiPeriod))
	}

	// %K at each of the last dPeriod positions, then %D as their mean.
	ks := make([]float64, 0, dPeriod)
	for off := dPeriod - 1; off >= 0; off-- {
		end := len(rsis) - off
		window := rsis[max(0, end-stochPeriod):end]
		lo, hi := window[0], window[0]
		for _, v := range window {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		k := 50.0
		if hi != lo {
			k = (window[len(window)-1] - lo) / (hi - lo) * 100
		}
		ks = append(ks, k)
	}

	var sum float64
	for _, k := range ks {
		sum += k
	}

	return StochRSIResult{
		K: ks[len(ks)-1],
		D: sum / float64(len(ks)),
	}
}

// StochRSIDefault computes the stochastic RSI with 14/14/3 periods.
func StochRSIDefault(prices []float64) StochRSIResult {
	return StochRSI(prices, 14, 14, 3)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
