// Package ta provides pure technical-analysis functions over price and
// volume series. Inputs are oldest-first slices; every function defines a
// fallback value for inputs shorter than its minimum length and never
// panics on short input.
package ta

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SMA returns the simple moving average of the last period samples.
// Fallback: the mean of whatever is available, or 0 for an empty slice.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 || period <= 0 {
		return 0
	}
	if len(prices) < period {
		period = len(prices)
	}
	window := prices[len(prices)-period:]
	return stat.Mean(window, nil)
}

// EMASeries returns the exponential moving average series over the whole
// input using the standard recursion seeded with the first sample.
// Returns nil for an empty input.
func EMASeries(prices []float64, period int) []float64 {
	if len(prices) == 0 || period <= 0 {
		return nil
	}
	k := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(prices))
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = prices[i]*k + out[i-1]*(1-k)
	}
	return out
}

// EMA returns the latest exponential moving average value.
// Fallback: the latest price when fewer than two samples exist, 0 when empty.
func EMA(prices []float64, period int) float64 {
	series := EMASeries(prices, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// RSI returns the Wilder relative strength index over the last period
// deltas. Fallback: 50 (neutral) when fewer than period+1 samples exist.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 50
	}
	window := prices[len(prices)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// Momentum returns the fractional price change over the last period
// samples. Fallback: 0.
func Momentum(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 0
	}
	base := prices[len(prices)-period-1]
	if base == 0 {
		return 0
	}
	return (prices[len(prices)-1] - base) / base
}

// ROC returns the rate of change over period samples as a percentage.
// Fallback: 0.
func ROC(prices []float64, period int) float64 {
	return Momentum(prices, period) * 100
}

// Volatility returns the standard deviation of single-step returns over
// the last period samples. Fallback: 0.
func Volatility(prices []float64, period int) float64 {
	if period <= 1 || len(prices) < period+1 {
		return 0
	}
	window := prices[len(prices)-period-1:]
	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		returns = append(returns, (window[i]-window[i-1])/window[i-1])
	}
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil)
}

// StdDev returns the population-style standard deviation of the last
// period prices. Fallback: 0.
func StdDev(prices []float64, period int) float64 {
	if period <= 1 || len(prices) < 2 {
		return 0
	}
	if len(prices) < period {
		period = len(prices)
	}
	window := prices[len(prices)-period:]
	mean := stat.Mean(window, nil)
	var sum float64
	for _, p := range window {
		sum += (p - mean) * (p - mean)
	}
	return math.Sqrt(sum / float64(len(window)))
}

// VWAP returns the volume-weighted average price over the last period
// samples. When every volume is zero it degrades to the SMA.
func VWAP(prices, volumes []float64, period int) float64 {
	if len(prices) == 0 || period <= 0 {
		return 0
	}
	n := min(len(prices), len(volumes))
	if n == 0 {
		return SMA(prices, period)
	}
	if n < period {
		period = n
	}
	p := prices[len(prices)-period:]
	v := volumes[len(volumes)-period:]
	var pv, vol float64
	for i := range p {
		pv += p[i] * v[i]
		vol += v[i]
	}
	if vol == 0 {
		return SMA(prices, period)
	}
	return pv / vol
}

// OBV returns the on-balance volume over the whole series. Fallback: 0.
func OBV(prices, volumes []float64) float64 {
	n := min(len(prices), len(volumes))
	if n < 2 {
		return 0
	}
	var obv float64
	for i := 1; i < n; i++ {
		switch {
		case prices[i] > prices[i-1]:
			obv += volumes[i]
		case prices[i] < prices[i-1]:
			obv -= volumes[i]
		}
	}
	return obv
}

// ATR returns a close-to-close average true range over the last period
// samples. Only closes are available, so the true range degenerates to
// the absolute close delta. Fallback: 0.
func ATR(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 0
	}
	window := prices[len(prices)-period-1:]
	var sum float64
	for i := 1; i < len(window); i++ {
		sum += math.Abs(window[i] - window[i-1])
	}
	return sum / float64(period)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
