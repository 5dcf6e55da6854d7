package ta

import (
	"math"
	"sort"
)

// Levels holds the nearest support and resistance prices.
type Levels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// maxProfileBins caps the volume-profile resolution.
const maxProfileBins = 20

// SupportResistance extracts support and resistance from a volume profile
// over the last lookback samples: prices are binned (≤20 bins) weighted by
// volume; support is the highest-volume bin midpoint below the current
// price, resistance the highest-volume bin above. When volumes are absent
// or all equal it falls back to the 10th/90th percentile of prices.
// Fallback: current price for both sides when under 2 samples.
func SupportResistance(prices, volumes []float64, lookback int) Levels {
	if len(prices) == 0 {
		return Levels{}
	}
	current := prices[len(prices)-1]
	if len(prices) < 2 {
		return Levels{Support: current, Resistance: current}
	}
	if lookback <= 0 || lookback > len(prices) {
		lookback = len(prices)
	}

	p := prices[len(prices)-lookback:]
	var v []float64
	if len(volumes) >= lookback {
		v = volumes[len(volumes)-lookback:]
	}

	if uniformVolumes(v) {
		return percentileLevels(p, current)
	}

	lo, hi := minMax(p)
	if hi == lo {
		return Levels{Support: current, Resistance: current}
	}

	bins := maxProfileBins
	if len(p) < bins {
		bins = len(p)
	}
	binWidth := (hi - lo) / float64(bins)
	weight := make([]float64, bins)
	for i := range p {
		idx := int((p[i] - lo) / binWidth)
		if idx >= bins {
			idx = bins - 1
		}
		weight[idx] += v[i]
	}

	support, resistance := 0.0, 0.0
	var supportW, resistanceW float64
	for i := 0; i < bins; i++ {
		mid := lo + (float64(i)+0.5)*binWidth
		switch {
		case mid < current && weight[i] > supportW:
			support, supportW = mid, weight[i]
		case mid > current && weight[i] > resistanceW:
			resistance, resistanceW = mid, weight[i]
		}
	}

	fallback := percentileLevels(p, current)
	if supportW == 0 {
		support = fallback.Support
	}
	if resistanceW == 0 {
		resistance = fallback.Resistance
	}
	return Levels{Support: support, Resistance: resistance}
}

// FibLevels holds standard Fibonacci retracement levels over a range.
type FibLevels struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	L236  float64 `json:"l236"`
	L382  float64 `json:"l382"`
	L500  float64 `json:"l500"`
	L618  float64 `json:"l618"`
	L786  float64 `json:"l786"`
}

// Fibonacci computes retracement levels over the last lookback samples.
// Fallback: zero result when under 2 samples.
func Fibonacci(prices []float64, lookback int) FibLevels {
	if len(prices) < 2 {
		return FibLevels{}
	}
	if lookback <= 0 || lookback > len(prices) {
		lookback = len(prices)
	}
	window := prices[len(prices)-lookback:]
	lo, hi := minMax(window)
	span := hi - lo
	return FibLevels{
		High: hi,
		Low:  lo,
		L236: hi - span*0.236,
		L382: hi - span*0.382,
		L500: hi - span*0.500,
		L618: hi - span*0.618,
		L786: hi - span*0.786,
	}
}

// VolumeProfile returns the midpoint of the highest-volume price bin (the
// point of control) over the last lookback samples. Fallback: 0.
func VolumeProfile(prices, volumes []float64, lookback int) float64 {
	n := min(len(prices), len(volumes))
	if n == 0 {
		return 0
	}
	if lookback <= 0 || lookback > n {
		lookback = n
	}
	p := prices[len(prices)-lookback:]
	v := volumes[len(volumes)-lookback:]

	lo, hi := minMax(p)
	if hi == lo {
		return lo
	}
	bins := maxProfileBins
	if len(p) < bins {
		bins = len(p)
	}
	binWidth := (hi - lo) / float64(bins)
	weight := make([]float64, bins)
	for i := range p {
		idx := int((p[i] - lo) / binWidth)
		if idx >= bins {
			idx = bins - 1
		}
		weight[idx] += v[i]
	}
	best := 0
	for i := range weight {
		if weight[i] > weight[best] {
			best = i
		}
	}
	return lo + (float64(best)+0.5)*binWidth
}

func percentileLevels(window []float64, current float64) Levels {
	sorted := append([]float64(nil), window...)
	sort.Float64s(sorted)
	support := percentile(sorted, 0.10)
	resistance := percentile(sorted, 0.90)
	if support > current {
		support = current
	}
	if resistance < current {
		resistance = current
	}
	return Levels{Support: support, Resistance: resistance}
}

// percentile reads a fractional rank from an already-sorted slice.
func percentile(sorted []float64, frac float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Round(frac * float64(len(sorted)-1)))
	return sorted[idx]
}

func uniformVolumes(v []float64) bool {
	if len(v) == 0 {
		return true
	}
	first := v[0]
	for _, x := range v {
		if x != first {
			return false
		}
	}
	return true
}

func minMax(vals []float64) (lo, hi float64) {
	lo, hi = vals[0], vals[0]
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
