package ta

import (
	"gonum.org/v1/gonum/stat"
)

// TrendResult describes the direction and normalized strength of the
// recent price trend.
type TrendResult struct {
	Direction int     `json:"direction"` // +1 up, -1 down, 0 flat
	Strength  float64 `json:"strength"`  // [0,1]
	Slope     float64 `json:"slope"`     // per-sample fractional slope
}

// Trend fits a least-squares line through the last period samples and
// classifies its slope relative to the mean price. Fallback: flat trend.
func Trend(prices []float64, period int) TrendResult {
	if period < 2 || len(prices) < period {
		return TrendResult{}
	}
	window := prices[len(prices)-period:]
	xs := make([]float64, len(window))
	for i := range xs {
		xs[i] = float64(i)
	}

	_, beta := stat.LinearRegression(xs, window, nil, false)
	mean := stat.Mean(window, nil)
	if mean == 0 {
		return TrendResult{}
	}

	// Fractional slope per sample; ±0.05%/sample is a meaningful move for
	// the cadences the agents run at.
	rel := beta / mean
	direction := 0
	if rel > 0.0005 {
		direction = 1
	} else if rel < -0.0005 {
		direction = -1
	}

	return TrendResult{
		Direction: direction,
		Strength:  clamp(absFloat(rel)*200, 0, 1),
		Slope:     rel,
	}
}

// LinearExtrapolate fits a line through the last period samples and
// returns the projected value `steps` samples ahead. Fallback: the latest
// price (or 0 when empty).
func LinearExtrapolate(prices []float64, period, steps int) float64 {
	if len(prices) == 0 {
		return 0
	}
	last := prices[len(prices)-1]
	if period < 2 || len(prices) < period || steps <= 0 {
		return last
	}
	window := prices[len(prices)-period:]
	xs := make([]float64, len(window))
	for i := range xs {
		xs[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(xs, window, nil, false)
	return alpha + beta*float64(len(window)-1+steps)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
