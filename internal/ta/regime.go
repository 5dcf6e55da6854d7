package ta

// Regime labels for the current market state.
const (
	RegimeTrendingUp   = "TRENDING_UP"
	RegimeTrendingDown = "TRENDING_DOWN"
	RegimeRanging      = "RANGING"
	RegimeVolatile     = "VOLATILE"
	RegimeQuiet        = "QUIET"
)

// Regime classifies the market state from trend and volatility over the
// last period samples. Fallback: RANGING.
func Regime(prices []float64, period int) string {
	if len(prices) < period || period < 2 {
		return RegimeRanging
	}
	vol := Volatility(prices, period)
	trend := Trend(prices, period)

	switch {
	case vol > 0.03:
		return RegimeVolatile
	case trend.Direction > 0 && trend.Strength > 0.3:
		return RegimeTrendingUp
	case trend.Direction < 0 && trend.Strength > 0.3:
		return RegimeTrendingDown
	case vol < 0.002:
		return RegimeQuiet
	default:
		return RegimeRanging
	}
}
