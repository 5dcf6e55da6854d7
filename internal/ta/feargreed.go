package ta

// FearGreed composes RSI, volatility, momentum, trend, and Bollinger %B
// into a 0-100 sentiment index (0 = extreme fear, 100 = extreme greed).
// Weights: RSI 0.30, momentum 0.25, trend 0.20, %B 0.15, volatility 0.10.
// Fallback: 50 when fewer than 20 samples exist.
func FearGreed(prices []float64) float64 {
	if len(prices) < 20 {
		return 50
	}

	rsi := RSI(prices, 14)

	// Momentum mapped so ±5% over 10 samples saturates the component.
	mom := clamp(50+Momentum(prices, 10)*1000, 0, 100)

	trend := Trend(prices, 20)
	trendScore := 50 + float64(trend.Direction)*trend.Strength*50

	pb := Bollinger(prices, 20, 2).PercentB * 100

	// High volatility reads as fear regardless of direction.
	volScore := clamp(100-Volatility(prices, 14)*2000, 0, 100)

	score := rsi*0.30 + mom*0.25 + trendScore*0.20 + pb*0.15 + volScore*0.10
	return clamp(score, 0, 100)
}

// FearGreedLabel maps a fear/greed score to its conventional label.
func FearGreedLabel(score float64) string {
	switch {
	case score >= 75:
		return "EXTREME GREED"
	case score >= 60:
		return "GREED"
	case score >= 40:
		return "NEUTRAL"
	case score >= 25:
		return "FEAR"
	default:
		return "EXTREME FEAR"
	}
}
