package ta

// Analysis aggregates every indicator over a single price/volume series.
// Agents and the hub both consume this instead of calling indicators one
// by one.
type Analysis struct {
	Price      float64         `json:"price"`
	SMA20      float64         `json:"sma20"`
	EMA12      float64         `json:"ema12"`
	EMA26      float64         `json:"ema26"`
	RSI        float64         `json:"rsi"`
	MACD       MACDResult      `json:"macd"`
	Bollinger  BollingerResult `json:"bollinger"`
	StochRSI   StochRSIResult  `json:"stochRsi"`
	Trend      TrendResult     `json:"trend"`
	Ichimoku   IchimokuResult  `json:"ichimoku"`
	Momentum   float64         `json:"momentum"`
	Volatility float64         `json:"volatility"`
	ATR        float64         `json:"atr"`
	VWAP       float64         `json:"vwap"`
	OBV        float64         `json:"obv"`
	Levels     Levels          `json:"levels"`
	FearGreed  float64         `json:"fearGreed"`
	Regime     string          `json:"regime"`
	Samples    int             `json:"samples"`
}

// Analyze runs the full indicator suite over the series. Short inputs are
// fine; each indicator applies its own fallback.
func Analyze(prices, volumes []float64) Analysis {
	var last float64
	if len(prices) > 0 {
		last = prices[len(prices)-1]
	}
	return Analysis{
		Price:      last,
		SMA20:      SMA(prices, 20),
		EMA12:      EMA(prices, 12),
		EMA26:      EMA(prices, 26),
		RSI:        RSI(prices, 14),
		MACD:       MACDDefault(prices),
		Bollinger:  BollingerDefault(prices),
		StochRSI:   StochRSIDefault(prices),
		Trend:      Trend(prices, 20),
		Ichimoku:   Ichimoku(prices),
		Momentum:   Momentum(prices, 10),
		Volatility: Volatility(prices, 14),
		ATR:        ATR(prices, 14),
		VWAP:       VWAP(prices, volumes, 20),
		OBV:        OBV(prices, volumes),
		Levels:     SupportResistance(prices, volumes, 50),
		FearGreed:  FearGreed(prices),
		Regime:     Regime(prices, 20),
		Samples:    len(prices),
	}
}

// Score collapses the analysis into a single [-1, 1] bias where positive
// means bullish. It is the common input to signal generation across the
// technical agents.
func (a Analysis) Score() float64 {
	var score float64

	// RSI: oversold is bullish, overbought bearish.
	switch {
	case a.RSI < 30:
		score += 0.25
	case a.RSI > 70:
		score -= 0.25
	}

	if a.MACD.Histogram > 0 {
		score += 0.20
	} else if a.MACD.Histogram < 0 {
		score -= 0.20
	}

	score += float64(a.Trend.Direction) * a.Trend.Strength * 0.25

	switch {
	case a.Bollinger.PercentB < 0.1:
		score += 0.15
	case a.Bollinger.PercentB > 0.9:
		score -= 0.15
	}

	score += float64(a.Ichimoku.Signal) * 0.15

	return clamp(score, -1, 1)
}
