package ta

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantSeries(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func rampSeries(n int, start, step float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = start + float64(i)*step
	}
	return s
}

func TestSMA(t *testing.T) {
	assert.Equal(t, 0.0, SMA(nil, 5))
	assert.InDelta(t, 2.0, SMA([]float64{1, 2, 3}, 3), 1e-9)
	// Shorter input than period averages what exists.
	assert.InDelta(t, 1.5, SMA([]float64{1, 2}, 5), 1e-9)
}

func TestEMAConvergesToConstant(t *testing.T) {
	series := constantSeries(100, 42.0)
	assert.InDelta(t, 42.0, EMA(series, 12), 1e-9)
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"short input falls back to neutral", []float64{1, 2, 3}, 50},
		{"constant series is neutral", constantSeries(30, 5), 50},
		{"monotone up saturates", rampSeries(30, 1, 1), 100},
		{"monotone down saturates", rampSeries(30, 100, -1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RSI(tt.prices, 14), 1e-9)
		})
	}
}

func TestMACDConstantSeriesIsZero(t *testing.T) {
	for _, v := range []float64{0.5, 1, 100, 1e-6} {
		res := MACD(constantSeries(120, v), 12, 26, 9)
		assert.Zero(t, res.Line, "line for constant %v", v)
		assert.Zero(t, res.Signal, "signal for constant %v", v)
		assert.Zero(t, res.Histogram, "histogram for constant %v", v)
	}
}

func TestMACDShortInputFallsBack(t *testing.T) {
	res := MACD(rampSeries(20, 1, 1), 12, 26, 9)
	assert.Equal(t, MACDResult{}, res)
}

func TestMACDSignalIsEMAOfLineSeries(t *testing.T) {
	prices := rampSeries(60, 100, 0.5)
	res := MACD(prices, 12, 26, 9)

	fastEMA := EMASeries(prices, 12)
	slowEMA := EMASeries(prices, 26)
	line := make([]float64, len(prices))
	for i := range prices {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signal := EMASeries(line, 9)

	require.InDelta(t, line[len(line)-1], res.Line, 1e-9)
	assert.InDelta(t, signal[len(signal)-1], res.Signal, 1e-9)
	assert.InDelta(t, res.Line-res.Signal, res.Histogram, 1e-9)
	// On a steady uptrend the line leads its own smoothing.
	assert.Greater(t, res.Histogram, 0.0)
}

func TestBollingerFallback(t *testing.T) {
	res := Bollinger([]float64{10, 11}, 20, 2)
	assert.Equal(t, 11.0, res.Upper)
	assert.Equal(t, 11.0, res.Middle)
	assert.Equal(t, 11.0, res.Lower)
	assert.Equal(t, 0.5, res.PercentB)
}

func TestBollingerBandsBracketConstantSeries(t *testing.T) {
	res := Bollinger(constantSeries(30, 7), 20, 2)
	assert.InDelta(t, 7.0, res.Upper, 1e-9)
	assert.InDelta(t, 7.0, res.Lower, 1e-9)
	assert.Equal(t, 0.5, res.PercentB)
}

func TestStochRSIFallback(t *testing.T) {
	res := StochRSI(rampSeries(10, 1, 1), 14, 14, 3)
	assert.Equal(t, 50.0, res.K)
	assert.Equal(t, 50.0, res.D)
}

func TestStochRSIBounds(t *testing.T) {
	prices := make([]float64, 80)
	for i := range prices {
		prices[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	res := StochRSIDefault(prices)
	assert.GreaterOrEqual(t, res.K, 0.0)
	assert.LessOrEqual(t, res.K, 100.0)
	assert.GreaterOrEqual(t, res.D, 0.0)
	assert.LessOrEqual(t, res.D, 100.0)
}

func TestTrend(t *testing.T) {
	up := Trend(rampSeries(30, 100, 1), 20)
	assert.Equal(t, 1, up.Direction)
	assert.Greater(t, up.Strength, 0.5)

	down := Trend(rampSeries(30, 100, -1), 20)
	assert.Equal(t, -1, down.Direction)

	flat := Trend(constantSeries(30, 100), 20)
	assert.Equal(t, 0, flat.Direction)
	assert.Zero(t, flat.Strength)
}

func TestLinearExtrapolate(t *testing.T) {
	// y = 100 + x extrapolates exactly.
	prices := rampSeries(20, 100, 1)
	got := LinearExtrapolate(prices, 20, 5)
	assert.InDelta(t, prices[len(prices)-1]+5, got, 1e-9)

	// Short input returns the latest price.
	assert.Equal(t, 3.0, LinearExtrapolate([]float64{3}, 20, 5))
	assert.Equal(t, 0.0, LinearExtrapolate(nil, 20, 5))
}

func TestVWAPDegradesToSMAOnZeroVolume(t *testing.T) {
	prices := []float64{1, 2, 3, 4}
	vols := []float64{0, 0, 0, 0}
	assert.InDelta(t, SMA(prices, 4), VWAP(prices, vols, 4), 1e-9)
}

func TestVWAPWeighting(t *testing.T) {
	prices := []float64{10, 20}
	vols := []float64{1, 3}
	assert.InDelta(t, 17.5, VWAP(prices, vols, 2), 1e-9)
}

func TestOBV(t *testing.T) {
	prices := []float64{1, 2, 2, 1}
	vols := []float64{10, 5, 7, 3}
	// +5 (up), 0 (flat), -3 (down).
	assert.InDelta(t, 2.0, OBV(prices, vols), 1e-9)
}

func TestATRConstantSeriesIsZero(t *testing.T) {
	assert.Zero(t, ATR(constantSeries(30, 9), 14))
	assert.InDelta(t, 1.0, ATR(rampSeries(30, 1, 1), 14), 1e-9)
}

func TestSupportResistanceVolumeProfile(t *testing.T) {
	// Heavy volume at low prices should pull support there.
	prices := []float64{10, 10, 10, 15, 20, 20, 25, 30}
	volumes := []float64{100, 100, 100, 5, 5, 5, 5, 5}
	levels := SupportResistance(prices, volumes, len(prices))
	assert.Less(t, levels.Support, 15.0)
	assert.Less(t, levels.Support, prices[len(prices)-1])
}

func TestSupportResistanceUniformVolumeFallsBackToPercentiles(t *testing.T) {
	prices := rampSeries(100, 1, 1)
	volumes := constantSeries(100, 1)
	levels := SupportResistance(prices, volumes, len(prices))
	// 10th/90th percentile of 1..100.
	assert.InDelta(t, 11.0, levels.Support, 1.0)
	assert.InDelta(t, 91.0, levels.Resistance, 1.0)
	assert.LessOrEqual(t, levels.Resistance, prices[len(prices)-1])
}

func TestSupportResistanceShortInput(t *testing.T) {
	levels := SupportResistance([]float64{42}, nil, 10)
	assert.Equal(t, 42.0, levels.Support)
	assert.Equal(t, 42.0, levels.Resistance)
}

func TestFibonacci(t *testing.T) {
	prices := []float64{100, 150, 120, 200, 180}
	fib := Fibonacci(prices, len(prices))
	assert.Equal(t, 200.0, fib.High)
	assert.Equal(t, 100.0, fib.Low)
	assert.InDelta(t, 150.0, fib.L500, 1e-9)
	assert.InDelta(t, 176.4, fib.L236, 1e-9)
}

func TestFearGreed(t *testing.T) {
	assert.Equal(t, 50.0, FearGreed([]float64{1, 2, 3}))

	up := FearGreed(rampSeries(60, 100, 1))
	down := FearGreed(rampSeries(60, 200, -1))
	assert.Greater(t, up, 55.0)
	assert.Less(t, down, 45.0)

	for _, s := range [][]float64{rampSeries(60, 1, 5), rampSeries(60, 1000, -5)} {
		v := FearGreed(s)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestFearGreedLabel(t *testing.T) {
	assert.Equal(t, "EXTREME GREED", FearGreedLabel(80))
	assert.Equal(t, "GREED", FearGreedLabel(65))
	assert.Equal(t, "NEUTRAL", FearGreedLabel(50))
	assert.Equal(t, "FEAR", FearGreedLabel(30))
	assert.Equal(t, "EXTREME FEAR", FearGreedLabel(10))
}

func TestRegime(t *testing.T) {
	assert.Equal(t, RegimeRanging, Regime([]float64{1, 2}, 20))
	assert.Equal(t, RegimeTrendingUp, Regime(rampSeries(40, 100, 1), 20))
	assert.Equal(t, RegimeTrendingDown, Regime(rampSeries(40, 200, -1), 20))
	assert.Equal(t, RegimeQuiet, Regime(constantSeries(40, 100), 20))
}

func TestIchimokuFallback(t *testing.T) {
	res := Ichimoku(rampSeries(30, 1, 1))
	assert.Equal(t, IchimokuResult{}, res)
}

func TestIchimokuUptrend(t *testing.T) {
	res := Ichimoku(rampSeries(80, 100, 1))
	assert.Equal(t, 1, res.Signal)
	assert.Greater(t, res.Conversion, res.Base)
}

func TestAnalyzeShortInputDoesNotPanic(t *testing.T) {
	a := Analyze(nil, nil)
	assert.Zero(t, a.Price)
	assert.Equal(t, 50.0, a.RSI)
	assert.Equal(t, 0, a.Samples)

	a = Analyze([]float64{1.5}, []float64{10})
	assert.Equal(t, 1.5, a.Price)
	assert.Equal(t, 1, a.Samples)
}

func TestAnalyzeScoreBounds(t *testing.T) {
	up := Analyze(rampSeries(120, 100, 1), nil)
	down := Analyze(rampSeries(120, 300, -1), nil)
	assert.Greater(t, up.Score(), 0.0)
	assert.Less(t, down.Score(), 0.0)
	assert.LessOrEqual(t, math.Abs(up.Score()), 1.0)
	assert.LessOrEqual(t, math.Abs(down.Score()), 1.0)
}
