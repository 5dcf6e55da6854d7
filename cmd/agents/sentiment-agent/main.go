// The sentiment agent reads crowd behavior out of aggregator trade data:
// buy/sell balance, volume acceleration, price momentum, and transaction
// activity growth fold into a 0-100 sentiment score.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/duckpond/duckswarm/internal/agent"
	"github.com/duckpond/duckswarm/internal/price"
	"github.com/duckpond/duckswarm/internal/ta"
)

const (
	agentName     = "sentiment-agent"
	agentCategory = "sentiment"

	tickInterval = 60 * time.Second
	historySize  = 60
	minSamples   = 10
	minChainConf = 60
)

// Sentiment labels by score band.
const (
	labelVeryBullish = "VERY BULLISH"
	labelBullish     = "BULLISH"
	labelNeutral     = "NEUTRAL"
	labelBearish     = "BEARISH"
	labelVeryBearish = "VERY BEARISH"
)

// Component ranges around the neutral 50 midpoint.
const (
	buyRatio24hRange = 20.0
	buyRatio1hRange  = 15.0
	volumeAccelRange = 10.0
	momentumRange    = 10.0
	activityRange    = 5.0
)

type sentimentAnalyzer struct{}

func (sentimentAnalyzer) Analyze(_ context.Context, st *agent.State) (*agent.Result, error) {
	current := st.Prices[len(st.Prices)-1]
	if len(st.Prices) < minSamples || st.Latest == nil {
		return &agent.Result{
			Type:       "HOLD",
			Confidence: 30,
			Price:      current,
			Reason:     "Insufficient data",
		}, nil
	}

	score, parts := sentimentScore(st.Latest, st.Prices)
	label := sentimentLabel(score)

	sigType := "HOLD"
	switch label {
	case labelVeryBullish, labelBullish:
		sigType = "BUY"
	case labelVeryBearish, labelBearish:
		sigType = "SELL"
	}

	confidence := int(math.Min(95, 30+math.Abs(score-50)*1.3))
	if confidence < 25 {
		confidence = 25
	}

	return &agent.Result{
		Type:       sigType,
		Confidence: confidence,
		Price:      current,
		Reason:     fmt.Sprintf("%s: sentiment %.0f/100 (%s)", sigType, score, label),
		Indicators: map[string]any{
			"sentiment":  score,
			"label":      label,
			"components": parts,
		},
	}, nil
}

// sentimentScore folds the components into [0,100], 50 neutral.
func sentimentScore(s *price.Sample, prices []float64) (float64, map[string]float64) {
	parts := map[string]float64{
		"buyRatio24h": buyRatioComponent(s.Buys24h, s.Sells24h, buyRatio24hRange),
		"buyRatio1h":  buyRatioComponent(s.Buys1h, s.Sells1h, buyRatio1hRange),
		"volumeAccel": volumeAccelComponent(s),
		"momentum":    clampAbs(ta.Momentum(prices, 10)*200, momentumRange),
		"activity":    activityComponent(s),
	}

	score := 50.0
	for _, v := range parts {
		score += v
	}
	return math.Max(0, math.Min(100, score)), parts
}

// buyRatioComponent maps the buy share of trades onto ±rng.
func buyRatioComponent(buys, sells int, rng float64) float64 {
	total := buys + sells
	if total == 0 {
		return 0
	}
	ratio := float64(buys) / float64(total)
	return (ratio - 0.5) * 2 * rng
}

// volumeAccelComponent compares the last hour's volume to the 6h hourly
// average.
func volumeAccelComponent(s *price.Sample) float64 {
	hourlyAvg := s.Volume6h / 6
	if hourlyAvg <= 0 {
		return 0
	}
	accel := s.Volume1h/hourlyAvg - 1
	return clampAbs(accel*volumeAccelRange, volumeAccelRange)
}

// activityComponent compares 1h transaction count to the 24h hourly rate.
func activityComponent(s *price.Sample) float64 {
	hourlyRate := float64(s.Buys24h+s.Sells24h) / 24
	if hourlyRate <= 0 {
		return 0
	}
	growth := float64(s.Buys1h+s.Sells1h)/hourlyRate - 1
	return clampAbs(growth*activityRange, activityRange)
}

func sentimentLabel(score float64) string {
	switch {
	case score >= 75:
		return labelVeryBullish
	case score >= 60:
		return labelBullish
	case score > 40:
		return labelNeutral
	case score > 25:
		return labelBearish
	default:
		return labelVeryBearish
	}
}

func clampAbs(v, bound float64) float64 {
	return math.Max(-bound, math.Min(bound, v))
}

func main() {
	env, err := agent.Bootstrap(agentName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer env.Shutdown()

	ctx, stop := agent.SignalContext()
	defer stop()

	runner := agent.NewRunner(agent.Config{
		Name:            agentName,
		Category:        agentCategory,
		Token:           env.Cfg.Chain.TokenAddress,
		Interval:        tickInterval,
		HistorySize:     historySize,
		MinConfidence:   minChainConf,
		PrimeCount:      minSamples,
		PrimeInterval:   2 * time.Second,
		RegisterOnChain: env.Cfg.Chain.RegistrationEnabled(),
	}, sentimentAnalyzer{}, env.ChainPoster(), env.Prices, agent.WrapHub(env.Hub))

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
