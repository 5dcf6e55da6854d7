// The market agent watches overall market health for the focal token. It
// runs the indicator suite, classifies the regime, and raises discrete
// alerts for abrupt moves, indicator extremes, and thin liquidity.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/duckpond/duckswarm/internal/agent"
	"github.com/duckpond/duckswarm/internal/ta"
)

const (
	agentName     = "market-agent"
	agentCategory = "market"

	tickInterval = 45 * time.Second
	historySize  = 100
	minSamples   = 20
	minChainConf = 60

	signalThreshold = 0.15

	// Alert thresholds.
	whaleMoveThreshold = 0.03 // adjacent-sample jump
	overboughtRSI      = 75.0
	oversoldRSI        = 25.0
	highVolatility     = 0.03
	volumeSpikeRatio   = 2.0
	liquidityFloorUSD  = 10_000.0
)

type marketAnalyzer struct{}

func (marketAnalyzer) Analyze(_ context.Context, st *agent.State) (*agent.Result, error) {
	current := st.Prices[len(st.Prices)-1]
	if len(st.Prices) < minSamples {
		return &agent.Result{
			Type:       "HOLD",
			Confidence: 30,
			Price:      current,
			Reason:     "Insufficient data",
		}, nil
	}

	t := ta.Analyze(st.Prices, st.Volumes)
	score := t.Score()
	alerts := collectAlerts(t, st)

	sigType := "HOLD"
	if score > signalThreshold {
		sigType = "BUY"
	} else if score < -signalThreshold {
		sigType = "SELL"
	}

	confidence := int(math.Min(95, 50+math.Abs(score)*100))
	if confidence < 25 {
		confidence = 25
	}

	return &agent.Result{
		Type:       sigType,
		Confidence: confidence,
		Price:      current,
		Reason:     fmt.Sprintf("%s: score %.2f, regime %s, %d alert(s)", sigType, score, t.Regime, len(alerts)),
		Indicators: map[string]any{
			"rsi":        t.RSI,
			"volatility": t.Volatility,
			"regime":     t.Regime,
			"fearGreed":  t.FearGreed,
			"levels":     t.Levels,
			"score":      score,
		},
		Payload: map[string]any{
			"alerts":     alerts,
			"whaleMoves": countWhaleMoves(st.Prices),
		},
	}, nil
}

// collectAlerts evaluates every alert rule against the current state.
func collectAlerts(t ta.Analysis, st *agent.State) []string {
	var alerts []string
	prices := st.Prices

	if move, ok := latestMove(prices); ok && math.Abs(move) > whaleMoveThreshold {
		alerts = append(alerts, fmt.Sprintf("WHALE MOVE: price moved %+.1f%% in one sample", move*100))
	}

	switch {
	case t.RSI > overboughtRSI:
		alerts = append(alerts, fmt.Sprintf("OVERBOUGHT: RSI %.0f", t.RSI))
	case t.RSI < oversoldRSI:
		alerts = append(alerts, fmt.Sprintf("OVERSOLD: RSI %.0f", t.RSI))
	}

	if t.Volatility > highVolatility {
		alerts = append(alerts, fmt.Sprintf("HIGH VOLATILITY: %.1f%%", t.Volatility*100))
	}

	if avg := ta.SMA(st.Volumes, 20); avg > 0 && len(st.Volumes) > 0 {
		if latest := st.Volumes[len(st.Volumes)-1]; latest > avg*volumeSpikeRatio {
			alerts = append(alerts, fmt.Sprintf("VOLUME SPIKE: %.1fx average", latest/avg))
		}
	}

	current := prices[len(prices)-1]
	if t.Levels.Resistance > 0 && current > t.Levels.Resistance {
		alerts = append(alerts, fmt.Sprintf("BREAKOUT: price above resistance %.6g", t.Levels.Resistance))
	} else if t.Levels.Support > 0 && current < t.Levels.Support {
		alerts = append(alerts, fmt.Sprintf("BREAKDOWN: price below support %.6g", t.Levels.Support))
	}

	if st.Latest != nil && st.Latest.LiquidityUSD > 0 && st.Latest.LiquidityUSD < liquidityFloorUSD {
		alerts = append(alerts, fmt.Sprintf("LOW LIQUIDITY: $%.0f", st.Latest.LiquidityUSD))
	}
	return alerts
}

// latestMove is the fractional change between the last two samples.
func latestMove(prices []float64) (float64, bool) {
	n := len(prices)
	if n < 2 || prices[n-2] <= 0 {
		return 0, false
	}
	return (prices[n-1] - prices[n-2]) / prices[n-2], true
}

// countWhaleMoves counts adjacent-sample jumps over the whole ring.
func countWhaleMoves(prices []float64) int {
	count := 0
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 {
			continue
		}
		if math.Abs((prices[i]-prices[i-1])/prices[i-1]) > whaleMoveThreshold {
			count++
		}
	}
	return count
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
	}, marketAnalyzer{}, env.ChainPoster(), env.Prices, agent.WrapHub(env.Hub))

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
