// The trading agent runs the full indicator suite every tick and votes
// the indicators into one BUY/SELL/HOLD signal.
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
	agentName     = "trading-agent"
	agentCategory = "technical"

	tickInterval = 30 * time.Second
	historySize  = 100
	minSamples   = 30
	minChainConf = 60

	signalThreshold = 0.15
)

// Vote weights over the indicator set. They sum to 1.0 so the net score
// stays inside [-1,1].
var voteWeights = struct {
	rsi, macdHist, macdCross, bollinger, trend, ichimoku, stochRSI, momentum, vwap float64
}{
	rsi:       0.20,
	macdHist:  0.15,
	macdCross: 0.05,
	bollinger: 0.15,
	trend:     0.20,
	ichimoku:  0.10,
	stochRSI:  0.05,
	momentum:  0.05,
	vwap:      0.05,
}

type tradingAnalyzer struct{}

func (tradingAnalyzer) Analyze(_ context.Context, st *agent.State) (*agent.Result, error) {
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
	net := voteScore(t)

	sigType := "HOLD"
	if net > signalThreshold {
		sigType = "BUY"
	} else if net < -signalThreshold {
		sigType = "SELL"
	}

	confidence := int(math.Min(95, 50+math.Abs(net)*100))
	if confidence < 25 {
		confidence = 25
	}

	return &agent.Result{
		Type:       sigType,
		Confidence: confidence,
		Price:      current,
		Reason:     reason(sigType, net, t),
		Indicators: map[string]any{
			"rsi":       t.RSI,
			"macd":      t.MACD,
			"bollinger": t.Bollinger,
			"stochRsi":  t.StochRSI,
			"trend":     t.Trend,
			"ichimoku":  t.Ichimoku,
			"momentum":  t.Momentum,
			"vwap":      t.VWAP,
			"regime":    t.Regime,
			"netScore":  net,
		},
	}, nil
}

// voteScore folds every indicator into a weighted bullish/bearish vote.
func voteScore(t ta.Analysis) float64 {
	var net float64

	// RSI: graded distance from the 50 midline, oversold bullish.
	net += clampUnit((50-t.RSI)/50) * voteWeights.rsi

	net += signum(t.MACD.Histogram) * voteWeights.macdHist
	net += signum(t.MACD.Line-t.MACD.Signal) * voteWeights.macdCross

	switch {
	case t.Bollinger.PercentB < 0.2:
		net += voteWeights.bollinger
	case t.Bollinger.PercentB > 0.8:
		net -= voteWeights.bollinger
	}

	net += float64(t.Trend.Direction) * t.Trend.Strength * voteWeights.trend
	net += float64(t.Ichimoku.Signal) * voteWeights.ichimoku

	switch {
	case t.StochRSI.K < 20 && t.StochRSI.K > t.StochRSI.D:
		net += voteWeights.stochRSI
	case t.StochRSI.K > 80 && t.StochRSI.K < t.StochRSI.D:
		net -= voteWeights.stochRSI
	}

	net += clampUnit(t.Momentum*10) * voteWeights.momentum

	if t.VWAP > 0 && t.Price > 0 {
		// Price stretched from VWAP tends to revert.
		net += clampUnit((t.VWAP-t.Price)/t.VWAP*5) * voteWeights.vwap
	}

	return clampUnit(net)
}

func reason(sigType string, net float64, t ta.Analysis) string {
	return fmt.Sprintf("%s: net vote %.2f, RSI %.0f, MACD hist %.3g, trend %+d (%.2f), regime %s",
		sigType, net, t.RSI, t.MACD.Histogram, t.Trend.Direction, t.Trend.Strength, t.Regime)
}

func signum(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
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
	}, tradingAnalyzer{}, env.ChainPoster(), env.Prices, agent.WrapHub(env.Hub))

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
