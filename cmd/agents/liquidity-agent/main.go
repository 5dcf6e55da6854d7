// The liquidity agent tracks the focal token's bonding-curve progress and
// scores rug risk from liquidity depth, trade balance, and price action.
// It posts a token launch update each tick and flags imminent graduation.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/duckpond/duckswarm/internal/agent"
	"github.com/duckpond/duckswarm/internal/hubclient"
	"github.com/duckpond/duckswarm/internal/price"
)

const (
	agentName     = "liquidity-agent"
	agentCategory = "liquidity"

	tickInterval = 60 * time.Second
	historySize  = 50
	minSamples   = 5
	minChainConf = 60

	graduationImminent = 85.0

	// Rug-risk component thresholds.
	criticalLiquidityUSD = 10_000.0
	lowLiquidityUSD      = 50_000.0
	sellPressureRatio    = 1.5
	sharpDropPct         = -20.0 // 1h price change, percent
	lowVolumeUSD         = 1_000.0
)

// Rug-risk component weights; the total score is clamped to [0,100].
const (
	riskCriticalLiquidity = 30
	riskLowLiquidity      = 15
	riskNotGraduated      = 15
	riskSellPressure      = 20
	riskSharpDrop         = 20
	riskLowVolume         = 15
)

type bondingSource interface {
	BondingProgress(ctx context.Context, tokenAddress string) price.BondingStatus
}

type launchSink interface {
	PostTokenLaunch(launch hubclient.TokenLaunch) bool
}

type liquidityAnalyzer struct {
	bonding bondingSource
	sink    launchSink
	token   string
}

func (l *liquidityAnalyzer) Analyze(ctx context.Context, st *agent.State) (*agent.Result, error) {
	current := st.Prices[len(st.Prices)-1]
	if len(st.Prices) < minSamples || st.Latest == nil {
		return &agent.Result{
			Type:       "HOLD",
			Confidence: 30,
			Price:      current,
			Reason:     "Insufficient data",
		}, nil
	}

	status := l.bonding.BondingProgress(ctx, l.token)
	risk, factors := rugRisk(st.Latest, status)
	level := riskLevel(risk)

	l.postLaunchUpdate(st.Latest, status)

	sigType := "HOLD"
	confidence := 40
	reason := fmt.Sprintf("HOLD: rug risk %d (%s), bonding %.0f%%", risk, level, status.Progress)
	switch {
	case risk >= 60:
		sigType = "SELL"
		confidence = min(95, risk)
		reason = fmt.Sprintf("SELL: rug risk %d (%s): %s", risk, level, strings.Join(factors, "; "))
	case risk <= 25 && buyPressure(st.Latest):
		sigType = "BUY"
		confidence = 55
		reason = fmt.Sprintf("BUY: low rug risk %d with buy pressure %d/%d", risk, st.Latest.Buys24h, st.Latest.Sells24h)
	}

	return &agent.Result{
		Type:       sigType,
		Confidence: confidence,
		Price:      current,
		Reason:     reason,
		Indicators: map[string]any{
			"rugRisk":      risk,
			"riskLevel":    level,
			"riskFactors":  factors,
			"progress":     status.Progress,
			"graduated":    status.Graduated,
			"liquidityUsd": st.Latest.LiquidityUSD,
		},
	}, nil
}

// rugRisk scores the token in [0,100] and names each contributing factor.
func rugRisk(s *price.Sample, status price.BondingStatus) (int, []string) {
	score := 0
	var factors []string

	switch {
	case s.LiquidityUSD < criticalLiquidityUSD:
		score += riskCriticalLiquidity
		factors = append(factors, fmt.Sprintf("critically low liquidity $%.0f", s.LiquidityUSD))
	case s.LiquidityUSD < lowLiquidityUSD:
		score += riskLowLiquidity
		factors = append(factors, fmt.Sprintf("low liquidity $%.0f", s.LiquidityUSD))
	}

	if !status.Graduated {
		score += riskNotGraduated
		factors = append(factors, "not graduated from bonding curve")
	}

	if s.Buys24h > 0 && float64(s.Sells24h) > float64(s.Buys24h)*sellPressureRatio {
		score += riskSellPressure
		factors = append(factors, fmt.Sprintf("sell pressure %d sells vs %d buys", s.Sells24h, s.Buys24h))
	}

	if s.PriceChange.H1 < sharpDropPct {
		score += riskSharpDrop
		factors = append(factors, fmt.Sprintf("sharp drop %.1f%% in 1h", s.PriceChange.H1))
	}

	if s.Volume24h < lowVolumeUSD {
		score += riskLowVolume
		factors = append(factors, fmt.Sprintf("very low volume $%.0f", s.Volume24h))
	}

	if score > 100 {
		score = 100
	}
	return score, factors
}

func riskLevel(score int) string {
	switch {
	case score < 25:
		return "LOW"
	case score < 50:
		return "MEDIUM"
	case score < 75:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}

func buyPressure(s *price.Sample) bool {
	return s.Sells24h > 0 && float64(s.Buys24h) > float64(s.Sells24h)*1.2
}

// postLaunchUpdate reports curve position to the hub, flagging imminent
// graduation while the token is still on the curve.
func (l *liquidityAnalyzer) postLaunchUpdate(s *price.Sample, status price.BondingStatus) {
	if status.Progress <= 0 && !status.Graduated {
		return
	}
	launch := hubclient.TokenLaunch{
		AgentName:    agentName,
		TokenAddress: l.token,
		TokenName:    s.TokenName,
		TokenSymbol:  s.TokenSymbol,
		Progress:     status.Progress,
		Graduated:    status.Graduated,
	}
	if status.Progress >= graduationImminent && !status.Graduated {
		launch.Alert = fmt.Sprintf("GRADUATION IMMINENT: bonding curve at %.0f%%", status.Progress)
	}
	l.sink.PostTokenLaunch(launch)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
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

	analyzer := &liquidityAnalyzer{
		bonding: env.Prices,
		sink:    env.Hub,
		token:   env.Cfg.Chain.TokenAddress,
	}

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
	}, analyzer, env.ChainPoster(), env.Prices, agent.WrapHub(env.Hub))

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
