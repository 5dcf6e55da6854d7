// The gas agent polls the node's suggested gas price on a fast cadence,
// keeps a bounded ring of observations in gwei, grades the current price
// against the recent average, and extrapolates the next block.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/duckpond/duckswarm/internal/agent"
	"github.com/duckpond/duckswarm/internal/chain"
	"github.com/duckpond/duckswarm/internal/hubclient"
	"github.com/duckpond/duckswarm/internal/ta"
)

const (
	agentName     = "gas-agent"
	agentCategory = "gas"

	tickInterval = 15 * time.Second
	historySize  = 50
	minChainConf = 80

	gasRingCap     = 100
	minRingSamples = 5

	extrapolationWindow = 10
)

// Recommendation bands as a ratio of current price to the ring average.
const (
	excellentBelow = 0.7
	goodBelow      = 0.9
	normalBelow    = 1.1
	elevatedBelow  = 1.3
)

type gasSource interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

type gasSink interface {
	PostGasUpdate(update hubclient.GasUpdate) bool
}

type gasAnalyzer struct {
	source gasSource
	sink   gasSink
	ring   []float64 // gwei, oldest first
	now    func() time.Time
}

func newGasAnalyzer(source gasSource, sink gasSink) *gasAnalyzer {
	return &gasAnalyzer{source: source, sink: sink, now: time.Now}
}

func (g *gasAnalyzer) Analyze(ctx context.Context, st *agent.State) (*agent.Result, error) {
	current := st.Prices[len(st.Prices)-1]
	if g.source == nil {
		return &agent.Result{
			Type:       "HOLD",
			Confidence: 25,
			Price:      current,
			Reason:     "Chain access unavailable",
		}, nil
	}

	wei, err := g.source.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price poll failed: %w", err)
	}
	gwei := chain.GweiFromWei(wei)

	g.ring = append(g.ring, gwei)
	if len(g.ring) > gasRingCap {
		g.ring = g.ring[len(g.ring)-gasRingCap:]
	}

	recommendation := g.recommend(gwei)
	nextBlock := g.nextBlockGwei(gwei)

	g.sink.PostGasUpdate(hubclient.GasUpdate{
		AgentName:      agentName,
		GasGwei:        gwei,
		Recommendation: recommendation,
		NextBlockGwei:  nextBlock,
		Timestamp:      g.now().UnixMilli(),
	})

	st.Aux["gasGwei"] = gwei

	// Cheap gas favors acting now, expensive gas favors waiting.
	sigType := "HOLD"
	confidence := 40
	switch recommendation {
	case "EXCELLENT":
		sigType = "BUY"
		confidence = 55
	case "HIGH":
		sigType = "SELL"
		confidence = 50
	}

	return &agent.Result{
		Type:       sigType,
		Confidence: confidence,
		Price:      current,
		Reason:     fmt.Sprintf("%s: gas %.2f gwei (%s), next block est %.2f", sigType, gwei, recommendation, nextBlock),
		Payload: map[string]any{
			"gasGwei":        gwei,
			"recommendation": recommendation,
			"nextBlockGwei":  nextBlock,
			"samples":        len(g.ring),
		},
	}, nil
}

// recommend grades the current price against the ring average.
func (g *gasAnalyzer) recommend(gwei float64) string {
	if len(g.ring) < minRingSamples {
		return "NORMAL"
	}
	var sum float64
	for _, v := range g.ring {
		sum += v
	}
	avg := sum / float64(len(g.ring))
	if avg <= 0 {
		return "NORMAL"
	}
	ratio := gwei / avg
	switch {
	case ratio < excellentBelow:
		return "EXCELLENT"
	case ratio < goodBelow:
		return "GOOD"
	case ratio < normalBelow:
		return "NORMAL"
	case ratio < elevatedBelow:
		return "ELEVATED"
	default:
		return "HIGH"
	}
}

// nextBlockGwei extrapolates one step ahead from the recent ring trend.
func (g *gasAnalyzer) nextBlockGwei(gwei float64) float64 {
	if len(g.ring) < minRingSamples {
		return gwei
	}
	next := ta.LinearExtrapolate(g.ring, extrapolationWindow, 1)
	if next <= 0 {
		return gwei
	}
	return next
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

	var source gasSource
	if env.Chain != nil {
		source = env.Chain
	}
	analyzer := newGasAnalyzer(source, env.Hub)

	runner := agent.NewRunner(agent.Config{
		Name:            agentName,
		Category:        agentCategory,
		Token:           env.Cfg.Chain.TokenAddress,
		Interval:        tickInterval,
		HistorySize:     historySize,
		MinConfidence:   minChainConf,
		PrimeCount:      5,
		PrimeInterval:   2 * time.Second,
		RegisterOnChain: env.Cfg.Chain.RegistrationEnabled(),
	}, analyzer, env.ChainPoster(), env.Prices, agent.WrapHub(env.Hub))

	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
