// The onchain agent reads raw transfer flow: holder growth, router-aware
// buy/sell counts, transfer velocity, and an organic-activity score that
// penalizes wash-trade shapes. Detected circular flow is reported as an
// MEV observation.
package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/duckpond/duckswarm/internal/agent"
	"github.com/duckpond/duckswarm/internal/chain"
	"github.com/duckpond/duckswarm/internal/hubclient"
)

const (
	agentName     = "onchain-agent"
	agentCategory = "onchain"

	tickInterval = 60 * time.Second
	historySize  = 50
	minChainConf = 65

	organicBase = 70

	// Organic score adjustments.
	circularPenalty    = 5
	maxCircularPenalty = 30
	uniformPenalty     = 15
	uniformCV          = 0.1
	variedBonus        = 10
	variedCV           = 0.5
	uniqueBonus        = 10
	uniqueRatioFloor   = 0.6
)

type transferScanner interface {
	Scan(ctx context.Context) ([]chain.Transfer, error)
	Cursor() uint64
}

type mevSink interface {
	PostMEVOpportunity(op hubclient.MEVOpportunity) bool
}

type onchainAnalyzer struct {
	scanner transferScanner
	mev     mevSink
	routers map[common.Address]bool

	// holders is the cumulative set of addresses ever seen receiving.
	holders map[common.Address]bool

	now func() time.Time
}

func newOnchainAnalyzer(scanner transferScanner, mev mevSink, routers []common.Address) *onchainAnalyzer {
	set := make(map[common.Address]bool, len(routers))
	for _, r := range routers {
		if r != (common.Address{}) {
			set[r] = true
		}
	}
	return &onchainAnalyzer{
		scanner: scanner,
		mev:     mev,
		routers: set,
		holders: make(map[common.Address]bool),
		now:     time.Now,
	}
}

func (o *onchainAnalyzer) Analyze(ctx context.Context, st *agent.State) (*agent.Result, error) {
	current := st.Prices[len(st.Prices)-1]
	if o.scanner == nil {
		return &agent.Result{
			Type:       "HOLD",
			Confidence: 25,
			Price:      current,
			Reason:     "Chain access unavailable",
		}, nil
	}

	transfers, err := o.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("transfer scan failed: %w", err)
	}

	newHolders := o.trackHolders(transfers)
	buys, sells := o.countSwaps(transfers)
	circular := circularPatterns(transfers)
	organic := organicScore(transfers, circular)

	if circular > 0 && o.mev != nil {
		o.mev.PostMEVOpportunity(hubclient.MEVOpportunity{
			AgentName:   agentName,
			Kind:        "WASH_TRADE",
			Description: fmt.Sprintf("%d circular transfer pattern(s) in scanned window", circular),
			Timestamp:   o.now().UnixMilli(),
		})
	}

	st.Aux["holderCount"] = len(o.holders)

	if len(transfers) == 0 {
		return &agent.Result{
			Type:       "HOLD",
			Confidence: 30,
			Price:      current,
			Reason:     "No transfer activity in scanned window",
			Payload: map[string]any{
				"transfers":    0,
				"holderCount":  len(o.holders),
				"organicScore": organic,
			},
		}, nil
	}

	sigType := "HOLD"
	if float64(buys) > float64(sells)*1.2 {
		sigType = "BUY"
	} else if float64(sells) > float64(buys)*1.2 {
		sigType = "SELL"
	}

	confidence := 50 + abs(buys-sells)*5
	if organic < 40 {
		confidence -= 15
	}
	if confidence > 95 {
		confidence = 95
	}
	if confidence < 25 {
		confidence = 25
	}

	return &agent.Result{
		Type:       sigType,
		Confidence: confidence,
		Price:      current,
		Reason:     fmt.Sprintf("%s: %d buys vs %d sells, organic %d/100, %d new holder(s)", sigType, buys, sells, organic, newHolders),
		Payload: map[string]any{
			"transfers":    len(transfers),
			"buys":         buys,
			"sells":        sells,
			"newHolders":   newHolders,
			"holderCount":  len(o.holders),
			"velocity":     velocity(transfers),
			"circular":     circular,
			"organicScore": organic,
		},
	}, nil
}

// trackHolders adds every recipient to the cumulative holder set and
// returns how many were new this window.
func (o *onchainAnalyzer) trackHolders(transfers []chain.Transfer) int {
	grown := 0
	for _, t := range transfers {
		if o.routers[t.To] {
			continue
		}
		if !o.holders[t.To] {
			o.holders[t.To] = true
			grown++
		}
	}
	return grown
}

// countSwaps classifies transfers against the known-router set: router to
// wallet is a buy, wallet to router a sell.
func (o *onchainAnalyzer) countSwaps(transfers []chain.Transfer) (buys, sells int) {
	for _, t := range transfers {
		fromRouter := o.routers[t.From]
		toRouter := o.routers[t.To]
		switch {
		case fromRouter && !toRouter:
			buys++
		case toRouter && !fromRouter:
			sells++
		}
	}
	return buys, sells
}

// circularPatterns counts A->B->A pairs and A->B->C->A triangles over the
// window's transfer graph.
func circularPatterns(transfers []chain.Transfer) int {
	type edge struct{ from, to common.Address }
	seen := make(map[edge]bool, len(transfers))
	adj := make(map[common.Address][]common.Address)
	for _, t := range transfers {
		if t.From == t.To {
			continue
		}
		e := edge{t.From, t.To}
		if !seen[e] {
			seen[e] = true
			adj[t.From] = append(adj[t.From], t.To)
		}
	}

	count := 0
	for e := range seen {
		// Count each back-and-forth pair once.
		if bytes.Compare(e.from[:], e.to[:]) < 0 && seen[edge{e.to, e.from}] {
			count++
		}
	}

	triangles := 0
	for e := range seen {
		for _, c := range adj[e.to] {
			if c != e.from && seen[edge{c, e.from}] {
				triangles++
			}
		}
	}
	// Each directed triangle is found once per starting edge.
	return count + triangles/3
}

// organicScore rates how natural the window's flow looks in [0,100].
func organicScore(transfers []chain.Transfer, circular int) int {
	score := organicBase

	penalty := circular * circularPenalty
	if penalty > maxCircularPenalty {
		penalty = maxCircularPenalty
	}
	score -= penalty

	if cv, ok := sizeCV(transfers); ok {
		if cv < uniformCV {
			score -= uniformPenalty
		} else if cv > variedCV {
			score += variedBonus
		}
	}

	if len(transfers) > 0 {
		unique := make(map[common.Address]bool, len(transfers)*2)
		for _, t := range transfers {
			unique[t.From] = true
			unique[t.To] = true
		}
		if float64(len(unique))/float64(len(transfers)*2) > uniqueRatioFloor {
			score += uniqueBonus
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// sizeCV is the coefficient of variation of transfer sizes. Needs at
// least five transfers to mean anything.
func sizeCV(transfers []chain.Transfer) (float64, bool) {
	if len(transfers) < 5 {
		return 0, false
	}
	amounts := make([]float64, len(transfers))
	var sum float64
	for i, t := range transfers {
		amounts[i] = chain.TokensFromWei(t.Value)
		sum += amounts[i]
	}
	mean := sum / float64(len(amounts))
	if mean <= 0 {
		return 0, false
	}
	var variance float64
	for _, a := range amounts {
		variance += (a - mean) * (a - mean)
	}
	variance /= float64(len(amounts))
	return math.Sqrt(variance) / mean, true
}

// velocity is transfers per block over the window's block span.
func velocity(transfers []chain.Transfer) float64 {
	if len(transfers) == 0 {
		return 0
	}
	lo, hi := transfers[0].Block, transfers[0].Block
	for _, t := range transfers[1:] {
		if t.Block < lo {
			lo = t.Block
		}
		if t.Block > hi {
			hi = t.Block
		}
	}
	return float64(len(transfers)) / float64(hi-lo+1)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
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

	var scanner transferScanner
	if env.Chain != nil {
		scanner = env.Chain.NewTokenScanner(common.HexToAddress(env.Cfg.Chain.TokenAddress))
	}
	routers := []common.Address{
		common.HexToAddress(env.Cfg.Chain.QuoterAddress),
		common.HexToAddress(env.Cfg.Chain.CurveAddress),
		common.HexToAddress(env.Cfg.Chain.WMONAddress),
	}
	analyzer := newOnchainAnalyzer(scanner, env.Hub, routers)

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
