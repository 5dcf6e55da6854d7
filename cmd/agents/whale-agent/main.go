// The whale agent follows large token transfers. Each tick it scans the
// transfer log window since its cursor, updates per-wallet flow tallies,
// classifies every large transfer by its share of total supply, and
// raises a whale alert per transfer.
package main

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/agent"
	"github.com/duckpond/duckswarm/internal/chain"
	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/hubclient"
)

const (
	agentName     = "whale-agent"
	agentCategory = "whale"

	tickInterval = 60 * time.Second
	historySize  = 50
	minChainConf = 70

	// Transfers below this many whole tokens are ignored.
	minTransferTokens = 1_000_000.0

	// Supply-fraction tiers.
	megaFraction  = 0.005
	largeFraction = 0.001
)

// Wallet profiles.
const (
	profileNew         = "NEW"
	profileAccumulator = "ACCUMULATOR"
	profileDistributor = "DISTRIBUTOR"
	profileTrader      = "TRADER"
	profileMixed       = "MIXED"
)

// walletTally accumulates observed large-transfer flow for one wallet.
// Never evicted while the process lives.
type walletTally struct {
	Address   common.Address
	TotalIn   float64
	TotalOut  float64
	TxCount   int
	FirstSeen int64
	LastSeen  int64
}

func (w *walletTally) NetFlow() float64 { return w.TotalIn - w.TotalOut }

// Profile classifies the wallet from its flow history.
func (w *walletTally) Profile() string {
	if w.TxCount < 3 {
		return profileNew
	}
	total := w.TotalIn + w.TotalOut
	if total == 0 {
		return profileNew
	}
	inShare := w.TotalIn / total
	switch {
	case inShare >= 0.7:
		return profileAccumulator
	case inShare <= 0.3:
		return profileDistributor
	case w.TxCount >= 10:
		return profileTrader
	default:
		return profileMixed
	}
}

// transferScanner is the log-scan surface. *chain.LogScanner satisfies it.
type transferScanner interface {
	Scan(ctx context.Context) ([]chain.Transfer, error)
	Cursor() uint64
}

// chainReader covers the read-only calls this agent makes beyond the scan.
type chainReader interface {
	TokenTotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

type alertSink interface {
	PostWhaleAlert(alert hubclient.WhaleAlert) bool
}

type whaleAnalyzer struct {
	scanner transferScanner
	reader  chainReader
	alerts  alertSink
	token   common.Address

	tallies      map[common.Address]*walletTally
	supplyTokens float64

	now func() time.Time
	log zerolog.Logger
}

func newWhaleAnalyzer(scanner transferScanner, reader chainReader, alerts alertSink, token common.Address) *whaleAnalyzer {
	return &whaleAnalyzer{
		scanner: scanner,
		reader:  reader,
		alerts:  alerts,
		token:   token,
		tallies: make(map[common.Address]*walletTally),
		now:     time.Now,
		log:     config.NewAgentLogger(agentName, agentCategory),
	}
}

func (w *whaleAnalyzer) Analyze(ctx context.Context, st *agent.State) (*agent.Result, error) {
	current := st.Prices[len(st.Prices)-1]
	if w.scanner == nil {
		return &agent.Result{
			Type:       "HOLD",
			Confidence: 25,
			Price:      current,
			Reason:     "Chain access unavailable",
		}, nil
	}

	transfers, err := w.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("transfer scan failed: %w", err)
	}

	gasGwei := w.gasGwei(ctx)
	supply := w.totalSupply(ctx)
	nowMs := w.now().UnixMilli()

	var accumulation, distribution, large int
	for _, tr := range transfers {
		amount := chain.TokensFromWei(tr.Value)
		if amount < minTransferTokens {
			continue
		}
		large++

		w.record(tr.From, 0, amount, nowMs)
		w.record(tr.To, amount, 0, nowMs)

		direction := w.direction(tr.From, tr.To)
		switch direction {
		case "ACCUMULATION":
			accumulation++
		case "DISTRIBUTION":
			distribution++
		}

		w.alerts.PostWhaleAlert(hubclient.WhaleAlert{
			AgentName: agentName,
			Wallet:    tr.To.Hex(),
			Amount:    amount,
			Direction: direction,
			Tier:      tier(amount, supply),
			TxHash:    tr.TxHash.Hex(),
			GasGwei:   gasGwei,
			Timestamp: nowMs,
		})
	}

	st.Aux["trackedWallets"] = len(w.tallies)
	st.Aux["lastScannedBlock"] = w.scanner.Cursor()

	if large == 0 {
		return &agent.Result{
			Type:       "HOLD",
			Confidence: 30,
			Price:      current,
			Reason:     "No whale activity in scanned window",
			Payload: map[string]any{
				"largeTransfers": 0,
				"trackedWallets": len(w.tallies),
				"gasGwei":        gasGwei,
			},
		}, nil
	}

	bias := accumulation - distribution
	sigType := "HOLD"
	if bias > 0 {
		sigType = "BUY"
	} else if bias < 0 {
		sigType = "SELL"
	}
	confidence := int(math.Min(95, 50+math.Abs(float64(bias))*10))

	return &agent.Result{
		Type:       sigType,
		Confidence: confidence,
		Price:      current,
		Reason:     fmt.Sprintf("%s: %d large transfer(s), %d accumulation vs %d distribution", sigType, large, accumulation, distribution),
		Payload: map[string]any{
			"largeTransfers": large,
			"accumulation":   accumulation,
			"distribution":   distribution,
			"trackedWallets": len(w.tallies),
			"gasGwei":        gasGwei,
		},
	}, nil
}

func (w *whaleAnalyzer) record(addr common.Address, in, out float64, nowMs int64) {
	t, ok := w.tallies[addr]
	if !ok {
		t = &walletTally{Address: addr, FirstSeen: nowMs}
		w.tallies[addr] = t
	}
	t.TotalIn += in
	t.TotalOut += out
	t.TxCount++
	t.LastSeen = nowMs
}

// direction reads the counterparties' profiles: tokens flowing into an
// accumulator read as accumulation, tokens leaving a distributor as
// distribution.
func (w *whaleAnalyzer) direction(from, to common.Address) string {
	toProfile := w.profileOf(to)
	fromProfile := w.profileOf(from)
	switch {
	case toProfile == profileAccumulator:
		return "ACCUMULATION"
	case fromProfile == profileDistributor:
		return "DISTRIBUTION"
	case toProfile == profileTrader || fromProfile == profileTrader:
		return "ROTATION"
	default:
		return "TRANSFER"
	}
}

func (w *whaleAnalyzer) profileOf(addr common.Address) string {
	if t, ok := w.tallies[addr]; ok {
		return t.Profile()
	}
	return profileNew
}

// tier classifies a transfer by its fraction of total supply. With supply
// unknown everything is a plain WHALE.
func tier(amount, supplyTokens float64) string {
	if supplyTokens <= 0 {
		return "WHALE"
	}
	fraction := amount / supplyTokens
	switch {
	case fraction >= megaFraction:
		return "MEGA"
	case fraction >= largeFraction:
		return "LARGE"
	default:
		return "WHALE"
	}
}

// totalSupply fetches the token supply once and caches it.
func (w *whaleAnalyzer) totalSupply(ctx context.Context) float64 {
	if w.supplyTokens > 0 || w.reader == nil {
		return w.supplyTokens
	}
	supply, err := w.reader.TokenTotalSupply(ctx, w.token)
	if err != nil {
		w.log.Warn().Err(err).Msg("total supply lookup failed")
		return 0
	}
	w.supplyTokens = chain.TokensFromWei(supply)
	return w.supplyTokens
}

func (w *whaleAnalyzer) gasGwei(ctx context.Context) float64 {
	if w.reader == nil {
		return 0
	}
	wei, err := w.reader.GasPrice(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("gas price lookup failed")
		return 0
	}
	return chain.GweiFromWei(wei)
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

	token := common.HexToAddress(env.Cfg.Chain.TokenAddress)
	var (
		scanner transferScanner
		reader  chainReader
	)
	if env.Chain != nil {
		scanner = env.Chain.NewTokenScanner(token)
		reader = env.Chain
	}
	analyzer := newWhaleAnalyzer(scanner, reader, env.Hub, token)

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
