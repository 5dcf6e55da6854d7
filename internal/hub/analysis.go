package hub

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/metrics"
	"github.com/duckpond/duckswarm/internal/price"
	"github.com/duckpond/duckswarm/internal/ta"
)

// DefaultAnalysisInterval is the cadence of the self-analysis loop.
const DefaultAnalysisInterval = 15 * time.Minute

// Analysis thresholds.
const (
	minSamplesBasic    = 5  // indicators
	minSamplesExtended = 20 // levels, fibonacci, volume profile
	mergedBuyThreshold = 0.10
	maxPositionPct     = 12.5 // half-Kelly clamp
)

// RiskLevels is the ATR-derived trade plan attached to an analysis.
type RiskLevels struct {
	StopLoss    float64 `json:"stopLoss"`
	Target2R    float64 `json:"target2R"`
	Target3R    float64 `json:"target3R"`
	PositionPct float64 `json:"positionPct"`
}

// Analysis is the hub's own view of the focal token, merged with the
// fleet consensus.
type Analysis struct {
	TokenAddress   string         `json:"tokenAddress"`
	Price          float64        `json:"price"`
	Samples        int            `json:"samples"`
	Technical      *ta.Analysis   `json:"technical,omitempty"`
	Fibonacci      *ta.FibLevels  `json:"fibonacci,omitempty"`
	VolumeProfile  float64        `json:"volumeProfile,omitempty"`
	Consensus      *Consensus     `json:"consensus"`
	OwnScore       float64        `json:"ownScore"`
	ConsensusScore float64        `json:"consensusScore"`
	MergedScore    float64        `json:"mergedScore"`
	Signal         string         `json:"signal"`
	Risk           *RiskLevels    `json:"risk,omitempty"`
	Narrative      string         `json:"narrative"`
	Advice         map[string]any `json:"advice,omitempty"`
	ComputedAt     int64          `json:"computedAt"`
}

// PriceSource is the analysis loop's price dependency.
type PriceSource interface {
	FetchPrice(ctx context.Context, tokenAddress string) (*price.Sample, error)
}

// Broadcaster pushes events to subscribers.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Advisor supplements an analysis with model commentary. Calls are
// best-effort and return nil on any failure.
type Advisor interface {
	Call(ctx context.Context, prompt string) map[string]any
}

// AnalysisLoop runs the hub's self-analysis on one focal token at a time.
// Starting a new token cancels the previous schedule; at most one loop is
// outstanding.
type AnalysisLoop struct {
	state    *State
	prices   PriceSource
	out      Broadcaster
	advice   Advisor
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc

	log zerolog.Logger
}

// NewAnalysisLoop wires the loop. A zero interval uses the default.
func NewAnalysisLoop(state *State, prices PriceSource, out Broadcaster, interval time.Duration) *AnalysisLoop {
	if interval <= 0 {
		interval = DefaultAnalysisInterval
	}
	return &AnalysisLoop{
		state:    state,
		prices:   prices,
		out:      out,
		interval: interval,
		log:      config.NewLogger("analysis"),
	}
}

// SetAdvisor attaches an optional advisor. Call before Start.
func (l *AnalysisLoop) SetAdvisor(a Advisor) {
	l.advice = a
}

// Start switches the loop to a new focal token: any prior schedule is
// cancelled, the first analysis runs immediately, then every interval.
func (l *AnalysisLoop) Start(tokenAddress string) {
	token := strings.ToLower(tokenAddress)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	l.state.SetFocalToken(token)
	l.log.Info().Str("token", token).Msg("analysis loop started")

	go func() {
		l.runOnce(ctx, token)

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.runOnce(ctx, token)
			}
		}
	}()
}

// Stop cancels the outstanding loop, if any.
func (l *AnalysisLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *AnalysisLoop) runOnce(ctx context.Context, token string) {
	analysis := l.AnalyzeToken(ctx, token)
	if analysis == nil {
		return
	}
	l.state.StoreAnalysis(analysis)
	if l.out != nil {
		l.out.Broadcast("analysis:result", analysis)
	}
}

// AnalyzeToken performs one analysis pass: sample the price, extend the
// rings, run the technical suite, fold in the consensus, and derive risk
// levels and the narrative. Returns nil when no price is available.
func (l *AnalysisLoop) AnalyzeToken(ctx context.Context, token string) *Analysis {
	sample, err := l.prices.FetchPrice(ctx, token)
	if err != nil || sample == nil {
		l.log.Warn().Err(err).Str("token", token).Msg("analysis skipped, no price")
		return nil
	}

	l.state.AppendPriceSample(token, sample.Price, sample.Volume24h)
	prices, volumes := l.state.History(token)

	analysis := &Analysis{
		TokenAddress: token,
		Price:        sample.Price,
		Samples:      len(prices),
		ComputedAt:   time.Now().UnixMilli(),
	}

	var ownScore float64
	if len(prices) >= minSamplesBasic {
		t := ta.Analyze(prices, volumes)
		analysis.Technical = &t
		ownScore = t.Score()

		if len(prices) >= minSamplesExtended {
			fib := ta.Fibonacci(prices, 50)
			analysis.Fibonacci = &fib
			analysis.VolumeProfile = ta.VolumeProfile(prices, volumes, 50)
		}
	}

	cons := ComputeConsensus(l.state.AgentSignals(), time.Now())
	metrics.ConsensusNormalized.Set(cons.Normalized)
	analysis.Consensus = cons
	analysis.OwnScore = ownScore
	analysis.ConsensusScore = cons.Normalized
	analysis.MergedScore = 0.6*ownScore + 0.4*cons.Normalized

	switch {
	case analysis.MergedScore > mergedBuyThreshold:
		analysis.Signal = "BUY"
	case analysis.MergedScore < -mergedBuyThreshold:
		analysis.Signal = "SELL"
	default:
		analysis.Signal = "HOLD"
	}

	if analysis.Technical != nil {
		analysis.Risk = computeRisk(sample.Price, analysis.Technical.ATR,
			analysis.Technical.Levels.Support, analysis.MergedScore)
	}

	analysis.Narrative = narrative(analysis)

	if l.advice != nil {
		// The template narrative stands on its own; model commentary is
		// attached only when the call succeeds.
		analysis.Advice = l.advice.Call(ctx, advicePrompt(analysis))
	}
	return analysis
}

// advicePrompt asks for a JSON commentary on one analysis pass.
func advicePrompt(a *Analysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are reviewing an automated analysis of token %s. ", a.TokenAddress)
	fmt.Fprintf(&sb, "Signal %s, merged score %.3f (own %.3f, fleet consensus %.3f). ",
		a.Signal, a.MergedScore, a.OwnScore, a.ConsensusScore)
	if a.Technical != nil {
		fmt.Fprintf(&sb, "Regime %s, RSI %.0f. ", a.Technical.Regime, a.Technical.RSI)
	}
	sb.WriteString(`Reply with a single JSON object: {"assessment": "...", "risks": ["..."], "conviction": 0-100}.`)
	return sb.String()
}

// computeRisk derives a trade plan: ATR stop clipped up to just under
// support, 2R and 3R targets, and a half-Kelly position size.
func computeRisk(current, atr, support, merged float64) *RiskLevels {
	if current <= 0 {
		return nil
	}

	stop := current - 1.5*atr
	if support > 0 && support*0.99 > stop {
		stop = support * 0.99
	}
	if stop >= current {
		stop = current * 0.95
	}

	r := current - stop
	winProb := 0.5 + math.Abs(merged)*0.2
	kelly := winProb - (1-winProb)/2
	position := kelly / 2 * 100
	if position < 0 {
		position = 0
	}
	if position > maxPositionPct {
		position = maxPositionPct
	}

	return &RiskLevels{
		StopLoss:    stop,
		Target2R:    current + 2*r,
		Target3R:    current + 3*r,
		PositionPct: position,
	}
}

// narrative renders the fixed-template prose paragraph for an analysis.
// No external model is involved.
func narrative(a *Analysis) string {
	if a.Technical == nil {
		return fmt.Sprintf("Collecting data for %s: %d of %d samples so far. No reading yet.",
			a.TokenAddress, a.Samples, minSamplesBasic)
	}

	t := a.Technical

	trendPhrase := "moving sideways"
	if t.Trend.Direction > 0 {
		trendPhrase = "trending up"
	} else if t.Trend.Direction < 0 {
		trendPhrase = "trending down"
	}

	rsiPhrase := "in neutral territory"
	if t.RSI >= 70 {
		rsiPhrase = "overbought"
	} else if t.RSI <= 30 {
		rsiPhrase = "oversold"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Market regime is %s and price is %s with RSI %.0f, %s. ",
		t.Regime, trendPhrase, t.RSI, rsiPhrase)
	fmt.Fprintf(&sb, "Fleet consensus reads %s at strength %d with %.0f%% agreement. ",
		a.Consensus.Signal, a.Consensus.Strength, a.Consensus.Agreement)
	fmt.Fprintf(&sb, "Support sits near %.8f and resistance near %.8f. ",
		t.Levels.Support, t.Levels.Resistance)
	if a.Risk != nil {
		fmt.Fprintf(&sb, "Plan: %s with stop at %.8f, targets %.8f and %.8f, size %.1f%% of book.",
			a.Signal, a.Risk.StopLoss, a.Risk.Target2R, a.Risk.Target3R, a.Risk.PositionPct)
	} else {
		fmt.Fprintf(&sb, "Verdict: %s.", a.Signal)
	}
	return sb.String()
}
