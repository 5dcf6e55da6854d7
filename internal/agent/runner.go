// Package agent provides the generic loop scaffold every agent binary
// runs: registration, heartbeat, history priming, and serial analysis
// ticks with per-tick fault containment.
package agent

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/hubclient"
	"github.com/duckpond/duckswarm/internal/metrics"
	"github.com/duckpond/duckswarm/internal/price"
)

// Agent lifecycle states.
const (
	StateStarting = "STARTING"
	StateRunning  = "RUNNING"
	StateError    = "ERROR"
	StateStopped  = "STOPPED"
)

// Config parameterizes one agent runner.
type Config struct {
	Name          string
	Category      string
	Token         string // focal token address
	Interval      time.Duration
	HistorySize   int
	MinConfidence int // floor for on-chain posting

	// History priming. Zero PrimeCount skips priming.
	PrimeCount    int
	PrimeInterval time.Duration

	RegisterOnChain bool
}

// State is the mutable per-agent view handed to the analyzer each tick.
// Rings are oldest-first and bounded by HistorySize.
type State struct {
	Prices  []float64
	Volumes []float64
	Samples []price.Sample
	Latest  *price.Sample
	Tick    int

	// Aux is free-form storage for variant-specific state that must
	// survive across ticks (pending predictions, whale tallies).
	Aux map[string]any
}

// Result is what an analyzer wants published for one tick. A nil Result
// publishes nothing.
type Result struct {
	Type       string // BUY, SELL, HOLD
	Confidence int
	Price      float64
	Reason     string
	Indicators map[string]any
	Payload    map[string]any
}

// Analyzer turns the current state into a Result.
type Analyzer interface {
	Analyze(ctx context.Context, st *State) (*Result, error)
}

// PreTicker runs before the price fetch of each tick. The prediction
// agent verifies matured predictions here.
type PreTicker interface {
	PreTick(ctx context.Context, st *State) error
}

// PostTicker runs after a tick's result is published.
type PostTicker interface {
	PostTick(ctx context.Context, st *State, res *Result) error
}

// ChainPoster is the write surface the runner needs from the chain
// client.
type ChainPoster interface {
	ReadOnly() bool
	RegisterAgent(ctx context.Context, name string) error
	PostSignal(ctx context.Context, signalType string, confidence int, priceVal float64, reason string) (common.Hash, error)
}

// PriceSource is the read surface the runner needs from the price
// service.
type PriceSource interface {
	FetchPrice(ctx context.Context, tokenAddress string) (*price.Sample, error)
	BuildHistory(ctx context.Context, tokenAddress string, count int, interval time.Duration) []price.Sample
}

// HubSink is the runner's outbound hub surface.
type HubSink interface {
	PostSignal(sig hubclient.Signal) bool
	StartHeartbeat(agentName, category string, interval time.Duration) Heartbeat
}

// Heartbeat is the stop handle a HubSink returns.
type Heartbeat interface {
	Stop()
	PublishWithStatus(status string)
}

// WrapHub adapts the concrete hub client to the HubSink interface.
func WrapHub(c *hubclient.Client) HubSink {
	return hubAdapter{c}
}

type hubAdapter struct {
	*hubclient.Client
}

func (h hubAdapter) StartHeartbeat(agentName, category string, interval time.Duration) Heartbeat {
	return h.Client.StartHeartbeat(agentName, category, interval)
}

// Runner drives one agent's lifecycle. Ticks are serial: a tick begins
// only after the previous one returned, and missed intervals coalesce
// into a single tick.
type Runner struct {
	cfg      Config
	analyzer Analyzer
	chain    ChainPoster // nil disables all chain writes
	prices   PriceSource
	hub      HubSink

	state  State
	status string
	log    zerolog.Logger
}

// NewRunner assembles a runner. chain may be nil for read-only fleets.
func NewRunner(cfg Config, analyzer Analyzer, chain ChainPoster, prices PriceSource, hub HubSink) *Runner {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Runner{
		cfg:      cfg,
		analyzer: analyzer,
		chain:    chain,
		prices:   prices,
		hub:      hub,
		state:    State{Aux: make(map[string]any)},
		status:   StateStarting,
		log:      config.NewAgentLogger(cfg.Name, cfg.Category),
	}
}

// Status returns the current lifecycle state. Only the Run goroutine
// writes it, so reads from tests after Run returned are safe.
func (r *Runner) Status() string {
	return r.status
}

// Run executes the agent loop until ctx is cancelled. Tick failures are
// logged and contained; only init can fail the process.
func (r *Runner) Run(ctx context.Context) error {
	r.status = StateStarting
	r.log.Info().
		Dur("interval", r.cfg.Interval).
		Int("historySize", r.cfg.HistorySize).
		Msg("agent starting")

	if r.writesEnabled() && r.cfg.RegisterOnChain {
		if err := r.chain.RegisterAgent(ctx, r.cfg.Name); err != nil {
			// Not fatal: the agent still analyzes and feeds the hub.
			r.log.Warn().Err(err).Msg("on-chain registration failed")
		}
	} else if r.chain == nil || r.chain.ReadOnly() {
		r.log.Info().Msg("read-only mode, chain writes disabled")
	}

	hb := r.hub.StartHeartbeat(r.cfg.Name, r.cfg.Category, hubclient.DefaultHeartbeatInterval)
	defer hb.Stop()

	if r.cfg.PrimeCount > 0 {
		primed := r.prices.BuildHistory(ctx, r.cfg.Token, r.cfg.PrimeCount, r.cfg.PrimeInterval)
		for i := range primed {
			r.appendSample(&primed[i])
		}
		r.log.Info().Int("samples", len(r.state.Prices)).Msg("history primed")
	}

	if ctx.Err() != nil {
		r.status = StateStopped
		return ctx.Err()
	}

	r.status = StateRunning
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hb.PublishWithStatus("stopped")
			r.status = StateStopped
			r.log.Info().Msg("agent stopped")
			return nil
		case <-ticker.C:
			metrics.AgentTicks.WithLabelValues(r.cfg.Name).Inc()
			if err := r.tick(ctx); err != nil {
				metrics.AgentTickErrors.WithLabelValues(r.cfg.Name).Inc()
				r.log.Error().Err(err).Int("tick", r.state.Tick).Msg("tick failed")
			}
		}
	}
}

// tick runs one analysis cycle. Every blocking call inside is bounded by
// the tick interval so a stuck upstream cannot pile up ticks.
func (r *Runner) tick(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, r.cfg.Interval)
	defer cancel()

	r.state.Tick++

	if pre, ok := r.analyzer.(PreTicker); ok {
		if err := pre.PreTick(tctx, &r.state); err != nil {
			r.log.Warn().Err(err).Msg("pre-tick failed")
		}
	}

	sample, err := r.prices.FetchPrice(tctx, r.cfg.Token)
	if err != nil || sample == nil {
		// No price, no signal this tick. History stays intact.
		r.log.Warn().Err(err).Msg("price fetch failed, skipping tick")
		return nil
	}
	r.appendSample(sample)

	res, err := r.analyzer.Analyze(tctx, &r.state)
	if err != nil {
		return err
	}

	if res != nil {
		if res.Type != "" {
			metrics.SignalsEmitted.WithLabelValues(r.cfg.Name, res.Type).Inc()
		}
		r.publish(tctx, res)
	}

	if post, ok := r.analyzer.(PostTicker); ok {
		if err := post.PostTick(tctx, &r.state, res); err != nil {
			r.log.Warn().Err(err).Msg("post-tick failed")
		}
	}
	return nil
}

// publish pushes a result to the chain and the hub in parallel. The hub
// post always happens; the chain post is gated on confidence and mode.
func (r *Runner) publish(ctx context.Context, res *Result) {
	var g errgroup.Group

	if r.writesEnabled() && res.Type != "" && res.Confidence >= r.cfg.MinConfidence {
		g.Go(func() error {
			_, err := r.chain.PostSignal(ctx, res.Type, res.Confidence, res.Price, res.Reason)
			if err != nil {
				r.log.Warn().Err(err).Msg("chain signal post failed")
			}
			return nil
		})
	}

	g.Go(func() error {
		r.hub.PostSignal(hubclient.Signal{
			AgentName:  r.cfg.Name,
			Type:       res.Type,
			Confidence: float64(res.Confidence),
			Price:      res.Price,
			Reason:     res.Reason,
			Category:   r.cfg.Category,
			Indicators: res.Indicators,
			Payload:    res.Payload,
		})
		return nil
	})

	g.Wait()
}

func (r *Runner) appendSample(s *price.Sample) {
	r.state.Latest = s
	r.state.Prices = appendBounded(r.state.Prices, s.Price, r.cfg.HistorySize)
	r.state.Volumes = appendBounded(r.state.Volumes, s.Volume24h, r.cfg.HistorySize)

	r.state.Samples = append(r.state.Samples, *s)
	if len(r.state.Samples) > r.cfg.HistorySize {
		r.state.Samples = r.state.Samples[len(r.state.Samples)-r.cfg.HistorySize:]
	}
}

func (r *Runner) writesEnabled() bool {
	return r.chain != nil && !r.chain.ReadOnly()
}

func appendBounded(ring []float64, v float64, limit int) []float64 {
	ring = append(ring, v)
	if len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	return ring
}
