// The prediction agent forecasts price direction over four horizons with
// a four-model ensemble, then verifies each forecast against the realized
// return once its horizon has passed.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/agent"
	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/ta"
)

const (
	agentName     = "prediction-agent"
	agentCategory = "prediction"

	tickInterval = 60 * time.Second
	historySize  = 120
	minSamples   = 10
	minChainConf = 65

	directionThreshold = 0.15

	// Verification thresholds on the realized fractional return.
	directionalReturn = 0.005 // UP needs > +0.5%, DOWN < -0.5%
	sidewaysReturn    = 0.01  // SIDEWAYS needs |return| < 1%
)

// horizons in minutes for each tick's forecast batch.
var horizons = []int{5, 15, 60, 240}

// modelWeights over the four sub-models; they sum to 1.0.
var modelWeights = []float64{0.35, 0.25, 0.20, 0.20}

// forecast is one sub-model's output for a horizon.
type forecast struct {
	direction  float64 // [-1,1]
	magnitude  float64 // expected |fractional move|
	confidence float64 // [0,100]
}

// pendingPrediction awaits verification at targetTime.
type pendingPrediction struct {
	Direction      string
	Confidence     int
	ReferencePrice float64
	TargetTimeMs   int64
	HorizonMinutes int
	ChainIndex     uint64
	OnChain        bool
}

// chainForecaster is the prediction-specific chain surface. *chain.Client
// satisfies it; nil keeps forecasts hub-only.
type chainForecaster interface {
	PredictionCount(ctx context.Context) (uint64, error)
	PostPrediction(ctx context.Context, direction string, confidence int, referencePrice float64, targetUnixSec int64) (common.Hash, error)
	VerifyPrediction(ctx context.Context, index uint64, actualPrice float64) (common.Hash, error)
}

type predictionAnalyzer struct {
	chain    chainForecaster
	pending  []pendingPrediction
	created  int
	verified int
	correct  int

	// nextChainIndex mirrors the registry's append-only prediction list
	// for this wallet. Seeded from the registry once per process so a
	// restart continues after the entries earlier runs recorded.
	nextChainIndex uint64
	indexSeeded    bool

	now func() time.Time
	log zerolog.Logger
}

func newPredictionAnalyzer(chain chainForecaster) *predictionAnalyzer {
	return &predictionAnalyzer{
		chain: chain,
		now:   time.Now,
		log:   config.NewAgentLogger(agentName, agentCategory),
	}
}

// PreTick verifies every matured pending prediction exactly once and
// removes it from the pending list.
func (p *predictionAnalyzer) PreTick(ctx context.Context, st *agent.State) error {
	if st.Latest == nil {
		return nil
	}
	current := st.Latest.Price
	nowMs := p.now().UnixMilli()

	remaining := p.pending[:0]
	for _, pred := range p.pending {
		if nowMs < pred.TargetTimeMs {
			remaining = append(remaining, pred)
			continue
		}
		if verifyDirection(pred.Direction, pred.ReferencePrice, current) {
			p.correct++
		}
		p.verified++
		if pred.OnChain && p.chain != nil {
			if _, err := p.chain.VerifyPrediction(ctx, pred.ChainIndex, current); err != nil {
				p.log.Warn().Err(err).Uint64("index", pred.ChainIndex).Msg("on-chain verification failed")
			}
		}
	}
	p.pending = remaining
	st.Aux["pendingPredictions"] = len(p.pending)
	st.Aux["verifiedPredictions"] = p.verified
	st.Aux["correctPredictions"] = p.correct
	return nil
}

// verifyDirection labels the realized return and compares it to the
// predicted direction.
func verifyDirection(direction string, reference, current float64) bool {
	if reference <= 0 {
		return false
	}
	ret := (current - reference) / reference
	switch direction {
	case "UP":
		return ret > directionalReturn
	case "DOWN":
		return ret < -directionalReturn
	default:
		return math.Abs(ret) < sidewaysReturn
	}
}

func (p *predictionAnalyzer) Analyze(ctx context.Context, st *agent.State) (*agent.Result, error) {
	current := st.Prices[len(st.Prices)-1]
	if len(st.Prices) < minSamples {
		return &agent.Result{
			Type:       "HOLD",
			Confidence: 30,
			Price:      current,
			Reason:     "Insufficient data",
		}, nil
	}

	nowMs := p.now().UnixMilli()
	batch := make([]map[string]any, 0, len(horizons))
	var bestDir float64
	var bestConf int

	for _, h := range horizons {
		dir, conf := ensemble(st.Prices, h)
		label := directionLabel(dir)

		pred := pendingPrediction{
			Direction:      label,
			Confidence:     conf,
			ReferencePrice: current,
			TargetTimeMs:   nowMs + int64(h)*60_000,
			HorizonMinutes: h,
		}
		if p.chain != nil && conf >= minChainConf && p.seedChainIndex(ctx) {
			if _, err := p.chain.PostPrediction(ctx, label, conf, current, pred.TargetTimeMs/1000); err != nil {
				p.log.Warn().Err(err).Int("horizon", h).Msg("on-chain prediction failed")
			} else {
				pred.OnChain = true
				pred.ChainIndex = p.nextChainIndex
				p.nextChainIndex++
			}
		}
		p.pending = append(p.pending, pred)
		p.created++

		batch = append(batch, map[string]any{
			"horizonMinutes": h,
			"direction":      label,
			"confidence":     conf,
			"score":          dir,
		})
		if math.Abs(dir) > math.Abs(bestDir) {
			bestDir = dir
			bestConf = conf
		}
	}

	sigType := "HOLD"
	if bestDir > directionThreshold {
		sigType = "BUY"
	} else if bestDir < -directionThreshold {
		sigType = "SELL"
	}

	accuracy := 0.0
	if p.verified > 0 {
		accuracy = float64(p.correct) / float64(p.verified) * 100
	}

	return &agent.Result{
		Type:       sigType,
		Confidence: bestConf,
		Price:      current,
		Reason:     fmt.Sprintf("%s: strongest horizon score %.2f, accuracy %.0f%% over %d verified", sigType, bestDir, accuracy, p.verified),
		Payload: map[string]any{
			"predictions": batch,
			"pending":     len(p.pending),
			"accuracy":    accuracy,
		},
	}, nil
}

// seedChainIndex aligns nextChainIndex with the registry's prediction
// count once per process. Until the seed succeeds, forecasts stay
// hub-only rather than risk verifying someone else's index.
func (p *predictionAnalyzer) seedChainIndex(ctx context.Context) bool {
	if p.indexSeeded {
		return true
	}
	count, err := p.chain.PredictionCount(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("prediction index seed failed")
		return false
	}
	p.nextChainIndex = count
	p.indexSeeded = true
	return true
}

// ensemble runs the four sub-models for one horizon and folds them into a
// weighted direction score and a confidence.
func ensemble(prices []float64, horizonMin int) (direction float64, confidence int) {
	models := []forecast{
		linearModel(prices, horizonMin),
		crossoverModel(prices),
		meanReversionModel(prices),
		momentumCascadeModel(prices),
	}

	var dirSum, confSum float64
	for i, m := range models {
		dirSum += m.direction * modelWeights[i]
		confSum += m.confidence * modelWeights[i]
	}
	return clampUnit(dirSum), int(math.Min(95, math.Max(25, confSum)))
}

func directionLabel(score float64) string {
	switch {
	case score > directionThreshold:
		return "UP"
	case score < -directionThreshold:
		return "DOWN"
	default:
		return "SIDEWAYS"
	}
}

// linearModel extrapolates a least-squares fit of the last 30 samples.
func linearModel(prices []float64, horizonMin int) forecast {
	window := 30
	if len(prices) < window {
		window = len(prices)
	}
	current := prices[len(prices)-1]
	steps := horizonMin / 5
	if steps < 1 {
		steps = 1
	}
	projected := ta.LinearExtrapolate(prices, window, steps)
	if current <= 0 || projected <= 0 {
		return forecast{}
	}
	move := (projected - current) / current
	return forecast{
		direction:  clampUnit(move * 50),
		magnitude:  math.Abs(move),
		confidence: 50 + math.Min(30, math.Abs(move)*1000),
	}
}

// crossoverModel votes on the short EMA against the long EMA.
func crossoverModel(prices []float64) forecast {
	short := ta.EMA(prices, 5)
	long := ta.EMA(prices, 20)
	if long <= 0 {
		return forecast{}
	}
	spread := (short - long) / long
	return forecast{
		direction:  clampUnit(spread * 100),
		magnitude:  math.Abs(spread),
		confidence: 50 + math.Min(25, math.Abs(spread)*2000),
	}
}

// meanReversionModel expects stretched prices to revert toward SMA20.
func meanReversionModel(prices []float64) forecast {
	sma := ta.SMA(prices, 20)
	current := prices[len(prices)-1]
	if sma <= 0 {
		return forecast{}
	}
	stretch := (current - sma) / sma
	return forecast{
		direction:  clampUnit(-stretch * 20),
		magnitude:  math.Abs(stretch),
		confidence: 45 + math.Min(25, math.Abs(stretch)*500),
	}
}

// momentumCascadeModel requires short, medium, and long momentum to agree.
func momentumCascadeModel(prices []float64) forecast {
	m3 := ta.Momentum(prices, 3)
	m10 := ta.Momentum(prices, 10)
	m30 := ta.Momentum(prices, 30)

	agree := signum(m3)
	if signum(m10) != agree || agree == 0 {
		agree = 0
	}
	strength := math.Abs(m3+m10+m30) / 3
	conf := 40.0
	if agree != 0 && signum(m30) == agree {
		conf = 70
	} else if agree != 0 {
		conf = 55
	}
	return forecast{
		direction:  agree * clampUnit(strength*100+0.5),
		magnitude:  strength,
		confidence: conf,
	}
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

	var forecaster chainForecaster
	if env.Chain != nil && !env.Cfg.Chain.ReadOnly() {
		forecaster = env.Chain
	}
	analyzer := newPredictionAnalyzer(forecaster)
	analyzer.log.Info().Ints("horizons", horizons).Msg("forecast horizons configured")

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
