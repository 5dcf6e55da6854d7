package hub

import (
	"math"
	"time"
)

// consensusWeights maps a signal category to its vote weight. The table
// sums to 1.00; normalization by the contributing weight keeps the result
// in [-1,1] even when agents are absent or stale.
var consensusWeights = map[string]float64{
	"technical":  0.30, // trading agent
	"market":     0.20,
	"prediction": 0.15,
	"liquidity":  0.12,
	"sentiment":  0.10,
	"onchain":    0.08,
	"whale":      0.05,
}

// AgentVote is one agent's contribution to a consensus round.
type AgentVote struct {
	Agent      string  `json:"agent"`
	Category   string  `json:"category"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Weight     float64 `json:"weight"`
	Score      float64 `json:"score"`
	AgeSec     int64   `json:"ageSec"`
}

// Consensus is the weighted aggregate of the fleet's latest signals.
type Consensus struct {
	Signal     string      `json:"signal"` // BUY, SELL, HOLD
	Strength   int         `json:"strength"`
	Normalized float64     `json:"normalized"`
	Agreement  float64     `json:"agreement"` // percent of contributors matching the mode
	Votes      []AgentVote `json:"votes"`
	ComputedAt int64       `json:"computedAt"` // unix ms
}

// ComputeConsensus folds the per-agent latest signals into one weighted
// score. Signals older than SignalExpiry and categories without a weight
// contribute nothing.
func ComputeConsensus(agentSignals map[string]StoredSignal, now time.Time) *Consensus {
	nowMs := now.UnixMilli()
	expiryMs := SignalExpiry.Milliseconds()

	var weightedSum, totalWeight float64
	votes := make([]AgentVote, 0, len(agentSignals))
	typeCounts := make(map[string]int)

	for name, sig := range agentSignals {
		weight, ok := consensusWeights[sig.Category]
		if !ok {
			continue
		}
		age := nowMs - sig.ReceivedAt
		if age > expiryMs {
			continue
		}

		score := signOf(sig.Type) * sig.Confidence / 100
		weightedSum += score * weight
		totalWeight += weight
		typeCounts[sig.Type]++

		votes = append(votes, AgentVote{
			Agent:      name,
			Category:   sig.Category,
			Type:       sig.Type,
			Confidence: sig.Confidence,
			Weight:     weight,
			Score:      score,
			AgeSec:     age / 1000,
		})
	}

	var normalized float64
	if totalWeight > 0 {
		normalized = weightedSum / totalWeight
	}

	signal := "HOLD"
	if normalized > 0.15 {
		signal = "BUY"
	} else if normalized < -0.15 {
		signal = "SELL"
	}

	strength := int(math.Round(math.Abs(normalized) * 100))
	if strength > 95 {
		strength = 95
	}

	agreement := 0.0
	if len(votes) > 0 {
		mode := 0
		for _, n := range typeCounts {
			if n > mode {
				mode = n
			}
		}
		agreement = float64(mode) / float64(len(votes)) * 100
	}

	return &Consensus{
		Signal:     signal,
		Strength:   strength,
		Normalized: normalized,
		Agreement:  agreement,
		Votes:      votes,
		ComputedAt: nowMs,
	}
}

func signOf(signalType string) float64 {
	switch signalType {
	case "BUY":
		return 1
	case "SELL":
		return -1
	default:
		return 0
	}
}
