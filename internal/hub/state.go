// Package hub implements the central coordination process: REST ingress
// for agents, websocket fan-out for clients, bounded event rings, weighted
// consensus, and the self-driven analysis loop.
package hub

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/duckpond/duckswarm/internal/hubclient"
)

// Ring capacities and freshness bounds.
const (
	SignalRingCap = 100
	EventRingCap  = 50
	PriceRingCap  = 200

	// SignalExpiry bounds how old an agent's latest signal may be and
	// still count toward consensus.
	SignalExpiry = 20 * time.Minute

	// HeartbeatLiveness is how long an agent may go silent before
	// /api/state reports it dead.
	HeartbeatLiveness = 120 * time.Second
)

// ErrMissingAgentName rejects ingress payloads without an agent identity.
var ErrMissingAgentName = errors.New("hub: agentName is required")

// StoredSignal is an ingested signal stamped with its arrival time.
type StoredSignal struct {
	hubclient.Signal
	ReceivedAt int64 `json:"receivedAt"` // unix ms
}

// StoredWhaleAlert is an ingested whale alert.
type StoredWhaleAlert struct {
	hubclient.WhaleAlert
	ReceivedAt int64 `json:"receivedAt"`
}

// StoredTokenLaunch is an ingested bonding-curve event.
type StoredTokenLaunch struct {
	hubclient.TokenLaunch
	ReceivedAt int64 `json:"receivedAt"`
}

// StoredGasUpdate is an ingested gas observation.
type StoredGasUpdate struct {
	hubclient.GasUpdate
	ReceivedAt int64 `json:"receivedAt"`
}

// StoredMEVOpportunity is an ingested MEV observation.
type StoredMEVOpportunity struct {
	hubclient.MEVOpportunity
	ReceivedAt int64 `json:"receivedAt"`
}

// AgentRecord is the hub's liveness view of one agent.
type AgentRecord struct {
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	Status        string         `json:"status"`
	UptimeMs      int64          `json:"uptimeMs"`
	Stats         map[string]any `json:"stats,omitempty"`
	LastHeartbeat int64          `json:"lastHeartbeat"` // unix ms
	IsAlive       bool           `json:"isAlive"`
}

// State owns every hub-side ring and map. All mutation goes through its
// methods; event rings are newest-first and hard-capped.
type State struct {
	mu sync.RWMutex

	signals          []StoredSignal
	whaleAlerts      []StoredWhaleAlert
	tokenLaunches    []StoredTokenLaunch
	gasUpdates       []StoredGasUpdate
	mevOpportunities []StoredMEVOpportunity

	agentSignals map[string]StoredSignal
	agents       map[string]*AgentRecord

	// Per-token sample rings, oldest-first, keyed by lowercased address.
	priceHistories  map[string][]float64
	volumeHistories map[string][]float64

	analysisResults map[string]*Analysis
	focalToken      string

	startedAt time.Time
	now       func() time.Time // injectable clock for tests
}

// NewState builds an empty hub state.
func NewState() *State {
	return &State{
		agentSignals:    make(map[string]StoredSignal),
		agents:          make(map[string]*AgentRecord),
		priceHistories:  make(map[string][]float64),
		volumeHistories: make(map[string][]float64),
		analysisResults: make(map[string]*Analysis),
		startedAt:       time.Now(),
		now:             time.Now,
	}
}

// AddSignal ingests one signal: overwrite the per-agent latest, then
// append to the ring. The caller broadcasts the returned copy after this
// returns, which keeps ring order and broadcast order identical.
func (s *State) AddSignal(sig hubclient.Signal) (StoredSignal, error) {
	if strings.TrimSpace(sig.AgentName) == "" {
		return StoredSignal{}, ErrMissingAgentName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := StoredSignal{Signal: sig, ReceivedAt: s.now().UnixMilli()}
	s.agentSignals[sig.AgentName] = stored
	s.signals = prependSignal(s.signals, stored, SignalRingCap)
	return stored, nil
}

// AddWhaleAlert ingests a whale alert.
func (s *State) AddWhaleAlert(alert hubclient.WhaleAlert) StoredWhaleAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := StoredWhaleAlert{WhaleAlert: alert, ReceivedAt: s.now().UnixMilli()}
	s.whaleAlerts = append([]StoredWhaleAlert{stored}, s.whaleAlerts...)
	if len(s.whaleAlerts) > EventRingCap {
		s.whaleAlerts = s.whaleAlerts[:EventRingCap]
	}
	return stored
}

// AddTokenLaunch ingests a bonding-curve event.
func (s *State) AddTokenLaunch(launch hubclient.TokenLaunch) StoredTokenLaunch {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := StoredTokenLaunch{TokenLaunch: launch, ReceivedAt: s.now().UnixMilli()}
	s.tokenLaunches = append([]StoredTokenLaunch{stored}, s.tokenLaunches...)
	if len(s.tokenLaunches) > EventRingCap {
		s.tokenLaunches = s.tokenLaunches[:EventRingCap]
	}
	return stored
}

// AddGasUpdate ingests a gas observation.
func (s *State) AddGasUpdate(update hubclient.GasUpdate) StoredGasUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := StoredGasUpdate{GasUpdate: update, ReceivedAt: s.now().UnixMilli()}
	s.gasUpdates = append([]StoredGasUpdate{stored}, s.gasUpdates...)
	if len(s.gasUpdates) > EventRingCap {
		s.gasUpdates = s.gasUpdates[:EventRingCap]
	}
	return stored
}

// AddMEVOpportunity ingests an MEV observation.
func (s *State) AddMEVOpportunity(op hubclient.MEVOpportunity) StoredMEVOpportunity {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := StoredMEVOpportunity{MEVOpportunity: op, ReceivedAt: s.now().UnixMilli()}
	s.mevOpportunities = append([]StoredMEVOpportunity{stored}, s.mevOpportunities...)
	if len(s.mevOpportunities) > EventRingCap {
		s.mevOpportunities = s.mevOpportunities[:EventRingCap]
	}
	return stored
}

// Heartbeat records agent liveness.
func (s *State) Heartbeat(hb hubclient.Heartbeat) (*AgentRecord, error) {
	if strings.TrimSpace(hb.AgentName) == "" {
		return nil, ErrMissingAgentName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.agents[hb.AgentName]
	if !ok {
		rec = &AgentRecord{Name: hb.AgentName}
		s.agents[hb.AgentName] = rec
	}
	if hb.Category != "" {
		rec.Category = hb.Category
	}
	if hb.Status != "" {
		rec.Status = hb.Status
	}
	rec.UptimeMs = hb.UptimeMs
	if hb.Stats != nil {
		rec.Stats = hb.Stats
	}
	rec.LastHeartbeat = s.now().UnixMilli()

	out := *rec
	out.IsAlive = true
	return &out, nil
}

// AppendPriceSample appends to a token's price and volume rings, both
// bounded by PriceRingCap and always equal in length.
func (s *State) AppendPriceSample(token string, priceVal, volume float64) {
	key := strings.ToLower(token)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.priceHistories[key] = appendCapped(s.priceHistories[key], priceVal, PriceRingCap)
	s.volumeHistories[key] = appendCapped(s.volumeHistories[key], volume, PriceRingCap)
}

// History returns copies of a token's price and volume rings, oldest-first.
func (s *State) History(token string) (prices, volumes []float64) {
	key := strings.ToLower(token)
	s.mu.RLock()
	defer s.mu.RUnlock()
	prices = append([]float64(nil), s.priceHistories[key]...)
	volumes = append([]float64(nil), s.volumeHistories[key]...)
	return prices, volumes
}

// SetFocalToken records the token the analysis loop is watching.
func (s *State) SetFocalToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focalToken = strings.ToLower(token)
}

// FocalToken returns the current analysis target, possibly empty.
func (s *State) FocalToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focalToken
}

// StoreAnalysis caches a finished analysis for its token.
func (s *State) StoreAnalysis(a *Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysisResults[strings.ToLower(a.TokenAddress)] = a
}

// AnalysisFor returns the cached analysis for a token, or nil.
func (s *State) AnalysisFor(token string) *Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analysisResults[strings.ToLower(token)]
}

// AgentSignals returns a copy of the per-agent latest-signal map.
func (s *State) AgentSignals() map[string]StoredSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]StoredSignal, len(s.agentSignals))
	for k, v := range s.agentSignals {
		out[k] = v
	}
	return out
}

// Signals returns up to limit most recent signals, newest first.
func (s *State) Signals(limit int) []StoredSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StoredSignal(nil), capSlice(s.signals, limit)...)
}

// WhaleAlerts returns up to limit most recent whale alerts.
func (s *State) WhaleAlerts(limit int) []StoredWhaleAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StoredWhaleAlert(nil), capSlice(s.whaleAlerts, limit)...)
}

// TokenLaunches returns up to limit most recent launch events.
func (s *State) TokenLaunches(limit int) []StoredTokenLaunch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StoredTokenLaunch(nil), capSlice(s.tokenLaunches, limit)...)
}

// GasUpdates returns up to limit most recent gas observations.
func (s *State) GasUpdates(limit int) []StoredGasUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StoredGasUpdate(nil), capSlice(s.gasUpdates, limit)...)
}

// MEVOpportunities returns up to limit most recent MEV observations.
func (s *State) MEVOpportunities(limit int) []StoredMEVOpportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StoredMEVOpportunity(nil), capSlice(s.mevOpportunities, limit)...)
}

// Agents returns liveness records for every known agent.
func (s *State) Agents() []AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().UnixMilli() - HeartbeatLiveness.Milliseconds()
	out := make([]AgentRecord, 0, len(s.agents))
	for _, rec := range s.agents {
		r := *rec
		r.IsAlive = r.LastHeartbeat >= cutoff
		out = append(out, r)
	}
	return out
}

// Totals reports ring sizes for /api/state.
func (s *State) Totals() (signals, alerts, launches, mev, gas int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signals), len(s.whaleAlerts), len(s.tokenLaunches), len(s.mevOpportunities), len(s.gasUpdates)
}

// Uptime reports how long the hub has been running.
func (s *State) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

func prependSignal(ring []StoredSignal, sig StoredSignal, limit int) []StoredSignal {
	ring = append([]StoredSignal{sig}, ring...)
	if len(ring) > limit {
		ring = ring[:limit]
	}
	return ring
}

func appendCapped(ring []float64, v float64, limit int) []float64 {
	ring = append(ring, v)
	if len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	return ring
}

func capSlice[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
