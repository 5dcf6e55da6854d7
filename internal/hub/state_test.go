package hub

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckpond/duckswarm/internal/hubclient"
)

func TestAddSignalRequiresAgentName(t *testing.T) {
	s := NewState()

	_, err := s.AddSignal(hubclient.Signal{Type: "BUY", Confidence: 80})
	require.ErrorIs(t, err, ErrMissingAgentName)

	_, err = s.AddSignal(hubclient.Signal{AgentName: "   ", Type: "BUY"})
	require.ErrorIs(t, err, ErrMissingAgentName)
}

func TestSignalRingNewestFirstAndCapped(t *testing.T) {
	s := NewState()

	for i := 0; i < SignalRingCap+25; i++ {
		_, err := s.AddSignal(hubclient.Signal{
			AgentName: "trading-agent",
			Type:      "BUY",
			Reason:    fmt.Sprintf("tick %d", i),
		})
		require.NoError(t, err)
	}

	signals := s.Signals(0)
	require.Len(t, signals, SignalRingCap)
	assert.Equal(t, fmt.Sprintf("tick %d", SignalRingCap+24), signals[0].Reason)
	assert.Equal(t, fmt.Sprintf("tick %d", 25), signals[len(signals)-1].Reason)
}

func TestAgentSignalsKeepLatestOnly(t *testing.T) {
	s := NewState()

	_, err := s.AddSignal(hubclient.Signal{AgentName: "market-agent", Type: "SELL", Confidence: 40})
	require.NoError(t, err)
	_, err = s.AddSignal(hubclient.Signal{AgentName: "market-agent", Type: "BUY", Confidence: 90})
	require.NoError(t, err)

	latest := s.AgentSignals()
	require.Len(t, latest, 1)
	assert.Equal(t, "BUY", latest["market-agent"].Type)
	assert.Equal(t, float64(90), latest["market-agent"].Confidence)
}

func TestEventRingsCapped(t *testing.T) {
	s := NewState()

	for i := 0; i < EventRingCap+10; i++ {
		s.AddWhaleAlert(hubclient.WhaleAlert{AgentName: "whale-agent", TxHash: fmt.Sprintf("0x%x", i)})
		s.AddTokenLaunch(hubclient.TokenLaunch{AgentName: "liquidity-agent"})
		s.AddGasUpdate(hubclient.GasUpdate{AgentName: "gas-agent", GasGwei: float64(i)})
		s.AddMEVOpportunity(hubclient.MEVOpportunity{AgentName: "onchain-agent"})
	}

	assert.Len(t, s.WhaleAlerts(0), EventRingCap)
	assert.Len(t, s.TokenLaunches(0), EventRingCap)
	assert.Len(t, s.GasUpdates(0), EventRingCap)
	assert.Len(t, s.MEVOpportunities(0), EventRingCap)

	// Newest first.
	alerts := s.WhaleAlerts(0)
	assert.Equal(t, fmt.Sprintf("0x%x", EventRingCap+9), alerts[0].TxHash)
}

func TestPriceHistoryBoundedOldestFirst(t *testing.T) {
	s := NewState()

	for i := 0; i < PriceRingCap+30; i++ {
		s.AppendPriceSample("0xAbC", float64(i), float64(i)*10)
	}

	prices, volumes := s.History("0xabc")
	require.Len(t, prices, PriceRingCap)
	require.Len(t, volumes, PriceRingCap)
	assert.Equal(t, float64(30), prices[0])
	assert.Equal(t, float64(PriceRingCap+29), prices[len(prices)-1])
	assert.Equal(t, float64(300), volumes[0])
}

func TestHeartbeatLiveness(t *testing.T) {
	s := NewState()
	now := time.Now()
	s.now = func() time.Time { return now }

	_, err := s.Heartbeat(hubclient.Heartbeat{AgentName: "gas-agent", Category: "gas", Status: "healthy"})
	require.NoError(t, err)

	agents := s.Agents()
	require.Len(t, agents, 1)
	assert.True(t, agents[0].IsAlive)

	// Advance past the liveness window.
	s.now = func() time.Time { return now.Add(HeartbeatLiveness + time.Second) }
	agents = s.Agents()
	require.Len(t, agents, 1)
	assert.False(t, agents[0].IsAlive)
}

func TestHeartbeatRequiresAgentName(t *testing.T) {
	s := NewState()
	_, err := s.Heartbeat(hubclient.Heartbeat{Category: "gas"})
	require.ErrorIs(t, err, ErrMissingAgentName)
}

func TestFocalTokenLowercased(t *testing.T) {
	s := NewState()
	s.SetFocalToken("0xDEADbeef00000000000000000000000000000000")
	assert.Equal(t, "0xdeadbeef00000000000000000000000000000000", s.FocalToken())
}

func TestStoreAndFetchAnalysis(t *testing.T) {
	s := NewState()
	a := &Analysis{TokenAddress: "0xAAA", Signal: "BUY"}
	s.StoreAnalysis(a)

	got := s.AnalysisFor("0xaaa")
	require.NotNil(t, got)
	assert.Equal(t, "BUY", got.Signal)
	assert.Nil(t, s.AnalysisFor("0xbbb"))
}
