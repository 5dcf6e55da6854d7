package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckpond/duckswarm/internal/agent"
	"github.com/duckpond/duckswarm/internal/hubclient"
	"github.com/duckpond/duckswarm/internal/price"
)

type fakeBonding struct {
	status price.BondingStatus
}

func (f *fakeBonding) BondingProgress(_ context.Context, _ string) price.BondingStatus {
	return f.status
}

type fakeLaunchSink struct {
	launches []hubclient.TokenLaunch
}

func (f *fakeLaunchSink) PostTokenLaunch(launch hubclient.TokenLaunch) bool {
	f.launches = append(f.launches, launch)
	return true
}

func healthySample() *price.Sample {
	return &price.Sample{
		Price:        1.5,
		LiquidityUSD: 250_000,
		Volume24h:    80_000,
		Buys24h:      300,
		Sells24h:     200,
		TokenName:    "Duck",
		TokenSymbol:  "DUCK",
	}
}

func stateWith(sample *price.Sample) *agent.State {
	prices := []float64{1.4, 1.42, 1.45, 1.48, 1.5}
	return &agent.State{Prices: prices, Volumes: []float64{1, 1, 1, 1, 1}, Latest: sample, Aux: map[string]any{}}
}

func newTestAnalyzer(status price.BondingStatus, sink *fakeLaunchSink) *liquidityAnalyzer {
	return &liquidityAnalyzer{
		bonding: &fakeBonding{status: status},
		sink:    sink,
		token:   "0x00000000000000000000000000000000000000aa",
	}
}

func TestInsufficientDataHolds(t *testing.T) {
	a := newTestAnalyzer(price.BondingStatus{}, &fakeLaunchSink{})
	st := &agent.State{Prices: []float64{1.0}, Latest: healthySample()}
	res, err := a.Analyze(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "HOLD", res.Type)
	assert.Equal(t, "Insufficient data", res.Reason)
}

func TestRugRiskComponents(t *testing.T) {
	graduated := price.BondingStatus{Progress: 100, Graduated: true}

	cases := []struct {
		name   string
		sample price.Sample
		status price.BondingStatus
		want   int
	}{
		{"healthy graduated", *healthySample(), graduated, 0},
		{"critically thin", price.Sample{LiquidityUSD: 5_000, Volume24h: 80_000, Buys24h: 300, Sells24h: 200}, graduated, riskCriticalLiquidity},
		{"thin", price.Sample{LiquidityUSD: 30_000, Volume24h: 80_000, Buys24h: 300, Sells24h: 200}, graduated, riskLowLiquidity},
		{"on curve", *healthySample(), price.BondingStatus{Progress: 40}, riskNotGraduated},
		{"dumping", price.Sample{LiquidityUSD: 250_000, Volume24h: 80_000, Buys24h: 100, Sells24h: 200}, graduated, riskSellPressure},
		{"cratering", price.Sample{LiquidityUSD: 250_000, Volume24h: 80_000, Buys24h: 300, Sells24h: 200, PriceChange: price.PriceChange{H1: -35}}, graduated, riskSharpDrop},
		{"dead volume", price.Sample{LiquidityUSD: 250_000, Volume24h: 500, Buys24h: 300, Sells24h: 200}, graduated, riskLowVolume},
	}
	for _, tc := range cases {
		score, _ := rugRisk(&tc.sample, tc.status)
		assert.Equal(t, tc.want, score, tc.name)
	}
}

func TestWorstCaseRiskClampsTo100(t *testing.T) {
	sample := &price.Sample{
		LiquidityUSD: 1_000,
		Volume24h:    100,
		Buys24h:      10,
		Sells24h:     100,
		PriceChange:  price.PriceChange{H1: -50},
	}
	score, factors := rugRisk(sample, price.BondingStatus{Progress: 20})
	assert.Equal(t, 100, score)
	assert.Len(t, factors, 5)
}

func TestRiskLevels(t *testing.T) {
	assert.Equal(t, "LOW", riskLevel(0))
	assert.Equal(t, "MEDIUM", riskLevel(30))
	assert.Equal(t, "HIGH", riskLevel(60))
	assert.Equal(t, "CRITICAL", riskLevel(80))
}

func TestHighRiskSignalsSell(t *testing.T) {
	sink := &fakeLaunchSink{}
	a := newTestAnalyzer(price.BondingStatus{Progress: 30}, sink)
	sample := &price.Sample{
		LiquidityUSD: 5_000,
		Volume24h:    500,
		Buys24h:      10,
		Sells24h:     100,
	}
	res, err := a.Analyze(context.Background(), stateWith(sample))
	require.NoError(t, err)
	assert.Equal(t, "SELL", res.Type)
	// 30 + 15 + 20 + 15 = 80
	assert.Equal(t, 80, res.Confidence)
	assert.Equal(t, 80, res.Indicators["rugRisk"])
	assert.Equal(t, "CRITICAL", res.Indicators["riskLevel"])
}

func TestHealthyBuyPressureSignalsBuy(t *testing.T) {
	sink := &fakeLaunchSink{}
	a := newTestAnalyzer(price.BondingStatus{Progress: 100, Graduated: true}, sink)
	res, err := a.Analyze(context.Background(), stateWith(healthySample()))
	require.NoError(t, err)
	assert.Equal(t, "BUY", res.Type)
	assert.Equal(t, 55, res.Confidence)
}

func TestGraduationImminentAlert(t *testing.T) {
	sink := &fakeLaunchSink{}
	a := newTestAnalyzer(price.BondingStatus{Progress: 91}, sink)
	_, err := a.Analyze(context.Background(), stateWith(healthySample()))
	require.NoError(t, err)

	require.Len(t, sink.launches, 1)
	launch := sink.launches[0]
	assert.Contains(t, launch.Alert, "GRADUATION IMMINENT")
	assert.Equal(t, 91.0, launch.Progress)
	assert.False(t, launch.Graduated)
	assert.Equal(t, "DUCK", launch.TokenSymbol)
}

func TestNoAlertOnceGraduated(t *testing.T) {
	sink := &fakeLaunchSink{}
	a := newTestAnalyzer(price.BondingStatus{Progress: 100, Graduated: true}, sink)
	_, err := a.Analyze(context.Background(), stateWith(healthySample()))
	require.NoError(t, err)

	require.Len(t, sink.launches, 1)
	assert.Empty(t, sink.launches[0].Alert)
	assert.True(t, sink.launches[0].Graduated)
}

func TestNoLaunchUpdateWithoutCurveData(t *testing.T) {
	sink := &fakeLaunchSink{}
	a := newTestAnalyzer(price.BondingStatus{}, sink)
	_, err := a.Analyze(context.Background(), stateWith(healthySample()))
	require.NoError(t, err)
	assert.Empty(t, sink.launches)
}
