package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckpond/duckswarm/internal/agent"
)

func stateWith(prices []float64) *agent.State {
	volumes := make([]float64, len(prices))
	for i := range volumes {
		volumes[i] = 1000 + float64(i)
	}
	return &agent.State{Prices: prices, Volumes: volumes}
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestInsufficientDataHolds(t *testing.T) {
	res, err := tradingAnalyzer{}.Analyze(context.Background(), stateWith(ramp(minSamples-1, 1.0, 0.01)))
	require.NoError(t, err)
	assert.Equal(t, "HOLD", res.Type)
	assert.Equal(t, 30, res.Confidence)
	assert.Equal(t, "Insufficient data", res.Reason)
}

func TestExactMinimumProducesSignal(t *testing.T) {
	res, err := tradingAnalyzer{}.Analyze(context.Background(), stateWith(ramp(minSamples, 1.0, 0.01)))
	require.NoError(t, err)
	assert.NotEqual(t, "Insufficient data", res.Reason)
	assert.NotNil(t, res.Indicators)
	assert.GreaterOrEqual(t, res.Confidence, 25)
	assert.LessOrEqual(t, res.Confidence, 95)
}

func TestSteadyRampVotesBuy(t *testing.T) {
	res, err := tradingAnalyzer{}.Analyze(context.Background(), stateWith(ramp(60, 1.0, 0.02)))
	require.NoError(t, err)
	assert.Equal(t, "BUY", res.Type)
	assert.Greater(t, res.Indicators["netScore"].(float64), signalThreshold)
}

func TestSteadyDeclineVotesSell(t *testing.T) {
	res, err := tradingAnalyzer{}.Analyze(context.Background(), stateWith(ramp(60, 3.0, -0.02)))
	require.NoError(t, err)
	assert.Equal(t, "SELL", res.Type)
}

func TestFlatSeriesHolds(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 2.5
	}
	res, err := tradingAnalyzer{}.Analyze(context.Background(), stateWith(prices))
	require.NoError(t, err)
	assert.Equal(t, "HOLD", res.Type)
}

func TestConfidenceBounds(t *testing.T) {
	for _, prices := range [][]float64{
		ramp(60, 1.0, 0.05),
		ramp(60, 5.0, -0.05),
		ramp(60, 1.0, 0.0001),
	} {
		res, err := tradingAnalyzer{}.Analyze(context.Background(), stateWith(prices))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Confidence, 25)
		assert.LessOrEqual(t, res.Confidence, 95)
	}
}

func TestVoteScoreBounded(t *testing.T) {
	for _, prices := range [][]float64{
		ramp(100, 1.0, 0.10),
		ramp(100, 20.0, -0.15),
	} {
		st := stateWith(prices)
		res, err := tradingAnalyzer{}.Analyze(context.Background(), st)
		require.NoError(t, err)
		net := res.Indicators["netScore"].(float64)
		assert.GreaterOrEqual(t, net, -1.0)
		assert.LessOrEqual(t, net, 1.0)
	}
}
