package main

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckpond/duckswarm/internal/agent"
	"github.com/duckpond/duckswarm/internal/hubclient"
)

type fakeGasSource struct {
	wei *big.Int
	err error
}

func (f *fakeGasSource) GasPrice(_ context.Context) (*big.Int, error) {
	return f.wei, f.err
}

type fakeGasSink struct {
	updates []hubclient.GasUpdate
}

func (f *fakeGasSink) PostGasUpdate(update hubclient.GasUpdate) bool {
	f.updates = append(f.updates, update)
	return true
}

func gwei(v float64) *big.Int {
	return big.NewInt(int64(v * 1e9))
}

func testState() *agent.State {
	return &agent.State{Prices: []float64{1.0}, Aux: map[string]any{}}
}

func newTestAnalyzer(source *fakeGasSource, sink *fakeGasSink) *gasAnalyzer {
	a := newGasAnalyzer(source, sink)
	a.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return a
}

func TestNilSourceHolds(t *testing.T) {
	a := newGasAnalyzer(nil, &fakeGasSink{})
	res, err := a.Analyze(context.Background(), testState())
	require.NoError(t, err)
	assert.Equal(t, "HOLD", res.Type)
	assert.Equal(t, 25, res.Confidence)
}

func TestPollErrorPropagates(t *testing.T) {
	a := newTestAnalyzer(&fakeGasSource{err: errors.New("rpc down")}, &fakeGasSink{})
	_, err := a.Analyze(context.Background(), testState())
	require.Error(t, err)
}

func TestGweiConversionAndUpdatePosted(t *testing.T) {
	sink := &fakeGasSink{}
	a := newTestAnalyzer(&fakeGasSource{wei: big.NewInt(2_500_000_000)}, sink)

	res, err := a.Analyze(context.Background(), testState())
	require.NoError(t, err)

	require.Len(t, sink.updates, 1)
	update := sink.updates[0]
	assert.InDelta(t, 2.5, update.GasGwei, 1e-9)
	assert.Equal(t, agentName, update.AgentName)
	assert.Equal(t, int64(1_700_000_000_000), update.Timestamp)
	assert.InDelta(t, 2.5, res.Payload["gasGwei"].(float64), 1e-9)
}

func TestShortRingRecommendsNormal(t *testing.T) {
	sink := &fakeGasSink{}
	a := newTestAnalyzer(&fakeGasSource{wei: gwei(50)}, sink)

	res, err := a.Analyze(context.Background(), testState())
	require.NoError(t, err)
	assert.Equal(t, "NORMAL", res.Payload["recommendation"])
	assert.Equal(t, "HOLD", res.Type)
}

func TestRecommendationBands(t *testing.T) {
	a := newTestAnalyzer(&fakeGasSource{}, &fakeGasSink{})
	a.ring = []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10}

	assert.Equal(t, "EXCELLENT", a.recommend(6))
	assert.Equal(t, "GOOD", a.recommend(8))
	assert.Equal(t, "NORMAL", a.recommend(10))
	assert.Equal(t, "ELEVATED", a.recommend(12))
	assert.Equal(t, "HIGH", a.recommend(14))
}

func TestCheapGasSignalsBuy(t *testing.T) {
	sink := &fakeGasSink{}
	source := &fakeGasSource{wei: gwei(10)}
	a := newTestAnalyzer(source, sink)
	for i := 0; i < 9; i++ {
		_, err := a.Analyze(context.Background(), testState())
		require.NoError(t, err)
	}

	source.wei = gwei(5)
	res, err := a.Analyze(context.Background(), testState())
	require.NoError(t, err)
	assert.Equal(t, "EXCELLENT", res.Payload["recommendation"])
	assert.Equal(t, "BUY", res.Type)
	assert.Equal(t, 55, res.Confidence)
}

func TestSpikingGasSignalsSell(t *testing.T) {
	sink := &fakeGasSink{}
	source := &fakeGasSource{wei: gwei(10)}
	a := newTestAnalyzer(source, sink)
	for i := 0; i < 9; i++ {
		_, err := a.Analyze(context.Background(), testState())
		require.NoError(t, err)
	}

	source.wei = gwei(30)
	res, err := a.Analyze(context.Background(), testState())
	require.NoError(t, err)
	assert.Equal(t, "HIGH", res.Payload["recommendation"])
	assert.Equal(t, "SELL", res.Type)
}

func TestNextBlockFollowsTrend(t *testing.T) {
	a := newTestAnalyzer(&fakeGasSource{}, &fakeGasSink{})
	a.ring = []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	next := a.nextBlockGwei(19)
	assert.InDelta(t, 20, next, 0.5)
}

func TestRingBounded(t *testing.T) {
	sink := &fakeGasSink{}
	a := newTestAnalyzer(&fakeGasSource{wei: gwei(10)}, sink)
	for i := 0; i < gasRingCap+20; i++ {
		_, err := a.Analyze(context.Background(), testState())
		require.NoError(t, err)
	}
	assert.Len(t, a.ring, gasRingCap)
}
