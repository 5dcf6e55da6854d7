package price

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckpond/duckswarm/internal/config"
)

const (
	focalToken = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	otherToken = "0xcccccccccccccccccccccccccccccccccccccccc"
)

const pairsBody = `{"pairs":[
  {"pairAddress":"0x01","priceNative":"0.5","priceUsd":"1.25",
   "volume":{"h24":1000},"priceChange":{"m5":0.1,"h1":1.0,"h24":-2.0},
   "txns":{"h24":{"buys":40,"sells":20},"h1":{"buys":5,"sells":2}},
   "liquidity":{"usd":5000},"marketCap":100000,
   "baseToken":{"symbol":"DUCK","name":"Duck"}},
  {"pairAddress":"0x02","priceNative":"0.6","priceUsd":"1.5",
   "volume":{"h24":50},"txns":{},"liquidity":{"usd":10},
   "baseToken":{"symbol":"DUCK","name":"Duck"}}
]}`

type mockQuoter struct {
	amountOut *big.Int
	quoteErr  error
	progress  uint64
	graduated bool
	curveErr  error
}

func (m *mockQuoter) QuoteAmountOut(_ context.Context, _ common.Address, _ *big.Int, _, _ common.Address) (*big.Int, error) {
	return m.amountOut, m.quoteErr
}

func (m *mockQuoter) CurveProgress(_ context.Context, _, _ common.Address) (uint64, error) {
	return m.progress, m.curveErr
}

func (m *mockQuoter) CurveGraduated(_ context.Context, _, _ common.Address) (bool, error) {
	return m.graduated, m.curveErr
}

func testConfig(ttlMs int) *config.Config {
	return &config.Config{
		Chain: config.ChainConfig{
			TokenAddress:  focalToken,
			WMONAddress:   "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			QuoterAddress: "0xdddddddddddddddddddddddddddddddddddddddd",
			CurveAddress:  "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
		},
		Price: config.PriceConfig{CacheTTLMs: ttlMs, HTTPTimeoutMs: 2000, RequestsPerMin: 600},
	}
}

func newTestService(t *testing.T, handler http.HandlerFunc, quoter ChainQuoter, ttlMs int) (*Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testConfig(ttlMs)
	dex := NewDexClient(server.URL, cfg.Price.HTTPTimeout(), cfg.Price.RequestsPerMin)
	return NewService(cfg, dex, quoter), server
}

func serveBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}
}

func TestFetchPricePicksMaxLiquidityPair(t *testing.T) {
	svc, _ := newTestService(t, serveBody(pairsBody), nil, 5000)

	sample, err := svc.FetchPrice(context.Background(), focalToken)
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, 0.5, sample.Price, "the $5000-liquidity pair wins over the $10 one")
	assert.Equal(t, SourcePrimary, sample.Source)
	assert.Equal(t, 1000.0, sample.Volume24h)
	assert.Equal(t, 40, sample.Buys24h)
	assert.Equal(t, "DUCK", sample.TokenSymbol)
	assert.Equal(t, 0.5, svc.LastKnownPrice())
}

func TestFetchPriceCacheTTL(t *testing.T) {
	svc, _ := newTestService(t, serveBody(pairsBody), nil, 5000)

	first, err := svc.FetchPrice(context.Background(), focalToken)
	require.NoError(t, err)
	second, err := svc.FetchPrice(context.Background(), focalToken)
	require.NoError(t, err)

	assert.Equal(t, SourcePrimary, first.Source)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, first.Timestamp, second.Timestamp, "cache hit is the same observation")
	assert.Equal(t, first.Price, second.Price)
}

func TestFetchPriceCacheKeyIsLowercased(t *testing.T) {
	svc, _ := newTestService(t, serveBody(pairsBody), nil, 5000)

	_, err := svc.FetchPrice(context.Background(), focalToken)
	require.NoError(t, err)

	upper, err := svc.FetchPrice(context.Background(), "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, upper.Source)
}

func TestFetchPriceCoalescesConcurrentMisses(t *testing.T) {
	var requests atomic.Int32
	handler := func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(pairsBody))
	}
	svc, _ := newTestService(t, handler, nil, 5000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sample, err := svc.FetchPrice(context.Background(), focalToken)
			assert.NoError(t, err)
			assert.NotNil(t, sample)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), requests.Load(), "concurrent misses share one upstream request")
}

func TestFetchPriceFallbackQuote(t *testing.T) {
	// One WMON buys 4 tokens, so the token is worth 0.25 WMON.
	quoter := &mockQuoter{amountOut: new(big.Int).Mul(big.NewInt(4), big.NewInt(1e18))}
	svc, _ := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, quoter, 5000)

	sample, err := svc.FetchPrice(context.Background(), focalToken)
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, SourceFallback, sample.Source)
	assert.InDelta(t, 0.25, sample.Price, 1e-9)
}

func TestFetchPriceRejectsAnomalousFallback(t *testing.T) {
	// amountOut of 1e8 tokens implies a price of 1e-8, below the floor.
	anomalous := new(big.Int).Mul(big.NewInt(100_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	quoter := &mockQuoter{amountOut: anomalous}

	var healthy atomic.Bool
	healthy.Store(true)
	handler := func(w http.ResponseWriter, _ *http.Request) {
		if healthy.Load() {
			w.Write([]byte(pairsBody))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}
	svc, _ := newTestService(t, handler, quoter, 1)

	// Seed the cache, then break the primary and let the TTL lapse.
	_, err := svc.FetchPrice(context.Background(), focalToken)
	require.NoError(t, err)
	healthy.Store(false)
	time.Sleep(5 * time.Millisecond)

	sample, err := svc.FetchPrice(context.Background(), focalToken)
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, SourceCache, sample.Source, "anomalous quote falls back to the stale cache")
	assert.Equal(t, 0.5, sample.Price)
}

func TestFetchPriceNoSourcesNoCache(t *testing.T) {
	quoter := &mockQuoter{quoteErr: context.DeadlineExceeded}
	svc, _ := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, quoter, 5000)

	sample, err := svc.FetchPrice(context.Background(), focalToken)
	assert.Error(t, err)
	assert.Nil(t, sample)
}

func TestFetchPriceNonFocalTokenSkipsFallback(t *testing.T) {
	quoter := &mockQuoter{amountOut: big.NewInt(1e18)}
	svc, _ := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, quoter, 5000)

	sample, err := svc.FetchPrice(context.Background(), otherToken)
	assert.Error(t, err)
	assert.Nil(t, sample)
}

func TestFetchPriceEmptyPairs(t *testing.T) {
	svc, _ := newTestService(t, serveBody(`{"pairs":[]}`), nil, 5000)

	sample, err := svc.FetchPrice(context.Background(), otherToken)
	assert.Error(t, err)
	assert.Nil(t, sample)
}

func TestBuildHistorySkipsFailures(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, _ *http.Request) {
		// Every second upstream call fails.
		if calls.Add(1)%2 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(pairsBody))
	}
	svc, _ := newTestService(t, handler, nil, 1)

	samples := svc.BuildHistory(context.Background(), focalToken, 4, 5*time.Millisecond)
	assert.NotEmpty(t, samples)
	assert.Less(t, len(samples), 5)
}

func TestBuildHistoryRespectsContext(t *testing.T) {
	svc, _ := newTestService(t, serveBody(pairsBody), nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	samples := svc.BuildHistory(ctx, focalToken, 10, time.Hour)
	assert.LessOrEqual(t, len(samples), 1, "cancelled context stops after the immediate sample")
}

func TestBondingProgress(t *testing.T) {
	quoter := &mockQuoter{progress: 87, graduated: false}
	svc, _ := newTestService(t, serveBody(pairsBody), quoter, 5000)

	status := svc.BondingProgress(context.Background(), focalToken)
	assert.Equal(t, 87.0, status.Progress)
	assert.False(t, status.Graduated)
}

func TestBondingProgressErrorYieldsZero(t *testing.T) {
	quoter := &mockQuoter{progress: 90, curveErr: context.DeadlineExceeded}
	svc, _ := newTestService(t, serveBody(pairsBody), quoter, 5000)

	status := svc.BondingProgress(context.Background(), focalToken)
	assert.Equal(t, BondingStatus{}, status)
}
