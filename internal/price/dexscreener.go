package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/duckpond/duckswarm/internal/config"
)

// DefaultDexscreenerURL is the public aggregator endpoint.
const DefaultDexscreenerURL = "https://api.dexscreener.com"

// ErrNoPair means the aggregator answered but had no usable pair.
var ErrNoPair = errors.New("price: no usable pair")

// dexPair mirrors the aggregator's pair object. Numeric strings stay
// strings until parsed; the upstream format is treated as opaque.
type dexPair struct {
	PairAddress string `json:"pairAddress"`
	PriceNative string `json:"priceNative"`
	PriceUSD    string `json:"priceUsd"`
	Volume      struct {
		H24 float64 `json:"h24"`
		H6  float64 `json:"h6"`
		H1  float64 `json:"h1"`
	} `json:"volume"`
	PriceChange struct {
		M5  float64 `json:"m5"`
		H1  float64 `json:"h1"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Txns struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
		H1 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h1"`
	} `json:"txns"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
	BaseToken struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"baseToken"`
}

type dexResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// DexClient queries the dexscreener aggregator. Calls run through a rate
// limiter and a circuit breaker so a flapping upstream fails fast instead
// of eating the 10 s timeout on every tick.
type DexClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewDexClient builds a client against baseURL (empty means the public
// endpoint) with the given request timeout and per-minute budget.
func NewDexClient(baseURL string, timeout time.Duration, requestsPerMin int) *DexClient {
	if baseURL == "" {
		baseURL = DefaultDexscreenerURL
	}
	if requestsPerMin <= 0 {
		requestsPerMin = 60
	}
	logger := config.NewLogger("dexscreener")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dexscreener",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	})

	return &DexClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMin)/60.0), requestsPerMin/6+1),
		log:     logger,
	}
}

// FetchToken returns the best (max liquidity) pair for a token as a
// Sample with Source="primary".
func (d *DexClient) FetchToken(ctx context.Context, tokenAddress string) (*Sample, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := d.breaker.Execute(func() (interface{}, error) {
		return d.fetch(ctx, tokenAddress)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Sample), nil
}

func (d *DexClient) fetch(ctx context.Context, tokenAddress string) (*Sample, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexscreener request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("dexscreener returned %d", resp.StatusCode)
	}

	var decoded dexResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode dexscreener response: %w", err)
	}
	if len(decoded.Pairs) == 0 {
		return nil, ErrNoPair
	}

	best := decoded.Pairs[0]
	for _, p := range decoded.Pairs[1:] {
		if p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}

	priceNative, _ := strconv.ParseFloat(best.PriceNative, 64)
	if priceNative <= 0 {
		return nil, ErrNoPair
	}
	priceUSD, _ := strconv.ParseFloat(best.PriceUSD, 64)

	marketCap := best.MarketCap
	if marketCap == 0 {
		marketCap = best.FDV
	}

	return &Sample{
		Price:        priceNative,
		PriceUSD:     priceUSD,
		PriceNative:  priceNative,
		Timestamp:    time.Now().UnixMilli(),
		Volume24h:    best.Volume.H24,
		Volume6h:     best.Volume.H6,
		Volume1h:     best.Volume.H1,
		PriceChange:  PriceChange{M5: best.PriceChange.M5, H1: best.PriceChange.H1, H24: best.PriceChange.H24},
		LiquidityUSD: best.Liquidity.USD,
		MarketCap:    marketCap,
		Buys24h:      best.Txns.H24.Buys,
		Sells24h:     best.Txns.H24.Sells,
		Buys1h:       best.Txns.H1.Buys,
		Sells1h:      best.Txns.H1.Sells,
		Source:       SourcePrimary,
		TokenSymbol:  best.BaseToken.Symbol,
		TokenName:    best.BaseToken.Name,
		TokenAddress: tokenAddress,
	}, nil
}
