package price

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/metrics"
)

// Anomaly bounds for the on-chain fallback quote. A computed price outside
// (1e-7, 1e3] is rejected rather than cached.
const (
	fallbackPriceFloor = 1e-7
	fallbackPriceCeil  = 1e3
)

// ChainQuoter is the on-chain read surface the service needs for its
// fallback price and bonding-curve queries. *chain.Client satisfies it.
type ChainQuoter interface {
	QuoteAmountOut(ctx context.Context, quoter common.Address, amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error)
	CurveProgress(ctx context.Context, curve, token common.Address) (uint64, error)
	CurveGraduated(ctx context.Context, curve, token common.Address) (bool, error)
}

// Service is the process-wide price source. Hits inside the TTL return a
// cached copy; concurrent misses for one key coalesce into a single
// upstream request.
type Service struct {
	dex   *DexClient
	chain ChainQuoter // nil disables the on-chain fallback

	focal  string // lowercased focal token address
	wmon   common.Address
	quoter common.Address
	curve  common.Address
	ttl    time.Duration

	mu        sync.RWMutex
	cache     map[string]*Sample
	lastKnown float64

	group singleflight.Group
	log   zerolog.Logger
}

// NewService wires the dexscreener client and an optional chain client
// into a Service for the configured focal token.
func NewService(cfg *config.Config, dex *DexClient, chainClient ChainQuoter) *Service {
	return &Service{
		dex:    dex,
		chain:  chainClient,
		focal:  strings.ToLower(cfg.Chain.TokenAddress),
		wmon:   common.HexToAddress(cfg.Chain.WMONAddress),
		quoter: common.HexToAddress(cfg.Chain.QuoterAddress),
		curve:  common.HexToAddress(cfg.Chain.CurveAddress),
		ttl:    cfg.Price.CacheTTL(),
		cache:  make(map[string]*Sample),
		log:    config.NewLogger("price"),
	}
}

// FetchPrice returns the current sample for a token, serving from cache
// within the TTL. Returns nil with an error only when every source failed
// and no cached sample exists.
func (s *Service) FetchPrice(ctx context.Context, tokenAddress string) (*Sample, error) {
	key := strings.ToLower(strings.TrimSpace(tokenAddress))
	if key == "" {
		key = s.focal
	}

	if hit := s.cachedCopy(key, true); hit != nil {
		metrics.PriceFetches.WithLabelValues(SourceCache).Inc()
		return hit, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// A coalesced waiter may arrive just after the winner stored.
		if hit := s.cachedCopy(key, true); hit != nil {
			return hit, nil
		}
		return s.fetchFresh(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	out := v.(*Sample)
	metrics.PriceFetches.WithLabelValues(out.Source).Inc()
	return out, nil
}

func (s *Service) fetchFresh(ctx context.Context, key string) (*Sample, error) {
	sample, err := s.dex.FetchToken(ctx, key)
	if err == nil {
		s.store(key, sample)
		out := *sample
		return &out, nil
	}
	s.log.Debug().Err(err).Str("token", key).Msg("primary price source failed")

	if key == s.focal && s.chain != nil && s.quoter != (common.Address{}) {
		if fb := s.fallbackQuote(ctx, key); fb != nil {
			s.store(key, fb)
			out := *fb
			return &out, nil
		}
	}

	if stale := s.cachedCopy(key, false); stale != nil {
		return stale, nil
	}
	return nil, fmt.Errorf("price: all sources failed for %s: %w", key, err)
}

// fallbackQuote derives the focal price from a swap quote for one WMON.
// Anomalous results are rejected.
func (s *Service) fallbackQuote(ctx context.Context, key string) *Sample {
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	amountOut, err := s.chain.QuoteAmountOut(ctx, s.quoter, oneToken, s.wmon, common.HexToAddress(key))
	if err != nil {
		s.log.Debug().Err(err).Msg("fallback quote failed")
		return nil
	}

	tokens := new(big.Float).Quo(new(big.Float).SetInt(amountOut), big.NewFloat(1e18))
	out, _ := tokens.Float64()
	if out <= 0 {
		return nil
	}
	price := 1 / out
	if price <= fallbackPriceFloor || price > fallbackPriceCeil {
		s.log.Warn().Float64("price", price).Msg("fallback price anomalous, rejected")
		return nil
	}

	return &Sample{
		Price:        price,
		PriceNative:  price,
		Timestamp:    time.Now().UnixMilli(),
		Source:       SourceFallback,
		TokenAddress: key,
	}
}

// BuildHistory seeds a price ring by sampling count times, one sample per
// interval. Failed samples are skipped but the slot still elapses, so the
// result may be shorter than count. This is the only temporal spacing the
// system has; nothing is backfilled.
func (s *Service) BuildHistory(ctx context.Context, tokenAddress string, count int, interval time.Duration) []Sample {
	samples := make([]Sample, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return samples
			case <-time.After(interval):
			}
		}
		sample, err := s.FetchPrice(ctx, tokenAddress)
		if err != nil || sample == nil {
			continue
		}
		samples = append(samples, *sample)
	}
	s.log.Info().Int("collected", len(samples)).Int("requested", count).Msg("price history built")
	return samples
}

// BondingProgress reads the token's bonding-curve state. Any error yields
// the zero status.
func (s *Service) BondingProgress(ctx context.Context, tokenAddress string) BondingStatus {
	if s.chain == nil || s.curve == (common.Address{}) {
		return BondingStatus{}
	}
	token := common.HexToAddress(tokenAddress)

	progress, err := s.chain.CurveProgress(ctx, s.curve, token)
	if err != nil {
		s.log.Debug().Err(err).Msg("bonding progress read failed")
		return BondingStatus{}
	}
	graduated, err := s.chain.CurveGraduated(ctx, s.curve, token)
	if err != nil {
		s.log.Debug().Err(err).Msg("graduation read failed")
		return BondingStatus{}
	}

	p := float64(progress)
	if p > 100 {
		p = 100
	}
	return BondingStatus{Progress: p, Graduated: graduated}
}

// LastKnownPrice returns the most recent successfully fetched focal price,
// or 0 before the first fetch.
func (s *Service) LastKnownPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKnown
}

// cachedCopy returns a copy of the cached sample with Source="cache", or
// nil. With freshOnly it respects the TTL; otherwise any cached sample
// qualifies (used after all sources failed).
func (s *Service) cachedCopy(key string, freshOnly bool) *Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached, ok := s.cache[key]
	if !ok {
		return nil
	}
	if freshOnly && time.Since(time.UnixMilli(cached.Timestamp)) >= s.ttl {
		return nil
	}
	out := *cached
	out.Source = SourceCache
	return &out
}

func (s *Service) store(key string, sample *Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = sample
	if key == s.focal && sample.Price > 0 {
		s.lastKnown = sample.Price
	}
}
