// Package price fetches token prices from the dexscreener aggregator with
// an on-chain swap-quote fallback, behind a short TTL cache with per-key
// request coalescing.
package price

// Sample sources.
const (
	SourcePrimary  = "primary"
	SourceFallback = "fallback"
	SourceCache    = "cache"
)

// PriceChange holds fractional price changes over standard windows.
type PriceChange struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H24 float64 `json:"h24"`
}

// Sample is one price observation. Immutable after return; cache hits hand
// out copies so a consumer can never mutate shared state.
type Sample struct {
	Price        float64     `json:"price"` // native quote
	PriceUSD     float64     `json:"priceUsd"`
	PriceNative  float64     `json:"priceNative"`
	Timestamp    int64       `json:"timestamp"` // unix ms
	Volume24h    float64     `json:"volume24h"`
	Volume6h     float64     `json:"volume6h"`
	Volume1h     float64     `json:"volume1h"`
	PriceChange  PriceChange `json:"priceChange"`
	LiquidityUSD float64     `json:"liquidityUsd"`
	MarketCap    float64     `json:"marketCap"`
	Buys24h      int         `json:"buys24h"`
	Sells24h     int         `json:"sells24h"`
	Buys1h       int         `json:"buys1h"`
	Sells1h      int         `json:"sells1h"`
	Source       string      `json:"source"`
	TokenSymbol  string      `json:"tokenSymbol"`
	TokenName    string      `json:"tokenName"`
	TokenAddress string      `json:"tokenAddress"`
}

// BondingStatus is a token's position on its launch bonding curve.
type BondingStatus struct {
	Progress  float64 `json:"progress"` // [0,100]
	Graduated bool    `json:"graduated"`
}
