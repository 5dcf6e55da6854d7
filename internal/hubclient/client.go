// Package hubclient is the agents' outbound side of the hub protocol:
// fire-and-forget POSTs plus a background heartbeat cadence. A hub outage
// must never stall an agent's analysis loop, so every call swallows its
// error after logging and just reports success or failure.
package hubclient

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/config"
)

const postTimeout = 5 * time.Second

// Signal is a trading signal as posted to /api/signal.
type Signal struct {
	AgentName  string         `json:"agentName"`
	Type       string         `json:"type"` // BUY, SELL, HOLD
	Confidence float64        `json:"confidence"`
	Price      float64        `json:"price"`
	Reason     string         `json:"reason"`
	Category   string         `json:"category"`
	Indicators map[string]any `json:"indicators,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// WhaleAlert is a large-transfer event as posted to /api/whale/alert.
type WhaleAlert struct {
	AgentName string  `json:"agentName"`
	Wallet    string  `json:"wallet"`
	Amount    float64 `json:"amount"` // whole tokens
	Direction string  `json:"direction"`
	Tier      string  `json:"tier"`
	TxHash    string  `json:"txHash"`
	GasGwei   float64 `json:"gasGwei"`
	Timestamp int64   `json:"timestamp"`
}

// TokenLaunch is a bonding-curve event as posted to /api/token/launch.
type TokenLaunch struct {
	AgentName    string  `json:"agentName"`
	TokenAddress string  `json:"tokenAddress"`
	TokenName    string  `json:"tokenName"`
	TokenSymbol  string  `json:"tokenSymbol"`
	Progress     float64 `json:"progress"`
	Graduated    bool    `json:"graduated"`
	Alert        string  `json:"alert,omitempty"`
}

// GasUpdate is a gas observation as posted to /api/gas/update.
type GasUpdate struct {
	AgentName      string  `json:"agentName"`
	GasGwei        float64 `json:"gasGwei"`
	Recommendation string  `json:"recommendation"`
	NextBlockGwei  float64 `json:"nextBlockGwei"`
	Timestamp      int64   `json:"timestamp"`
}

// MEVOpportunity is posted to /api/mev/opportunity.
type MEVOpportunity struct {
	AgentName   string  `json:"agentName"`
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	ProfitEst   float64 `json:"profitEstimate"`
	Timestamp   int64   `json:"timestamp"`
}

// Heartbeat is posted to /api/agent/heartbeat.
type Heartbeat struct {
	AgentName string         `json:"agentName"`
	Category  string         `json:"category"`
	Status    string         `json:"status"`
	UptimeMs  int64          `json:"uptimeMs"`
	Stats     map[string]any `json:"stats,omitempty"`
}

// Client posts agent output to the hub.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds a hub client against baseURL (e.g. http://localhost:3001).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: postTimeout},
		log:     config.NewLogger("hubclient"),
	}
}

// PostSignal sends a trading signal to the hub.
func (c *Client) PostSignal(sig Signal) bool {
	return c.post("/api/signal", sig)
}

// PostWhaleAlert sends a whale alert to the hub.
func (c *Client) PostWhaleAlert(alert WhaleAlert) bool {
	return c.post("/api/whale/alert", alert)
}

// PostTokenLaunch sends a bonding-curve event to the hub.
func (c *Client) PostTokenLaunch(launch TokenLaunch) bool {
	return c.post("/api/token/launch", launch)
}

// PostGasUpdate sends a gas observation to the hub.
func (c *Client) PostGasUpdate(update GasUpdate) bool {
	return c.post("/api/gas/update", update)
}

// PostMEVOpportunity sends an MEV observation to the hub.
func (c *Client) PostMEVOpportunity(op MEVOpportunity) bool {
	return c.post("/api/mev/opportunity", op)
}

// PostHeartbeat sends a liveness report to the hub.
func (c *Client) PostHeartbeat(hb Heartbeat) bool {
	return c.post("/api/agent/heartbeat", hb)
}

func (c *Client) post(path string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("failed to marshal hub payload")
		return false
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("hub post failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("hub rejected post")
		return false
	}
	return true
}
