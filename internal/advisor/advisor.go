// Package advisor proxies free-form analysis prompts to a hosted model
// endpoint. It is strictly best-effort: every failure path returns nil and
// the caller carries on without advice.
package advisor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duckpond/duckswarm/internal/config"
)

// Request pacing and cache bounds.
const (
	DefaultTimeout = 30 * time.Second

	maxAttempts  = 3
	firstBackoff = time.Second

	cacheTTL     = 5 * time.Minute
	cacheMaxSize = 50
)

// ClientConfig configures the advisor proxy.
type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
}

type cacheEntry struct {
	response   map[string]any
	insertedAt time.Time
}

// Client calls the remote endpoint with retries and a small insert-order
// response cache keyed by prompt hash.
type Client struct {
	endpoint    string
	apiKey      string
	temperature float64
	httpClient  *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
	order []string // insertion order for eviction

	log zerolog.Logger
}

// NewClient builds the proxy. Temperature defaults low so the model
// returns a stable JSON shape.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.2
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		cache:       make(map[string]cacheEntry),
		log:         config.NewLogger("advisor"),
	}
}

// Enabled reports whether the proxy has somewhere to send prompts.
func (c *Client) Enabled() bool {
	return c.endpoint != "" && c.apiKey != ""
}

// Call sends the prompt and returns the first JSON object found in the
// response, or nil on any failure.
func (c *Client) Call(ctx context.Context, prompt string) map[string]any {
	if !c.Enabled() {
		return nil
	}

	key := promptHash(prompt)
	if cached := c.cachedResponse(key); cached != nil {
		return cached
	}

	backoff := firstBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.request(ctx, prompt)
		if err == nil {
			c.storeResponse(key, result)
			return result
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("advisor call failed")

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil
}

func (c *Client) request(ctx context.Context, prompt string) (map[string]any, error) {
	payload := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature": c.temperature,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisor endpoint returned status %d", resp.StatusCode)
	}

	text, err := extractText(raw)
	if err != nil {
		return nil, err
	}

	obj := ExtractJSONObject(text)
	if obj == nil {
		return nil, fmt.Errorf("no JSON object in advisor response")
	}
	return obj, nil
}

// extractText pulls the first candidate's text out of a Gemini-style
// response envelope.
func extractText(raw []byte) (string, error) {
	var envelope struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse advisor envelope: %w", err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("advisor response had no candidates")
	}
	return envelope.Candidates[0].Content.Parts[0].Text, nil
}

// ExtractJSONObject finds the first balanced {...} substring and decodes
// it. Returns nil when none decodes.
func ExtractJSONObject(text string) map[string]any {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				var out map[string]any
				if err := json.Unmarshal([]byte(text[start:i+1]), &out); err == nil {
					return out
				}
				start = -1
			}
		}
	}
	return nil
}

func (c *Client) cachedResponse(key string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok {
		return nil
	}
	if time.Since(entry.insertedAt) > cacheTTL {
		delete(c.cache, key)
		return nil
	}
	return entry.response
}

func (c *Client) storeResponse(key string, response map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.cache[key]; !exists {
		c.order = append(c.order, key)
	}
	c.cache[key] = cacheEntry{response: response, insertedAt: time.Now()}

	// Evict the oldest insert once over capacity.
	for len(c.cache) > cacheMaxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}
}

func promptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
