// Package config loads process configuration from environment variables and
// optional config files, and initializes the global logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ZeroAddress is the EVM zero address; a registry set to it disables
// on-chain registration.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Config holds all application configuration shared by the hub, the
// supervisor, and the agent processes.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Hub     HubConfig     `mapstructure:"hub"`
	Price   PriceConfig   `mapstructure:"price"`
	Advisor AdvisorConfig `mapstructure:"advisor"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name      string `mapstructure:"name"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "json" or "console"
}

// ChainConfig contains EVM node and contract settings.
type ChainConfig struct {
	RPCURL           string `mapstructure:"rpc_url"`
	ChainID          int64  `mapstructure:"chain_id"`
	PrivateKey       string `mapstructure:"private_key"`
	RegistryAddress  string `mapstructure:"registry_address"`
	TokenAddress     string `mapstructure:"token_address"`
	WMONAddress      string `mapstructure:"wmon_address"`
	QuoterAddress    string `mapstructure:"quoter_address"`
	CurveAddress     string `mapstructure:"curve_address"`
	ReceiptTimeoutMs int    `mapstructure:"receipt_timeout_ms"`
}

// HubConfig contains hub server and hub client settings.
type HubConfig struct {
	Port int    `mapstructure:"port"`
	URL  string `mapstructure:"url"` // agent-side: where to POST events
}

// PriceConfig contains price service settings.
type PriceConfig struct {
	CacheTTLMs     int `mapstructure:"cache_ttl_ms"`
	HTTPTimeoutMs  int `mapstructure:"http_timeout_ms"`
	RequestsPerMin int `mapstructure:"requests_per_min"`
}

// AdvisorConfig contains the optional LLM advisor settings.
type AdvisorConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

// MetricsConfig contains prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads configuration from an optional YAML file plus environment
// variables. The chain-facing variables keep their historical unprefixed
// names (PRIVATE_KEY, RPC_URL, DUCK_SIGNALS_ADDRESS, ...) because the
// deployment sets them for every process.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("DUCKSWARM")

	// Unprefixed environment variables used across the fleet.
	bindings := map[string]string{
		"chain.private_key":      "PRIVATE_KEY",
		"chain.rpc_url":          "RPC_URL",
		"chain.chain_id":         "CHAIN_ID",
		"chain.registry_address": "DUCK_SIGNALS_ADDRESS",
		"chain.token_address":    "DUCK_TOKEN_ADDRESS",
		"chain.wmon_address":     "WMON_ADDRESS",
		"chain.quoter_address":   "QUOTER_ADDRESS",
		"chain.curve_address":    "CURVE_ADDRESS",
		"hub.url":                "WEBSOCKET_SERVER_URL",
		"hub.port":               "PORT",
		"advisor.api_key":        "GEMINI_API_KEY",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	// VITE_API_KEY is the legacy name for the advisor key; keep accepting it.
	if err := v.BindEnv("advisor.api_key", "GEMINI_API_KEY", "VITE_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind advisor key: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults and environment only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "duckswarm")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.chain_id", 10143)
	v.SetDefault("chain.registry_address", "")
	v.SetDefault("chain.token_address", "")
	v.SetDefault("chain.wmon_address", "")
	v.SetDefault("chain.quoter_address", "")
	v.SetDefault("chain.curve_address", "")
	v.SetDefault("chain.receipt_timeout_ms", 30000)

	v.SetDefault("hub.port", 3001)
	v.SetDefault("hub.url", "http://localhost:3001")

	v.SetDefault("price.cache_ttl_ms", 5000)
	v.SetDefault("price.http_timeout_ms", 10000)
	v.SetDefault("price.requests_per_min", 60)

	v.SetDefault("advisor.endpoint", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent")
	v.SetDefault("advisor.timeout_ms", 30000)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 0)
}

// normalize lowercases addresses and strips an optional 0x prefix from the
// private key so downstream code sees one canonical form.
func (c *Config) normalize() {
	c.Chain.RegistryAddress = strings.ToLower(strings.TrimSpace(c.Chain.RegistryAddress))
	c.Chain.TokenAddress = strings.ToLower(strings.TrimSpace(c.Chain.TokenAddress))
	c.Chain.WMONAddress = strings.ToLower(strings.TrimSpace(c.Chain.WMONAddress))
	c.Chain.QuoterAddress = strings.ToLower(strings.TrimSpace(c.Chain.QuoterAddress))
	c.Chain.CurveAddress = strings.ToLower(strings.TrimSpace(c.Chain.CurveAddress))
	c.Chain.PrivateKey = strings.TrimPrefix(strings.TrimSpace(c.Chain.PrivateKey), "0x")
}

// Validate checks configuration for values that would break at runtime.
func (c *Config) Validate() error {
	if c.Hub.Port < 0 || c.Hub.Port > 65535 {
		return fmt.Errorf("invalid hub port: %d", c.Hub.Port)
	}
	if c.Price.CacheTTLMs <= 0 {
		return fmt.Errorf("price cache TTL must be positive, got %d", c.Price.CacheTTLMs)
	}
	if c.Chain.PrivateKey != "" && len(c.Chain.PrivateKey) != 64 {
		return fmt.Errorf("private key must be 64 hex chars, got %d", len(c.Chain.PrivateKey))
	}
	return nil
}

// ReadOnly reports whether the process runs without a wallet. In read-only
// mode all on-chain writes are skipped.
func (c *ChainConfig) ReadOnly() bool {
	return c.PrivateKey == ""
}

// RegistrationEnabled reports whether on-chain agent registration should be
// attempted at all. An unset or zero registry address silently disables it.
func (c *ChainConfig) RegistrationEnabled() bool {
	return c.RegistryAddress != "" && c.RegistryAddress != ZeroAddress
}

// ReceiptTimeout returns the receipt wait timeout as a duration.
func (c *ChainConfig) ReceiptTimeout() time.Duration {
	ms := c.ReceiptTimeoutMs
	if ms <= 0 {
		ms = 30000
	}
	return time.Duration(ms) * time.Millisecond
}

// CacheTTL returns the price cache TTL as a duration.
func (c *PriceConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMs) * time.Millisecond
}

// HTTPTimeout returns the outbound HTTP timeout as a duration.
func (c *PriceConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMs) * time.Millisecond
}

// Timeout returns the advisor call timeout as a duration.
func (c *AdvisorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
