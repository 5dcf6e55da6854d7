package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "duckswarm", cfg.App.Name)
	assert.Equal(t, 3001, cfg.Hub.Port)
	assert.Equal(t, 5*time.Second, cfg.Price.CacheTTL())
	assert.Equal(t, 10*time.Second, cfg.Price.HTTPTimeout())
	assert.Equal(t, 30*time.Second, cfg.Advisor.Timeout())
}

func TestLoadChainEnv(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "0x"+repeat64("a"))
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("DUCK_SIGNALS_ADDRESS", "0xABCDEF0000000000000000000000000000000001")

	cfg, err := Load("")
	require.NoError(t, err)

	// 0x prefix stripped, address lowercased.
	assert.Equal(t, repeat64("a"), cfg.Chain.PrivateKey)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", cfg.Chain.RegistryAddress)
	assert.False(t, cfg.Chain.ReadOnly())
	assert.True(t, cfg.Chain.RegistrationEnabled())
}

func TestReadOnlyWithoutKey(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Chain.ReadOnly())
}

func TestRegistrationDisabled(t *testing.T) {
	tests := []struct {
		name    string
		address string
	}{
		{"empty", ""},
		{"zero address", ZeroAddress},
		{"zero address mixed case", "0x0000000000000000000000000000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := ChainConfig{RegistryAddress: tt.address}
			assert.False(t, cc.RegistrationEnabled())
		})
	}
}

func TestValidateRejectsBadKey(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "deadbeef")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private key")
}

func TestReceiptTimeoutDefault(t *testing.T) {
	cc := ChainConfig{}
	assert.Equal(t, 30*time.Second, cc.ReceiptTimeout())

	cc.ReceiptTimeoutMs = 5000
	assert.Equal(t, 5*time.Second, cc.ReceiptTimeout())
}

func repeat64(s string) string {
	out := ""
	for i := 0; i < 64; i++ {
		out += s
	}
	return out
}
