package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/duckpond/duckswarm/internal/chain"
	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/hubclient"
	"github.com/duckpond/duckswarm/internal/metrics"
	"github.com/duckpond/duckswarm/internal/price"
)

// Env is the wired infrastructure an agent process runs against.
type Env struct {
	Cfg     *config.Config
	Chain   *chain.Client // nil when no RPC endpoint is configured
	Prices  *price.Service
	Hub     *hubclient.Client
	Metrics *metrics.Server
}

// Bootstrap loads configuration, initializes logging, and wires the shared
// clients for one agent process. A configured but unreachable RPC endpoint
// is fatal; the supervisor treats the exit as a crash and backs off.
func Bootstrap(component string) (*Env, error) {
	// A missing .env is fine; the deployment may use real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("DUCKSWARM_CONFIG"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log := config.NewLogger(component)

	env := &Env{
		Cfg: cfg,
		Hub: hubclient.NewClient(cfg.Hub.URL),
	}

	var quoter price.ChainQuoter
	if cfg.Chain.RPCURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		eth, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("chain client init failed: %w", err)
		}
		backend := chain.Throttle(eth, 10)
		client, err := chain.NewClient(&cfg.Chain, backend)
		if err != nil {
			return nil, fmt.Errorf("chain client init failed: %w", err)
		}
		env.Chain = client
		quoter = client
	}

	dex := price.NewDexClient(price.DefaultDexscreenerURL, cfg.Price.HTTPTimeout(), cfg.Price.RequestsPerMin)
	env.Prices = price.NewService(cfg, dex, quoter)

	if cfg.Metrics.Enabled && cfg.Metrics.Port > 0 {
		env.Metrics = metrics.NewServer(cfg.Metrics.Port)
		env.Metrics.Start()
	}

	log.Info().
		Bool("chain", env.Chain != nil).
		Str("hub", cfg.Hub.URL).
		Msg("process wired")
	return env, nil
}

// ChainPoster returns the chain write surface, nil when not configured.
// A typed nil *chain.Client must not leak into the interface.
func (e *Env) ChainPoster() ChainPoster {
	if e.Chain == nil {
		return nil
	}
	return e.Chain
}

// SignalContext returns a context cancelled by SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Shutdown drains background servers within the grace window.
func (e *Env) Shutdown() {
	if e.Metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		e.Metrics.Shutdown(ctx)
	}
}
