// The hub ingests the fleet's output over REST, streams it to websocket
// subscribers, and runs its own per-token analysis loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/duckpond/duckswarm/internal/advisor"
	"github.com/duckpond/duckswarm/internal/chain"
	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/hub"
	"github.com/duckpond/duckswarm/internal/metrics"
	"github.com/duckpond/duckswarm/internal/price"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("DUCKSWARM_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log := config.NewLogger("hub")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var quoter price.ChainQuoter
	if cfg.Chain.RPCURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		eth, err := chain.Dial(dialCtx, cfg.Chain.RPCURL)
		cancel()
		if err != nil {
			// The hub keeps serving agents without a node; the price
			// fallback path just stays disabled.
			log.Warn().Err(err).Msg("chain dial failed, running without fallback quotes")
		} else {
			backend := chain.Throttle(eth, 10)
			client, err := chain.NewClient(&cfg.Chain, backend)
			if err != nil {
				log.Warn().Err(err).Msg("chain client init failed, running without fallback quotes")
			} else {
				quoter = client
			}
		}
	}

	dex := price.NewDexClient(price.DefaultDexscreenerURL, cfg.Price.HTTPTimeout(), cfg.Price.RequestsPerMin)
	prices := price.NewService(cfg, dex, quoter)

	state := hub.NewState()
	var loop *hub.AnalysisLoop
	socket := hub.NewSocketHub(
		func() any { return hub.Snapshot(state) },
		func(addr string) { loop.Start(addr) },
	)
	loop = hub.NewAnalysisLoop(state, prices, socket, 0)
	if advice := advisor.NewClient(advisor.ClientConfig{
		Endpoint: cfg.Advisor.Endpoint,
		APIKey:   cfg.Advisor.APIKey,
		Timeout:  cfg.Advisor.Timeout(),
	}); advice.Enabled() {
		loop.SetAdvisor(advice)
		log.Info().Msg("advisor enabled")
	}
	server := hub.NewServer(cfg.Hub.Port, state, socket, loop)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Port > 0 {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		metricsServer.Start()
	}

	go socket.Run()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()
	log.Info().Int("port", cfg.Hub.Port).Msg("hub listening")

	if token := cfg.Chain.TokenAddress; token != "" {
		loop.Start(token)
	}

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("hub server failed")
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	loop.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("hub server did not stop cleanly")
		os.Exit(1)
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	log.Info().Msg("hub stopped")
}
