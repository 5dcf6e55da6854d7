// supervise launches the hub and the agent fleet on a staggered schedule
// and restarts crashed children with capped exponential backoff. With a
// single path argument it runs just that child, immediately.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/duckpond/duckswarm/internal/config"
	"github.com/duckpond/duckswarm/internal/supervisor"
)

// launchStagger is the delay step between consecutive fleet members.
const launchStagger = 5 * time.Second

// fleet lists every child in launch order. The hub starts first so the
// agents have somewhere to post.
var fleet = []string{
	"hub",
	"trading-agent",
	"prediction-agent",
	"market-agent",
	"whale-agent",
	"liquidity-agent",
	"sentiment-agent",
	"onchain-agent",
	"gas-agent",
}

func fleetSpecs(binDir string) []supervisor.Spec {
	specs := make([]supervisor.Spec, 0, len(fleet))
	for i, name := range fleet {
		specs = append(specs, supervisor.Spec{
			Name:  name,
			Path:  filepath.Join(binDir, name),
			Delay: time.Duration(i) * launchStagger,
		})
	}
	return specs
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("DUCKSWARM_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log := config.NewLogger("supervisor")

	binDir := os.Getenv("DUCKSWARM_BIN_DIR")
	if binDir == "" {
		binDir = "./bin"
	}
	specs := fleetSpecs(binDir)

	if len(os.Args) > 1 {
		target := os.Args[1]
		// A bare agent name is accepted as shorthand for its path.
		for _, s := range specs {
			if s.Name == target {
				target = s.Path
				break
			}
		}
		single, ok := supervisor.FilterByPath(specs, target)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown agent path %q; known agents:\n", target)
			for _, s := range specs {
				fmt.Fprintf(os.Stderr, "  %s\n", s.Path)
			}
			os.Exit(1)
		}
		specs = single
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Int("children", len(specs)).Msg("starting fleet")
	if err := supervisor.New(specs, supervisor.Options{}).Run(ctx); err != nil {
		log.Error().Err(err).Msg("supervisor failed")
		os.Exit(1)
	}
	log.Info().Msg("fleet stopped")
}
