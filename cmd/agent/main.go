package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/bridgefleet/bridgefleet/pkg/agent"
	"github.com/bridgefleet/bridgefleet/pkg/bridgectl"
	"github.com/bridgefleet/bridgefleet/pkg/executor"
	_ "github.com/bridgefleet/bridgefleet/pkg/logutil"
	"github.com/bridgefleet/bridgefleet/pkg/transport"
	"github.com/bridgefleet/bridgefleet/pkg/util/contextutil"
)

func main() {
	logger := slog.Default()
	ctx := contextutil.SetupSignals(context.Background())

	cfg, err := agent.FromEnv(os.Getenv)
	if err != nil {
		logger.With("err", err).Error("invalid agent configuration")
		os.Exit(1)
	}

	ctrl := bridgectl.New(logger.With("component", "bridgectl"), cfg.Bridge)
	exec := executor.New(logger.With("component", "executor"), ctrl, cfg.ExecTimeout)
	client := transport.NewClient(cfg.Endpoint, cfg.FetchTimeout)

	a := agent.New(logger.With("component", "agent"), cfg, client, exec)
	logger.With("endpoint", cfg.Endpoint).With("device", cfg.DeviceID).Info("bridgefleet agent starting...")
	if err := a.Start(ctx); err != nil {
		logger.With("err", err).Error("failed to start agent")
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down bridgefleet agent...")
	if err := a.Stop(context.Background()); err != nil {
		logger.With("err", err).Error("failed to stop agent cleanly")
		os.Exit(1)
	}
}
