package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/bridgefleet/bridgefleet/pkg/config"
	_ "github.com/bridgefleet/bridgefleet/pkg/logutil"
	"github.com/bridgefleet/bridgefleet/pkg/server"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func main() {
	logger := slog.Default()

	configPath := flag.String("config", "", "path to the server config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.With("err", err).Error("failed to load config")
		os.Exit(1)
	}

	fleet, err := server.New(cfg)
	if err != nil {
		logger.With("err", err).Error("failed to build server")
		os.Exit(1)
	}

	logger.Info("bridgefleet starting...")
	if err := fleet.Run(context.Background()); err != nil {
		logger.With("err", err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("bridgefleet stopped")
}
