// cmd/api/main.go
package main

import (
	"context"
	"flag"
	"os"

	"shepherd/internal/config"
	"shepherd/internal/gateway"
	"shepherd/internal/pkg/logger"
	"shepherd/internal/pkg/server"
	"shepherd/internal/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Warn("log level", "err", err)
	}

	shutdownTracing, err := telemetry.Init(context.Background(), cfg.Telemetry, "gateway")
	if err != nil {
		logger.Error("init tracing", "err", err)
		os.Exit(1)
	}

	r := server.NewRouter(cfg, "gateway")
	if err := gateway.Mount(r, cfg.Services); err != nil {
		logger.Error("configure gateway", "err", err)
		os.Exit(1)
	}

	logger.Info("starting API gateway",
		"membership", cfg.Services.Membership,
		"records", cfg.Services.Records,
		"reports", cfg.Services.Reports,
		"accounts", cfg.Services.Accounts)
	if err := server.Run(cfg.ListenAddr(8080), r, shutdownTracing); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
