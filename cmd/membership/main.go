// cmd/membership/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-chi/chi/v5"

	"shepherd/internal/auth"
	"shepherd/internal/config"
	"shepherd/internal/membership"
	"shepherd/internal/pkg/eventstore"
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
	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, "membership")
	if err != nil {
		logger.Error("init tracing", "err", err)
		os.Exit(1)
	}
	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL())
	if err != nil {
		logger.Error("auth", "err", err)
		os.Exit(1)
	}
	db, err := server.OpenDB(ctx, cfg.Database)
	if err != nil {
		logger.Error("database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	svc := membership.NewService(eventstore.New(db), db, cfg.Limits.ImportsPerMinute)

	r := server.NewRouter(cfg, "membership")
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer))
		server.Handle(r, membership.NewHandler(svc).Routes(), "/api/members", "/api/households")
	})

	logger.Info("starting membership service")
	if err := server.Run(cfg.ListenAddr(8081), r, shutdownTracing); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
