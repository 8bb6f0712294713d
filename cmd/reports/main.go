// cmd/reports/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-chi/chi/v5"

	"shepherd/internal/auth"
	"shepherd/internal/clients"
	"shepherd/internal/config"
	"shepherd/internal/pkg/logger"
	"shepherd/internal/pkg/server"
	"shepherd/internal/pkg/telemetry"
	"shepherd/internal/reporting"
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

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, "reports")
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

	rdb, err := server.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("redis", "err", err)
		os.Exit(1)
	}
	var cache reporting.Cache
	if rdb != nil {
		defer rdb.Close()
		cache = reporting.NewRedisCache(rdb, cfg.Redis.ReportTTL())
	}

	directory := clients.NewMembershipClient(cfg.Services.Membership, issuer)
	svc := reporting.NewService(reporting.NewPostgresRepository(db), cache, directory)

	r := server.NewRouter(cfg, "reports")
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer))
		r.Mount("/api/reports", reporting.NewHandler(svc).Routes())
	})

	logger.Info("starting reports service", "report_cache", rdb != nil, "membership", cfg.Services.Membership)
	if err := server.Run(cfg.ListenAddr(8083), r, shutdownTracing); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
