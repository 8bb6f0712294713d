// cmd/accounts/main.go
package main

import (
	"context"
	"flag"
	"os"

	"shepherd/internal/accounts"
	"shepherd/internal/auth"
	"shepherd/internal/config"
	"shepherd/internal/notify"
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

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, "accounts")
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

	mailer, err := notify.New(ctx, cfg.SES)
	if err != nil {
		logger.Error("mailer", "err", err)
		os.Exit(1)
	}

	svc := accounts.NewService(eventstore.New(db), db, issuer, mailer, accounts.Options{
		AcceptURL:        cfg.SES.AcceptURL,
		InviteTTL:        cfg.SES.InviteTTL(),
		InvitesPerMinute: cfg.Limits.InvitesPerMinute,
		LoginsPerMinute:  cfg.Limits.LoginsPerMinute,
	})

	r := server.NewRouter(cfg, "accounts")
	server.Handle(r, accounts.NewHandler(svc, issuer).Routes(), "/api/accounts")

	logger.Info("starting accounts service", "ses_from", cfg.SES.FromAddress)
	if err := server.Run(cfg.ListenAddr(8084), r, shutdownTracing); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
