// cmd/records/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-chi/chi/v5"

	"shepherd/internal/attendance"
	"shepherd/internal/auth"
	"shepherd/internal/config"
	"shepherd/internal/giving"
	"shepherd/internal/pkg/eventstore"
	"shepherd/internal/pkg/logger"
	"shepherd/internal/pkg/server"
	"shepherd/internal/pkg/telemetry"
	"shepherd/internal/reporting"
)

// Records serves attendance sheets and giving. Writes drop the church's
// cached reports when Redis is configured.
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

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, "records")
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
	var inv attendance.Invalidator
	if rdb != nil {
		defer rdb.Close()
		inv = reporting.NewRedisCache(rdb, cfg.Redis.ReportTTL())
	} else {
		logger.Warn("REDIS_URL not set; report cache invalidation disabled")
	}

	es := eventstore.New(db)
	attendanceSvc := attendance.NewService(es, db, inv)
	givingSvc := giving.NewService(es, db, inv, cfg.Limits.ImportsPerMinute)

	r := server.NewRouter(cfg, "records")
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer))
		server.Handle(r, attendance.NewHandler(attendanceSvc).Routes(), "/api/services", "/api/attendance")
		server.Handle(r, giving.NewHandler(givingSvc).Routes(), "/api/giving")
	})

	logger.Info("starting records service", "report_cache", rdb != nil)
	if err := server.Run(cfg.ListenAddr(8082), r, shutdownTracing); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
