package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"salonadmin/internal/auth"
	"salonadmin/internal/config"
	"salonadmin/internal/db"
	"salonadmin/internal/httpserver"
	"salonadmin/internal/logging"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)
	if cfg.JWTSecret == config.DevJWTSecret {
		logger.Warn("using development JWT secret; set SALON_JWT_SECRET")
	}

	dbConn, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()

	if err := db.RunMigrations(ctx, dbConn); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	store := auth.NewStore(dbConn)
	if err := store.SeedFromFile(ctx, cfg.SeedPath); err != nil {
		log.Fatalf("seed: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := auth.NewMetrics(reg)

	authSvc := auth.NewService(store, auth.NewTokenService(cfg.JWTSecret), metrics)
	guard := auth.NewGuard(store, logger, metrics)

	handler := httpserver.NewRouter(httpserver.RouterDeps{
		Logger:     logger,
		Auth:       authSvc,
		Guard:      guard,
		Users:      store,
		Gatherer:   reg,
		CORSOrigin: cfg.CORSOrigin,
	})
	server := httpserver.New(cfg.HTTPAddr, handler, logger)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := server.Run(runCtx); err != nil {
		logger.Error("http server", "err", err)
		os.Exit(1)
	}
}
