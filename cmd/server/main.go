// Package main provides the encounter table server binary: the HTTP/JSON API
// backed by PostgreSQL.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cory-johannsen/encounters/internal/api"
	"github.com/cory-johannsen/encounters/internal/config"
	"github.com/cory-johannsen/encounters/internal/dice"
	"github.com/cory-johannsen/encounters/internal/encounter"
	"github.com/cory-johannsen/encounters/internal/observability"
	"github.com/cory-johannsen/encounters/internal/server"
	"github.com/cory-johannsen/encounters/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	healthInterval := flag.Duration("health-interval", 15*time.Second, "database health check interval")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting encounter server",
		zap.String("mode", cfg.Server.Mode),
		zap.String("addr", cfg.Server.Addr()),
	)

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewEngineMetrics(registry)
	if err != nil {
		logger.Fatal("registering metrics", zap.Error(err))
	}
	if err := pool.RegisterMetrics(registry); err != nil {
		logger.Fatal("registering pool metrics", zap.Error(err))
	}

	monsters := postgres.NewMonsterRepository(pool.DB())
	if n, err := monsters.Count(ctx); err != nil {
		logger.Fatal("counting monsters", zap.Error(err))
	} else {
		logger.Info("monster catalog ready", zap.Int("monsters", n))
	}
	tables := postgres.NewTableStore(pool.DB())
	accounts := postgres.NewAccountRepository(pool.DB())

	roller := dice.NewRoller(dice.NewCryptoSource(), logger)
	svc := encounter.NewService(tables, monsters, roller, cfg.Encounter, metrics, logger)

	dbHealth := func(ctx context.Context) error {
		return pool.Health(ctx, 2*time.Second)
	}
	ctrl := api.New(svc, accounts, logger,
		api.WithMetrics(metrics, registry),
		api.WithHealthCheck(dbHealth),
	)
	ctrl.Echo.Debug = cfg.Server.Mode == "development"

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("http", server.NewHTTPService(ctrl.Echo, cfg.Server.Addr(),
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout, logger))
	lifecycle.Add("db-health", server.NewHealthMonitor("postgres", dbHealth, *healthInterval, 5*time.Second, logger))

	logger.Info("encounter server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return
	}
}
