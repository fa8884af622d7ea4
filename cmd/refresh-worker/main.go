package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/niceverygood/maria-reservation-sub001/internal/availability"
	"github.com/niceverygood/maria-reservation-sub001/internal/booking"
	"github.com/niceverygood/maria-reservation-sub001/internal/config"
	"github.com/niceverygood/maria-reservation-sub001/internal/db"
	"github.com/niceverygood/maria-reservation-sub001/internal/metrics"
	redisclient "github.com/niceverygood/maria-reservation-sub001/internal/redis"
	"github.com/niceverygood/maria-reservation-sub001/internal/schedule"
	"github.com/niceverygood/maria-reservation-sub001/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("refresh-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.RefreshInterval),
		zap.Int("horizon_days", cfg.HorizonDays))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	rules := schedule.NewPgRuleStore(pgPool)
	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)
	summaries := availability.NewStore(rdb, cfg.SummaryTTL)

	refresher := availability.NewRefresher(repo, rules, repo, summaries, engineMetrics, logger, cfg)
	refresher.Run(rootCtx)

	logger.Info("refresh-worker stopped")
}
