package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/niceverygood/maria-reservation-sub001/internal/api"
	"github.com/niceverygood/maria-reservation-sub001/internal/availability"
	"github.com/niceverygood/maria-reservation-sub001/internal/booking"
	"github.com/niceverygood/maria-reservation-sub001/internal/config"
	"github.com/niceverygood/maria-reservation-sub001/internal/db"
	"github.com/niceverygood/maria-reservation-sub001/internal/metrics"
	"github.com/niceverygood/maria-reservation-sub001/internal/notify"
	redisclient "github.com/niceverygood/maria-reservation-sub001/internal/redis"
	"github.com/niceverygood/maria-reservation-sub001/internal/schedule"
	"github.com/niceverygood/maria-reservation-sub001/pkg/logging"
)

const version = "1.0.0"

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

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
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

	publisher := notify.NewRedisPublisher(rdb, notify.DefaultChannel)
	dispatcher := notify.NewDispatcher(publisher, cfg.NotifyTimeout, logger)

	coordinator := booking.NewCoordinator(repo, rules, dispatcher, engineMetrics, logger, cfg)

	summaries := availability.NewStore(rdb, cfg.SummaryTTL)
	refresher := availability.NewRefresher(repo, rules, repo, summaries, engineMetrics, logger, cfg)

	router := api.NewRouter(api.RouterConfig{
		Service:   coordinator,
		Summaries: summaries,
		Refresher: refresher,
		PgPool:    pgPool,
		Redis:     rdb,
		Logger:    logger,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
