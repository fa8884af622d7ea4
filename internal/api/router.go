package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Service   BookingService
	Summaries SummaryReader
	Refresher Sweeper
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    *zap.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	if cfg.PgPool != nil && cfg.Redis != nil {
		health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)
	}

	r.Handle("/metrics", promhttp.Handler())

	// Live availability
	r.Get("/practitioners/{id}/slots", listSlotsHandler(cfg.Service))

	// Advisory calendar counts from the summary cache
	r.Get("/practitioners/{id}/availability", practitionerCalendarHandler(cfg.Summaries))
	r.Get("/availability", allCalendarHandler(cfg.Service, cfg.Summaries))

	// Reservations
	r.Post("/reservations", createReservationHandler(cfg.Service))
	r.Get("/reservations/{id}", getReservationHandler(cfg.Service))
	r.Post("/reservations/{id}/cancel", cancelReservationHandler(cfg.Service))
	r.Post("/reservations/{id}/reschedule", rescheduleReservationHandler(cfg.Service))
	r.Post("/reservations/{id}/approve", approveReservationHandler(cfg.Service))
	r.Post("/reservations/{id}/decline", declineReservationHandler(cfg.Service))

	// Administrative refresh trigger
	r.Post("/admin/refresh", refreshHandler(cfg.Refresher))

	return r
}
