package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lumacare/visit-scheduling/internal/schedule"
)

type RouterConfig struct {
	Service  *schedule.Service
	Location *time.Location
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Visit endpoints
	r.Post("/visits", createVisitHandler(cfg.Service))
	r.Get("/visits", listVisitsHandler(cfg.Service, cfg.Location))
	r.Get("/visits/unassigned", listUnassignedHandler(cfg.Service, cfg.Location))
	r.Get("/visits/unassigned/count", unassignedCountHandler(cfg.Service))
	r.Get("/visits/{id}", getVisitHandler(cfg.Service))
	r.Post("/visits/{id}/assign", assignHandler(cfg.Service))
	r.Post("/visits/{id}/unassign", unassignHandler(cfg.Service))
	r.Post("/visits/{id}/reassign", reassignHandler(cfg.Service))
	r.Post("/visits/{id}/reschedule", rescheduleHandler(cfg.Service))
	r.Post("/visits/{id}/cancel", cancelVisitHandler(cfg.Service))

	// Calendar endpoints
	r.Get("/calendar/week", getWeekHandler(cfg.Service, cfg.Location))

	return r
}
