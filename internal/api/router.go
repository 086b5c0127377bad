package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/scheduling/internal/appointment"
	"github.com/clinicdesk/scheduling/internal/booking"
	"github.com/clinicdesk/scheduling/internal/notify"
	"github.com/clinicdesk/scheduling/internal/schedule"
)

type RouterConfig struct {
	Schedules    *schedule.Store
	Appointments *appointment.Store
	Coordinator  *booking.Coordinator
	Notify       *notify.Handler
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Schedule endpoints
	r.Post("/schedule", createScheduleHandler(cfg.Schedules, cfg.Logger))
	r.Get("/schedule", listSchedulesHandler(cfg.Schedules, cfg.Logger))

	// Appointment endpoints
	r.Post("/appointment", createAppointmentHandler(cfg.Coordinator, cfg.Schedules.Location(), cfg.Logger))
	r.Put("/appointment/{id}/status", updateStatusHandler(cfg.Coordinator, cfg.Logger))
	r.Get("/appointment", listAppointmentsHandler(cfg.Appointments, cfg.Logger))

	// Real-time push channel
	r.Get("/ws", cfg.Notify.ServeWS)

	return r
}
