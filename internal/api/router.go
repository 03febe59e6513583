package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carepoint/slot-booking-service/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	Ledger  *booking.Ledger
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot operations and views
	r.Get("/slots", listSlotsHandler(cfg.Service))
	r.Post("/slots", addSlotHandler(cfg.Service))
	r.Patch("/slots/{id}", editSlotHandler(cfg.Service))
	r.Delete("/slots/{id}", removeSlotHandler(cfg.Service))
	r.Get("/providers/{id}/slots", listProviderSlotsHandler(cfg.Service))

	// Appointment operations
	r.Post("/appointments", addAppointmentHandler(cfg.Service))
	r.Patch("/appointments/{id}", editAppointmentHandler(cfg.Service))
	r.Delete("/appointments/{id}", removeAppointmentHandler(cfg.Service))

	// Ledger transitions
	r.Post("/appointments/{id}/ready", ledgerHandler(func(req *http.Request, id uuid.UUID) (uuid.UUID, error) {
		return cfg.Ledger.ToReady(req.Context(), id)
	}))
	r.Post("/appointments/{id}/waiting-for-prescription", ledgerHandler(func(req *http.Request, id uuid.UUID) (uuid.UUID, error) {
		return cfg.Ledger.ToWaitingForPrescription(req.Context(), id)
	}))
	r.Post("/appointments/{id}/completed", ledgerHandler(func(req *http.Request, id uuid.UUID) (uuid.UUID, error) {
		return cfg.Ledger.ToCompleted(req.Context(), id)
	}))

	// Schedule views
	r.Get("/patients/{id}/schedule", patientScheduleHandler(cfg.Service))
	r.Get("/providers/{id}/schedule", providerScheduleHandler(cfg.Service))

	return r
}
