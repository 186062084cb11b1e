package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medicore/hospital-scheduling/internal/auth"
	"github.com/medicore/hospital-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service *scheduling.Service
	Tokens  *auth.TokenManager
	Logger  zerolog.Logger
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
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

	h := &handlers{svc: cfg.Service, tokens: cfg.Tokens}

	// Public
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Get("/doctors", h.listDoctors)
	r.Get("/departments", h.listDepartments)
	r.Get("/departments/{id}/doctors", h.departmentDoctors)

	// Authenticated
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Tokens))

		r.Get("/doctors/{id}/slots", h.doctorSlots)

		r.With(auth.RequireRole(scheduling.RolePatient)).
			Post("/appointments", h.book)
		r.With(auth.RequireRole(scheduling.RolePatient, scheduling.RoleDoctor)).
			Get("/appointments", h.listAppointments)
		r.Post("/appointments/{id}/cancel", h.cancel)
		r.With(auth.RequireRole(scheduling.RoleDoctor, scheduling.RoleAdmin)).
			Post("/appointments/{id}/complete", h.complete)
		r.With(auth.RequireRole(scheduling.RoleDoctor)).
			Post("/appointments/{id}/treatment", h.recordTreatment)
		r.Get("/appointments/{id}/treatment", h.getTreatment)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(scheduling.RoleDoctor))
			r.Put("/availability", h.applyOverrides)
			r.Delete("/availability", h.clearOverride)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(scheduling.RoleAdmin))
			r.Get("/admin/overview", h.overview)
			r.Post("/admin/doctors", h.createDoctor)
			r.Patch("/admin/doctors/{id}", h.setDoctorActive)
			r.Post("/admin/departments", h.createDepartment)
		})
	})

	return r
}
