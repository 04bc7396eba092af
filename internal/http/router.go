package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventloom/ticketpay/internal/observability"
	"github.com/eventloom/ticketpay/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyKeyMiddleware)

	r.Post("/v1/events", h.CreateEvent)
	r.Post("/v1/events/{id}/publish", h.PublishEvent)
	r.Post("/v1/events/{id}/registrations", h.Register)
	r.Delete("/v1/events/{id}/registrations", h.CancelRegistration)

	r.Post("/v1/payments/initiate", h.InitiatePayment)
	r.Get("/v1/payments/status/{id}", h.PaymentStatus)
	r.Get("/v1/payments/callback", h.PaymentCallback)

	r.Post("/v1/payouts", h.RequestPayout)
	r.Put("/v1/payouts/{id}", h.ResolvePayout)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
