package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/auth"
)

// Services are the dependencies the router dispatches to. Limiter may be nil.
type Services struct {
	Messages  MessageService
	Admin     AdminService
	JWT       *auth.JWTService
	Limiter   TestSendLimiter
	DB        Pinger
	CodeParam string
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(svc Services, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware)
	r.Use(RecoverMiddleware(log))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(svc.DB))
	r.Handle("/metrics", promhttp.Handler())

	codeParam := svc.CodeParam
	if codeParam == "" {
		codeParam = "code"
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Read-tracking marker target, fetched by mail clients without credentials.
		r.Get("/messages/read", TrackingPixelHandler(svc.Messages, codeParam, log))

		r.Group(func(r chi.Router) {
			r.Use(auth.JWTAuth(svc.JWT))

			r.Post("/messages", SendMessageHandler(svc.Messages, log))
			r.Get("/messages", SearchMessagesHandler(svc.Messages, log))
			r.Post("/messages/{code}/read", ConfirmReadingHandler(svc.Messages, log))

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))

				r.Get("/events", ListEventsHandler(svc.Admin, log))
				r.Get("/events/{eventType}/templates/{language}", GetTemplateHandler(svc.Admin, log))
				r.Put("/events/{eventType}/templates/{language}", UpdateTemplateHandler(svc.Admin, log))

				r.Get("/transports", ListTransportsHandler(svc.Admin, log))
				r.Get("/transports/{id}", GetTransportHandler(svc.Admin, log))
				r.Put("/transports/{id}", UpdateTransportHandler(svc.Admin, log))
				r.Post("/transports/{id}/test", SendTestMessageHandler(svc.Admin, svc.Limiter, log))
			})
		})
	})

	return r
}
