package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/heihuo000/message-board-system/internal/api/middleware"
	"github.com/heihuo000/message-board-system/internal/handlers"
	"github.com/heihuo000/message-board-system/internal/presence"
	"github.com/heihuo000/message-board-system/internal/store"
	"github.com/heihuo000/message-board-system/internal/wait"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, s store.MessageStore, tracker presence.Tracker, waiter *wait.Waiter) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(store.MaxContentBytes + 1024)) // content plus envelope
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(s, tracker, waiter, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Messages
	r.Post("/messages", h.SendMessage)
	r.Get("/messages", h.ReadMessages)
	r.Post("/messages/read", h.MarkRead)
	r.Get("/status", h.Status)
	r.Get("/find", h.Search)

	// Blocking wait; holds the response open up to the requested timeout
	r.Post("/wait", h.Wait)

	// Presence
	r.Post("/presence/register", h.Register)
	r.Post("/presence/heartbeat", h.Heartbeat)
	r.Get("/presence", h.GetPresence)

	return r
}
