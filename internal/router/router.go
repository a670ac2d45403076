package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/maverickkhan/dental-clinic-assistant/internal/handlers"
	"github.com/maverickkhan/dental-clinic-assistant/internal/middleware"
	"github.com/maverickkhan/dental-clinic-assistant/internal/websocket"
)

type Options struct {
	CORSOrigins   []string
	ChatRateLimit int // per client per minute, 0 disables
}

// New wires the HTTP surface. queueHandler may be nil when no queue store
// is configured; the queue routes are then not mounted.
func New(
	logger zerolog.Logger,
	chatHandler *handlers.ChatHandler,
	queueHandler *handlers.QueueHandler,
	healthHandler *handlers.HealthHandler,
	wsHub *websocket.Hub,
	opts Options,
) (http.Handler, *middleware.RateLimiter) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	chatLimiter := middleware.NewRateLimiter(opts.ChatRateLimit, time.Minute)

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	chatRoutes := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chatLimiter.Middleware)
			r.Post("/generate", chatHandler.Generate)
			r.Post("/stream", chatHandler.Stream)
			if queueHandler != nil {
				r.Post("/queue", queueHandler.Enqueue)
			}
		})

		if queueHandler != nil {
			r.Get("/queue/{id}", queueHandler.Result)
		}
		if wsHub != nil {
			r.Get("/ws", wsHub.HandleWebSocket)
		}
	}

	r.Route("/chat", chatRoutes)
	// Path used by the existing clinic backend.
	r.Route("/api/chat", chatRoutes)

	return r, chatLimiter
}
