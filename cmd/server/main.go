package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/maverickkhan/dental-clinic-assistant/internal/config"
	"github.com/maverickkhan/dental-clinic-assistant/internal/database"
	"github.com/maverickkhan/dental-clinic-assistant/internal/handlers"
	"github.com/maverickkhan/dental-clinic-assistant/internal/logger"
	"github.com/maverickkhan/dental-clinic-assistant/internal/queue"
	"github.com/maverickkhan/dental-clinic-assistant/internal/router"
	"github.com/maverickkhan/dental-clinic-assistant/internal/services"
	"github.com/maverickkhan/dental-clinic-assistant/internal/websocket"
	"github.com/maverickkhan/dental-clinic-assistant/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.ServiceName)
	log.Info().Str("env", cfg.Env).Msg("Starting AI service")

	// ──── Step 2: Initialize Gemini Client ────
	gemini, err := services.NewGeminiClient(
		cfg.GeminiAPIKey,
		cfg.GeminiModel,
		cfg.GeminiTimeout,
		cfg.GeminiConcurrentReqs,
		log,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Gemini client initialization failed")
	}
	defer gemini.Close()
	log.Info().Str("model", cfg.GeminiModel).Msg("Gemini client initialized")

	assistant := services.NewAssistantService(
		gemini,
		services.PromptBuilder{MaxHistory: cfg.MaxChatHistory, MaxNotesLength: cfg.MaxMedicalNotesLength},
		services.GenerationConfig{Temperature: cfg.GeminiTemperature, MaxOutputTokens: cfg.GeminiMaxOutputTokens},
		log,
	)

	// ──── Step 3: Initialize Redis Clients ────
	// The direct HTTP paths work without Redis; the queue routes and
	// in-process workers are only enabled when it is reachable.
	var (
		queueHandler *handlers.QueueHandler
		healthPinger handlers.Pinger
		workerPool   *worker.Pool
	)
	redisClients, err := database.NewRedisClients(cfg.RedisURL, cfg.Workers(0))
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, queue routes disabled")
	} else {
		defer redisClients.Close()
		log.Info().Msg("Redis connected")

		opts := queue.Options{
			RequestQueue:   cfg.RequestQueue,
			ResponsePrefix: cfg.ResponsePrefix,
			ResponseTTL:    cfg.ResponseTTL,
		}
		mailbox := queue.NewBroker(redisClients.Mailbox, opts)
		queueHandler = handlers.NewQueueHandler(mailbox, cfg.QueueAwaitTimeout, log)
		healthPinger = mailbox

		// ──── Step 4: Start Queue Workers ────
		if n := cfg.Workers(0); n > 0 {
			workerPool = worker.NewPool(queue.NewBroker(redisClients.Queue, opts), assistant, log, worker.PoolOptions{
				Workers:    n,
				PopTimeout: cfg.QueuePopTimeout,
			})
			workerPool.Start(context.Background())
		}
	}

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(assistant, cfg.CORSOrigins, log)

	// ──── Step 6: Start HTTP Server ────
	chatHandler := handlers.NewChatHandler(assistant, log)
	healthHandler := handlers.NewHealthHandler(cfg.ServiceName, assistant.Model(), healthPinger)

	r, chatLimiter := router.New(log, chatHandler, queueHandler, healthHandler, wsHub, router.Options{
		CORSOrigins:   cfg.CORSOrigins,
		ChatRateLimit: cfg.ChatRateLimit,
	})
	defer chatLimiter.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GeminiTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", server.Addr).Msg("Failed to listen")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().
		Str("addr", server.Addr).
		Bool("queue", queueHandler != nil).
		Int("workers", cfg.Workers(0)).
		Msgf("AI service ready on http://localhost:%s", cfg.Port)

	err = serve(server, ln, sigChan, shutdownTimeout, func() {
		log.Info().Int("websocket_clients", wsHub.Count()).Msg("Shutting down...")
		wsHub.Close()
		if workerPool != nil {
			workerPool.Stop()
		}
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
	log.Info().Msg("Server stopped")
}

// serve runs server on ln until stop fires, then runs onStop and drains the
// server. It returns only after the drain finished or timed out, so deferred
// cleanup in main never races in-flight requests.
func serve(server *http.Server, ln net.Listener, stop <-chan os.Signal, drainTimeout time.Duration, onStop func(), log zerolog.Logger) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-stop
		onStop()

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server did not drain in time")
		}
	}()

	if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}
