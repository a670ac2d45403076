package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/maverickkhan/dental-clinic-assistant/internal/config"
	"github.com/maverickkhan/dental-clinic-assistant/internal/database"
	"github.com/maverickkhan/dental-clinic-assistant/internal/logger"
	"github.com/maverickkhan/dental-clinic-assistant/internal/queue"
	"github.com/maverickkhan/dental-clinic-assistant/internal/services"
	"github.com/maverickkhan/dental-clinic-assistant/internal/worker"
)

const defaultWorkers = 2

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.ServiceName+"-worker")

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

	assistant := services.NewAssistantService(
		gemini,
		services.PromptBuilder{MaxHistory: cfg.MaxChatHistory, MaxNotesLength: cfg.MaxMedicalNotesLength},
		services.GenerationConfig{Temperature: cfg.GeminiTemperature, MaxOutputTokens: cfg.GeminiMaxOutputTokens},
		log,
	)

	workers := cfg.Workers(defaultWorkers)
	if workers < 1 {
		workers = 1
	}
	redisClients, err := database.NewRedisClients(cfg.RedisURL, workers)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClients.Close()

	broker := queue.NewBroker(redisClients.Queue, queue.Options{
		RequestQueue:   cfg.RequestQueue,
		ResponsePrefix: cfg.ResponsePrefix,
		ResponseTTL:    cfg.ResponseTTL,
	})

	pool := worker.NewPool(broker, assistant, log, worker.PoolOptions{
		Workers:    workers,
		PopTimeout: cfg.QueuePopTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// In-flight requests finish on shutdown, so workers do not share the
	// signal context.
	pool.Start(context.Background())
	log.Info().
		Str("queue", broker.RequestQueue()).
		Int("workers", workers).
		Msg("Worker ready, waiting for requests")

	<-ctx.Done()
	log.Info().Msg("Shutting down...")
	pool.Stop()
}
