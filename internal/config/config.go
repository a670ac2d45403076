package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	Env         string
	ServiceName string

	// Gemini AI
	GeminiAPIKey          string
	GeminiModel           string
	GeminiTimeout         time.Duration
	GeminiTemperature     float32
	GeminiMaxOutputTokens int32
	GeminiConcurrentReqs  int

	// Prompt
	MaxChatHistory        int
	MaxMedicalNotesLength int

	// Redis
	RedisURL string

	// Queue
	RequestQueue      string
	ResponsePrefix    string
	ResponseTTL       time.Duration
	QueuePopTimeout   time.Duration
	QueueWorkers      int // -1 when unset
	QueueAwaitTimeout time.Duration

	// HTTP
	CORSOrigins   []string
	ChatRateLimit int // requests per minute per client
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8001"),
		Env:         getEnvOrDefault("ENV", "development"),
		ServiceName: getEnvOrDefault("SERVICE_NAME", "ai-service"),

		GeminiAPIKey:          mustGetEnv("GEMINI_API_KEY"),
		GeminiModel:           getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiTimeout:         getEnvAsDurationOrDefault("GEMINI_TIMEOUT", 60*time.Second),
		GeminiTemperature:     float32(getEnvAsFloatOrDefault("GEMINI_TEMPERATURE", 0.7)),
		GeminiMaxOutputTokens: int32(getEnvAsIntOrDefault("GEMINI_MAX_OUTPUT_TOKENS", 2048)),
		GeminiConcurrentReqs:  getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),

		MaxChatHistory:        getEnvAsIntOrDefault("MAX_CHAT_HISTORY", 5),
		MaxMedicalNotesLength: getEnvAsIntOrDefault("MAX_MEDICAL_NOTES_LENGTH", 500),

		RedisURL: getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),

		RequestQueue:      getEnvOrDefault("QUEUE_REQUESTS", "ai_requests"),
		ResponsePrefix:    getEnvOrDefault("QUEUE_RESPONSE_PREFIX", "ai_responses:"),
		ResponseTTL:       getEnvAsDurationOrDefault("RESPONSE_TTL", 300*time.Second),
		QueuePopTimeout:   getEnvAsDurationOrDefault("QUEUE_POP_TIMEOUT", time.Second),
		QueueWorkers:      getEnvAsIntOrDefault("QUEUE_WORKERS", -1),
		QueueAwaitTimeout: getEnvAsDurationOrDefault("QUEUE_AWAIT_TIMEOUT", 30*time.Second),

		CORSOrigins:   getEnvAsListOrDefault("CORS_ORIGINS", []string{"*"}),
		ChatRateLimit: getEnvAsIntOrDefault("CHAT_RATE_LIMIT", 30),
	}

	return cfg
}

// Workers returns QUEUE_WORKERS, or def when it was not set.
func (c *Config) Workers(def int) int {
	if c.QueueWorkers < 0 {
		return def
	}
	return c.QueueWorkers
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
