package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers from configuration only and never calls the model.
type HealthHandler struct {
	service string
	model   string
	redis   Pinger
}

func NewHealthHandler(service, model string, redis Pinger) *HealthHandler {
	return &HealthHandler{service: service, model: model, redis: redis}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:  "healthy",
		Service: h.service,
		Model:   h.model,
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Checks = map[string]string{"redis": "ok"}
		if err := h.redis.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks["redis"] = "unavailable"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":  "Dental Clinic AI Service",
		"version":  "1.0.0",
		"status":   "running",
		"model":    h.model,
		"features": []string{"generate", "streaming", "sse", "websocket", "queue"},
	})
}
