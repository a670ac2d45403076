package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
)

// Assistant is the generation orchestrator as seen by the delivery adapters.
type Assistant interface {
	Generate(ctx context.Context, req *models.ChatRequest) (*models.GenerationResult, error)
	GenerateStream(ctx context.Context, req *models.ChatRequest) iter.Seq[models.StreamEvent]
	Model() string
}

type ChatHandler struct {
	assistant Assistant
	logger    zerolog.Logger
}

func NewChatHandler(assistant Assistant, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		assistant: assistant,
		logger:    logger.With().Str("component", "chat-handler").Logger(),
	}
}

// Generate handles POST /chat/generate.
func (h *ChatHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.logger.Info().
		Str("request_id", requestID(r)).
		Str("patient", req.PatientName).
		Msg("Processing chat request")

	result, err := h.assistant.Generate(r.Context(), &req)
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", requestID(r)).Msg("Error generating response")
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Stream handles POST /chat/stream. Every event is framed as a single
// "data: <json>\n\n" unit and flushed immediately. A client disconnect
// cancels the request context and stops ranging, which abandons the
// upstream stream.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	decodeErr := decodeJSON(w, r, &req)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sse := newSSEWriter(w)
	log := h.logger.With().Str("request_id", requestID(r)).Logger()

	if decodeErr != nil {
		if err := sse.Send(models.ErrorEvent(decodeErr.Error())); err != nil {
			log.Debug().Err(err).Msg("client gone before error event")
		}
		return
	}

	log.Info().Str("patient", req.PatientName).Msg("Streaming chat")

	sent := 0
	for ev := range h.assistant.GenerateStream(r.Context(), &req) {
		if err := sse.Send(ev); err != nil {
			log.Info().Err(err).Int("events_sent", sent).Msg("client disconnected, abandoning stream")
			return
		}
		sent++
		if ev.Terminal() {
			return
		}
	}
}

type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseWriter) Send(ev models.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
