package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
	"github.com/maverickkhan/dental-clinic-assistant/internal/queue"
	"github.com/maverickkhan/dental-clinic-assistant/internal/services"
)

// Mailbox is the producer side of the queue bridge.
type Mailbox interface {
	Submit(ctx context.Context, req *models.QueuedRequest) (string, error)
	Await(ctx context.Context, requestID string, timeout time.Duration) (*models.QueuedResponse, error)
	Lookup(ctx context.Context, requestID string) (*models.QueuedResponse, error)
}

type QueueHandler struct {
	mailbox Mailbox
	maxWait time.Duration
	logger  zerolog.Logger
}

func NewQueueHandler(mailbox Mailbox, maxWait time.Duration, logger zerolog.Logger) *QueueHandler {
	return &QueueHandler{
		mailbox: mailbox,
		maxWait: maxWait,
		logger:  logger.With().Str("component", "queue-handler").Logger(),
	}
}

// Enqueue handles POST /chat/queue. The body is a ChatRequest with an
// optional request_id; one is generated when absent.
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req models.QueuedRequest
	if err := readJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := services.Validate(req.Chat()); err != nil {
		handleServiceError(w, r, err)
		return
	}

	id, err := h.mailbox.Submit(r.Context(), &req)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to enqueue request")
		writeJSON(w, http.StatusServiceUnavailable, errorResp("QUEUE_UNAVAILABLE", "Failed to enqueue request", r))
		return
	}

	h.logger.Info().Str("request_id", id).Str("patient", req.PatientName).Msg("Request enqueued")
	writeJSON(w, http.StatusAccepted, models.SubmitResponse{RequestID: id})
}

// Result handles GET /chat/queue/{id}. With ?wait=<seconds> it blocks until
// the response arrives, consuming it; otherwise it peeks.
func (h *QueueHandler) Result(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Request ID is required", r))
		return
	}

	wait, err := h.parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"wait": "must be a non-negative number of seconds"}, r))
		return
	}

	var resp *models.QueuedResponse
	if wait > 0 {
		resp, err = h.mailbox.Await(r.Context(), id, wait)
	} else {
		resp, err = h.mailbox.Lookup(r.Context(), id)
	}

	switch {
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, queue.ErrTimeout):
		writeJSON(w, http.StatusNotFound, errorResp("PENDING", "Response not available yet", r))
	case err != nil:
		h.logger.Error().Err(err).Str("request_id", id).Msg("Failed to read response")
		writeJSON(w, http.StatusServiceUnavailable, errorResp("QUEUE_UNAVAILABLE", "Failed to read response", r))
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// parseWait reads whole seconds and caps them at maxWait.
func (h *QueueHandler) parseWait(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, errors.New("invalid wait")
	}
	wait := time.Duration(secs) * time.Second
	if h.maxWait > 0 && wait > h.maxWait {
		wait = h.maxWait
	}
	return wait, nil
}
