package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/maverickkhan/dental-clinic-assistant/internal/metrics"
	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
	"github.com/maverickkhan/dental-clinic-assistant/internal/queue"
	"github.com/maverickkhan/dental-clinic-assistant/internal/services"
)

// Generator produces a whole response for one chat request.
type Generator interface {
	Generate(ctx context.Context, req *models.ChatRequest) (*models.GenerationResult, error)
}

// Mailbox is the queue side of the bridge.
type Mailbox interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Deliver(ctx context.Context, resp *models.QueuedResponse) error
	Close() error
}

type PoolOptions struct {
	Workers    int
	PopTimeout time.Duration
	Backoff    Backoff
}

// Pool is a set of competing consumers draining the request queue. Each
// consumer runs Generate on one item at a time and publishes the outcome
// to the item's response mailbox.
type Pool struct {
	mailbox     Mailbox
	generator   Generator
	logger      zerolog.Logger
	workerCount int
	popTimeout  time.Duration
	backoff     Backoff
	running     atomic.Bool
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewPool(mailbox Mailbox, generator Generator, logger zerolog.Logger, opts PoolOptions) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = time.Second
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}

	return &Pool{
		mailbox:     mailbox,
		generator:   generator,
		logger:      logger.With().Str("component", "queue-worker").Logger(),
		workerCount: opts.Workers,
		popTimeout:  opts.PopTimeout,
		backoff:     opts.Backoff,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.running.Store(true)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info().Int("workers", p.workerCount).Dur("pop_timeout", p.popTimeout).Msg("queue workers started")
}

// Stop signals every worker, waits for in-flight items to finish and closes
// the queue connection. Idle workers notice within one pop timeout.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.running.Store(false)
		close(p.stopChan)
		p.wg.Wait()
		if err := p.mailbox.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("failed to close queue connection")
		}
		p.logger.Info().Msg("queue workers stopped")
	})
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With().Int("worker", id).Logger()
	failures := 0

	for p.running.Load() {
		raw, err := p.mailbox.Pop(ctx, p.popTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			failures = 0
			continue
		}
		if err != nil {
			if !p.running.Load() || ctx.Err() != nil {
				break
			}
			failures++
			delay := p.backoff.Delay(failures)
			metrics.QueueStoreErrors.Inc()
			log.Error().Err(err).Int("attempt", failures).Dur("retry_in", delay).Msg("queue store unavailable")
			if !p.sleep(ctx, delay) {
				break
			}
			continue
		}

		failures = 0
		p.process(ctx, log, raw)
	}

	log.Info().Msg("worker shutting down")
}

// sleep waits for d unless the pool is stopped first.
func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// process handles one raw queue item. It always attempts to deliver a
// response, and never lets a failure escape to the loop.
func (p *Pool) process(ctx context.Context, log zerolog.Logger, raw string) {
	req, err := decodeRequest(raw)
	if err != nil {
		requestID := salvageRequestID(raw)
		metrics.QueueItemsProcessed.WithLabelValues("malformed").Inc()
		log.Warn().Err(err).Str("request_id", requestID).Msg("dropping malformed queue item")
		p.deliver(ctx, log, models.NewFailedResponse(requestID, services.MalformedRequestError(err)))
		return
	}

	log = log.With().Str("request_id", req.RequestID).Logger()
	log.Info().Msg("processing request")

	resp := p.generate(ctx, log, req)
	p.deliver(ctx, log, resp)
}

func (p *Pool) generate(ctx context.Context, log zerolog.Logger, req *models.QueuedRequest) (resp *models.QueuedResponse) {
	defer func() {
		if r := recover(); r != nil {
			metrics.QueueItemsProcessed.WithLabelValues("error").Inc()
			log.Error().Interface("panic", r).Msg("generation panicked")
			resp = models.NewFailedResponse(req.RequestID, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err := p.generator.Generate(ctx, req.Chat())
	if err != nil {
		metrics.QueueItemsProcessed.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("kind", string(services.KindOf(err))).Msg("request failed")
		return models.NewFailedResponse(req.RequestID, err)
	}

	metrics.QueueItemsProcessed.WithLabelValues("ok").Inc()
	log.Info().Bool("emergency_detected", result.EmergencyDetected).Msg("completed request")
	return models.NewQueuedResponse(req.RequestID, result)
}

func (p *Pool) deliver(ctx context.Context, log zerolog.Logger, resp *models.QueuedResponse) {
	if err := p.mailbox.Deliver(ctx, resp); err != nil {
		log.Error().Err(err).Msg("failed to publish response")
	}
}

func decodeRequest(raw string) (*models.QueuedRequest, error) {
	var req models.QueuedRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	if err := services.Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// salvageRequestID recovers the request id from an item that failed full
// decoding, falling back to queue.UnknownRequestID.
func salvageRequestID(raw string) string {
	var partial struct {
		RequestID interface{} `json:"request_id"`
	}
	if err := json.Unmarshal([]byte(raw), &partial); err != nil {
		return queue.UnknownRequestID
	}
	switch id := partial.RequestID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return fmt.Sprintf("%v", id)
	}
	return queue.UnknownRequestID
}
