package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
)

const (
	DefaultRequestQueue   = "ai_requests"
	DefaultResponsePrefix = "ai_responses:"
	DefaultResponseTTL    = 300 * time.Second

	// UnknownRequestID keys the error response for items whose id could not be read.
	UnknownRequestID = "unknown"
)

var (
	// ErrEmpty is returned by Pop when nothing arrived before the timeout.
	ErrEmpty = errors.New("queue: no request before timeout")
	// ErrTimeout is returned by Await when no response arrived in time.
	ErrTimeout = errors.New("queue: response not ready before timeout")
	// ErrNotFound is returned by Lookup while the mailbox is empty or expired.
	ErrNotFound = errors.New("queue: response not found")
)

type Options struct {
	RequestQueue   string
	ResponsePrefix string
	ResponseTTL    time.Duration
}

// Broker implements the request queue and the TTL-bounded response mailbox
// on Redis lists. Requests are LPUSHed and BRPOPed, so each item reaches
// exactly one consumer. A mailbox is a single-element list under
// prefix+request_id; a second delivery for the same id replaces the first.
type Broker struct {
	client         *redis.Client
	requestQueue   string
	responsePrefix string
	responseTTL    time.Duration
}

func NewBroker(client *redis.Client, opts Options) *Broker {
	if opts.RequestQueue == "" {
		opts.RequestQueue = DefaultRequestQueue
	}
	if opts.ResponsePrefix == "" {
		opts.ResponsePrefix = DefaultResponsePrefix
	}
	if opts.ResponseTTL <= 0 {
		opts.ResponseTTL = DefaultResponseTTL
	}

	return &Broker{
		client:         client,
		requestQueue:   opts.RequestQueue,
		responsePrefix: opts.ResponsePrefix,
		responseTTL:    opts.ResponseTTL,
	}
}

// ResponseKey returns the mailbox key for a request id.
func (b *Broker) ResponseKey(requestID string) string {
	return b.responsePrefix + requestID
}

func (b *Broker) RequestQueue() string {
	return b.requestQueue
}

// Pop blocks for up to timeout waiting for one raw request.
func (b *Broker) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := b.client.BRPop(ctx, timeout, b.requestQueue).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("pop %s: %w", b.requestQueue, err)
	}
	if len(result) < 2 {
		return "", ErrEmpty
	}
	return result[1], nil
}

// Deliver replaces the mailbox content and (re)sets its expiry atomically.
func (b *Broker) Deliver(ctx context.Context, resp *models.QueuedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	key := b.ResponseKey(resp.RequestID)
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.LPush(ctx, key, data)
		pipe.Expire(ctx, key, b.responseTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deliver %s: %w", key, err)
	}
	return nil
}

// Submit enqueues a request, assigning a request id when the caller has none.
func (b *Broker) Submit(ctx context.Context, req *models.QueuedRequest) (string, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	if err := b.client.LPush(ctx, b.requestQueue, data).Err(); err != nil {
		return "", fmt.Errorf("submit %s: %w", req.RequestID, err)
	}
	return req.RequestID, nil
}

// Await blocks until the response for requestID arrives and consumes it.
func (b *Broker) Await(ctx context.Context, requestID string, timeout time.Duration) (*models.QueuedResponse, error) {
	result, err := b.client.BRPop(ctx, timeout, b.ResponseKey(requestID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTimeout
	}
	if err != nil {
		return nil, fmt.Errorf("await %s: %w", requestID, err)
	}
	return decodeResponse(result[1])
}

// Lookup reads the stored response without consuming it.
func (b *Broker) Lookup(ctx context.Context, requestID string) (*models.QueuedResponse, error) {
	raw, err := b.client.LIndex(ctx, b.ResponseKey(requestID), 0).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", requestID, err)
	}
	return decodeResponse(raw)
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (b *Broker) Close() error {
	return b.client.Close()
}

func decodeResponse(raw string) (*models.QueuedResponse, error) {
	var resp models.QueuedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
