package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status int
	models.APIError
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s %v", e.Code, e.Message, e.Fields)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// APIClient talks to the HTTP delivery adapters.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client. timeout bounds blocking calls only; streams
// are bounded by the caller's context.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) Generate(ctx context.Context, req *models.ChatRequest) (*models.GenerationResult, error) {
	resp, err := c.post(ctx, c.httpClient, "/chat/generate", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result models.GenerationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// Stream yields events as they arrive. Stopping the range closes the
// connection, which makes the server abandon the upstream stream.
func (c *APIClient) Stream(ctx context.Context, req *models.ChatRequest) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		resp, err := c.post(ctx, &http.Client{}, "/chat/stream", req)
		if err != nil {
			yield(models.StreamEvent{}, err)
			return
		}
		defer resp.Body.Close()

		for ev, err := range ParseSSE(resp.Body) {
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

func (c *APIClient) Health(ctx context.Context) (*models.HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var health models.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &health, nil
}

func (c *APIClient) post(ctx context.Context, hc *http.Client, path string, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
		apiErr.APIError = envelope.Error
	}
	return apiErr
}

// ParseSSE reads "data: <json>" units from r and yields one event per unit.
func ParseSSE(r io.Reader) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		scanner := bufio.NewScanner(r)

		// Increase buffer size for large SSE messages
		const maxScanTokenSize = 1024 * 1024
		scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}

			var ev models.StreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				yield(models.StreamEvent{}, fmt.Errorf("failed to parse event: %w", err))
				return
			}
			if !yield(ev, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(models.StreamEvent{}, fmt.Errorf("read stream: %w", err))
		}
	}
}
