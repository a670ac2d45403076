package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/maverickkhan/dental-clinic-assistant/internal/metrics"
)

// GenerationConfig carries the sampling parameters of one upstream call.
type GenerationConfig struct {
	Temperature     float32
	MaxOutputTokens int32
}

// Completion is the outcome of a blocking upstream call.
type Completion struct {
	Text         string
	FinishReason string
	Model        string
}

// Chunk is one increment of a streamed completion. The final chunk usually
// carries the finish reason and may have no text.
type Chunk struct {
	Text         string
	FinishReason string
}

// Completer is the remote text-completion oracle.
type Completer interface {
	Complete(ctx context.Context, prompt string, cfg GenerationConfig) (*Completion, error)
	CompleteStream(ctx context.Context, prompt string, cfg GenerationConfig) iter.Seq2[Chunk, error]
	Model() string
}

type GeminiClient struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
	rateChan  chan struct{} // Token bucket
	logger    zerolog.Logger
}

func NewGeminiClient(
	apiKey string,
	modelName string,
	timeout time.Duration,
	concurrentReqs int,
	logger zerolog.Logger,
	opts ...option.ClientOption,
) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}

	// Token bucket for concurrent upstream calls
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiClient{
		client:    client,
		modelName: modelName,
		timeout:   timeout,
		rateChan:  rateChan,
		logger:    logger.With().Str("component", "gemini").Str("model", modelName).Logger(),
	}, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) Model() string {
	return c.modelName
}

// acquireRate blocks until a rate slot is available
func (c *GeminiClient) acquireRate(ctx context.Context) error {
	select {
	case <-c.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *GeminiClient) releaseRate() {
	c.rateChan <- struct{}{}
}

func (c *GeminiClient) generativeModel(cfg GenerationConfig) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.modelName)
	model.SetTemperature(cfg.Temperature)
	if cfg.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}
	return model
}

// Complete issues one blocking call bounded by the client timeout.
func (c *GeminiClient) Complete(ctx context.Context, prompt string, cfg GenerationConfig) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.acquireRate(ctx); err != nil {
		return nil, c.fail(ctx, "blocking", err)
	}
	defer c.releaseRate()

	start := time.Now()
	resp, err := c.generativeModel(cfg).GenerateContent(ctx, genai.Text(prompt))
	metrics.UpstreamLatency.WithLabelValues("blocking").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, c.fail(ctx, "blocking", err)
	}

	text, reason, err := firstCandidate(resp)
	if err != nil {
		return nil, c.fail(ctx, "blocking", err)
	}
	if reason != "STOP" {
		c.logger.Warn().Str("finish_reason", reason).Msg("Gemini stopped early")
	}

	return &Completion{Text: text, FinishReason: reason, Model: c.modelName}, nil
}

// CompleteStream opens a new upstream stream each time it is ranged over.
// The timeout covers the whole stream; breaking out of the range cancels it.
func (c *GeminiClient) CompleteStream(ctx context.Context, prompt string, cfg GenerationConfig) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		if err := c.acquireRate(ctx); err != nil {
			yield(Chunk{}, c.fail(ctx, "streaming", err))
			return
		}
		defer c.releaseRate()

		start := time.Now()
		defer func() {
			metrics.UpstreamLatency.WithLabelValues("streaming").Observe(time.Since(start).Seconds())
		}()

		it := c.generativeModel(cfg).GenerateContentStream(ctx, genai.Text(prompt))
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(Chunk{}, c.fail(ctx, "streaming", err))
				return
			}

			chunk := streamChunk(resp)
			if chunk.Text == "" && chunk.FinishReason == "" {
				continue
			}
			if !yield(chunk, nil) {
				c.logger.Debug().Msg("stream abandoned by consumer")
				return
			}
		}
	}
}

func (c *GeminiClient) fail(ctx context.Context, mode string, err error) error {
	ue := classifyError(ctx, err)
	metrics.UpstreamErrors.WithLabelValues(string(ue.Kind)).Inc()
	c.logger.Error().Err(err).Str("mode", mode).Str("kind", string(ue.Kind)).Msg("Gemini API error")
	return ue
}

// Helper functions

func firstCandidate(resp *genai.GenerateContentResponse) (text, reason string, err error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", "", newUpstreamError(KindUpstream, "malformed response: no candidates", nil)
	}

	cand := resp.Candidates[0]
	text, ok := candidateText(cand)
	if !ok {
		return "", "", newUpstreamError(KindUpstream, "malformed response: candidate has no text", nil)
	}
	reason = finishReasonTag(cand.FinishReason)
	if reason == "" {
		return "", "", newUpstreamError(KindUpstream, "malformed response: candidate has no finish reason", nil)
	}
	return text, reason, nil
}

func streamChunk(resp *genai.GenerateContentResponse) Chunk {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return Chunk{}
	}
	cand := resp.Candidates[0]
	text, _ := candidateText(cand)
	return Chunk{Text: text, FinishReason: finishReasonTag(cand.FinishReason)}
}

func candidateText(cand *genai.Candidate) (string, bool) {
	if cand.Content == nil {
		return "", false
	}
	var text strings.Builder
	found := false
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
			found = true
		}
	}
	return text.String(), found
}

func finishReasonTag(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonUnspecified:
		return ""
	case genai.FinishReasonStop:
		return "STOP"
	case genai.FinishReasonMaxTokens:
		return "MAX_TOKENS"
	case genai.FinishReasonSafety:
		return "SAFETY"
	case genai.FinishReasonRecitation:
		return "RECITATION"
	default:
		return "OTHER"
	}
}

// classifyError maps SDK, transport and API errors onto the upstream error kinds.
func classifyError(ctx context.Context, err error) *UpstreamError {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newUpstreamError(KindUpstreamTimeout, "", err)
	}
	if errors.Is(err, context.Canceled) {
		return newUpstreamError(KindUpstream, "request canceled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newUpstreamError(KindUpstreamTimeout, "", err)
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return newUpstreamError(KindUpstream, blocked.Error(), err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", gerr.Code)
		}
		return newUpstreamError(kindForStatus(gerr.Code, msg), msg, err)
	}

	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		if code := aerr.HTTPCode(); code > 0 {
			return newUpstreamError(kindForStatus(code, aerr.Error()), aerr.Error(), err)
		}
		if st := aerr.GRPCStatus(); st != nil {
			return newUpstreamError(kindForGRPC(st.Code()), st.Message(), err)
		}
	}

	return newUpstreamError(KindUpstream, err.Error(), err)
}

func kindForStatus(code int, message string) ErrorKind {
	lower := strings.ToLower(message)
	switch {
	case code == http.StatusTooManyRequests:
		return KindUpstreamRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUpstreamConfig
	case code == http.StatusBadRequest && (strings.Contains(lower, "expired") || strings.Contains(lower, "api key")):
		return KindUpstreamConfig
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindUpstreamTimeout
	default:
		return KindUpstream
	}
}

func kindForGRPC(code codes.Code) ErrorKind {
	switch code {
	case codes.ResourceExhausted:
		return KindUpstreamRateLimited
	case codes.Unauthenticated, codes.PermissionDenied:
		return KindUpstreamConfig
	case codes.DeadlineExceeded:
		return KindUpstreamTimeout
	default:
		return KindUpstream
	}
}
