package services

import (
	"context"
	"iter"

	"github.com/rs/zerolog"

	"github.com/maverickkhan/dental-clinic-assistant/internal/metrics"
	"github.com/maverickkhan/dental-clinic-assistant/internal/models"
)

// AssistantService turns chat requests into model responses: emergency
// check, prompt assembly, then a blocking or streaming upstream call.
type AssistantService struct {
	completer Completer
	prompts   PromptBuilder
	genConfig GenerationConfig
	logger    zerolog.Logger
}

func NewAssistantService(completer Completer, prompts PromptBuilder, genConfig GenerationConfig, logger zerolog.Logger) *AssistantService {
	return &AssistantService{
		completer: completer,
		prompts:   prompts,
		genConfig: genConfig,
		logger:    logger.With().Str("component", "assistant").Logger(),
	}
}

// Model returns the configured upstream model name without calling it.
func (s *AssistantService) Model() string {
	return s.completer.Model()
}

// Generate produces a whole response. Upstream failures are returned as-is.
func (s *AssistantService) Generate(ctx context.Context, req *models.ChatRequest) (*models.GenerationResult, error) {
	if DetectEmergency(req.Message) {
		s.logEmergency("blocking")
		metrics.GenerationsTotal.WithLabelValues("blocking", "emergency").Inc()
		return &models.GenerationResult{
			Response:          EmergencyAdvisory,
			Metadata:          emergencyMetadata(),
			EmergencyDetected: true,
		}, nil
	}

	prompt := s.buildPrompt(req)
	s.logger.Info().
		Int("message_chars", len(req.Message)).
		Int("history_items", len(req.ChatHistory)).
		Msg("generating response")

	completion, err := s.completer.Complete(ctx, prompt, s.genConfig)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("blocking", "error").Inc()
		return nil, err
	}

	metrics.GenerationsTotal.WithLabelValues("blocking", "ok").Inc()
	return &models.GenerationResult{
		Response: completion.Text,
		Metadata: map[string]interface{}{
			"model":         completion.Model,
			"finish_reason": completion.FinishReason,
		},
		EmergencyDetected: false,
	}, nil
}

// GenerateStream yields chunk events followed by exactly one done or error
// event. Emergencies yield a single emergency event then done, without an
// upstream call. The consumer may stop ranging at any point; the upstream
// stream is then released.
func (s *AssistantService) GenerateStream(ctx context.Context, req *models.ChatRequest) iter.Seq[models.StreamEvent] {
	return func(yield func(models.StreamEvent) bool) {
		if DetectEmergency(req.Message) {
			s.logEmergency("streaming")
			metrics.GenerationsTotal.WithLabelValues("streaming", "emergency").Inc()
			if !yield(models.EmergencyEvent(EmergencyAdvisory)) {
				return
			}
			yield(models.DoneEvent(emergencyMetadata()))
			return
		}

		prompt := s.buildPrompt(req)
		s.logger.Info().
			Int("message_chars", len(req.Message)).
			Int("history_items", len(req.ChatHistory)).
			Msg("streaming response")

		finishReason := ""
		chunks := 0
		for chunk, err := range s.completer.CompleteStream(ctx, prompt, s.genConfig) {
			if err != nil {
				metrics.GenerationsTotal.WithLabelValues("streaming", "error").Inc()
				s.logger.Warn().Err(err).Int("chunks_sent", chunks).Msg("stream failed")
				yield(models.ErrorEvent(err.Error()))
				return
			}
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
			if chunk.Text == "" {
				continue
			}
			chunks++
			if !yield(models.ChunkEvent(chunk.Text)) {
				s.logger.Info().Int("chunks_sent", chunks).Msg("stream abandoned")
				return
			}
		}

		metrics.GenerationsTotal.WithLabelValues("streaming", "ok").Inc()
		metadata := map[string]interface{}{"model": s.completer.Model()}
		if finishReason != "" {
			metadata["finish_reason"] = finishReason
		}
		yield(models.DoneEvent(metadata))
	}
}

func (s *AssistantService) buildPrompt(req *models.ChatRequest) string {
	return s.prompts.Build(req.PatientName, req.MedicalNotes, req.ChatHistory, req.Message)
}

func (s *AssistantService) logEmergency(mode string) {
	metrics.EmergencyDetections.Inc()
	s.logger.Warn().Str("mode", mode).Msg("emergency keywords detected, skipping model call")
}

func emergencyMetadata() map[string]interface{} {
	return map[string]interface{}{"emergency_detected": true}
}
