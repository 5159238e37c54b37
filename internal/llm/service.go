package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/evermem/evermem/pkg/types"
)

// ServiceConfig holds tuning for the summarizer service.
type ServiceConfig struct {
	// RequestsPerMinute caps outbound LLM calls across all users.
	// Default: 30.
	RequestsPerMinute int

	// Burst is the rate limiter burst size. Default: 5.
	Burst int
}

// Service turns transcripts and micro-memory batches into summaries. It
// sits between the memory engine and a TextGenerator, applying a shared
// rate limit on top of the per-provider circuit breakers.
type Service struct {
	gen     TextGenerator
	limiter *rate.Limiter
}

// NewService creates a summarizer service around the given generator.
func NewService(gen TextGenerator, cfg ServiceConfig) *Service {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	return &Service{
		gen:     gen,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.Burst),
	}
}

// SummarizeSession condenses a session transcript into a short narrative
// summary.
func (s *Service) SummarizeSession(ctx context.Context, transcript *types.SessionTranscript) (string, error) {
	if transcript == nil || len(transcript.Messages) == 0 {
		return "", fmt.Errorf("transcript has no messages")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	raw, err := s.gen.Complete(ctx, SessionSummaryPrompt(transcript))
	if err != nil {
		return "", fmt.Errorf("session summary completion: %w", err)
	}

	summary, err := ParseSummaryResponse(raw)
	if err != nil {
		return "", fmt.Errorf("session summary: %w", err)
	}

	return summary, nil
}

// Consolidate merges a batch of micro-memories into a super-memory draft.
// The narrative summary comes from the LLM; themes, topics, and emotional
// patterns are derived deterministically from the batch so a flaky model
// cannot corrupt the metadata. The draft has no ID; the engine assigns one
// when it commits.
func (s *Service) Consolidate(ctx context.Context, batch []*types.MicroMemory) (*types.SuperMemory, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("consolidation batch is empty")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	raw, err := s.gen.Complete(ctx, ConsolidationPrompt(batch))
	if err != nil {
		return nil, fmt.Errorf("consolidation completion: %w", err)
	}

	summary, err := ParseSummaryResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("consolidation: %w", err)
	}

	sourceIDs := make([]string, len(batch))
	rangeStart := batch[0].CreatedAt
	rangeEnd := batch[0].CreatedAt
	for i, m := range batch {
		sourceIDs[i] = m.ID
		if m.CreatedAt.Before(rangeStart) {
			rangeStart = m.CreatedAt
		}
		if m.CreatedAt.After(rangeEnd) {
			rangeEnd = m.CreatedAt
		}
	}

	return &types.SuperMemory{
		Summary:         summary,
		Themes:          deriveThemes(batch),
		Topics:          deriveTopics(batch),
		Patterns:        deriveEmotionalPatterns(batch),
		SourceMemoryIDs: sourceIDs,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	}, nil
}
