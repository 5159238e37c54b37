package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/evermem/evermem/pkg/types"
)

// Summarizer consolidates a batch of micro-memories into a super-memory
// draft. The draft carries no ID; the engine assigns one when committing.
type Summarizer interface {
	Consolidate(ctx context.Context, batch []*types.MicroMemory) (*types.SuperMemory, error)
}

// SessionSummarizer condenses a session transcript into a short narrative
// summary.
type SessionSummarizer interface {
	SummarizeSession(ctx context.Context, transcript *types.SessionTranscript) (string, error)
}

// Config holds tuning for the memory engine.
type Config struct {
	// HalfLifeDays is the micro-memory decay half-life (default: 14).
	HalfLifeDays float64

	// EvictionFloor is the effective importance below which the sweeper
	// prunes a record (default: 1.0).
	EvictionFloor float64

	// ConsolidationThreshold is the unconsolidated count that triggers
	// consolidation (default: 10).
	ConsolidationThreshold int

	// BatchSize is the number of oldest unconsolidated records merged
	// per consolidation (default: 10). Never a partial batch.
	BatchSize int

	// MinSessionMessages is the minimum transcript length that produces
	// a micro-memory (default: 2).
	MinSessionMessages int

	// MaxStoredMessages caps the raw messages kept on a micro-memory
	// (default: 10). The summary is the record of note; raw messages
	// only feed consolidation.
	MaxStoredMessages int

	// SummarizerTimeout bounds each summarizer call (default: 60s).
	SummarizerTimeout time.Duration
}

// DefaultConfig returns a Config with the standard defaults.
func DefaultConfig() Config {
	return Config{
		HalfLifeDays:           DefaultHalfLifeDays,
		EvictionFloor:          DefaultEvictionFloor,
		ConsolidationThreshold: 10,
		BatchSize:              10,
		MinSessionMessages:     2,
		MaxStoredMessages:      10,
		SummarizerTimeout:      60 * time.Second,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.HalfLifeDays <= 0 {
		return fmt.Errorf("HalfLifeDays must be > 0, got %v", c.HalfLifeDays)
	}

	if c.EvictionFloor < 0 {
		return fmt.Errorf("EvictionFloor must be >= 0, got %v", c.EvictionFloor)
	}

	if c.ConsolidationThreshold < 1 {
		return fmt.Errorf("ConsolidationThreshold must be >= 1, got %d", c.ConsolidationThreshold)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("BatchSize must be >= 1, got %d", c.BatchSize)
	}

	if c.BatchSize > c.ConsolidationThreshold {
		return fmt.Errorf("BatchSize (%d) must not exceed ConsolidationThreshold (%d)",
			c.BatchSize, c.ConsolidationThreshold)
	}

	if c.MinSessionMessages < 1 {
		return fmt.Errorf("MinSessionMessages must be >= 1, got %d", c.MinSessionMessages)
	}

	if c.MaxStoredMessages < 0 {
		return fmt.Errorf("MaxStoredMessages must be >= 0, got %d", c.MaxStoredMessages)
	}

	if c.SummarizerTimeout <= 0 {
		return fmt.Errorf("SummarizerTimeout must be > 0, got %v", c.SummarizerTimeout)
	}

	return nil
}
