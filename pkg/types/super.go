package types

import "time"

// EmotionalPatterns aggregates the emotional contexts of a consolidated
// batch of micro-memories.
type EmotionalPatterns struct {
	DominantEmotion  string         `json:"dominant_emotion,omitempty"`
	AverageIntensity float64        `json:"average_intensity"`
	Distribution     map[string]int `json:"distribution,omitempty"`
}

// SuperMemory is a durable pattern record produced by consolidating a
// full batch of micro-memories. Super-memories are append-only: no
// update or delete operation exists.
//
// SourceMemoryIDs lists, in consolidation order, exactly the batch that
// was folded into this record. Batches never overlap: any two
// super-memories belonging to the same user reference disjoint sets.
type SuperMemory struct {
	ID              string            `json:"id"`
	Summary         string            `json:"summary"`
	Themes          []string          `json:"themes,omitempty"`
	Topics          []string          `json:"topics,omitempty"`
	Patterns        EmotionalPatterns `json:"emotional_patterns"`
	SourceMemoryIDs []string          `json:"source_memory_ids"`
	RangeStart      time.Time         `json:"range_start"`
	RangeEnd        time.Time         `json:"range_end"`
	CreatedAt       time.Time         `json:"created_at"`
}
