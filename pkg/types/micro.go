package types

import "time"

// Message is a single utterance within a session transcript.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// SessionTranscript is the raw record of one conversation session, as
// handed to the memory engine by the conversational layer at session end.
type SessionTranscript struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// EmotionalContext captures the dominant emotion of a session.
type EmotionalContext struct {
	PrimaryEmotion string  `json:"primary_emotion"`
	Intensity      float64 `json:"intensity"` // [0, 1]
}

// MicroMemory is a session summary subject to half-life decay.
//
// Importance holds the initial importance assigned at creation (clamped
// to [1, 10]) and is immutable thereafter; the effective, decayed value
// is always recomputed from Importance and CreatedAt at read time and
// never stored.
type MicroMemory struct {
	ID             string           `json:"id"`
	Summary        string           `json:"summary"`
	Topics         []string         `json:"topics,omitempty"`
	Emotional      EmotionalContext `json:"emotional_context"`
	MessageCount   int              `json:"message_count"`
	Messages       []Message        `json:"messages,omitempty"` // snapshot used only by consolidation
	Importance     float64          `json:"importance"`
	CreatedAt      time.Time        `json:"created_at"`
	Consolidated   bool             `json:"consolidated"`
	ConsolidatedAt *time.Time       `json:"consolidated_at,omitempty"`
}

// ScoredMemory pairs a micro-memory with its effective importance at the
// instant the context was assembled.
type ScoredMemory struct {
	*MicroMemory
	EffectiveImportance float64 `json:"effective_importance"`
}
