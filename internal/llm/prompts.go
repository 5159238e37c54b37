package llm

import (
	"fmt"
	"strings"

	"github.com/evermem/evermem/pkg/types"
)

// SessionSummaryPrompt generates a strict JSON-only prompt that condenses a
// session transcript into a short narrative summary.
func SessionSummaryPrompt(transcript *types.SessionTranscript) string {
	var conversation strings.Builder
	for _, msg := range transcript.Messages {
		fmt.Fprintf(&conversation, "%s: %s\n", msg.Role, msg.Content)
	}

	return fmt.Sprintf(`TASK: Summarize a conversation between a user and their companion.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

Write 2-3 sentences capturing what the user talked about, how they seemed
to feel, and anything they shared about their life. Write in third person
about the user.

REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }
{"summary":"..."}

VALIDATION (STRICT):
1. Start with { - End with }
2. "summary" key must be present with a non-empty string value
3. No extra fields
4. Valid JSON syntax

CONVERSATION:
%s
RESPOND WITH ONLY THIS JSON STRUCTURE (nothing else):
{"summary":"..."}`, conversation.String())
}

// ConsolidationPrompt generates a strict JSON-only prompt that merges a
// batch of session summaries into a single long-term narrative.
func ConsolidationPrompt(batch []*types.MicroMemory) string {
	var sessions strings.Builder
	for i, m := range batch {
		fmt.Fprintf(&sessions, "\n=== Session %d ===\n", i+1)
		fmt.Fprintf(&sessions, "Date: %s\n", m.CreatedAt.Format("2006-01-02"))
		fmt.Fprintf(&sessions, "Summary: %s\n", m.Summary)
		if len(m.Topics) > 0 {
			fmt.Fprintf(&sessions, "Topics: %s\n", strings.Join(m.Topics, ", "))
		}
		if m.Emotional.PrimaryEmotion != "" {
			fmt.Fprintf(&sessions, "Emotion: %s (intensity: %.1f)\n",
				m.Emotional.PrimaryEmotion, m.Emotional.Intensity)
		}
	}

	return fmt.Sprintf(`TASK: Consolidate %d conversation summaries into one long-term memory.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO backticks.

Analyze the session summaries and write a consolidated narrative covering:
- Recurring themes and patterns
- Significant life events or changes
- The user's emotional journey
- Key facts, preferences, and topics of interest

Keep it concise but comprehensive.

REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }
{"summary":"..."}

VALIDATION (STRICT):
1. Start with { - End with }
2. "summary" key must be present with a non-empty string value
3. No extra fields
4. Valid JSON syntax

SESSION SUMMARIES:
%s

RESPOND WITH ONLY THIS JSON STRUCTURE (nothing else):
{"summary":"..."}`, len(batch), sessions.String())
}
