package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// summaryResponse is the JSON shape both summarization prompts elicit.
type summaryResponse struct {
	Summary string `json:"summary"`
}

// extractJSON extracts the first valid JSON object from a string that may
// contain extra text. This handles cases where LLMs add explanations
// before/after the JSON despite instructions.
func extractJSON(text string) string {
	// Remove common markdown code block markers
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // no JSON found, return as-is and let parser fail
	}

	// Find the matching closing brace, skipping braces inside strings.
	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text // no complete JSON found, return as-is
}

// ParseSummaryResponse parses the {"summary":"..."} response shared by the
// session-summary and consolidation prompts. The raw LLM output may contain
// markdown fences or surrounding prose; extractJSON strips those first.
func ParseSummaryResponse(raw string) (string, error) {
	cleaned := extractJSON(raw)

	var resp summaryResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return "", fmt.Errorf("failed to parse summary response: %w", err)
	}

	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return "", fmt.Errorf("summary response contained no summary text")
	}

	return summary, nil
}
