// Package llm provides LLM integration for session summarization and
// micro-memory consolidation. It includes strict JSON-only prompt templates
// and response parsers that work with Ollama, OpenAI, and Anthropic models.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All summarization prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
