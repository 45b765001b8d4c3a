// Package llm provides the completion client used by the extraction,
// classification, verification, and orchestration agents.
package llm

import "context"

// Client is the minimal interface agents use to call a language model.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// estimateTokens approximates the token count of a prompt. Four characters
// per token is close enough for limiter bookkeeping.
func estimateTokens(text string) int {
	n := len(text)/4 + 1
	return n
}
