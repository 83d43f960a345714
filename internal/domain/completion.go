package domain

import "context"

// Completer is the text-generation contract used by filter extraction.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// CompletionResult carries the generated text and token usage.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}
