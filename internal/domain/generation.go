package domain

import "context"

// Generator is the chat completion contract used by answer synthesis.
type Generator interface {
	Complete(ctx context.Context, req GenerationRequest) (GenerationResult, error)
	Stream(ctx context.Context, req GenerationRequest) (<-chan StreamDelta, error)
}

// Message roles for conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest is a chat completion request. History carries prior
// turns between the system prompt and the current user message.
type GenerationRequest struct {
	System      string
	History     []Message
	User        string
	MaxTokens   int
	Temperature float32
}

// GenerationResult carries the full completion and token usage.
type GenerationResult struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// StreamDelta is one increment of a streamed completion. The channel closes
// after the final delta; a non-nil Err is terminal.
type StreamDelta struct {
	Token string
	Err   error
}
