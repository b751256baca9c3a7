package llm

import "context"

// Provider sends one prompt to a chat model and returns its reply.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	ModelID() string
}

// Role says who wrote a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion call.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int     // 0 leaves the provider default
	Temperature float64 // 0 leaves the provider default
}

// Values of Response.StopReason.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

// Response is the model's reply to one Request.
type Response struct {
	Text       string
	Model      string // model that actually served the call
	StopReason string
	Usage      Usage
}

// Usage counts tokens spent on one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
