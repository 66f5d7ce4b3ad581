package llm

import "context"

// Request is a single prompt-in, completion-out call.
type Request struct {
	System          string
	User            string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	JSON            bool
}

type Completion struct {
	Text             string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the external model capability. Implementations do not retry;
// errors are returned as *APIError so callers can decide.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Completion, error)
	Ping(ctx context.Context) error
}
