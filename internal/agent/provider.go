// ABOUTME: LLM provider contract consumed by the llm agent variant
// ABOUTME: One Generate call per reply; backends are fixed at agent construction

package agent

import "context"

// Turn roles in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest carries everything a backend needs for one completion.
type GenerateRequest struct {
	System      string
	Turns       []Turn
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider generates text from a system instruction and turn sequence.
// Implementations wrap one LLM backend; failures surface as errors for
// the caller to translate into user-facing fallbacks.
type Provider interface {
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}
