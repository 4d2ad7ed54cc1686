// ABOUTME: Conversational agent contract and construction for hive-fleet bots
// ABOUTME: Closed variant set (echo, llm) selected from the agent record at build time

package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/2389/hive-fleet/internal/store"
)

// Agent produces reply text from input text. Implementations are bound
// to one pool item and own any per-conversation state.
type Agent interface {
	// Execute generates a reply. conversationID groups history when
	// useHistory is true; stateless calls neither read nor write it.
	Execute(ctx context.Context, content, conversationID string, useHistory bool) (string, error)
}

// Factory builds agents from records. The variant set is closed: a new
// behavior is a new constructor case here, not a runtime registry entry.
type Factory struct {
	// OpenAIKey and AnthropicKey enable the respective LLM providers.
	OpenAIKey    string
	AnthropicKey string

	// Redis, when set, backs LLM conversation memory so history
	// survives restarts and credential rotations. Nil keeps memory in
	// process.
	Redis *redis.Client

	Logger *slog.Logger
}

// New constructs the agent for a record's behavior type and config.
func (f *Factory) New(rec *store.AgentRecord) (Agent, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch rec.AgentType {
	case store.AgentTypeEcho:
		return NewEcho(rec.AgentConfig), nil

	case store.AgentTypeLLM:
		provider, err := f.provider(rec.AgentConfig)
		if err != nil {
			return nil, err
		}

		var memory Memory
		if f.Redis != nil {
			memory = NewRedisMemory(f.Redis, rec.ID)
		} else {
			memory = NewInProcessMemory()
		}

		return NewLLM(rec.AgentConfig, provider, memory, logger.With("agent_id", rec.ID)), nil

	default:
		return nil, fmt.Errorf("unknown agent type %q", rec.AgentType)
	}
}

// provider resolves the LLM backend named in the behavior config.
func (f *Factory) provider(cfg map[string]any) (Provider, error) {
	name := stringOpt(cfg, "provider", "openai")

	switch name {
	case "openai":
		if f.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider requested but no API key configured")
		}
		return NewOpenAIProvider(f.OpenAIKey), nil

	case "anthropic":
		if f.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requested but no API key configured")
		}
		return NewAnthropicProvider(f.AnthropicKey), nil

	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

// stringOpt reads a string key from behavior config with a default.
func stringOpt(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

// intOpt reads an integer key, tolerating the float64 values JSON
// decoding produces.
func intOpt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// floatOpt reads a float key, tolerating integer config values.
func floatOpt(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
