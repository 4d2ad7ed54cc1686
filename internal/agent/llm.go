// ABOUTME: LLM agent variant with bounded per-conversation memory
// ABOUTME: Serializes turns within a conversation; conversations proceed in parallel

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Defaults for llm behavior config keys left unset.
const (
	defaultModel        = "gpt-4"
	defaultSystemPrompt = "You are a helpful AI assistant."
	defaultMaxHistory   = 10
	defaultTemperature  = 0.7
	defaultMaxTokens    = 1000
)

// LLM generates replies through a Provider, maintaining bounded
// conversation history per conversation ID. maxHistory counts exchange
// pairs, so a conversation holds at most 2*maxHistory turns.
type LLM struct {
	provider Provider
	memory   Memory
	logger   *slog.Logger

	model        string
	systemPrompt string
	maxTurns     int
	temperature  float64
	maxTokens    int

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-conversation serialization
}

// NewLLM builds an LLM agent from behavior config. Recognized keys:
// provider, model, system_prompt, max_history, temperature, max_tokens.
func NewLLM(cfg map[string]any, provider Provider, memory Memory, logger *slog.Logger) *LLM {
	return &LLM{
		provider:     provider,
		memory:       memory,
		logger:       logger,
		model:        stringOpt(cfg, "model", defaultModel),
		systemPrompt: stringOpt(cfg, "system_prompt", defaultSystemPrompt),
		maxTurns:     2 * intOpt(cfg, "max_history", defaultMaxHistory),
		temperature:  floatOpt(cfg, "temperature", defaultTemperature),
		maxTokens:    intOpt(cfg, "max_tokens", defaultMaxTokens),
		locks:        make(map[string]*sync.Mutex),
	}
}

func (l *LLM) Execute(ctx context.Context, content, conversationID string, useHistory bool) (string, error) {
	if !useHistory {
		return l.generate(ctx, []Turn{{Role: RoleUser, Content: content}})
	}

	lock := l.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.memory.Append(ctx, conversationID, Turn{Role: RoleUser, Content: content}, l.maxTurns); err != nil {
		return "", fmt.Errorf("recording user turn: %w", err)
	}

	turns, err := l.memory.History(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("loading conversation history: %w", err)
	}

	reply, err := l.generate(ctx, turns)
	if err != nil {
		return "", err
	}

	if err := l.memory.Append(ctx, conversationID, Turn{Role: RoleAssistant, Content: reply}, l.maxTurns); err != nil {
		return "", fmt.Errorf("recording assistant turn: %w", err)
	}
	return reply, nil
}

func (l *LLM) generate(ctx context.Context, turns []Turn) (string, error) {
	reply, err := l.provider.Generate(ctx, &GenerateRequest{
		System:      l.systemPrompt,
		Turns:       turns,
		Model:       l.model,
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	})
	if err != nil {
		l.logger.Error("llm generation failed", "model", l.model, "error", err)
		return "", err
	}
	return reply, nil
}

// conversationLock returns the mutex serializing one conversation,
// creating it on first use.
func (l *LLM) conversationLock(conversationID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[conversationID] = lock
	}
	return lock
}

var _ Agent = (*LLM)(nil)
