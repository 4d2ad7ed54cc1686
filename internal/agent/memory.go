// ABOUTME: Conversation memory contract plus the default in-process backend
// ABOUTME: Bounded per conversation and bounded in conversation count

package agent

import (
	"container/list"
	"context"
	"sync"
)

// maxTrackedConversations caps how many distinct conversations the
// in-process backend retains. The oldest conversation is evicted when
// the cap is hit.
const maxTrackedConversations = 4096

// Memory stores per-conversation turn history for LLM agents.
//
// Append adds a turn and trims the conversation to its newest maxTurns
// entries in one operation, so a conversation never exceeds the bound
// between calls.
type Memory interface {
	History(ctx context.Context, conversationID string) ([]Turn, error)
	Append(ctx context.Context, conversationID string, turn Turn, maxTurns int) error
}

// InProcessMemory keeps history in a map guarded by a mutex. History is
// lost on restart; use the Redis backend when that matters.
type InProcessMemory struct {
	mu            sync.Mutex
	conversations map[string]*list.Element // conversationID -> order entry
	order         *list.List               // insertion order, front is oldest
}

type conversationEntry struct {
	id    string
	turns []Turn
}

func NewInProcessMemory() *InProcessMemory {
	return &InProcessMemory{
		conversations: make(map[string]*list.Element),
		order:         list.New(),
	}
}

func (m *InProcessMemory) History(_ context.Context, conversationID string) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.conversations[conversationID]
	if !ok {
		return nil, nil
	}

	turns := elem.Value.(*conversationEntry).turns
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *InProcessMemory) Append(_ context.Context, conversationID string, turn Turn, maxTurns int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.conversations[conversationID]
	if !ok {
		if m.order.Len() >= maxTrackedConversations {
			oldest := m.order.Front()
			delete(m.conversations, oldest.Value.(*conversationEntry).id)
			m.order.Remove(oldest)
		}
		elem = m.order.PushBack(&conversationEntry{id: conversationID})
		m.conversations[conversationID] = elem
	}

	entry := elem.Value.(*conversationEntry)
	entry.turns = append(entry.turns, turn)
	if maxTurns > 0 && len(entry.turns) > maxTurns {
		entry.turns = entry.turns[len(entry.turns)-maxTurns:]
	}
	return nil
}

var _ Memory = (*InProcessMemory)(nil)
