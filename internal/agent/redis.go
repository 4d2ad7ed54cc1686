// ABOUTME: Redis-backed conversation memory for LLM agents
// ABOUTME: One list per conversation, trimmed server-side after every append

package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisMemory stores conversation turns as JSON entries in Redis lists,
// keyed per agent and conversation. History survives process restarts
// and credential rotations.
type RedisMemory struct {
	client  *redis.Client
	agentID int64
}

func NewRedisMemory(client *redis.Client, agentID int64) *RedisMemory {
	return &RedisMemory{client: client, agentID: agentID}
}

func (m *RedisMemory) key(conversationID string) string {
	return fmt.Sprintf("hive:conv:%d:%s", m.agentID, conversationID)
}

func (m *RedisMemory) History(ctx context.Context, conversationID string) ([]Turn, error) {
	entries, err := m.client.LRange(ctx, m.key(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading conversation history: %w", err)
	}

	turns := make([]Turn, 0, len(entries))
	for _, entry := range entries {
		var turn Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			return nil, fmt.Errorf("decoding conversation turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (m *RedisMemory) Append(ctx context.Context, conversationID string, turn Turn, maxTurns int) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encoding conversation turn: %w", err)
	}

	key := m.key(conversationID)
	pipe := m.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if maxTurns > 0 {
		pipe.LTrim(ctx, key, int64(-maxTurns), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending conversation turn: %w", err)
	}
	return nil
}

var _ Memory = (*RedisMemory)(nil)
