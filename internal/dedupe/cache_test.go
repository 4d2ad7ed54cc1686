// ABOUTME: Tests for the event dedupe cache
// ABOUTME: Covers duplicate detection, TTL expiry, and size-bounded eviction

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen_NewThenDuplicate(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("evt-1"))
	assert.True(t, c.Seen("evt-1"))
	assert.False(t, c.Seen("evt-2"))
}

func TestSeen_ExpiredKeyIsNewAgain(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.Seen("evt-1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Seen("evt-1"))
	assert.True(t, c.Seen("evt-1"))
}

func TestSeen_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Seen(fmt.Sprintf("evt-%d", i))
	}
	assert.Equal(t, 3, c.Len())

	// Adding a fourth evicts evt-0.
	assert.False(t, c.Seen("evt-3"))
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("evt-0"))
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
