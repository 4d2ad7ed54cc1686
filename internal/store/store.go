// ABOUTME: Store interface and data types for hive-fleet persistence
// ABOUTME: Defines AgentRecord and the Store interface for record store operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Agent type tags. The set is closed: adding a behavior means adding a
// variant in the agent package, not a new tag at runtime.
const (
	AgentTypeEcho = "echo"
	AgentTypeLLM  = "llm"
)

// AgentRecord is the declarative description of one fleet bot: which
// homeserver it connects to, with what credential, and how it behaves.
// ID is stable for the record's lifetime. Changing a credential field
// (Homeserver, AccessToken) forces a connection restart; every other
// field is applied to a running bot in place.
type AgentRecord struct {
	ID          int64
	Name        string
	Homeserver  string
	AccessToken string
	Enabled     bool

	// Response settings
	RespondToDM    bool
	SpaceWhitelist []string // empty = all spaces allowed
	RoomWhitelist  []string // empty = all rooms allowed

	// Behavior
	AgentType   string // "echo" or "llm"
	AgentConfig map[string]any

	// Bot identity, written back after the first successful connection
	BotUserID      string
	BotUsername    string
	BotDisplayName string

	CreatedAt time.Time
}

// Store defines the interface for agent record persistence
type Store interface {
	// Create inserts a new record and fills in its assigned ID.
	Create(ctx context.Context, rec *AgentRecord) error

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id int64) (*AgentRecord, error)

	// List returns all records ordered by ID.
	List(ctx context.Context) ([]*AgentRecord, error)

	// ListEnabled returns all enabled records ordered by ID.
	ListEnabled(ctx context.Context) ([]*AgentRecord, error)

	// SetEnabled flips the enabled flag. Returns ErrNotFound if absent.
	SetEnabled(ctx context.Context, id int64, enabled bool) error

	// UpdateBotIdentity records the connection-assigned bot identity.
	// Returns ErrNotFound if the record is absent.
	UpdateBotIdentity(ctx context.Context, id int64, userID, username, displayName string) error

	// Delete removes a record. Returns false if it did not exist.
	Delete(ctx context.Context, id int64) (bool, error)

	// Close releases any resources held by the store
	Close() error
}
