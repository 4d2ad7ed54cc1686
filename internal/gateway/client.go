// ABOUTME: Gateway client contract consumed by the connection pool and router
// ABOUTME: Defines Event, Identity, Client, and Dialer independent of any transport

package gateway

import (
	"context"

	"github.com/2389/hive-fleet/internal/store"
)

// ChannelKind classifies where an event happened.
type ChannelKind int

const (
	// KindDirect is a one-to-one conversation with the bot.
	KindDirect ChannelKind = iota
	// KindGroup is a multi-member room, possibly inside a space.
	KindGroup
	// KindOther is anything the bot does not respond in.
	KindOther
)

// Identity is the connection-assigned identity of a bot.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
}

// Event is one inbound message, normalized from the transport.
type Event struct {
	// ID uniquely identifies the event on the transport, used for dedupe.
	ID string

	ChannelKind ChannelKind

	// SpaceID is the parent space of the room, empty if none is known.
	SpaceID string

	// ChannelID is the room the event arrived in.
	ChannelID string

	// Sender is the author's user ID.
	Sender string

	Content string

	// Mentions lists user IDs explicitly mentioned in the event.
	Mentions []string

	// ReplyToSender is the author of the message this event replies to,
	// empty when the event is not a reply or the target could not be
	// resolved.
	ReplyToSender string
}

// MessageHandler processes one inbound event.
type MessageHandler func(ctx context.Context, evt *Event)

// Client is one live gateway connection for one agent record.
//
// Connect authenticates and returns the bot identity; Run blocks in the
// receive loop until the context is cancelled or the connection fails.
// The handler must be set before Run.
type Client interface {
	Connect(ctx context.Context) (*Identity, error)
	Run(ctx context.Context) error
	Close(ctx context.Context) error

	SetMessageHandler(h MessageHandler)

	// Reply sends text as a threaded reply to the given event.
	Reply(ctx context.Context, evt *Event, text string) error

	// Send sends text as a plain message to a channel.
	Send(ctx context.Context, channelID, text string) error

	// Typing toggles the typing indicator in a channel.
	Typing(ctx context.Context, channelID string, active bool) error
}

// Dialer constructs a Client for an agent record. The pool uses it to
// open connections; tests substitute a fake.
type Dialer interface {
	Dial(rec *store.AgentRecord) (Client, error)
}
