// ABOUTME: Matrix implementation of the gateway Client contract using mautrix
// ABOUTME: Normalizes sync events into gateway Events and handles outbound sends

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/hive-fleet/internal/store"
)

// typingTimeout is the duration the typing indicator shows.
const typingTimeout = 30 * time.Second

// sendTimeout bounds outbound Matrix API calls.
const sendTimeout = 30 * time.Second

// MatrixDialer creates Matrix-backed gateway clients.
type MatrixDialer struct {
	Logger *slog.Logger
}

// Dial builds a client for the record's homeserver and access token.
// No network traffic happens until Connect.
func (d *MatrixDialer) Dial(rec *store.AgentRecord) (Client, error) {
	client, err := mautrix.NewClient(rec.Homeserver, "", rec.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &MatrixClient{
		client: client,
		logger: logger.With("component", "gateway", "agent_id", rec.ID),
		kinds:  make(map[id.RoomID]ChannelKind),
		spaces: make(map[id.RoomID]string),
	}, nil
}

// MatrixClient is one live Matrix connection.
type MatrixClient struct {
	client  *mautrix.Client
	logger  *slog.Logger
	handler MessageHandler

	identity *Identity

	mu     sync.Mutex
	kinds  map[id.RoomID]ChannelKind // room classification cache
	spaces map[id.RoomID]string      // room -> parent space cache
}

// Connect verifies the access token and resolves the bot identity.
func (m *MatrixClient) Connect(ctx context.Context) (*Identity, error) {
	whoami, err := m.client.Whoami(ctx)
	if err != nil {
		return nil, fmt.Errorf("verifying credentials: %w", err)
	}

	m.client.UserID = whoami.UserID

	displayName := ""
	if resp, err := m.client.GetDisplayName(ctx, whoami.UserID); err == nil {
		displayName = resp.DisplayName
	} else {
		m.logger.Debug("failed to fetch display name", "error", err)
	}

	m.identity = &Identity{
		UserID:      whoami.UserID.String(),
		Username:    whoami.UserID.Localpart(),
		DisplayName: displayName,
	}

	m.logger.Info("matrix connection established", "user_id", m.identity.UserID)
	return m.identity, nil
}

// SetMessageHandler registers the handler invoked for each inbound
// message. Must be called before Run.
func (m *MatrixClient) SetMessageHandler(h MessageHandler) {
	m.handler = h
}

// Run starts the sync loop and blocks until the context is cancelled or
// sync fails.
func (m *MatrixClient) Run(ctx context.Context) error {
	syncer, ok := m.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", m.client.Syncer)
	}

	// Skip events from before this connection came up.
	syncer.OnSync(m.client.DontProcessOldEvents)

	syncer.OnEventType(event.EventMessage, m.handleMessageEvent)

	if err := m.client.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("matrix sync: %w", err)
	}
	return nil
}

// Close stops the sync loop.
func (m *MatrixClient) Close(ctx context.Context) error {
	m.client.StopSync()
	return nil
}

// handleMessageEvent normalizes a sync event and hands it to the handler.
func (m *MatrixClient) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if m.handler == nil {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}

	// Only plain text messages are routed.
	if content.MsgType != event.MsgText {
		return
	}

	normalized := &Event{
		ID:          evt.ID.String(),
		ChannelKind: m.classifyRoom(ctx, evt.RoomID),
		SpaceID:     m.parentSpace(ctx, evt.RoomID),
		ChannelID:   evt.RoomID.String(),
		Sender:      evt.Sender.String(),
		Content:     content.Body,
	}

	if content.Mentions != nil {
		for _, uid := range content.Mentions.UserIDs {
			normalized.Mentions = append(normalized.Mentions, uid.String())
		}
	}

	if content.RelatesTo != nil {
		if replyTo := content.RelatesTo.GetReplyTo(); replyTo != "" {
			normalized.ReplyToSender = m.resolveEventSender(ctx, evt.RoomID, replyTo)
		}
	}

	m.handler(ctx, normalized)
}

// classifyRoom determines whether a room is a direct conversation or a
// group room. Results are cached per room; classification failures are
// reported as KindOther so the router skips the event.
func (m *MatrixClient) classifyRoom(ctx context.Context, roomID id.RoomID) ChannelKind {
	m.mu.Lock()
	if kind, ok := m.kinds[roomID]; ok {
		m.mu.Unlock()
		return kind
	}
	m.mu.Unlock()

	members, err := m.client.JoinedMembers(ctx, roomID)
	if err != nil {
		m.logger.Warn("failed to classify room", "room", roomID.String(), "error", err)
		return KindOther
	}

	kind := KindGroup
	if len(members.Joined) <= 2 {
		kind = KindDirect
	}

	m.mu.Lock()
	m.kinds[roomID] = kind
	m.mu.Unlock()

	return kind
}

// parentSpace resolves the room's parent space via m.space.parent state.
// Best effort: an empty result means no space is known.
func (m *MatrixClient) parentSpace(ctx context.Context, roomID id.RoomID) string {
	m.mu.Lock()
	if space, ok := m.spaces[roomID]; ok {
		m.mu.Unlock()
		return space
	}
	m.mu.Unlock()

	space := ""
	if state, err := m.client.State(ctx, roomID); err == nil {
		for stateKey := range state[event.StateSpaceParent] {
			space = stateKey
			break
		}
	} else {
		m.logger.Debug("failed to fetch room state", "room", roomID.String(), "error", err)
	}

	m.mu.Lock()
	m.spaces[roomID] = space
	m.mu.Unlock()

	return space
}

// resolveEventSender fetches the author of the event being replied to.
func (m *MatrixClient) resolveEventSender(ctx context.Context, roomID id.RoomID, eventID id.EventID) string {
	target, err := m.client.GetEvent(ctx, roomID, eventID)
	if err != nil {
		m.logger.Debug("failed to resolve reply target", "event", eventID.String(), "error", err)
		return ""
	}
	return target.Sender.String()
}

// Reply sends text as a rich reply to the given event.
func (m *MatrixClient) Reply(ctx context.Context, evt *Event, text string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(evt.ID)},
		},
	}

	if _, err := m.client.SendMessageEvent(ctx, id.RoomID(evt.ChannelID), event.EventMessage, content); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

// Send sends text as a plain message to a room.
func (m *MatrixClient) Send(ctx context.Context, channelID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := m.client.SendText(ctx, id.RoomID(channelID), text); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Typing toggles the typing indicator in a room. Failures are not fatal
// to message handling, so the error is logged at the caller's discretion.
func (m *MatrixClient) Typing(ctx context.Context, channelID string, active bool) error {
	var timeout time.Duration
	if active {
		timeout = typingTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := m.client.UserTyping(ctx, id.RoomID(channelID), active, timeout); err != nil {
		return fmt.Errorf("setting typing indicator: %w", err)
	}
	return nil
}

var (
	_ Client = (*MatrixClient)(nil)
	_ Dialer = (*MatrixDialer)(nil)
)
