// ABOUTME: Inbound message routing for one bot connection
// ABOUTME: Decides whether to respond, then generates and dispatches chunked replies

package router

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/2389/hive-fleet/internal/agent"
	"github.com/2389/hive-fleet/internal/gateway"
	"github.com/2389/hive-fleet/internal/splitter"
	"github.com/2389/hive-fleet/internal/store"
)

// fallbackReply is sent when generation or dispatch fails.
const fallbackReply = "Sorry, I encountered an error processing your message."

// Messenger is the outbound slice of the gateway client the router
// needs.
type Messenger interface {
	Reply(ctx context.Context, evt *gateway.Event, text string) error
	Send(ctx context.Context, channelID, text string) error
	Typing(ctx context.Context, channelID string, active bool) error
}

// Router connects one bot's inbound events to its agent and back out.
type Router struct {
	record    atomic.Pointer[store.AgentRecord]
	botUserID string
	agent     agent.Agent
	messenger Messenger
	logger    *slog.Logger
	maxLength int
}

// New builds a router for one live connection. botUserID is the
// connection-assigned identity, which gates self-message filtering and
// mention detection.
func New(rec *store.AgentRecord, botUserID string, a agent.Agent, m Messenger, maxLength int, logger *slog.Logger) *Router {
	r := &Router{
		botUserID: botUserID,
		agent:     a,
		messenger: m,
		logger:    logger,
		maxLength: maxLength,
	}
	r.record.Store(rec)
	return r
}

// UpdateRecord swaps the record driving the response gate, so routing
// changes apply without restarting the connection.
func (r *Router) UpdateRecord(rec *store.AgentRecord) {
	r.record.Store(rec)
}

// ShouldRespond applies the response gate for one event.
//
// The bot never answers itself. Direct conversations are gated by the
// record's respond_to_dm flag. Group rooms require the room to pass the
// whitelists and the event to address the bot, by mention or by
// replying to one of its messages. Anything else is ignored.
func (r *Router) ShouldRespond(evt *gateway.Event) bool {
	if evt.Sender == r.botUserID {
		return false
	}

	rec := r.record.Load()

	switch evt.ChannelKind {
	case gateway.KindDirect:
		return rec.RespondToDM

	case gateway.KindGroup:
		if !channelAllowed(rec, evt) {
			return false
		}
		return slices.Contains(evt.Mentions, r.botUserID) || evt.ReplyToSender == r.botUserID

	default:
		return false
	}
}

// channelAllowed checks the space and room whitelists. An empty
// whitelist allows everything for that dimension.
func channelAllowed(rec *store.AgentRecord, evt *gateway.Event) bool {
	if len(rec.SpaceWhitelist) > 0 && !slices.Contains(rec.SpaceWhitelist, evt.SpaceID) {
		return false
	}
	if len(rec.RoomWhitelist) > 0 && !slices.Contains(rec.RoomWhitelist, evt.ChannelID) {
		return false
	}
	return true
}

// HandleMessage processes one inbound event end to end. It never
// returns an error: failures are logged and answered with a generic
// fallback reply.
func (r *Router) HandleMessage(ctx context.Context, evt *gateway.Event) {
	if !r.ShouldRespond(evt) {
		return
	}

	if err := r.messenger.Typing(ctx, evt.ChannelID, true); err != nil {
		r.logger.Debug("failed to set typing indicator", "channel", evt.ChannelID, "error", err)
	}
	defer func() {
		if err := r.messenger.Typing(ctx, evt.ChannelID, false); err != nil {
			r.logger.Debug("failed to clear typing indicator", "channel", evt.ChannelID, "error", err)
		}
	}()

	// Only direct conversations carry history; group mentions are
	// answered statelessly.
	useHistory := evt.ChannelKind == gateway.KindDirect
	conversationID := "dm-" + evt.Sender

	reply, err := r.agent.Execute(ctx, evt.Content, conversationID, useHistory)
	if err != nil {
		r.logger.Error("agent execution failed", "sender", evt.Sender, "error", err)
		r.sendFallback(ctx, evt)
		return
	}

	if err := r.dispatch(ctx, evt, reply); err != nil {
		r.logger.Error("reply dispatch failed", "channel", evt.ChannelID, "error", err)
		r.sendFallback(ctx, evt)
	}
}

// dispatch chunks the reply and sends it: the first chunk as a threaded
// reply, the rest as plain follow-ups so the thread stays readable.
func (r *Router) dispatch(ctx context.Context, evt *gateway.Event, reply string) error {
	chunks := splitter.Split(reply, r.maxLength)
	for i, chunk := range chunks {
		var err error
		if i == 0 {
			err = r.messenger.Reply(ctx, evt, chunk)
		} else {
			err = r.messenger.Send(ctx, evt.ChannelID, chunk)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// sendFallback answers with the generic failure reply, swallowing its
// own error.
func (r *Router) sendFallback(ctx context.Context, evt *gateway.Event) {
	if err := r.messenger.Reply(ctx, evt, fallbackReply); err != nil {
		r.logger.Error("failed to send fallback reply", "channel", evt.ChannelID, "error", err)
	}
}
