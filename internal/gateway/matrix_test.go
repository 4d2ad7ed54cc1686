// ABOUTME: Tests for Matrix client construction and inbound event filtering
// ABOUTME: Exercises the paths that run before any homeserver traffic

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/hive-fleet/internal/store"
)

func testMatrixClient(t *testing.T) *MatrixClient {
	dialer := &MatrixDialer{}
	client, err := dialer.Dial(&store.AgentRecord{
		ID:          1,
		Name:        "bot1",
		Homeserver:  "https://matrix.example.org",
		AccessToken: "token",
	})
	require.NoError(t, err)

	mc, ok := client.(*MatrixClient)
	require.True(t, ok)
	return mc
}

func TestDialBuildsClientWithoutNetwork(t *testing.T) {
	mc := testMatrixClient(t)
	assert.NotNil(t, mc.client)
	assert.Nil(t, mc.identity)
}

// stubSyncer satisfies mautrix.Syncer without being the default syncer.
type stubSyncer struct{}

func (stubSyncer) ProcessResponse(context.Context, *mautrix.RespSync, string) error {
	return nil
}

func (stubSyncer) OnFailedSync(_ *mautrix.RespSync, err error) (time.Duration, error) {
	return 0, err
}

func (stubSyncer) GetFilterJSON(id.UserID) *mautrix.Filter {
	return &mautrix.Filter{}
}

func TestRunRejectsUnexpectedSyncer(t *testing.T) {
	mc := testMatrixClient(t)

	// The old-event filter and message callback register against the
	// default syncer; anything else is refused before syncing starts.
	mc.client.Syncer = stubSyncer{}

	err := mc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected syncer type")
}

func textEvent(msgType event.MessageType, body string) *event.Event {
	return &event.Event{
		ID:     id.EventID("$evt1"),
		RoomID: id.RoomID("!room:example.org"),
		Sender: id.UserID("@alice:example.org"),
		Content: event.Content{
			Parsed: &event.MessageEventContent{
				MsgType: msgType,
				Body:    body,
			},
		},
	}
}

func TestHandleMessageEventIgnoresNonText(t *testing.T) {
	mc := testMatrixClient(t)

	called := false
	mc.SetMessageHandler(func(context.Context, *Event) { called = true })

	mc.handleMessageEvent(context.Background(), textEvent(event.MsgNotice, "beep"))
	assert.False(t, called)

	mc.handleMessageEvent(context.Background(), textEvent(event.MsgImage, "cat.png"))
	assert.False(t, called)
}

func TestHandleMessageEventWithoutHandlerIsSafe(t *testing.T) {
	mc := testMatrixClient(t)
	mc.handleMessageEvent(context.Background(), textEvent(event.MsgText, "hello"))
}
