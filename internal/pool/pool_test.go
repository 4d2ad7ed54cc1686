// ABOUTME: Tests for pool lifecycle operations against fake gateway doubles
// ABOUTME: Covers idempotent starts, capacity, credential restarts, and shutdown

package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hive-fleet/internal/agent"
	"github.com/2389/hive-fleet/internal/gateway"
	"github.com/2389/hive-fleet/internal/store"
)

type fakeClient struct {
	identity gateway.Identity

	mu      sync.Mutex
	handler gateway.MessageHandler
	stop    chan struct{}
	closed  bool
}

func newFakeClient(userID string) *fakeClient {
	return &fakeClient{
		identity: gateway.Identity{UserID: userID, Username: "bot", DisplayName: "Bot"},
		stop:     make(chan struct{}),
	}
}

func (c *fakeClient) Connect(context.Context) (*gateway.Identity, error) {
	ident := c.identity
	return &ident, nil
}

func (c *fakeClient) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-c.stop:
	}
	return nil
}

func (c *fakeClient) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.stop)
	}
	return nil
}

func (c *fakeClient) SetMessageHandler(h gateway.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *fakeClient) deliver(evt *gateway.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(context.Background(), evt)
}

func (c *fakeClient) Reply(context.Context, *gateway.Event, string) error { return nil }
func (c *fakeClient) Send(context.Context, string, string) error          { return nil }
func (c *fakeClient) Typing(context.Context, string, bool) error          { return nil }

type fakeDialer struct {
	mu      sync.Mutex
	dialed  int
	dialErr error
	clients []*fakeClient
}

func (d *fakeDialer) Dial(rec *store.AgentRecord) (gateway.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	client := newFakeClient(fmt.Sprintf("@%s:example.org", rec.Name))
	d.clients = append(d.clients, client)
	return client, nil
}

type fakeIdentityStore struct {
	mu      sync.Mutex
	updates map[int64]string
	err     error
}

func (s *fakeIdentityStore) UpdateBotIdentity(_ context.Context, id int64, userID, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.updates == nil {
		s.updates = make(map[int64]string)
	}
	s.updates[id] = userID
	return nil
}

type countingAgent struct {
	mu    sync.Mutex
	calls int
}

func (a *countingAgent) Execute(context.Context, string, string, bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return "ok", nil
}

func (a *countingAgent) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeAgentBuilder struct {
	agent *countingAgent
	err   error
}

func (b *fakeAgentBuilder) New(*store.AgentRecord) (agent.Agent, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.agent, nil
}

func testRecord(id int64) *store.AgentRecord {
	return &store.AgentRecord{
		ID:          id,
		Name:        fmt.Sprintf("bot%d", id),
		Homeserver:  "https://matrix.example.org",
		AccessToken: "token",
		Enabled:     true,
		RespondToDM: true,
		AgentType:   store.AgentTypeEcho,
	}
}

func newTestPool(dialer *fakeDialer, maxBots int) (*Pool, *fakeIdentityStore, *countingAgent) {
	identity := &fakeIdentityStore{}
	a := &countingAgent{}
	p := New(Options{
		Dialer:    dialer,
		Agents:    &fakeAgentBuilder{agent: a},
		Identity:  identity,
		MaxBots:   maxBots,
		MaxLength: 2000,
	})
	return p, identity, a
}

func TestPoolStartAndStop(t *testing.T) {
	dialer := &fakeDialer{}
	p, identity, _ := newTestPool(dialer, 10)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, testRecord(1)))
	assert.Equal(t, 1, p.Size())

	item := p.Item(1)
	require.NotNil(t, item)
	assert.Equal(t, StateRunning, item.State())
	assert.NotEmpty(t, item.InstanceID())

	// The connection identity was written back to the store.
	assert.Equal(t, "@bot1:example.org", identity.updates[1])

	require.NoError(t, p.Stop(ctx, 1))
	assert.Zero(t, p.Size())
	assert.Equal(t, StateStopped, item.State())
}

func TestPoolDuplicateStartIsNoOp(t *testing.T) {
	dialer := &fakeDialer{}
	p, _, _ := newTestPool(dialer, 10)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, testRecord(1)))
	first := p.Item(1).InstanceID()

	require.NoError(t, p.Start(ctx, testRecord(1)))
	assert.Equal(t, 1, p.Size())
	assert.Equal(t, 1, dialer.dialed)
	assert.Equal(t, first, p.Item(1).InstanceID())
}

func TestPoolEnforcesCapacity(t *testing.T) {
	dialer := &fakeDialer{}
	p, _, _ := newTestPool(dialer, 2)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, testRecord(1)))
	require.NoError(t, p.Start(ctx, testRecord(2)))
	require.NoError(t, p.Start(ctx, testRecord(3))) // logged no-op

	assert.Equal(t, 2, p.Size())
	assert.Nil(t, p.Item(3))
}

func TestPoolStopAbsentIsNoOp(t *testing.T) {
	p, _, _ := newTestPool(&fakeDialer{}, 10)
	require.NoError(t, p.Stop(context.Background(), 42))
}

func TestPoolStartFailureLeavesNothingBehind(t *testing.T) {
	dialer := &fakeDialer{dialErr: fmt.Errorf("homeserver unreachable")}
	p, _, _ := newTestPool(dialer, 10)

	err := p.Start(context.Background(), testRecord(1))
	require.Error(t, err)
	assert.Zero(t, p.Size())

	// A later retry can succeed.
	dialer.dialErr = nil
	require.NoError(t, p.Start(context.Background(), testRecord(1)))
	assert.Equal(t, 1, p.Size())
}

func TestPoolAgentBuildFailureClosesClient(t *testing.T) {
	dialer := &fakeDialer{}
	p := New(Options{
		Dialer:    dialer,
		Agents:    &fakeAgentBuilder{err: fmt.Errorf("no API key")},
		Identity:  &fakeIdentityStore{},
		MaxBots:   10,
		MaxLength: 2000,
	})

	err := p.Start(context.Background(), testRecord(1))
	require.Error(t, err)
	assert.Zero(t, p.Size())

	require.Len(t, dialer.clients, 1)
	assert.True(t, dialer.clients[0].closed)
}

func TestPoolUpdateStartsAbsentRecord(t *testing.T) {
	p, _, _ := newTestPool(&fakeDialer{}, 10)

	require.NoError(t, p.Update(context.Background(), testRecord(1)))
	assert.Equal(t, 1, p.Size())
}

func TestPoolUpdateRestartsOnCredentialRotation(t *testing.T) {
	dialer := &fakeDialer{}
	p, _, _ := newTestPool(dialer, 10)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, testRecord(1)))
	first := p.Item(1).InstanceID()

	rotated := testRecord(1)
	rotated.AccessToken = "fresh-token"
	require.NoError(t, p.Update(ctx, rotated))

	assert.Equal(t, 2, dialer.dialed)
	second := p.Item(1).InstanceID()
	assert.NotEqual(t, first, second)
}

func TestPoolUpdateAppliesNonCredentialChangeInPlace(t *testing.T) {
	dialer := &fakeDialer{}
	p, _, _ := newTestPool(dialer, 10)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, testRecord(1)))
	first := p.Item(1).InstanceID()

	changed := testRecord(1)
	changed.RespondToDM = false
	changed.RoomWhitelist = []string{"!room:example.org"}
	require.NoError(t, p.Update(ctx, changed))

	assert.Equal(t, 1, dialer.dialed)
	assert.Equal(t, first, p.Item(1).InstanceID())
	assert.False(t, p.Item(1).Record().RespondToDM)
}

func TestPoolDropsRedeliveredEvents(t *testing.T) {
	dialer := &fakeDialer{}
	p, _, a := newTestPool(dialer, 10)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, testRecord(1)))
	client := dialer.clients[0]

	evt := &gateway.Event{
		ID:          "$dup",
		ChannelKind: gateway.KindDirect,
		ChannelID:   "!dm:example.org",
		Sender:      "@alice:example.org",
		Content:     "hi",
	}
	client.deliver(evt)
	require.Eventually(t, func() bool { return a.count() == 1 }, time.Second, 5*time.Millisecond)

	client.deliver(evt)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, a.count())
}

// hungClient ignores cancellation, standing in for a connection whose
// receive loop refuses to wind down.
type hungClient struct {
	*fakeClient
	block chan struct{}
}

func (c *hungClient) Run(context.Context) error {
	<-c.block
	return nil
}

type hangingDialer struct {
	clients []*hungClient
}

func (d *hangingDialer) Dial(rec *store.AgentRecord) (gateway.Client, error) {
	client := &hungClient{
		fakeClient: newFakeClient(fmt.Sprintf("@%s:example.org", rec.Name)),
		block:      make(chan struct{}),
	}
	d.clients = append(d.clients, client)
	return client, nil
}

func TestPoolStopTimeoutAbandonsStragglerSafely(t *testing.T) {
	dialer := &hangingDialer{}
	a := &countingAgent{}
	p := New(Options{
		Dialer:    dialer,
		Agents:    &fakeAgentBuilder{agent: a},
		Identity:  &fakeIdentityStore{},
		MaxBots:   10,
		MaxLength: 2000,
	})
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, testRecord(1)))
	client := dialer.clients[0]

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := p.Stop(cancelled, 1)
	require.ErrorContains(t, err, "timed out")
	assert.Zero(t, p.Size())

	// A late event from the abandoned connection must be handled, not
	// crash the process.
	evt := &gateway.Event{
		ID:          "$late",
		ChannelKind: gateway.KindDirect,
		ChannelID:   "!dm:example.org",
		Sender:      "@alice:example.org",
		Content:     "hi",
	}
	client.deliver(evt)
	require.Eventually(t, func() bool { return a.count() == 1 }, time.Second, 5*time.Millisecond)

	// Redelivery on the abandoned connection is still deduped.
	client.deliver(evt)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, a.count())

	close(client.block)
}

func TestPoolShutdownAllStopsEverything(t *testing.T) {
	dialer := &fakeDialer{}
	p, _, _ := newTestPool(dialer, 10)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, p.Start(ctx, testRecord(i)))
	}

	p.ShutdownAll(ctx, 5*time.Second)
	assert.Zero(t, p.Size())

	for _, client := range dialer.clients {
		assert.True(t, client.closed)
	}
}
