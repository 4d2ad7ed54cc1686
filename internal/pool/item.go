// ABOUTME: Lifecycle of a single bot connection inside the pool
// ABOUTME: Owns the gateway client, agent, router, and dedupe cache for one record

package pool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/hive-fleet/internal/agent"
	"github.com/2389/hive-fleet/internal/dedupe"
	"github.com/2389/hive-fleet/internal/gateway"
	"github.com/2389/hive-fleet/internal/router"
	"github.com/2389/hive-fleet/internal/store"
)

// State is the lifecycle state of one item.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Redelivered sync events within this window are dropped.
const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 10000
)

// Item manages one bot connection through its lifecycle. All lifecycle
// transitions happen under the pool's lock; the receive loop runs in
// its own goroutine.
type Item struct {
	record *store.AgentRecord
	deps   *deps
	logger *slog.Logger

	// instanceID is assigned fresh on every successful start, so a
	// restart is observable as a new ID.
	instanceID string
	state      State

	client gateway.Client
	router *router.Router
	seen   *dedupe.Cache
	cancel context.CancelFunc
	done   chan struct{}
}

// deps bundles the collaborators shared by all items in a pool.
type deps struct {
	dialer    gateway.Dialer
	agents    AgentBuilder
	identity  IdentityStore
	maxLength int
	logger    *slog.Logger
}

func newItem(rec *store.AgentRecord, d *deps) *Item {
	return &Item{
		record: rec,
		deps:   d,
		logger: d.logger.With("agent_id", rec.ID, "agent_name", rec.Name),
		state:  StateStopped,
	}
}

// InstanceID identifies the current connection incarnation, empty when
// stopped.
func (it *Item) InstanceID() string {
	return it.instanceID
}

// State reports the current lifecycle state.
func (it *Item) State() State {
	return it.state
}

// Record returns the record the item is running.
func (it *Item) Record() *store.AgentRecord {
	return it.record
}

// start brings the connection up: dial, authenticate, write the
// connection-assigned identity back to the store, wire the router, and
// launch the receive loop. On any failure the item stays stopped.
func (it *Item) start(ctx context.Context) error {
	if it.state != StateStopped {
		return fmt.Errorf("cannot start item in state %s", it.state)
	}
	it.state = StateStarting

	client, err := it.deps.dialer.Dial(it.record)
	if err != nil {
		it.state = StateStopped
		return fmt.Errorf("dialing gateway: %w", err)
	}

	identity, err := client.Connect(ctx)
	if err != nil {
		it.state = StateStopped
		return fmt.Errorf("connecting: %w", err)
	}

	// Best effort: the fleet runs fine without the identity persisted.
	if err := it.deps.identity.UpdateBotIdentity(ctx, it.record.ID, identity.UserID, identity.Username, identity.DisplayName); err != nil {
		it.logger.Warn("failed to persist bot identity", "error", err)
	}

	botAgent, err := it.deps.agents.New(it.record)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := client.Close(closeCtx); cerr != nil {
			it.logger.Debug("failed to close client after agent build failure", "error", cerr)
		}
		it.state = StateStopped
		return fmt.Errorf("building agent: %w", err)
	}

	it.client = client
	it.router = router.New(it.record, identity.UserID, botAgent, client, it.deps.maxLength, it.logger)
	it.seen = dedupe.New(dedupeTTL, dedupeMaxSize)
	it.instanceID = uuid.NewString()

	client.SetMessageHandler(it.handleEvent)

	runCtx, cancel := context.WithCancel(context.Background())
	it.cancel = cancel
	it.done = make(chan struct{})
	it.state = StateRunning

	go it.run(runCtx)

	it.logger.Info("bot started", "instance_id", it.instanceID, "user_id", identity.UserID)
	return nil
}

// run blocks in the gateway receive loop until shutdown or failure.
func (it *Item) run(ctx context.Context) {
	defer close(it.done)

	if err := it.client.Run(ctx); err != nil {
		it.logger.Error("receive loop terminated", "instance_id", it.instanceID, "error", err)
	}
}

// handleEvent drops redelivered events, then hands the rest to the
// router. Each event is handled in its own goroutine so a slow
// provider call never stalls event receipt; the dedupe check stays
// synchronous to preserve delivery order.
func (it *Item) handleEvent(ctx context.Context, evt *gateway.Event) {
	if evt.ID != "" && it.seen.Seen(evt.ID) {
		it.logger.Debug("dropping redelivered event", "event_id", evt.ID)
		return
	}
	go it.router.HandleMessage(ctx, evt)
}

// stop tears the connection down and waits for the receive loop to
// exit, bounded by ctx.
func (it *Item) stop(ctx context.Context) error {
	if it.state != StateRunning {
		return nil
	}
	it.state = StateStopping

	if err := it.client.Close(ctx); err != nil {
		it.logger.Debug("gateway close failed", "error", err)
	}
	it.cancel()

	select {
	case <-it.done:
	case <-ctx.Done():
		// The receive goroutine is still live. Keep its collaborators
		// intact so a straggling event cannot hit a nil cache or
		// router; only the lifecycle bookkeeping is reset.
		it.seen.Close()
		it.state = StateStopped
		it.instanceID = ""
		return fmt.Errorf("timed out waiting for receive loop: %w", ctx.Err())
	}

	it.markStopped()
	it.logger.Info("bot stopped")
	return nil
}

func (it *Item) markStopped() {
	it.seen.Close()
	it.state = StateStopped
	it.instanceID = ""
	it.client = nil
	it.router = nil
	it.seen = nil
	it.cancel = nil
	it.done = nil
}

// updateRecord applies a non-credential record change in place.
func (it *Item) updateRecord(rec *store.AgentRecord) {
	it.record = rec
	if it.router != nil {
		it.router.UpdateRecord(rec)
	}
}

// AgentBuilder constructs the behavior for a record. Satisfied by
// agent.Factory.
type AgentBuilder interface {
	New(rec *store.AgentRecord) (agent.Agent, error)
}

// IdentityStore persists the connection-assigned bot identity.
// Satisfied by store.Store.
type IdentityStore interface {
	UpdateBotIdentity(ctx context.Context, id int64, userID, username, displayName string) error
}
