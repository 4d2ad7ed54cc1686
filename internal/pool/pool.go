// ABOUTME: Connection pool holding the fleet's live bot connections
// ABOUTME: Serializes lifecycle operations and applies the capacity ceiling

package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/hive-fleet/internal/gateway"
	"github.com/2389/hive-fleet/internal/store"
)

// Options configures a Pool.
type Options struct {
	Dialer    gateway.Dialer
	Agents    AgentBuilder
	Identity  IdentityStore
	MaxBots   int
	MaxLength int
	Logger    *slog.Logger
}

// Pool manages the set of running bot connections, keyed by record ID.
// One mutex guards all lifecycle operations, so starts, stops, and
// updates never interleave.
type Pool struct {
	mu    sync.Mutex
	items map[int64]*Item

	deps    *deps
	maxBots int
	logger  *slog.Logger
}

func New(opts Options) *Pool {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		items: make(map[int64]*Item),
		deps: &deps{
			dialer:    opts.Dialer,
			agents:    opts.Agents,
			identity:  opts.Identity,
			maxLength: opts.MaxLength,
			logger:    logger,
		},
		maxBots: opts.MaxBots,
		logger:  logger.With("component", "pool"),
	}
}

// Start brings up a connection for the record. Starting an already
// running record, or starting past the capacity ceiling, is a logged
// no-op.
func (p *Pool) Start(ctx context.Context, rec *store.AgentRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startLocked(ctx, rec)
}

func (p *Pool) startLocked(ctx context.Context, rec *store.AgentRecord) error {
	if _, ok := p.items[rec.ID]; ok {
		p.logger.Debug("bot already running", "agent_id", rec.ID)
		return nil
	}
	if len(p.items) >= p.maxBots {
		p.logger.Warn("pool at capacity, not starting bot", "agent_id", rec.ID, "max_bots", p.maxBots)
		return nil
	}

	item := newItem(rec, p.deps)
	if err := item.start(ctx); err != nil {
		return fmt.Errorf("starting bot %d: %w", rec.ID, err)
	}

	p.items[rec.ID] = item
	return nil
}

// Stop tears down the connection for the record ID. Stopping an absent
// record is a no-op.
func (p *Pool) Stop(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked(ctx, id)
}

func (p *Pool) stopLocked(ctx context.Context, id int64) error {
	item, ok := p.items[id]
	if !ok {
		return nil
	}
	delete(p.items, id)

	if err := item.stop(ctx); err != nil {
		return fmt.Errorf("stopping bot %d: %w", id, err)
	}
	return nil
}

// Update reconciles a running bot against a fresh record. An absent
// record starts; a credential change restarts the connection; anything
// else applies in place.
func (p *Pool) Update(ctx context.Context, rec *store.AgentRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.items[rec.ID]
	if !ok {
		return p.startLocked(ctx, rec)
	}

	if credentialsChanged(item.record, rec) {
		p.logger.Info("credentials rotated, restarting bot", "agent_id", rec.ID)
		if err := p.stopLocked(ctx, rec.ID); err != nil {
			return err
		}
		return p.startLocked(ctx, rec)
	}

	item.updateRecord(rec)
	return nil
}

func credentialsChanged(prev, next *store.AgentRecord) bool {
	return prev.Homeserver != next.Homeserver || prev.AccessToken != next.AccessToken
}

// Running reports the IDs of currently running bots.
func (p *Pool) Running() map[int64]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	running := make(map[int64]bool, len(p.items))
	for id := range p.items {
		running[id] = true
	}
	return running
}

// Size reports the number of live connections.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Item returns the live item for a record ID, or nil.
func (p *Pool) Item(id int64) *Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items[id]
}

// ShutdownAll stops every bot concurrently, bounded by timeout.
// Stragglers are abandoned with a warning so shutdown always
// completes.
func (p *Pool) ShutdownAll(ctx context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.mu.Lock()
	items := p.items
	p.items = make(map[int64]*Item)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for id, item := range items {
		wg.Add(1)
		go func(id int64, item *Item) {
			defer wg.Done()
			if err := item.stop(ctx); err != nil {
				p.logger.Warn("bot did not stop cleanly", "agent_id", id, "error", err)
			}
		}(id, item)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("all bots stopped", "count", len(items))
	case <-ctx.Done():
		p.logger.Warn("shutdown timed out, abandoning remaining bots")
	}
}
