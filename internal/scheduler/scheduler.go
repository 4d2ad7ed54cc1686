// ABOUTME: Reconciliation loop converging the pool on the store's enabled agents
// ABOUTME: Polls on an interval; cycle errors are logged and never stop the loop

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/hive-fleet/internal/store"
)

// AgentSource lists the agents that should be running. Satisfied by
// store.Store.
type AgentSource interface {
	ListEnabled(ctx context.Context) ([]*store.AgentRecord, error)
}

// Controller is the slice of the pool the scheduler drives. Satisfied
// by pool.Pool.
type Controller interface {
	Update(ctx context.Context, rec *store.AgentRecord) error
	Stop(ctx context.Context, id int64) error
	Running() map[int64]bool
}

// Scheduler periodically reconciles the pool against the store: enabled
// records are started or updated, everything else is stopped. One cycle
// failing never stops the loop.
type Scheduler struct {
	source   AgentSource
	pool     Controller
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(source AgentSource, pool Controller, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:   source,
		pool:     pool,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start launches the loop. The first reconciliation runs immediately,
// then every interval until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.loop(loopCtx, done)

	s.logger.Info("scheduler started", "poll_interval", s.interval)
	return nil
}

// Stop halts the loop and waits for the current cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

// Reconcile runs one convergence cycle immediately, outside the loop's
// cadence. The admin surface uses it to apply changes without waiting
// for the next tick.
func (s *Scheduler) Reconcile(ctx context.Context) {
	s.reconcile(ctx)
}

func (s *Scheduler) reconcile(ctx context.Context) {
	desired, err := s.source.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to list enabled agents", "error", err)
		return
	}

	desiredIDs := make(map[int64]bool, len(desired))
	for _, rec := range desired {
		desiredIDs[rec.ID] = true
		if err := s.pool.Update(ctx, rec); err != nil {
			s.logger.Error("failed to converge bot", "agent_id", rec.ID, "error", err)
		}
	}

	for id := range s.pool.Running() {
		if desiredIDs[id] {
			continue
		}
		if err := s.pool.Stop(ctx, id); err != nil {
			s.logger.Error("failed to stop disabled bot", "agent_id", id, "error", err)
		}
	}
}
