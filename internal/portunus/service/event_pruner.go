package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/clock"
	"github.com/BrandonDHaskell/Portunus/controller/internal/obs"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

// EventPruner periodically deletes journal entries older than the
// retention period. A retention of 0 disables pruning entirely.
type EventPruner struct {
	store     store.EventPruner
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	metrics   *obs.Metrics
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// PrunerConfig holds the parameters for NewEventPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of history to keep. 0 keeps
	// everything and the pruner does not start.
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

// NewEventPruner creates a pruner but does not start it.
func NewEventPruner(s store.EventPruner, cfg PrunerConfig, clk clock.Clock, m *obs.Metrics, logger *slog.Logger) *EventPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &EventPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		clock:     clk,
		metrics:   m,
		logger:    logger.With("component", "pruner"),
		done:      make(chan struct{}),
	}
}

// Start runs a prune immediately, then repeats every interval until ctx
// is cancelled or Stop is called.
func (p *EventPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("journal pruner disabled", "retention_days", 0)
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("journal pruner started",
		"retention_days", int(p.retention.Hours()/24),
		"interval_hours", int(p.interval.Hours()),
	)
}

// Stop signals the pruner to exit and waits for it. Safe to call more
// than once.
func (p *EventPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *EventPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
			p.prune(ctx)
		}
	}
}

func (p *EventPruner) prune(ctx context.Context) {
	cutoff := p.clock.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("journal prune failed", "error", err)
		}
		return
	}
	p.metrics.Pruned(deleted)
	if deleted > 0 {
		p.logger.Info("journal pruned", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
}
