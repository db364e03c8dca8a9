package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/clock"
	"github.com/BrandonDHaskell/Portunus/controller/internal/obs"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

func seedEvent(t *testing.T, es *memory.AccessEventStore, at time.Time) {
	t.Helper()
	if err := es.RecordEvent(context.Background(), store.AccessEventRecord{
		Method:     types.MethodCode,
		Reason:     types.ReasonNoMatch,
		ReceivedAt: at,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func waitForCount(t *testing.T, es *memory.AccessEventStore, n int) {
	t.Helper()
	eventually(t, func() bool { return len(es.Events()) == n }, "journal to hold %d events", n)
}

func TestEventPruner_DisabledWhenRetentionZero(t *testing.T) {
	es := memory.NewAccessEventStore()
	seedEvent(t, es, epoch.AddDate(-1, 0, 0))

	pruner := service.NewEventPruner(es, service.PrunerConfig{RetentionDays: 0}, clock.Fake(epoch), nil, obs.Discard())
	pruner.Start(context.Background())
	pruner.Stop()

	if len(es.Events()) != 1 {
		t.Error("disabled pruner must not delete anything")
	}
}

func TestEventPruner_PrunesOnStartAndInterval(t *testing.T) {
	es := memory.NewAccessEventStore()
	c := clock.Fake(epoch)

	seedEvent(t, es, epoch.AddDate(0, 0, -40))
	seedEvent(t, es, epoch.AddDate(0, 0, -30).Add(time.Hour)) // expires within the first interval
	seedEvent(t, es, epoch.AddDate(0, 0, -1))

	pruner := service.NewEventPruner(es, service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 6,
	}, c, obs.NewMetrics(nil), obs.Discard())
	pruner.Start(context.Background())
	defer pruner.Stop()

	waitForCount(t, es, 2)

	c.WaitForTimers(1)
	c.Advance(6 * time.Hour)

	waitForCount(t, es, 1)
}

func TestEventPruner_StopIsIdempotent(t *testing.T) {
	pruner := service.NewEventPruner(memory.NewAccessEventStore(), service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	}, clock.Fake(epoch), nil, obs.Discard())

	pruner.Start(context.Background())
	pruner.Stop()
	pruner.Stop()
}

func TestEventPruner_StopsOnContextCancel(t *testing.T) {
	pruner := service.NewEventPruner(memory.NewAccessEventStore(), service.PrunerConfig{
		RetentionDays: 30,
	}, clock.Fake(epoch), nil, obs.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		pruner.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not stop after context cancel")
	}
}
