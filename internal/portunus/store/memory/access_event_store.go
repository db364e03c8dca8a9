package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

// AccessEventStore is an in-memory append-only log of access decisions.
// It is intended for tests and for running with the journal disabled.
type AccessEventStore struct {
	mu     sync.Mutex
	events []store.AccessEventRecord
	max    int
}

// NewAccessEventStore returns an unbounded store.
func NewAccessEventStore() *AccessEventStore {
	return &AccessEventStore{}
}

// NewBoundedAccessEventStore keeps at most max events, dropping the
// oldest.
func NewBoundedAccessEventStore(max int) *AccessEventStore {
	return &AccessEventStore{max: max}
}

func (s *AccessEventStore) RecordEvent(_ context.Context, rec store.AccessEventRecord) error {
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = rec.DecidedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	if s.max > 0 && len(s.events) > s.max {
		s.events = append([]store.AccessEventRecord(nil), s.events[len(s.events)-s.max:]...)
	}
	return nil
}

func (s *AccessEventStore) ListRecent(_ context.Context, limit int) ([]store.AccessEventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.AccessEventRecord, len(s.events))
	copy(out, s.events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AccessEventStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for _, ev := range s.events {
		if ev.ReceivedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

// Events returns a copy of all recorded events in insertion order.
// Test-only helper.
func (s *AccessEventStore) Events() []store.AccessEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AccessEventRecord, len(s.events))
	copy(out, s.events)
	return out
}
