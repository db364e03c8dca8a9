package service

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// Snapshot is a point-in-time view of the controller for the status
// endpoints.
type Snapshot struct {
	LockState    types.LockState
	StartedAt    time.Time
	Grants       int64
	Denies       int64
	Busy         int64
	Faults       int64
	ReadErrors   int64
	KeyPresses   int64
	LastDecision *LastDecision
}

// LastDecision summarises the most recent attempt. It carries no
// credential material.
type LastDecision struct {
	Method  types.Method
	Granted bool
	Reason  types.Reason
	Outcome types.Outcome
	At      time.Time
}

type stats struct {
	mu   sync.Mutex
	snap Snapshot
}

func (s *stats) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
}

func (s *stats) get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	if s.snap.LastDecision != nil {
		ld := *s.snap.LastDecision
		out.LastDecision = &ld
	}
	return out
}

func (s *stats) decided(a Attempt, outcome types.Outcome) {
	s.update(func(sn *Snapshot) {
		if !a.Decision.Granted {
			sn.Denies++
		} else {
			sn.Grants++
		}
		switch outcome {
		case types.OutcomeBusy:
			sn.Busy++
		case types.OutcomeFault:
			sn.Faults++
		}
		sn.LastDecision = &LastDecision{
			Method:  a.Method,
			Granted: a.Decision.Granted,
			Reason:  a.Decision.Reason,
			Outcome: outcome,
			At:      a.DecidedAt,
		}
	})
}

// Map renders the snapshot as plain values for the JSON and protobuf
// (structpb) status encodings.
func (s Snapshot) Map(now time.Time) map[string]any {
	m := map[string]any{
		"lock_state":  s.LockState.String(),
		"grants":      s.Grants,
		"denies":      s.Denies,
		"busy":        s.Busy,
		"faults":      s.Faults,
		"read_errors": s.ReadErrors,
		"key_presses": s.KeyPresses,
	}
	if !s.StartedAt.IsZero() {
		m["started_at"] = s.StartedAt.UTC().Format(time.RFC3339Nano)
		m["uptime_seconds"] = int64(now.Sub(s.StartedAt).Seconds())
	}
	if ld := s.LastDecision; ld != nil {
		m["last_decision"] = map[string]any{
			"method":  string(ld.Method),
			"granted": ld.Granted,
			"reason":  string(ld.Reason),
			"outcome": string(ld.Outcome),
			"at":      ld.At.UTC().Format(time.RFC3339Nano),
		}
	}
	return m
}

// EventMap renders a journal record for the status encodings. The
// credential appears only as a hash fingerprint.
func EventMap(r store.AccessEventRecord) map[string]any {
	m := map[string]any{
		"event_id":    r.EventID,
		"method":      string(r.Method),
		"granted":     r.Granted,
		"reason":      string(r.Reason),
		"outcome":     string(r.Outcome),
		"received_at": r.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"decided_at":  r.DecidedAt.UTC().Format(time.RFC3339Nano),
	}
	if len(r.CredentialHash) >= 4 {
		m["credential"] = hex.EncodeToString(r.CredentialHash[:4])
	}
	if r.Detail != "" {
		m["detail"] = r.Detail
	}
	return m
}
