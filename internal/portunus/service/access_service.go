package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/clock"
	"github.com/BrandonDHaskell/Portunus/controller/internal/obs"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/policy"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// Attempt is one evaluated card or code presentation.
type Attempt struct {
	Method     types.Method
	Credential types.CredentialID // card attempts only; never journaled raw
	Decision   types.AccessDecision
	Detail     string
	ReceivedAt time.Time
	DecidedAt  time.Time
}

// AccessService evaluates attempts against the authorization set and
// journals the result.
type AccessService struct {
	set        policy.AuthorizationSet
	eventStore store.AccessEventStore
	clock      clock.Clock
	metrics    *obs.Metrics
	logger     *slog.Logger
}

func NewAccessService(set policy.AuthorizationSet, es store.AccessEventStore, clk clock.Clock, m *obs.Metrics, logger *slog.Logger) *AccessService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessService{
		set:        set,
		eventStore: es,
		clock:      clk,
		metrics:    m,
		logger:     logger.With("component", "access"),
	}
}

// DecideCard evaluates the outcome of a card read. A non-nil readErr is
// denied with read-error without consulting the set.
func (s *AccessService) DecideCard(id types.CredentialID, readErr error, receivedAt time.Time) Attempt {
	a := Attempt{
		Method:     types.MethodCard,
		Credential: id,
		Decision:   policy.CheckRead(id, readErr, s.set),
		ReceivedAt: receivedAt,
		DecidedAt:  s.clock.Now(),
	}
	if readErr != nil {
		a.Credential = ""
		a.Detail = readErr.Error()
	}
	s.report(a)
	return a
}

// DecideCode evaluates a completed keypad entry.
func (s *AccessService) DecideCode(code types.Code, receivedAt time.Time) Attempt {
	a := Attempt{
		Method:     types.MethodCode,
		Decision:   policy.CheckCode(code, s.set),
		ReceivedAt: receivedAt,
		DecidedAt:  s.clock.Now(),
	}
	s.report(a)
	return a
}

func (s *AccessService) report(a Attempt) {
	s.metrics.Decision(a.Method, a.Decision)

	attrs := []any{"method", a.Method, "reason", a.Decision.Reason}
	if a.Credential != "" {
		attrs = append(attrs, "credential", a.Credential.Short())
	}
	if a.Decision.Granted {
		s.logger.Info("access granted", attrs...)
		return
	}
	if a.Detail != "" {
		attrs = append(attrs, "detail", a.Detail)
	}
	s.logger.Info("access denied", attrs...)
}

// Record persists the attempt to the journal. Errors are logged and
// counted but not returned; a failed journal write never holds up the
// door.
func (s *AccessService) Record(ctx context.Context, a Attempt, outcome types.Outcome, detail string) {
	if s.eventStore == nil {
		return
	}
	if detail == "" {
		detail = a.Detail
	}

	rec := store.AccessEventRecord{
		Method:     a.Method,
		Granted:    a.Decision.Granted,
		Reason:     a.Decision.Reason,
		Outcome:    outcome,
		Detail:     detail,
		ReceivedAt: a.ReceivedAt,
		DecidedAt:  a.DecidedAt,
	}
	if a.Method == types.MethodCard && a.Credential != "" {
		rec.CredentialHash = a.Credential.Hash()
	}

	if err := s.eventStore.RecordEvent(ctx, rec); err != nil {
		s.metrics.JournalError()
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "journal write failed", "method", a.Method, "error", err)
	}
}
