package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// AccessEventRecord captures one access decision. Card ids are kept only
// as CredentialHash (SHA-256); code entries are never stored.
type AccessEventRecord struct {
	EventID        string
	Method         types.Method
	CredentialHash []byte // nil for keypad entries and failed reads
	Granted        bool
	Reason         types.Reason
	Outcome        types.Outcome
	Detail         string // error text for read errors and actuator faults
	ReceivedAt     time.Time
	DecidedAt      time.Time
}

// AccessEventStore persists access decisions as an append-only journal.
type AccessEventStore interface {
	RecordEvent(ctx context.Context, rec AccessEventRecord) error

	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]AccessEventRecord, error)

	EventPruner
}
