// Package store defines persistence for the access journal. The sqlite
// implementation is used in production; memory backs tests and runs
// with the journal disabled.
package store

import (
	"context"
	"time"
)

// EventPruner deletes journal entries older than a cutoff.
type EventPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
