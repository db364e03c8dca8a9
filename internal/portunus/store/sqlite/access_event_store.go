package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// AccessEventStore is the on-disk access journal. Writes go through the
// single db.Worker; reads use the pool directly.
type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

func (s *AccessEventStore) RecordEvent(ctx context.Context, rec store.AccessEventRecord) error {
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = rec.DecidedAt
	}

	var granted int
	if rec.Granted {
		granted = 1
	}

	var credentialHash any
	if len(rec.CredentialHash) == 32 {
		credentialHash = rec.CredentialHash
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  event_id, method, credential_hash, granted, reason,
  outcome, detail, received_at_ms, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.EventID, string(rec.Method), credentialHash, granted, string(rec.Reason),
			string(rec.Outcome), rec.Detail,
			rec.ReceivedAt.UTC().UnixMilli(), rec.DecidedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

// ListRecent returns up to limit events ordered newest first. limit <= 0
// means no limit.
func (s *AccessEventStore) ListRecent(ctx context.Context, limit int) ([]store.AccessEventRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, method, credential_hash, granted, reason,
       outcome, detail, received_at_ms, decided_at_ms
FROM access_events
ORDER BY received_at_ms DESC, decided_at_ms DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRecent: %w", err)
	}
	defer rows.Close()

	var out []store.AccessEventRecord
	for rows.Next() {
		var (
			rec                   store.AccessEventRecord
			method, reason, outc  string
			granted               int
			receivedMs, decidedMs int64
		)
		if err := rows.Scan(
			&rec.EventID, &method, &rec.CredentialHash, &granted, &reason,
			&outc, &rec.Detail, &receivedMs, &decidedMs,
		); err != nil {
			return nil, fmt.Errorf("ListRecent scan: %w", err)
		}
		rec.Method = types.Method(method)
		rec.Reason = types.Reason(reason)
		rec.Outcome = types.Outcome(outc)
		rec.Granted = granted == 1
		rec.ReceivedAt = time.UnixMilli(receivedMs).UTC()
		rec.DecidedAt = time.UnixMilli(decidedMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRecent rows: %w", err)
	}
	return out, nil
}

// PruneOlderThan deletes events received before cutoff and returns the
// number of rows removed. Uses idx_access_events_received.
func (s *AccessEventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM access_events
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
