package db_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/BrandonDHaskell/Portunus/controller/internal/db"
)

func openTemp(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{
		Path: filepath.Join(t.TempDir(), "nested", "journal.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// ── Migrate ──────────────────────────────────────────────────────────────────

func TestOpen_CreatesSchema(t *testing.T) {
	conn := openTemp(t)

	var name string
	err := conn.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'access_events'`,
	).Scan(&name)
	if err != nil {
		t.Fatalf("access_events table missing: %v", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	conn := openTemp(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recorded migration, got %d", n)
	}
}

// ── Worker ───────────────────────────────────────────────────────────────────

func TestWorker_CommitsAndRollsBack(t *testing.T) {
	conn := openTemp(t)
	w := db.NewWorker(conn)
	defer w.Close()
	ctx := context.Background()

	insert := func(id string) db.TxFn {
		return func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
INSERT INTO access_events(event_id, method, granted, reason, received_at_ms, decided_at_ms)
VALUES (?, 'code', 0, 'no-match', 1, 1);`, id)
			return err
		}
	}

	if err := w.Do(ctx, insert("a")); err != nil {
		t.Fatalf("Do: %v", err)
	}

	boom := errors.New("boom")
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := insert("b")(ctx, tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM access_events`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected rolled-back insert to be discarded, got %d rows", n)
	}
}

func TestWorker_DoAfterClose(t *testing.T) {
	conn := openTemp(t)
	w := db.NewWorker(conn)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	if !errors.Is(err, db.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
