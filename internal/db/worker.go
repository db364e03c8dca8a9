package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Do once the worker has been closed.
var ErrClosed = errors.New("db worker closed")

// DefaultQueueDepth bounds how many write transactions may wait for the
// writer goroutine.
const DefaultQueueDepth = 64

type TxFn func(ctx context.Context, tx *sql.Tx) error

type writeJob struct {
	ctx    context.Context
	fn     TxFn
	result chan error
}

// Worker owns the only write path to the journal. Transactions queue on a
// channel and commit one at a time on a single goroutine, so sqlite never
// sees two writers.
type Worker struct {
	conn  *sql.DB
	queue chan writeJob
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

type WorkerOption func(*Worker)

// WithQueueDepth overrides DefaultQueueDepth.
func WithQueueDepth(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan writeJob, n)
		}
	}
}

func NewWorker(conn *sql.DB, opts ...WorkerOption) *Worker {
	w := &Worker{
		conn:  conn,
		queue: make(chan writeJob, DefaultQueueDepth),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	go w.serve()
	return w
}

// Close stops accepting work, finishes everything already queued and
// returns once the writer goroutine has exited. Later calls only wait.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

// Do queues fn and waits for its transaction to commit or roll back. An
// error from fn rolls back. If ctx ends first Do returns ctx.Err(); a job
// already queued still runs.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	job := writeJob{ctx: ctx, fn: fn, result: make(chan error, 1)}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrClosed
	}
	select {
	case w.queue <- job:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) serve() {
	defer close(w.done)
	for job := range w.queue {
		job.result <- w.exec(job)
	}
}

func (w *Worker) exec(job writeJob) error {
	tx, err := w.conn.BeginTx(job.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := job.fn(job.ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
