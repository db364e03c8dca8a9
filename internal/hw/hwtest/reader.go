package hwtest

import (
	"context"
	"sync/atomic"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type readResult struct {
	id  types.CredentialID
	err error
}

// CardReader hands out queued cards and errors. With nothing queued,
// Read blocks until ctx is done, like an antenna with no card in range.
type CardReader struct {
	results chan readResult
	reads   atomic.Int64
	closed  atomic.Bool
}

func NewCardReader() *CardReader {
	return &CardReader{results: make(chan readResult, 16)}
}

// Present queues a card for the next Read.
func (r *CardReader) Present(id types.CredentialID) {
	r.results <- readResult{id: id}
}

// Fail queues a read failure.
func (r *CardReader) Fail(err error) {
	r.results <- readResult{err: err}
}

func (r *CardReader) Read(ctx context.Context) (types.CredentialID, error) {
	r.reads.Add(1)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-r.results:
		return res.id, res.err
	}
}

func (r *CardReader) Close() error {
	r.closed.Store(true)
	return nil
}

// Reads returns how many times Read has been entered.
func (r *CardReader) Reads() int64 { return r.reads.Load() }

func (r *CardReader) Closed() bool { return r.closed.Load() }
