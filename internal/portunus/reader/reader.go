// Package reader adapts a proximity card reader into the controller's
// read contract: a CredentialID or a ReadError, bounded by an optional
// timeout and always cancellable.
package reader

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/hw"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// Adapter wraps a hw.ProximityCardReader.
type Adapter struct {
	dev     hw.ProximityCardReader
	timeout time.Duration
}

// New returns an Adapter. A timeout of zero waits for a card until ctx
// is done.
func New(dev hw.ProximityCardReader, timeout time.Duration) *Adapter {
	if timeout < 0 {
		timeout = 0
	}
	return &Adapter{dev: dev, timeout: timeout}
}

// Read blocks until a card is presented, the timeout elapses, or ctx is
// done. Device failures, empty reads and timeouts are returned as
// *types.ReadError. Cancellation of ctx itself is returned unwrapped so
// callers can tell shutdown from a failed read.
func (a *Adapter) Read(ctx context.Context) (types.CredentialID, error) {
	readCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	id, err := a.dev.Read(readCtx)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &types.ReadError{Err: types.ErrReadTimeout}
		}
		return "", &types.ReadError{Err: err}
	}

	id = types.CredentialID(strings.TrimSpace(string(id)))
	if id == "" {
		return "", &types.ReadError{Err: types.ErrNoCard}
	}
	return id, nil
}

// Close releases the underlying device.
func (a *Adapter) Close() error { return a.dev.Close() }
