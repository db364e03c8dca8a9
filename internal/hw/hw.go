// Package hw declares the hardware collaborators the access controller
// drives. Implementations are thin shims: periphio for a Raspberry Pi,
// hwtest for tests.
package hw

import (
	"context"
	"errors"
	"sync"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

type Mode int

const (
	Input Mode = iota
	Output
)

type Pull int

const (
	PullNone Pull = iota
	PullDown
	PullUp
)

// GpioLine is one digital I/O line.
type GpioLine interface {
	Name() string
	SetMode(m Mode) error
	SetPull(p Pull) error
	Write(l Level) error
	Read() Level
}

// PwmActuator commands a position-controlled actuator (a hobby servo on
// the reference build) through its PWM duty cycle.
type PwmActuator interface {
	Start(frequencyHz float64) error
	SetDutyCycle(percent float64) error
	Stop() error
}

// ProximityCardReader wraps the card antenna protocol. Read blocks until
// a card is presented, ctx is done, or the device fails. Implementations
// must honour ctx.
type ProximityCardReader interface {
	Read(ctx context.Context) (types.CredentialID, error)
	Close() error
}

// Resources is the single owned handle to every hardware line the
// controller uses. Components receive the pieces they need from it;
// nothing else holds hardware globally.
type Resources struct {
	Rows   []GpioLine
	Cols   []GpioLine
	Servo  PwmActuator
	Reader ProximityCardReader

	mu       sync.Mutex
	closers  []func() error
	released bool
}

// OnClose registers fn to run when the resources are released. Closers
// run in reverse registration order.
func (r *Resources) OnClose(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, fn)
}

// Close releases all registered hardware. It is safe to call more than
// once; only the first call does any work.
func (r *Resources) Close() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil
	}
	r.released = true
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
