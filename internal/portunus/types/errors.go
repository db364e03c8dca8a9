package types

import (
	"errors"
	"fmt"
)

var (
	// ErrActuatorBusy is returned when an unlock is requested while a
	// cycle is already in progress. The request is dropped, not queued.
	ErrActuatorBusy = errors.New("actuator busy")

	// ErrNoCard means the reader returned without a card in the field.
	ErrNoCard = errors.New("no card presented")

	// ErrReadTimeout means the configured card read timeout elapsed.
	ErrReadTimeout = errors.New("card read timed out")
)

// ReadError is a transient card reader failure. The read loop reports it
// and continues.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "card read: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// Transient reports whether the error is an expected idle condition (no
// card, timeout) rather than a hardware failure.
func (e *ReadError) Transient() bool {
	return errors.Is(e.Err, ErrNoCard) || errors.Is(e.Err, ErrReadTimeout)
}

// ActuatorFault is a hardware failure while commanding the lock. The
// actuator controller has already forced the state back to Locked when
// this is returned.
type ActuatorFault struct {
	Phase string // "unlock" or "relock"
	Err   error
}

func (e *ActuatorFault) Error() string {
	return fmt.Sprintf("actuator fault during %s: %v", e.Phase, e.Err)
}

func (e *ActuatorFault) Unwrap() error { return e.Err }
