// Package actuator drives the lock through its timed
// Unlock -> Hold -> Relock cycle.
package actuator

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/clock"
	"github.com/BrandonDHaskell/Portunus/controller/internal/hw"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// ErrClosed is returned by TriggerUnlock after Close.
var ErrClosed = errors.New("actuator closed")

// Config holds the servo positions and cycle timings. Duty cycles are
// percentages of the PWM period.
type Config struct {
	FrequencyHz float64
	UnlockDuty  float64
	LockDuty    float64
	Settle      time.Duration // time for the servo to reach a commanded position
	Dwell       time.Duration // time held unlocked before relocking
}

// DefaultConfig matches the reference build: a hobby servo at 50 Hz,
// 7% unlocked, 2% locked, 1 s travel and a 5 s hold.
func DefaultConfig() Config {
	return Config{
		FrequencyHz: 50,
		UnlockDuty:  7,
		LockDuty:    2,
		Settle:      time.Second,
		Dwell:       5 * time.Second,
	}
}

// TransitionFunc observes state changes. It runs with the controller's
// lock held and must not call back into the controller.
type TransitionFunc func(from, to types.LockState)

// Controller owns the single LockState. At most one cycle runs at a
// time; a request arriving mid-cycle fails with types.ErrActuatorBusy.
type Controller struct {
	servo  hw.PwmActuator
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu           sync.Mutex
	state        types.LockState
	closed       bool
	inFlight     sync.WaitGroup
	onTransition TransitionFunc
}

type Option func(*Controller)

// WithTransitionHook registers fn to observe every state change.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(c *Controller) { c.onTransition = fn }
}

func New(servo hw.PwmActuator, cfg Config, clk clock.Clock, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		servo:  servo,
		cfg:    cfg,
		clock:  clk,
		logger: logger.With("component", "actuator"),
		state:  types.Locked,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init starts the PWM output and drives the lock to its locked position,
// so the door is known locked before any input is accepted.
func (c *Controller) Init() error {
	if err := c.servo.Start(c.cfg.FrequencyHz); err != nil {
		return err
	}
	if err := c.servo.SetDutyCycle(c.cfg.LockDuty); err != nil {
		return err
	}
	c.clock.Sleep(c.cfg.Settle)
	c.logger.Info("actuator ready", "state", c.State(), "frequency_hz", c.cfg.FrequencyHz)
	return nil
}

// State returns the current lock state.
func (c *Controller) State() types.LockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TriggerUnlock runs one full cycle and returns once the lock is back in
// the Locked state. It blocks for settle + dwell + settle. A hardware
// failure returns *types.ActuatorFault after forcing the state back to
// Locked. The cycle is never abandoned part way.
func (c *Controller) TriggerUnlock() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != types.Locked {
		c.mu.Unlock()
		return types.ErrActuatorBusy
	}
	c.transitionLocked(types.Unlocking)
	c.inFlight.Add(1)
	c.mu.Unlock()
	defer c.inFlight.Done()

	if err := c.servo.SetDutyCycle(c.cfg.UnlockDuty); err != nil {
		return c.failLocked("unlock", err)
	}
	c.clock.Sleep(c.cfg.Settle)
	c.transition(types.Unlocked)

	c.clock.Sleep(c.cfg.Dwell)

	c.transition(types.Relocking)
	if err := c.servo.SetDutyCycle(c.cfg.LockDuty); err != nil {
		return c.failLocked("relock", err)
	}
	c.clock.Sleep(c.cfg.Settle)
	c.transition(types.Locked)
	return nil
}

// failLocked resolves a fault to the Locked state: one more attempt is
// made to command the lock position, and the state is set to Locked
// whether or not it succeeds.
func (c *Controller) failLocked(phase string, cause error) error {
	fault := &types.ActuatorFault{Phase: phase, Err: cause}

	if c.State() == types.Unlocking {
		c.transition(types.Relocking)
	}
	retryErr := c.servo.SetDutyCycle(c.cfg.LockDuty)
	if retryErr == nil {
		c.clock.Sleep(c.cfg.Settle)
	}
	c.transition(types.Locked)

	c.logger.Error("actuator fault, forced locked state",
		"phase", phase,
		"error", cause,
		"lock_position_confirmed", retryErr == nil,
	)
	return fault
}

func (c *Controller) transition(to types.LockState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(to)
}

func (c *Controller) transitionLocked(to types.LockState) {
	from := c.state
	c.state = to
	c.logger.Debug("lock state", "from", from, "to", to)
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

// Close refuses further cycles, waits for any in-flight cycle to finish
// and stops the PWM output.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.inFlight.Wait()
	return c.servo.Stop()
}
