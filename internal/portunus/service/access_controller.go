package service

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/clock"
	"github.com/BrandonDHaskell/Portunus/controller/internal/obs"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/keypad"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// DefaultReadErrorBackoff is the pause after a hardware read error before
// the card loop reads again.
const DefaultReadErrorBackoff = time.Second

// DefaultCardPollInterval is the pause after a read that found no card.
const DefaultCardPollInterval = 100 * time.Millisecond

// CardSource is satisfied by *reader.Adapter.
type CardSource interface {
	Read(ctx context.Context) (types.CredentialID, error)
}

// KeySource is satisfied by *keypad.Scanner.
type KeySource interface {
	Events(ctx context.Context) iter.Seq[types.KeyEvent]
}

// Unlocker is satisfied by *actuator.Controller.
type Unlocker interface {
	TriggerUnlock() error
	State() types.LockState
}

// ControllerDeps wires an AccessController.
type ControllerDeps struct {
	Access     *AccessService
	Cards      CardSource
	Keys       KeySource
	CodeLength int
	Actuator   Unlocker

	// Resources, if set, is closed when Run returns.
	Resources io.Closer

	ReadErrorBackoff time.Duration
	CardPollInterval time.Duration

	Clock   clock.Clock
	Metrics *obs.Metrics
	Logger  *slog.Logger
}

type unlockRequest struct {
	method types.Method
	reply  chan error
}

// AccessController runs the card branch and the keypad branch
// concurrently and hands granted attempts to a single actuation task.
// The task owns the actuator: a request arriving while a cycle runs is
// answered with types.ErrActuatorBusy straight away.
type AccessController struct {
	deps   ControllerDeps
	logger *slog.Logger
	stats  stats
}

func NewAccessController(deps ControllerDeps) *AccessController {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ReadErrorBackoff <= 0 {
		deps.ReadErrorBackoff = DefaultReadErrorBackoff
	}
	if deps.CardPollInterval <= 0 {
		deps.CardPollInterval = DefaultCardPollInterval
	}
	return &AccessController{
		deps:   deps,
		logger: deps.Logger.With("component", "controller"),
	}
}

// Run blocks until ctx is done. On cancellation both branches stop
// taking input, any in-flight unlock cycle runs to completion, and
// Resources is released. Runtime errors never end Run; they are logged,
// counted and journaled where they occur.
func (c *AccessController) Run(ctx context.Context) error {
	c.stats.update(func(s *Snapshot) { s.StartedAt = c.deps.Clock.Now() })

	requests := make(chan unlockRequest)
	actuatorDone := make(chan struct{})
	go func() {
		defer close(actuatorDone)
		c.actuate(requests)
	}()

	var wg sync.WaitGroup
	if c.deps.Cards != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.cardLoop(ctx, requests)
		}()
	}
	if c.deps.Keys != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.keypadLoop(ctx, requests)
		}()
	}
	c.logger.Info("controller running", "card", c.deps.Cards != nil, "keypad", c.deps.Keys != nil)

	wg.Wait()
	close(requests)
	<-actuatorDone
	c.logger.Info("input stopped, lock settled", "state", c.deps.Actuator.State())

	if c.deps.Resources != nil {
		if err := c.deps.Resources.Close(); err != nil {
			c.logger.Error("release hardware", "error", err)
		}
	}
	return nil
}

// Snapshot returns counters and the current lock state.
func (c *AccessController) Snapshot() Snapshot {
	s := c.stats.get()
	s.LockState = c.deps.Actuator.State()
	return s
}

// actuate is the only goroutine that calls TriggerUnlock. It returns once
// requests is closed and no cycle is running.
func (c *AccessController) actuate(requests <-chan unlockRequest) {
	var (
		running  bool
		current  unlockRequest
		started  time.Time
		finished = make(chan error, 1)
	)

	for requests != nil || running {
		select {
		case req, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			if running {
				req.reply <- types.ErrActuatorBusy
				continue
			}
			running, current, started = true, req, c.deps.Clock.Now()
			c.logger.Debug("unlock cycle starting", "method", req.method)
			go func() { finished <- c.deps.Actuator.TriggerUnlock() }()

		case err := <-finished:
			running = false
			if err == nil {
				c.deps.Metrics.Actuation(types.OutcomeUnlocked, c.deps.Clock.Now().Sub(started).Seconds())
			}
			current.reply <- err
		}
	}
}

// grant asks the actuation task to unlock and waits for the cycle. A busy
// rejection comes back immediately.
func (c *AccessController) grant(ctx context.Context, a Attempt, requests chan<- unlockRequest) (types.Outcome, string) {
	req := unlockRequest{method: a.Method, reply: make(chan error, 1)}
	select {
	case requests <- req:
	case <-ctx.Done():
		c.logger.Info("shutting down, unlock not started", "method", a.Method)
		return types.OutcomeNone, "shutdown before unlock"
	}

	err := <-req.reply
	var fault *types.ActuatorFault
	switch {
	case err == nil:
		return types.OutcomeUnlocked, ""
	case errors.Is(err, types.ErrActuatorBusy):
		c.deps.Metrics.Actuation(types.OutcomeBusy, 0)
		c.logger.Info("unlock rejected, actuator busy", "method", a.Method)
		return types.OutcomeBusy, ""
	case errors.As(err, &fault):
		c.deps.Metrics.Actuation(types.OutcomeFault, 0)
		return types.OutcomeFault, err.Error()
	default:
		c.deps.Metrics.Actuation(types.OutcomeFault, 0)
		c.logger.Error("unlock failed", "method", a.Method, "error", err)
		return types.OutcomeFault, err.Error()
	}
}

func (c *AccessController) conclude(ctx context.Context, a Attempt, requests chan<- unlockRequest) {
	outcome, detail := types.OutcomeNone, ""
	if a.Decision.Granted {
		outcome, detail = c.grant(ctx, a, requests)
	}
	c.stats.decided(a, outcome)
	// Journal writes outlive shutdown so the last attempts are kept.
	c.deps.Access.Record(context.WithoutCancel(ctx), a, outcome, detail)
}

func (c *AccessController) cardLoop(ctx context.Context, requests chan<- unlockRequest) {
	logger := c.logger.With("branch", "card")
	for {
		id, err := c.deps.Cards.Read(ctx)
		if ctx.Err() != nil {
			return
		}
		received := c.deps.Clock.Now()

		if err != nil {
			var rerr *types.ReadError
			if errors.As(err, &rerr) && rerr.Transient() {
				kind := "no-card"
				if errors.Is(err, types.ErrReadTimeout) {
					kind = "timeout"
				}
				c.deps.Metrics.ReadError(kind)
				logger.Debug("card read returned nothing", "error", err)
				if !c.pause(ctx, c.deps.CardPollInterval) {
					return
				}
				continue
			}

			c.deps.Metrics.ReadError("hardware")
			c.stats.update(func(s *Snapshot) { s.ReadErrors++ })
			logger.Warn("card read failed", "error", err)
			c.conclude(ctx, c.deps.Access.DecideCard("", err, received), requests)

			if !c.pause(ctx, c.deps.ReadErrorBackoff) {
				return
			}
			continue
		}

		c.conclude(ctx, c.deps.Access.DecideCard(id, nil, received), requests)
	}
}

// pause waits d on the controller clock. It returns false if ctx ends
// first.
func (c *AccessController) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.deps.Clock.After(d):
		return true
	}
}

func (c *AccessController) keypadLoop(ctx context.Context, requests chan<- unlockRequest) {
	logger := c.logger.With("branch", "keypad")
	asm := keypad.NewAssembler(c.deps.CodeLength)

	for ev := range c.deps.Keys.Events(ctx) {
		c.deps.Metrics.KeyPress()
		c.stats.update(func(s *Snapshot) { s.KeyPresses++ })
		// Position only; key characters are never logged.
		logger.Debug("key press", "position", asm.Pending()+1, "of", asm.Length())

		code, ok := asm.Push(ev)
		if !ok {
			continue
		}
		c.conclude(ctx, c.deps.Access.DecideCode(code, ev.At), requests)
	}
}
