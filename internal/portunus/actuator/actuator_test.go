package actuator_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/clock"
	"github.com/BrandonDHaskell/Portunus/controller/internal/hw/hwtest"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/actuator"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

var epoch = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	states []types.LockState
}

func (r *recorder) hook(_, to types.LockState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) get() []types.LockState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.LockState, len(r.states))
	copy(out, r.states)
	return out
}

type fixture struct {
	ctrl  *actuator.Controller
	servo *hwtest.Servo
	clock *clock.FakeClock
	rec   *recorder
	cfg   actuator.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		servo: hwtest.NewServo(),
		clock: clock.Fake(epoch),
		rec:   &recorder{},
		cfg:   actuator.DefaultConfig(),
	}
	f.ctrl = actuator.New(f.servo, f.cfg, f.clock, nil, actuator.WithTransitionHook(f.rec.hook))
	return f
}

func (f *fixture) start() <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.ctrl.TriggerUnlock() }()
	return done
}

// step waits for the cycle to park on its next sleep, then advances.
func (f *fixture) step(d time.Duration) {
	f.clock.WaitForTimers(1)
	f.clock.Advance(d)
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not finish")
		return nil
	}
}

func expectStates(t *testing.T, got []types.LockState, want ...types.LockState) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected trajectory %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected trajectory %v, got %v", want, got)
		}
	}
}

// ── Full cycle ───────────────────────────────────────────────────────────────

func TestTriggerUnlock_FullCycle(t *testing.T) {
	f := newFixture(t)
	done := f.start()

	f.clock.WaitForTimers(1)
	if s := f.ctrl.State(); s != types.Unlocking {
		t.Fatalf("expected unlocking while servo travels, got %v", s)
	}
	f.clock.Advance(f.cfg.Settle)

	f.clock.WaitForTimers(1)
	if s := f.ctrl.State(); s != types.Unlocked {
		t.Fatalf("expected unlocked during dwell, got %v", s)
	}
	f.clock.Advance(f.cfg.Dwell)

	f.clock.WaitForTimers(1)
	if s := f.ctrl.State(); s != types.Relocking {
		t.Fatalf("expected relocking, got %v", s)
	}
	f.clock.Advance(f.cfg.Settle)

	if err := wait(t, done); err != nil {
		t.Fatalf("TriggerUnlock: %v", err)
	}
	if f.ctrl.State() != types.Locked {
		t.Errorf("expected locked after cycle, got %v", f.ctrl.State())
	}
	expectStates(t, f.rec.get(), types.Unlocking, types.Unlocked, types.Relocking, types.Locked)

	duties := f.servo.Duties()
	if len(duties) != 2 || duties[0] != 7 || duties[1] != 2 {
		t.Errorf("expected duties [7 2], got %v", duties)
	}
}

func TestTriggerUnlock_DwellIsHonoured(t *testing.T) {
	f := newFixture(t)
	done := f.start()

	f.step(f.cfg.Settle)
	f.step(f.cfg.Dwell - time.Millisecond)

	if s := f.ctrl.State(); s != types.Unlocked {
		t.Fatalf("expected still unlocked 1ms before dwell ends, got %v", s)
	}
	f.clock.Advance(time.Millisecond)
	f.step(f.cfg.Settle)

	if err := wait(t, done); err != nil {
		t.Fatalf("TriggerUnlock: %v", err)
	}
}

// ── Busy rejection ───────────────────────────────────────────────────────────

func TestTriggerUnlock_SecondCallDuringHoldIsBusy(t *testing.T) {
	f := newFixture(t)
	done := f.start()

	f.step(f.cfg.Settle)
	f.step(time.Second) // 1s into the 5s hold

	if err := f.ctrl.TriggerUnlock(); !errors.Is(err, types.ErrActuatorBusy) {
		t.Fatalf("expected ErrActuatorBusy, got %v", err)
	}
	if s := f.ctrl.State(); s != types.Unlocked {
		t.Fatalf("busy call disturbed the cycle: state %v", s)
	}

	f.step(4 * time.Second)
	f.step(f.cfg.Settle)

	if err := wait(t, done); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	expectStates(t, f.rec.get(), types.Unlocking, types.Unlocked, types.Relocking, types.Locked)
	if got := f.servo.Duties(); len(got) != 2 {
		t.Errorf("expected exactly one unlock and one relock command, got %v", got)
	}
}

func TestTriggerUnlock_BusyInEveryNonLockedState(t *testing.T) {
	f := newFixture(t)
	done := f.start()

	check := func(want types.LockState) {
		t.Helper()
		f.clock.WaitForTimers(1)
		if s := f.ctrl.State(); s != want {
			t.Fatalf("expected %v, got %v", want, s)
		}
		if err := f.ctrl.TriggerUnlock(); !errors.Is(err, types.ErrActuatorBusy) {
			t.Fatalf("%v: expected ErrActuatorBusy, got %v", want, err)
		}
	}

	check(types.Unlocking)
	f.clock.Advance(f.cfg.Settle)
	check(types.Unlocked)
	f.clock.Advance(f.cfg.Dwell)
	check(types.Relocking)
	f.clock.Advance(f.cfg.Settle)

	if err := wait(t, done); err != nil {
		t.Fatalf("TriggerUnlock: %v", err)
	}
	expectStates(t, f.rec.get(), types.Unlocking, types.Unlocked, types.Relocking, types.Locked)
}

func TestTriggerUnlock_AvailableAgainAfterCycle(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		done := f.start()
		f.step(f.cfg.Settle)
		f.step(f.cfg.Dwell)
		f.step(f.cfg.Settle)
		if err := wait(t, done); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	if got := len(f.rec.get()); got != 8 {
		t.Errorf("expected 8 transitions for two cycles, got %d", got)
	}
}

// ── Fail-locked ──────────────────────────────────────────────────────────────

func TestTriggerUnlock_UnlockFaultForcesLocked(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("pwm write failed")
	f.servo.FailDuty(7, cause)

	done := f.start()
	f.step(f.cfg.Settle) // settle after the recovery lock command

	err := wait(t, done)
	var fault *types.ActuatorFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected ActuatorFault, got %v", err)
	}
	if fault.Phase != "unlock" || !errors.Is(err, cause) {
		t.Errorf("unexpected fault %+v", fault)
	}
	if f.ctrl.State() != types.Locked {
		t.Errorf("expected fail-locked state, got %v", f.ctrl.State())
	}
	expectStates(t, f.rec.get(), types.Unlocking, types.Relocking, types.Locked)
	if d := f.servo.Duties(); len(d) != 1 || d[0] != 2 {
		t.Errorf("expected a recovery lock command, got %v", d)
	}
}

func TestTriggerUnlock_RelockFaultForcesLocked(t *testing.T) {
	f := newFixture(t)
	f.servo.FailDuty(2, errors.New("servo stalled"))

	done := f.start()
	f.step(f.cfg.Settle)
	f.step(f.cfg.Dwell)

	err := wait(t, done)
	var fault *types.ActuatorFault
	if !errors.As(err, &fault) || fault.Phase != "relock" {
		t.Fatalf("expected relock ActuatorFault, got %v", err)
	}
	if f.ctrl.State() != types.Locked {
		t.Errorf("expected fail-locked state, got %v", f.ctrl.State())
	}
	expectStates(t, f.rec.get(), types.Unlocking, types.Unlocked, types.Relocking, types.Locked)

	// The controller accepts the next request once the hardware recovers.
	f.servo.ClearFailures()
	done = f.start()
	f.step(f.cfg.Settle)
	f.step(f.cfg.Dwell)
	f.step(f.cfg.Settle)
	if err := wait(t, done); err != nil {
		t.Fatalf("cycle after fault: %v", err)
	}
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func TestInit_DrivesToLockPosition(t *testing.T) {
	servo := hwtest.NewServo()
	cfg := actuator.DefaultConfig()
	cfg.Settle = 0
	ctrl := actuator.New(servo, cfg, clock.Fake(epoch), nil)

	if err := ctrl.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !servo.Running() || servo.Frequency() != 50 {
		t.Errorf("expected PWM running at 50Hz, got running=%v f=%v", servo.Running(), servo.Frequency())
	}
	if d := servo.Duties(); len(d) != 1 || d[0] != 2 {
		t.Errorf("expected lock duty on init, got %v", d)
	}
}

func TestInit_StartFailure(t *testing.T) {
	servo := hwtest.NewServo()
	servo.FailStart(errors.New("no pwm channel"))
	ctrl := actuator.New(servo, actuator.DefaultConfig(), clock.Fake(epoch), nil)

	if err := ctrl.Init(); err == nil {
		t.Fatal("expected Init to fail")
	}
}

func TestClose_WaitsForInFlightCycle(t *testing.T) {
	f := newFixture(t)
	done := f.start()
	f.step(f.cfg.Settle)

	closed := make(chan error, 1)
	go func() { closed <- f.ctrl.Close() }()

	f.clock.WaitForTimers(1)
	select {
	case <-closed:
		t.Fatal("Close returned while the door was still unlocked")
	case <-time.After(20 * time.Millisecond):
	}

	f.clock.Advance(f.cfg.Dwell)
	f.step(f.cfg.Settle)

	if err := wait(t, done); err != nil {
		t.Fatalf("in-flight cycle: %v", err)
	}
	if err := wait(t, closed); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.ctrl.State() != types.Locked {
		t.Errorf("expected locked after close, got %v", f.ctrl.State())
	}
	if err := f.ctrl.TriggerUnlock(); !errors.Is(err, actuator.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}
