// Package clock abstracts the time operations the controller depends on
// (debounce windows, scan cadence, servo settle and dwell) so tests can
// drive them deterministically.
//
// Production code is wired with Real(). Tests use Fake() and move time
// with Advance, synchronising with WaitForTimers:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go act.TriggerUnlock()
//	c.WaitForTimers(1)
//	c.Advance(time.Second)
package clock

import "time"

// Clock is the Clock collaborator: now and sleep, plus After so that
// waits can be combined with context cancellation in a select.
type Clock interface {
	Now() time.Time

	// After returns a channel that receives once d has elapsed. If
	// d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) Sleep(d time.Duration)                  { time.Sleep(d) }
