// Package debounce turns raw, possibly bouncing, level samples from one
// input line into confirmed edges.
package debounce

import (
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/clock"
)

// DefaultWindow is the stability window of the reference hardware.
const DefaultWindow = 300 * time.Millisecond

// Edge is a confirmed level change.
type Edge struct {
	Level bool
	At    time.Time
}

// Debouncer confirms a level only once it has been observed unchanged
// for at least the stability window. It is not safe for concurrent use;
// each input line owns one.
type Debouncer struct {
	clock  clock.Clock
	window time.Duration

	stable    bool
	candidate bool
	since     time.Time
}

// New returns a Debouncer whose confirmed level starts at initial. A
// non-positive window falls back to DefaultWindow.
func New(c clock.Clock, window time.Duration, initial bool) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		clock:     c,
		window:    window,
		stable:    initial,
		candidate: initial,
		since:     c.Now(),
	}
}

// Sample feeds one raw observation taken now. It returns an edge, and
// true, the first time a new level has held for the full window. Any
// change of the raw level restarts the window.
func (d *Debouncer) Sample(level bool) (Edge, bool) {
	now := d.clock.Now()

	if level != d.candidate {
		d.candidate = level
		d.since = now
	}
	if d.candidate == d.stable {
		return Edge{}, false
	}
	if now.Sub(d.since) < d.window {
		return Edge{}, false
	}

	d.stable = d.candidate
	return Edge{Level: d.stable, At: now}, true
}

// Level returns the last confirmed level.
func (d *Debouncer) Level() bool { return d.stable }

// Window returns the configured stability window.
func (d *Debouncer) Window() time.Duration { return d.window }
