package keypad

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/clock"
	"github.com/BrandonDHaskell/Portunus/controller/internal/hw"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/debounce"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// DefaultInterval is the pause between full scan cycles.
const DefaultInterval = 25 * time.Millisecond

type ScannerConfig struct {
	Layout Layout

	// ActiveLevel is the level a selected row is driven to, and the level
	// a column reads when a key joins it to that row. Idle rows sit at
	// the opposite level and columns are pulled towards it.
	ActiveLevel hw.Level

	Debounce  time.Duration
	Interval  time.Duration
	RowSettle time.Duration
}

// Scanner drives one row at a time and samples every column through a
// per-key Debouncer.
type Scanner struct {
	rows   []hw.GpioLine
	cols   []hw.GpioLine
	cfg    ScannerConfig
	clock  clock.Clock
	logger *slog.Logger
	keys   [][]*debounce.Debouncer
}

// NewScanner configures the lines (rows as idle outputs, columns as
// pulled inputs) and returns a ready scanner. A configuration failure
// here is a hardware initialization failure.
func NewScanner(rows, cols []hw.GpioLine, cfg ScannerConfig, c clock.Clock, logger *slog.Logger) (*Scanner, error) {
	if cfg.Layout == nil {
		cfg.Layout = DefaultLayout
	}
	if err := cfg.Layout.Validate(len(rows), len(cols)); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scanner{
		rows:   rows,
		cols:   cols,
		cfg:    cfg,
		clock:  c,
		logger: logger.With("component", "keypad"),
	}

	idle := !cfg.ActiveLevel
	pull := hw.PullDown
	if cfg.ActiveLevel == hw.Low {
		pull = hw.PullUp
	}
	for _, r := range rows {
		if err := r.SetMode(hw.Output); err != nil {
			return nil, fmt.Errorf("keypad row %s: %w", r.Name(), err)
		}
		if err := r.Write(idle); err != nil {
			return nil, fmt.Errorf("keypad row %s: %w", r.Name(), err)
		}
	}
	for _, col := range cols {
		if err := col.SetMode(hw.Input); err != nil {
			return nil, fmt.Errorf("keypad column %s: %w", col.Name(), err)
		}
		if err := col.SetPull(pull); err != nil {
			return nil, fmt.Errorf("keypad column %s: %w", col.Name(), err)
		}
	}

	s.keys = make([][]*debounce.Debouncer, len(rows))
	for r := range rows {
		s.keys[r] = make([]*debounce.Debouncer, len(cols))
		for col := range cols {
			s.keys[r][col] = debounce.New(c, cfg.Debounce, false)
		}
	}
	return s, nil
}

// ScanOnce runs one full cycle over every row and returns the presses
// confirmed during it, in row-major order. Cancellation is checked
// between rows; a row is never left selected.
func (s *Scanner) ScanOnce(ctx context.Context) ([]types.KeyEvent, error) {
	var events []types.KeyEvent
	for r, row := range s.rows {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		pressed, err := s.scanRow(r, row)
		events = append(events, pressed...)
		if err != nil {
			return events, err
		}
	}
	return events, nil
}

func (s *Scanner) scanRow(r int, row hw.GpioLine) (events []types.KeyEvent, err error) {
	if err := row.Write(s.cfg.ActiveLevel); err != nil {
		return nil, fmt.Errorf("select row %s: %w", row.Name(), err)
	}
	defer func() {
		if werr := row.Write(!s.cfg.ActiveLevel); werr != nil && err == nil {
			err = fmt.Errorf("release row %s: %w", row.Name(), werr)
		}
	}()

	if s.cfg.RowSettle > 0 {
		s.clock.Sleep(s.cfg.RowSettle)
	}

	for c, col := range s.cols {
		down := col.Read() == s.cfg.ActiveLevel
		edge, ok := s.keys[r][c].Sample(down)
		if !ok || !edge.Level {
			continue
		}
		events = append(events, types.KeyEvent{
			Key: s.cfg.Layout[r][c],
			Row: r,
			Col: c,
			At:  edge.At,
		})
	}
	return events, nil
}

// Events returns an endless sequence of key presses. Each call starts a
// fresh scan loop; the sequence ends when ctx is done or the consumer
// stops ranging. Scan errors are logged and scanning continues.
func (s *Scanner) Events(ctx context.Context) iter.Seq[types.KeyEvent] {
	return func(yield func(types.KeyEvent) bool) {
		for {
			events, err := s.ScanOnce(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.Warn("keypad scan failed", "error", err)
			}
			for _, ev := range events {
				if !yield(ev) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(s.cfg.Interval):
			}
		}
	}
}
