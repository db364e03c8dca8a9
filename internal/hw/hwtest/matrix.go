// Package hwtest provides in-memory implementations of the hw
// collaborators for tests.
package hwtest

import (
	"fmt"
	"sync"

	"github.com/BrandonDHaskell/Portunus/controller/internal/hw"
)

// Matrix simulates a row/column key matrix. A column reads the active
// level when a pressed key connects it to a row currently driven active;
// otherwise it reads the idle level.
type Matrix struct {
	mu       sync.Mutex
	active   hw.Level
	rows     []*line
	cols     []*line
	pressed  map[[2]int]bool
	writeErr error
	writes   int
}

type line struct {
	m     *Matrix
	name  string
	row   bool
	index int
	mode  hw.Mode
	pull  hw.Pull
	level hw.Level
}

// NewMatrix returns a rows x cols matrix whose rows are driven to active
// to select them.
func NewMatrix(rows, cols int, active hw.Level) *Matrix {
	m := &Matrix{active: active, pressed: make(map[[2]int]bool)}
	for i := 0; i < rows; i++ {
		m.rows = append(m.rows, &line{m: m, name: fmt.Sprintf("R%d", i), row: true, index: i, level: !active})
	}
	for i := 0; i < cols; i++ {
		m.cols = append(m.cols, &line{m: m, name: fmt.Sprintf("C%d", i), index: i})
	}
	return m
}

func (m *Matrix) Rows() []hw.GpioLine { return lines(m.rows) }
func (m *Matrix) Cols() []hw.GpioLine { return lines(m.cols) }

func lines(ls []*line) []hw.GpioLine {
	out := make([]hw.GpioLine, len(ls))
	for i, l := range ls {
		out[i] = l
	}
	return out
}

func (m *Matrix) Press(row, col int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pressed[[2]int{row, col}] = true
}

func (m *Matrix) Release(row, col int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pressed, [2]int{row, col})
}

// FailWrites makes every subsequent row write return err. Pass nil to
// clear.
func (m *Matrix) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Writes returns the number of successful row writes.
func (m *Matrix) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// RowLevel returns the level row i is currently driven to.
func (m *Matrix) RowLevel(i int) hw.Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[i].level
}

// ColPull returns the pull configured on column i.
func (m *Matrix) ColPull(i int) hw.Pull {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cols[i].pull
}

func (l *line) Name() string { return l.name }

func (l *line) SetMode(mode hw.Mode) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.mode = mode
	return nil
}

func (l *line) SetPull(p hw.Pull) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.pull = p
	return nil
}

func (l *line) Write(level hw.Level) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.m.writeErr != nil {
		return l.m.writeErr
	}
	if l.mode != hw.Output {
		return fmt.Errorf("%s: write on input line", l.name)
	}
	l.level = level
	l.m.writes++
	return nil
}

func (l *line) Read() hw.Level {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.row {
		return l.level
	}
	for _, r := range l.m.rows {
		if r.mode == hw.Output && r.level == l.m.active && l.m.pressed[[2]int{r.index, l.index}] {
			return l.m.active
		}
	}
	return !l.m.active
}
