// Package keypad scans a row/column key matrix into debounced key events
// and assembles them into fixed-length codes.
package keypad

import (
	"fmt"
	"strings"
)

// Layout maps matrix positions to key characters, indexed [row][col].
type Layout [][]rune

// DefaultLayout is the common 4x4 membrane keypad.
var DefaultLayout = Layout{
	{'1', '2', '3', 'A'},
	{'4', '5', '6', 'B'},
	{'7', '8', '9', 'C'},
	{'*', '0', '#', 'D'},
}

// ParseLayout reads a layout written one row per "/"-separated group,
// e.g. "123A/456B/789C/*0#D".
func ParseLayout(s string) (Layout, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty keypad layout")
	}
	var l Layout
	for i, row := range strings.Split(s, "/") {
		keys := []rune(strings.TrimSpace(row))
		if len(keys) == 0 {
			return nil, fmt.Errorf("keypad layout row %d is empty", i)
		}
		l = append(l, keys)
	}
	if err := l.Validate(len(l), len(l[0])); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks that the layout is exactly rows x cols with unique keys.
func (l Layout) Validate(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("keypad layout needs at least one row and one column, got %dx%d", rows, cols)
	}
	if len(l) != rows {
		return fmt.Errorf("keypad layout has %d rows, wiring has %d", len(l), rows)
	}
	seen := make(map[rune]bool)
	for i, row := range l {
		if len(row) != cols {
			return fmt.Errorf("keypad layout row %d has %d keys, wiring has %d columns", i, len(row), cols)
		}
		for _, k := range row {
			if seen[k] {
				return fmt.Errorf("keypad layout repeats key %q", k)
			}
			seen[k] = true
		}
	}
	return nil
}

// Contains reports whether k appears anywhere in the layout.
func (l Layout) Contains(k rune) bool {
	for _, row := range l {
		for _, c := range row {
			if c == k {
				return true
			}
		}
	}
	return false
}

func (l Layout) String() string {
	rows := make([]string, len(l))
	for i, r := range l {
		rows[i] = string(r)
	}
	return strings.Join(rows, "/")
}
