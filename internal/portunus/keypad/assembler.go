package keypad

import "github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"

// DefaultCodeLength matches the reference 4-digit PIN.
const DefaultCodeLength = 4

// Assembler collects key presses into a Code of exactly Length keys.
// There is no early evaluation and no editing: the buffer is only
// released, and cleared, once it is full.
type Assembler struct {
	length int
	buf    []rune
}

func NewAssembler(length int) *Assembler {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &Assembler{length: length, buf: make([]rune, 0, length)}
}

// Push appends one key. It returns the completed code and true when the
// buffer reaches the configured length.
func (a *Assembler) Push(ev types.KeyEvent) (types.Code, bool) {
	a.buf = append(a.buf, ev.Key)
	if len(a.buf) < a.length {
		return "", false
	}
	code := types.Code(a.buf)
	a.buf = a.buf[:0]
	return code, true
}

// Pending returns how many keys are buffered.
func (a *Assembler) Pending() int { return len(a.buf) }

func (a *Assembler) Length() int { return a.length }

// Reset discards a partial entry.
func (a *Assembler) Reset() { a.buf = a.buf[:0] }
