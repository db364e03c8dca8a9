// Package periphio binds the hw interfaces to a Raspberry Pi through
// periph.io: GPIO lines for the keypad matrix, hardware PWM for the
// servo and an MFRC522 on SPI for the card reader.
package periphio

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/mfrc522"
	"periph.io/x/host/v3"

	"github.com/BrandonDHaskell/Portunus/controller/internal/hw"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// pollInterval bounds each MFRC522 wait so Read notices cancellation.
const pollInterval = 250 * time.Millisecond

// Config names the lines to claim. Pin names are periph gpioreg names
// (for example "GPIO18").
type Config struct {
	RowPins  []string
	ColPins  []string
	ServoPin string

	// SPI is the spireg port name; empty opens the first port.
	SPI      string
	ResetPin string
	IRQPin   string
}

// Open initialises the host drivers and claims every line in cfg. On
// error anything already claimed is released.
func Open(cfg Config) (*hw.Resources, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	res := &hw.Resources{}
	ok := false
	defer func() {
		if !ok {
			_ = res.Close()
		}
	}()

	for _, name := range cfg.RowPins {
		l, err := openLine(name)
		if err != nil {
			return nil, fmt.Errorf("keypad row: %w", err)
		}
		res.Rows = append(res.Rows, l)
		res.OnClose(l.halt)
	}
	for _, name := range cfg.ColPins {
		l, err := openLine(name)
		if err != nil {
			return nil, fmt.Errorf("keypad column: %w", err)
		}
		res.Cols = append(res.Cols, l)
		res.OnClose(l.halt)
	}

	servoPin := gpioreg.ByName(cfg.ServoPin)
	if servoPin == nil {
		return nil, fmt.Errorf("servo: unknown pin %q", cfg.ServoPin)
	}
	s := &servo{pin: servoPin}
	res.Servo = s
	res.OnClose(s.Stop)

	r, err := openReader(cfg)
	if err != nil {
		return nil, fmt.Errorf("card reader: %w", err)
	}
	res.Reader = r
	res.OnClose(r.Close)

	ok = true
	return res, nil
}

// ── GPIO ────────────────────────────────────────────────────────────────────

type line struct {
	pin  gpio.PinIO
	mode hw.Mode
	pull gpio.Pull
}

func openLine(name string) (*line, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown pin %q", name)
	}
	return &line{pin: p, pull: gpio.Float}, nil
}

func (l *line) Name() string { return l.pin.Name() }

func (l *line) SetMode(m hw.Mode) error {
	l.mode = m
	if m == hw.Input {
		return l.pin.In(l.pull, gpio.NoEdge)
	}
	return l.pin.Out(gpio.Low)
}

func (l *line) SetPull(p hw.Pull) error {
	switch p {
	case hw.PullUp:
		l.pull = gpio.PullUp
	case hw.PullDown:
		l.pull = gpio.PullDown
	default:
		l.pull = gpio.Float
	}
	if l.mode == hw.Input {
		return l.pin.In(l.pull, gpio.NoEdge)
	}
	return nil
}

func (l *line) Write(v hw.Level) error { return l.pin.Out(gpio.Level(v)) }

func (l *line) Read() hw.Level { return hw.Level(l.pin.Read()) }

// halt returns the line to a floating input.
func (l *line) halt() error {
	if err := l.pin.Halt(); err != nil {
		return err
	}
	return l.pin.In(gpio.Float, gpio.NoEdge)
}

// ── Servo ───────────────────────────────────────────────────────────────────

type servo struct {
	mu   sync.Mutex
	pin  gpio.PinIO
	freq physic.Frequency
}

func (s *servo) Start(frequencyHz float64) error {
	if frequencyHz <= 0 {
		return fmt.Errorf("servo frequency %v must be positive", frequencyHz)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freq = physic.Frequency(frequencyHz * float64(physic.Hertz))
	return s.pin.PWM(0, s.freq)
}

func (s *servo) SetDutyCycle(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("duty cycle %v out of range", percent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freq == 0 {
		return errors.New("servo not started")
	}
	return s.pin.PWM(gpio.Duty(percent/100*float64(gpio.DutyMax)), s.freq)
}

func (s *servo) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freq = 0
	if err := s.pin.Halt(); err != nil {
		return err
	}
	return s.pin.Out(gpio.Low)
}

// ── MFRC522 ─────────────────────────────────────────────────────────────────

type reader struct {
	port spi.PortCloser
	dev  *mfrc522.Dev
	once sync.Once
	err  error
}

func openReader(cfg Config) (*reader, error) {
	reset := gpioreg.ByName(cfg.ResetPin)
	if reset == nil {
		return nil, fmt.Errorf("unknown reset pin %q", cfg.ResetPin)
	}
	irq := gpioreg.ByName(cfg.IRQPin)
	if irq == nil {
		return nil, fmt.Errorf("unknown irq pin %q", cfg.IRQPin)
	}

	port, err := spireg.Open(cfg.SPI)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", cfg.SPI, err)
	}
	dev, err := mfrc522.NewSPI(port, reset, irq)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("mfrc522: %w", err)
	}
	return &reader{port: port, dev: dev}, nil
}

// Read polls the antenna until a card answers or ctx is done. The UID
// bytes are rendered as one unsigned big-endian decimal number.
func (r *reader) Read(ctx context.Context) (types.CredentialID, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		wait := pollInterval
		if dl, ok := ctx.Deadline(); ok {
			wait = min(wait, time.Until(dl))
			if wait <= 0 {
				return "", context.DeadlineExceeded
			}
		}

		uid, err := r.dev.ReadUID(wait)
		if err != nil {
			if isNoCard(err) {
				continue
			}
			return "", err
		}
		return UIDToCredential(uid), nil
	}
}

func (r *reader) Close() error {
	r.once.Do(func() {
		r.err = errors.Join(r.dev.Halt(), r.port.Close())
	})
	return r.err
}

// noCardMsg is the text of the mfrc522 error returned when no tag
// raised the IRQ line within the wait. Every other error, SPI and
// transfer timeouts included, is a hardware failure.
const noCardMsg = "timeout waiting for irq edge"

func isNoCard(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), noCardMsg)
}

// UIDToCredential renders a card UID as an unsigned big-endian decimal.
// An empty UID gives an empty id.
func UIDToCredential(uid []byte) types.CredentialID {
	if len(uid) == 0 {
		return ""
	}
	return types.CredentialID(new(big.Int).SetBytes(uid).String())
}
