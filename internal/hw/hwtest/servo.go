package hwtest

import (
	"sync"
)

// Servo records the commands sent to a PwmActuator and can inject
// failures for specific duty cycles.
type Servo struct {
	mu        sync.Mutex
	frequency float64
	running   bool
	duties    []float64
	failDuty  map[float64]error
	startErr  error
}

func NewServo() *Servo {
	return &Servo{failDuty: make(map[float64]error)}
}

func (s *Servo) Start(hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.frequency = hz
	s.running = true
	return nil
}

func (s *Servo) SetDutyCycle(percent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failDuty[percent]; ok {
		return err
	}
	s.duties = append(s.duties, percent)
	return nil
}

func (s *Servo) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// FailDuty makes SetDutyCycle(percent) return err until ClearFailures.
func (s *Servo) FailDuty(percent float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDuty[percent] = err
}

// FailStart makes Start return err.
func (s *Servo) FailStart(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

func (s *Servo) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDuty = make(map[float64]error)
	s.startErr = nil
}

// Duties returns a copy of every duty cycle successfully applied.
func (s *Servo) Duties() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.duties))
	copy(out, s.duties)
	return out
}

func (s *Servo) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Servo) Frequency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}
