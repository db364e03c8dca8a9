package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// Metrics is the controller's prometheus instrumentation. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec // method=card|code, result=grant|deny, reason
	ActuationsTotal  *prometheus.CounterVec // outcome=unlocked|actuator-busy|actuator-fault
	ReadErrorsTotal  *prometheus.CounterVec // kind=hardware|timeout|no-card
	KeyPressesTotal  prometheus.Counter
	LockState        prometheus.Gauge // 0 locked, 1 unlocking, 2 unlocked, 3 relocking
	JournalErrors    prometheus.Counter
	JournalPruned    prometheus.Counter
	CycleDurationSec prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portunus_access_decisions_total",
				Help: "Access decisions by input method, result and reason",
			},
			[]string{"method", "result", "reason"},
		),
		ActuationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portunus_actuations_total",
				Help: "Unlock requests by outcome",
			},
			[]string{"outcome"},
		),
		ReadErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portunus_card_read_errors_total",
				Help: "Card reader errors by kind",
			},
			[]string{"kind"},
		),
		KeyPressesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portunus_key_presses_total",
			Help: "Debounced keypad presses",
		}),
		LockState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portunus_lock_state",
			Help: "Current lock state (0 locked, 1 unlocking, 2 unlocked, 3 relocking)",
		}),
		JournalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portunus_journal_write_errors_total",
			Help: "Access journal writes that failed",
		}),
		JournalPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portunus_journal_pruned_total",
			Help: "Access journal rows removed by retention",
		}),
		CycleDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portunus_unlock_cycle_seconds",
			Help:    "Wall time of completed unlock cycles",
			Buckets: []float64{1, 2, 4, 6, 8, 10, 15, 30},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.DecisionsTotal,
			m.ActuationsTotal,
			m.ReadErrorsTotal,
			m.KeyPressesTotal,
			m.LockState,
			m.JournalErrors,
			m.JournalPruned,
			m.CycleDurationSec,
		)
	}
	return m
}

func (m *Metrics) Decision(method types.Method, d types.AccessDecision) {
	if m == nil {
		return
	}
	result := "deny"
	if d.Granted {
		result = "grant"
	}
	m.DecisionsTotal.WithLabelValues(string(method), result, string(d.Reason)).Inc()
}

func (m *Metrics) Actuation(outcome types.Outcome, seconds float64) {
	if m == nil {
		return
	}
	m.ActuationsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome == types.OutcomeUnlocked {
		m.CycleDurationSec.Observe(seconds)
	}
}

func (m *Metrics) ReadError(kind string) {
	if m == nil {
		return
	}
	m.ReadErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) KeyPress() {
	if m == nil {
		return
	}
	m.KeyPressesTotal.Inc()
}

// LockTransition matches actuator.TransitionFunc.
func (m *Metrics) LockTransition(_, to types.LockState) {
	if m == nil {
		return
	}
	m.LockState.Set(float64(to))
}

func (m *Metrics) JournalError() {
	if m == nil {
		return
	}
	m.JournalErrors.Inc()
}

func (m *Metrics) Pruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.JournalPruned.Add(float64(n))
}
