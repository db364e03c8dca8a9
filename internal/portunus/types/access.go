package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CredentialID identifies a proximity card. The reader shim renders the
// card UID as an unsigned decimal string.
type CredentialID string

// Hash returns the SHA-256 of the id, the form in which card ids are
// journaled.
func (id CredentialID) Hash() []byte {
	sum := sha256.Sum256([]byte(id))
	return sum[:]
}

// Short returns a log-safe fingerprint of the id.
func (id CredentialID) Short() string {
	return hex.EncodeToString(id.Hash()[:4])
}

// KeyEvent is a single debounced key press and the matrix position it
// was resolved from.
type KeyEvent struct {
	Key rune
	Row int
	Col int
	At  time.Time
}

// Code is a completed, fixed-length keypad entry.
type Code string

// Method is the input channel an access attempt arrived on.
type Method string

const (
	MethodCard Method = "card"
	MethodCode Method = "code"
)

// Reason explains an AccessDecision.
type Reason string

const (
	ReasonCredentialMatch Reason = "credential-match"
	ReasonCodeMatch       Reason = "code-match"
	ReasonNoMatch         Reason = "no-match"
	ReasonReadError       Reason = "read-error"
)

// AccessDecision is the transient result of evaluating one attempt.
type AccessDecision struct {
	Granted bool
	Reason  Reason
}

func Grant(r Reason) AccessDecision { return AccessDecision{Granted: true, Reason: r} }
func Deny(r Reason) AccessDecision  { return AccessDecision{Granted: false, Reason: r} }

func (d AccessDecision) String() string {
	if d.Granted {
		return "grant(" + string(d.Reason) + ")"
	}
	return "deny(" + string(d.Reason) + ")"
}

// Outcome records what the actuator did with a granted attempt.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeUnlocked Outcome = "unlocked"
	OutcomeBusy     Outcome = "actuator-busy"
	OutcomeFault    Outcome = "actuator-fault"
)
