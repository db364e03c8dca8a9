// Package policy decides whether a presented credential or code opens
// the door. Every function here is pure: no I/O, no shared state.
package policy

import (
	"crypto/subtle"
	"strings"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// AuthorizationSet is the read-only configuration the policy evaluates
// against: the authorized card ids and the one expected code.
type AuthorizationSet struct {
	credentials map[types.CredentialID]struct{}
	code        types.Code
}

// NewAuthorizationSet builds a set from configuration values. Blank ids
// are ignored. An empty code disables keypad entry.
func NewAuthorizationSet(cardIDs []string, code string) AuthorizationSet {
	creds := make(map[types.CredentialID]struct{}, len(cardIDs))
	for _, id := range cardIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			creds[types.CredentialID(id)] = struct{}{}
		}
	}
	return AuthorizationSet{credentials: creds, code: types.Code(code)}
}

// Credentials returns the number of authorized cards.
func (s AuthorizationSet) Credentials() int { return len(s.credentials) }

// CodeLength returns the length of the expected code in keys.
func (s AuthorizationSet) CodeLength() int { return len([]rune(string(s.code))) }

// CheckCredential grants iff id is in the authorized set.
func CheckCredential(id types.CredentialID, set AuthorizationSet) types.AccessDecision {
	if _, ok := set.credentials[id]; ok {
		return types.Grant(types.ReasonCredentialMatch)
	}
	return types.Deny(types.ReasonNoMatch)
}

// CheckRead maps a reader result to a decision. A read error denies
// without consulting the set.
func CheckRead(id types.CredentialID, err error, set AuthorizationSet) types.AccessDecision {
	if err != nil {
		return types.Deny(types.ReasonReadError)
	}
	return CheckCredential(id, set)
}

// CheckCode grants iff code equals the expected code exactly, same
// length and same case-sensitive key sequence.
func CheckCode(code types.Code, set AuthorizationSet) types.AccessDecision {
	if set.code == "" || len(code) != len(set.code) {
		return types.Deny(types.ReasonNoMatch)
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(set.code)) != 1 {
		return types.Deny(types.ReasonNoMatch)
	}
	return types.Grant(types.ReasonCodeMatch)
}
