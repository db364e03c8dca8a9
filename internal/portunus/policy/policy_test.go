package policy_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/policy"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

func referenceSet() policy.AuthorizationSet {
	return policy.NewAuthorizationSet([]string{"1234567890"}, "1234")
}

// ── Credentials ──────────────────────────────────────────────────────────────

func TestCheckCredential_MemberGranted(t *testing.T) {
	set := policy.NewAuthorizationSet([]string{"1234567890", " 42 ", ""}, "1234")
	if set.Credentials() != 2 {
		t.Fatalf("expected 2 credentials, got %d", set.Credentials())
	}

	for _, id := range []types.CredentialID{"1234567890", "42"} {
		d := policy.CheckCredential(id, set)
		if !d.Granted || d.Reason != types.ReasonCredentialMatch {
			t.Errorf("%s: expected grant(credential-match), got %v", id, d)
		}
	}
}

func TestCheckCredential_NonMembersDenied(t *testing.T) {
	set := referenceSet()
	for i := 0; i < 500; i++ {
		id := types.CredentialID(fmt.Sprintf("%010d", 9999999999-i))
		d := policy.CheckCredential(id, set)
		if d.Granted || d.Reason != types.ReasonNoMatch {
			t.Fatalf("%s: expected deny(no-match), got %v", id, d)
		}
	}
}

func TestCheckCredential_EmptySetDeniesAll(t *testing.T) {
	set := policy.NewAuthorizationSet(nil, "1234")
	if d := policy.CheckCredential("1234567890", set); d.Granted {
		t.Error("expected deny with no authorized cards")
	}
}

func TestCheckRead_ErrorSkipsSet(t *testing.T) {
	set := referenceSet()
	d := policy.CheckRead("1234567890", &types.ReadError{Err: errors.New("antenna")}, set)
	if d.Granted || d.Reason != types.ReasonReadError {
		t.Errorf("expected deny(read-error), got %v", d)
	}

	d = policy.CheckRead("1234567890", nil, set)
	if !d.Granted {
		t.Errorf("expected grant for a clean read, got %v", d)
	}
}

// ── Codes ────────────────────────────────────────────────────────────────────

func TestCheckCode(t *testing.T) {
	set := policy.NewAuthorizationSet(nil, "12AB")
	cases := []struct {
		code types.Code
		want types.AccessDecision
	}{
		{"12AB", types.Grant(types.ReasonCodeMatch)},
		{"12Ab", types.Deny(types.ReasonNoMatch)},
		{"12AC", types.Deny(types.ReasonNoMatch)},
		{"12A", types.Deny(types.ReasonNoMatch)},
		{"12AB1", types.Deny(types.ReasonNoMatch)},
		{"", types.Deny(types.ReasonNoMatch)},
	}
	for _, tc := range cases {
		if got := policy.CheckCode(tc.code, set); got != tc.want {
			t.Errorf("CheckCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestCheckCode_AllOtherFourDigitCodesDenied(t *testing.T) {
	set := referenceSet()
	for n := 0; n < 10000; n++ {
		code := types.Code(fmt.Sprintf("%04d", n))
		d := policy.CheckCode(code, set)
		if code == "1234" {
			if !d.Granted {
				t.Fatalf("expected 1234 to be granted")
			}
			continue
		}
		if d.Granted {
			t.Fatalf("code %s unexpectedly granted", code)
		}
	}
}

func TestCheckCode_EmptyExpectedCodeDisablesKeypad(t *testing.T) {
	set := policy.NewAuthorizationSet([]string{"1"}, "")
	if d := policy.CheckCode("", set); d.Granted {
		t.Error("expected deny when no code is configured")
	}
	if set.CodeLength() != 0 {
		t.Errorf("expected code length 0, got %d", set.CodeLength())
	}
}
