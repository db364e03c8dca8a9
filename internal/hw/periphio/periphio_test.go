package periphio_test

import (
	"testing"

	"github.com/BrandonDHaskell/Portunus/controller/internal/hw/periphio"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

func TestUIDToCredential(t *testing.T) {
	tests := []struct {
		uid  []byte
		want types.CredentialID
	}{
		{nil, ""},
		{[]byte{0x00}, "0"},
		{[]byte{0x01, 0x00}, "256"},
		{[]byte{0x49, 0x96, 0x02, 0xD2}, "1234567890"},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, "1099511627775"},
	}
	for _, tt := range tests {
		if got := periphio.UIDToCredential(tt.uid); got != tt.want {
			t.Errorf("UIDToCredential(% x) = %q, want %q", tt.uid, got, tt.want)
		}
	}
}
