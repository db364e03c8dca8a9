package periphio

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNoCard(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("mfrc522 lowlevel: timeout waiting for IRQ edge: 250ms"), true},
		{fmt.Errorf("read uid: %w", errors.New("mfrc522 lowlevel: timeout waiting for IRQ edge: 1s")), true},
		{errors.New("spi: transfer timeout"), false},
		{errors.New("sysfs-spi: i/o timeout"), false},
		{errors.New("mfrc522 lowlevel: CRC error"), false},
	}
	for _, tt := range tests {
		if got := isNoCard(tt.err); got != tt.want {
			t.Errorf("isNoCard(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
