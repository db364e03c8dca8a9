package hw_test

import (
	"errors"
	"testing"

	"github.com/BrandonDHaskell/Portunus/controller/internal/hw"
)

func TestResources_CloseRunsInReverseOnce(t *testing.T) {
	var order []string
	r := &hw.Resources{}
	r.OnClose(func() error { order = append(order, "gpio"); return nil })
	r.OnClose(func() error { order = append(order, "servo"); return nil })

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if len(order) != 2 || order[0] != "servo" || order[1] != "gpio" {
		t.Errorf("expected [servo gpio], got %v", order)
	}
}

func TestResources_CloseJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	r := &hw.Resources{}
	r.OnClose(func() error { return errA })
	r.OnClose(func() error { return errB })

	err := r.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected joined error with both causes, got %v", err)
	}
}
