package reader_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/hw/hwtest"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/reader"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

func TestRead_ReturnsPresentedCard(t *testing.T) {
	dev := hwtest.NewCardReader()
	dev.Present("1234567890")

	id, err := reader.New(dev, 0).Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if id != "1234567890" {
		t.Errorf("expected 1234567890, got %q", id)
	}
}

func TestRead_DeviceFailureIsReadError(t *testing.T) {
	dev := hwtest.NewCardReader()
	cause := errors.New("crc mismatch")
	dev.Fail(cause)

	_, err := reader.New(dev, 0).Read(context.Background())

	var re *types.ReadError
	if !errors.As(err, &re) {
		t.Fatalf("expected *ReadError, got %T: %v", err, err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected ReadError to wrap the device error")
	}
	if re.Transient() {
		t.Error("device failure should not be transient")
	}
}

func TestRead_EmptyIDIsNoCard(t *testing.T) {
	dev := hwtest.NewCardReader()
	dev.Present("  ")

	_, err := reader.New(dev, 0).Read(context.Background())
	if !errors.Is(err, types.ErrNoCard) {
		t.Fatalf("expected ErrNoCard, got %v", err)
	}
}

func TestRead_TimeoutIsReadError(t *testing.T) {
	dev := hwtest.NewCardReader()

	start := time.Now()
	_, err := reader.New(dev, 20*time.Millisecond).Read(context.Background())
	if !errors.Is(err, types.ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout did not bound the read")
	}
}

func TestRead_CancellationIsNotAReadError(t *testing.T) {
	dev := hwtest.NewCardReader()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := reader.New(dev, 0).Read(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		var re *types.ReadError
		if errors.As(err, &re) {
			t.Error("shutdown must not be reported as a read error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after cancel")
	}
}
