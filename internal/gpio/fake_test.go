package gpio

import (
	"errors"
	"testing"
)

func TestFakeDriverSet(t *testing.T) {
	f := NewFakeDriver()

	if err := f.Set(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.IsOn() {
		t.Error("expected On after Set(true)")
	}

	if err := f.Set(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.IsOn() {
		t.Error("expected Off after Set(false)")
	}

	if f.CallCount() != 2 {
		t.Errorf("CallCount: got %d, want 2", f.CallCount())
	}
}

func TestFakeDriverError(t *testing.T) {
	f := NewFakeDriver()
	f.SetError = errors.New("simulated error")

	err := f.Set(true)
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if f.IsOn() {
		t.Error("failed Set(true) must not turn the output on")
	}
	if f.CallCount() != 1 {
		t.Errorf("failed calls should still be recorded, got %d", f.CallCount())
	}
}

func TestFakeDriverOffError(t *testing.T) {
	f := NewFakeDriver()
	f.Set(true)
	f.OffError = errors.New("stuck")

	if err := f.Set(false); err == nil {
		t.Error("expected OffError")
	}
	if f.IsOn() {
		t.Error("OffError still records the output as off")
	}
}

func TestFakeDriverOnError(t *testing.T) {
	f := NewFakeDriver()
	f.OnError = errors.New("no power")

	if err := f.Set(true); err == nil {
		t.Error("expected OnError")
	}
	if err := f.Set(false); err != nil {
		t.Errorf("Set(false) should ignore OnError: %v", err)
	}
}

func TestFakeDriverCloseAndReset(t *testing.T) {
	f := NewFakeDriver()
	f.Set(true)
	f.Fail(errors.New("x"))

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed || f.IsOn() || f.CallCount() != 0 || f.SetError != nil {
		t.Errorf("Reset left state behind: %+v", f)
	}
}
