package settings

import (
	"errors"
	"sync"
	"testing"

	"github.com/sweeney/plant-waterer/internal/logic"
)

func TestNewStoreDefaults(t *testing.T) {
	s := NewStore(60, 100)
	v := s.Snapshot()
	if v.Mode != logic.ModeOff {
		t.Errorf("Mode: got %v, want OFF", v.Mode)
	}
	if v.IntervalMinutes != 60 || v.AmountML != 100 {
		t.Errorf("got interval=%d amount=%d, want 60/100", v.IntervalMinutes, v.AmountML)
	}
	if s.TriggerPending() {
		t.Error("trigger should start cleared")
	}
}

func TestSetModeRejectsInvalid(t *testing.T) {
	s := NewStore(0, 0)
	s.SetMode(logic.ModeManual)

	err := s.SetMode(logic.Mode(3))
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if s.Snapshot().Mode != logic.ModeManual {
		t.Error("invalid write must not change the mode")
	}
}

func TestManualTriggerConsumedOnce(t *testing.T) {
	s := NewStore(0, 0)
	if s.ConsumeManualTrigger() {
		t.Error("unarmed trigger consumed")
	}

	s.RequestWatering()
	if !s.ConsumeManualTrigger() {
		t.Error("armed trigger not reported")
	}
	if s.ConsumeManualTrigger() {
		t.Error("trigger consumed twice")
	}
}

func TestResetClearsModeAndTrigger(t *testing.T) {
	s := NewStore(5, 150)
	s.SetMode(logic.ModeScheduled)
	s.RequestWatering()

	s.Reset()

	v := s.Snapshot()
	if v.Mode != logic.ModeOff || s.TriggerPending() {
		t.Errorf("Reset: mode=%v trigger=%v", v.Mode, s.TriggerPending())
	}
	if v.IntervalMinutes != 5 || v.AmountML != 150 {
		t.Error("Reset should keep interval and amount")
	}
}

func TestConcurrentTriggerSingleConsumer(t *testing.T) {
	s := NewStore(0, 0)
	s.RequestWatering()

	var wg sync.WaitGroup
	var mu sync.Mutex
	consumed := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ConsumeManualTrigger() {
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if consumed != 1 {
		t.Errorf("consumed: got %d, want 1", consumed)
	}
}
