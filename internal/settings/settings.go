// Package settings holds the controller's Configuration record: the values
// written through the attribute interface and read by the state machine.
package settings

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// ErrInvalidMode is returned when a mode outside Off/Manual/Scheduled is written.
var ErrInvalidMode = errors.New("invalid mode")

// Values is a point-in-time copy of the configuration.
type Values struct {
	Mode            logic.Mode
	IntervalMinutes uint16
	AmountML        uint16
}

// Store is a mutex-guarded Configuration record. Writers are the attribute
// interface; the state machine is the only consumer of the manual trigger.
type Store struct {
	mu      sync.Mutex
	v       Values
	trigger bool
}

// NewStore creates a Store in the startup state (Off, no trigger) with the
// given interval and amount.
func NewStore(intervalMinutes, amountML uint16) *Store {
	return &Store{v: Values{Mode: logic.ModeOff, IntervalMinutes: intervalMinutes, AmountML: amountML}}
}

// Reset forces mode Off and clears the manual trigger.
func (s *Store) Reset() {
	s.mu.Lock()
	s.v.Mode = logic.ModeOff
	s.trigger = false
	s.mu.Unlock()
}

// SetMode writes the mode. Invalid modes are rejected and leave the store unchanged.
func (s *Store) SetMode(m logic.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, uint8(m))
	}
	s.mu.Lock()
	s.v.Mode = m
	s.mu.Unlock()
	return nil
}

// SetInterval writes the schedule interval in minutes.
func (s *Store) SetInterval(minutes uint16) {
	s.mu.Lock()
	s.v.IntervalMinutes = minutes
	s.mu.Unlock()
}

// SetAmount writes the per-cycle volume in millilitres.
func (s *Store) SetAmount(ml uint16) {
	s.mu.Lock()
	s.v.AmountML = ml
	s.mu.Unlock()
}

// RequestWatering arms the one-shot manual trigger.
func (s *Store) RequestWatering() {
	s.mu.Lock()
	s.trigger = true
	s.mu.Unlock()
}

// ConsumeManualTrigger reports whether the trigger was armed and clears it.
func (s *Store) ConsumeManualTrigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed := s.trigger
	s.trigger = false
	return armed
}

// TriggerPending reports the trigger without consuming it.
func (s *Store) TriggerPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trigger
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}
