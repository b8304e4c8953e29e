// Package logic contains the pure watering rules of the plant waterer.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "fmt"

// Mode is the operating mode written by the attribute interface.
type Mode uint8

const (
	ModeOff       Mode = 0
	ModeManual    Mode = 1
	ModeScheduled Mode = 2
)

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	return m <= ModeScheduled
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeManual:
		return "MANUAL"
	case ModeScheduled:
		return "SCHEDULED"
	default:
		return fmt.Sprintf("MODE(%d)", uint8(m))
	}
}

// Flow model constants. Volumes at or below FlowThresholdML run at the slow
// rate, anything above at the fast rate.
const (
	FlowThresholdML = 100
	FlowRateSlowML  = 25 // mL/s
	FlowRateFastML  = 35 // mL/s
)

// State is the ON/OFF rendering of the pump used in payloads and the UI.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// StateOf converts a boolean to State.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}
