// Package gpio provides the pump output line with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Driver energizes or de-energizes the pump.
type Driver interface {
	// Set drives the pump output. on=true energizes the pump.
	// The driver applies any relay polarity inversion itself.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Defaults (BCM numbering)
const (
	DefaultChip    = "gpiochip0"
	DefaultPinPump = 17
)
