//go:build !linux

package gpio

import "errors"

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(chipName string, pin int, activeLow bool) (*RealDriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ReadPin returns an error on non-Linux platforms.
func ReadPin(chipName string, pin int, activeLow bool) (bool, error) {
	return false, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (d *RealDriver) Set(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *RealDriver) Close() error {
	return nil
}
