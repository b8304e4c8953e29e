//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives the pump relay through the Linux GPIO character device.
type RealDriver struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	pin       int
	activeLow bool
}

// NewRealDriver requests pin on chip as an output, initially de-energized.
// activeLow suits relay boards that switch on a low level.
func NewRealDriver(chipName string, pin int, activeLow bool) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("plant-waterer")}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pump pin %d: %w", pin, err)
	}

	return &RealDriver{
		chip:      chip,
		line:      line,
		pin:       pin,
		activeLow: activeLow,
	}, nil
}

// ReadPin reports the logical level of pin without changing its direction,
// so a running daemon's relay is left untouched.
func ReadPin(chipName string, pin int, activeLow bool) (bool, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return false, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	defer chip.Close()

	opts := []gpiocdev.LineReqOption{gpiocdev.AsIs, gpiocdev.WithConsumer("plant-waterer")}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		return false, fmt.Errorf("request pump pin %d: %w", pin, err)
	}
	defer line.Close()

	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read pump pin %d: %w", pin, err)
	}
	return v == 1, nil
}

// Set drives the logical pump state. Active-low inversion is done by the kernel.
func (d *RealDriver) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := d.line.SetValue(v); err != nil {
		return fmt.Errorf("set pump pin %d to %d: %w", d.pin, v, err)
	}
	return nil
}

// Close releases GPIO resources.
// The line is reconfigured as an input before release, biased so that the
// relay stays de-energized: pull-down for active-high boards, pull-up for
// active-low ones.
func (d *RealDriver) Close() error {
	var errs []error

	if d.line != nil {
		bias := gpiocdev.WithPullDown
		if d.activeLow {
			bias = gpiocdev.WithPullUp
		}
		if err := d.line.Reconfigure(gpiocdev.AsInput, bias); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pump pin: %w", err))
		}
		if err := d.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pump pin: %w", err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
