// Package actuator owns the pump output. It is the only code that energizes
// or de-energizes the pump and guarantees an armed auto-stop timer for every
// running cycle.
package actuator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/plant-waterer/internal/clock"
	"github.com/sweeney/plant-waterer/internal/gpio"
	"github.com/sweeney/plant-waterer/internal/logging"
	"github.com/sweeney/plant-waterer/internal/metrics"
)

// Pump serializes start, stop and timer expiry around a single running flag.
type Pump struct {
	mu      sync.Mutex
	driver  gpio.Driver
	clock   clock.Clock
	logger  *slog.Logger
	running bool
	timer   clock.Timer
	gen     uint64 // bumped per start; stale expiries compare against it
}

// New creates a Pump. Call Init before use.
func New(driver gpio.Driver, clk clock.Clock) *Pump {
	return &Pump{
		driver: driver,
		clock:  clk,
		logger: logging.GetLogger("actuator"),
	}
}

// Init forces the output off. A failure means the actuator is not usable.
func (p *Pump) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.driver.Set(false); err != nil {
		metrics.DriverError(metrics.OpDeenergize)
		return fmt.Errorf("init pump: %w", err)
	}
	p.running = false
	metrics.SetWatering(false)
	return nil
}

// Start energizes the pump and arms an auto-stop after d.
// It is a no-op if the pump is already running or d is not positive.
// On driver failure the pump is not marked running.
func (p *Pump) Start(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || d <= 0 {
		return nil
	}

	if err := p.driver.Set(true); err != nil {
		metrics.DriverError(metrics.OpEnergize)
		return fmt.Errorf("energize pump: %w", err)
	}

	p.running = true
	p.gen++
	gen := p.gen
	p.timer = p.clock.AfterFunc(d, func() { p.expire(gen) })
	metrics.SetWatering(true)

	p.logger.Info("pump energized", "duration", d)
	return nil
}

// Stop cancels the auto-stop timer and de-energizes the pump.
// It is a no-op if the pump is not running. The pump is considered stopped
// even when the driver reports an error.
func (p *Pump) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return p.deenergizeLocked("stop")
}

// IsRunning reports whether the pump is energized.
func (p *Pump) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pump) expire(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || gen != p.gen {
		return
	}
	p.timer = nil
	if err := p.deenergizeLocked("timer"); err != nil {
		p.logger.Error("auto-stop failed", "error", err)
	}
}

func (p *Pump) deenergizeLocked(reason string) error {
	p.running = false
	metrics.SetWatering(false)

	if err := p.driver.Set(false); err != nil {
		metrics.DriverError(metrics.OpDeenergize)
		return fmt.Errorf("de-energize pump: %w", err)
	}
	p.logger.Info("pump de-energized", "reason", reason)
	return nil
}
