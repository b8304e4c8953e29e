// Package manager implements the watering state machine. It reacts to
// configuration changes at tick time, drives the pump for computed
// durations and keeps the Status record and attribute notifications current.
package manager

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/plant-waterer/internal/attr"
	"github.com/sweeney/plant-waterer/internal/clock"
	"github.com/sweeney/plant-waterer/internal/logging"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/metrics"
	"github.com/sweeney/plant-waterer/internal/settings"
	"github.com/sweeney/plant-waterer/internal/status"
)

// Pump is the actuator the state machine drives.
type Pump interface {
	Init() error
	Start(d time.Duration) error
	Stop() error
	IsRunning() bool
}

// Trigger names the source of a watering cycle in logs.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
)

// Manager is the watering state machine. Tick and the schedule callback are
// serialized by mu.
type Manager struct {
	mu       sync.Mutex
	cfg      *settings.Store
	status   *status.Tracker
	pump     Pump
	clock    clock.Clock
	notifier attr.Notifier
	logger   *slog.Logger

	lastMode     logic.Mode
	lastInterval uint16

	sched    clock.Timer
	schedGen uint64 // bumped on every arm/cancel; stale callbacks compare against it
}

// New binds the shared records, initializes the pump and resets the
// configuration to its startup state (Off, no pending trigger).
// A pump that cannot be initialized is fatal.
func New(cfg *settings.Store, st *status.Tracker, pump Pump, clk clock.Clock, notifier attr.Notifier) (*Manager, error) {
	if err := pump.Init(); err != nil {
		return nil, fmt.Errorf("init actuator: %w", err)
	}
	cfg.Reset()

	v := cfg.Snapshot()
	m := &Manager{
		cfg:          cfg,
		status:       st,
		pump:         pump,
		clock:        clk,
		notifier:     notifier,
		logger:       logging.GetLogger("manager"),
		lastMode:     v.Mode,
		lastInterval: v.IntervalMinutes,
	}
	st.SetWatering(false)
	st.SetNextWatering(time.Time{})
	st.SetSettings(v, false)
	metrics.SetMode(uint8(v.Mode))
	return m, nil
}

// Tick runs one pass of the state machine. Call it at a fixed cadence.
func (m *Manager) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	v := m.cfg.Snapshot()

	// Derived fields, unconditionally.
	snap := m.status.Snapshot()
	snap.Now = now
	m.notify(attr.TimeSinceLastWatering, snap.SecondsSinceLastWatering())
	m.notify(attr.TimeUntilNextWatering, snap.SecondsUntilNextWatering())

	// Actuator-driven change, e.g. the auto-stop timer fired.
	if running := m.pump.IsRunning(); running != snap.Watering {
		m.status.SetWatering(running)
		m.notify(attr.Watering, boolValue(running))
		if !running {
			m.logger.Info("watering finished")
		}
	}

	switch {
	case v.Mode != m.lastMode:
		m.logger.Info("mode changed", "from", m.lastMode, "to", v.Mode)
		m.teardownLocked()
		m.setupLocked(now, v)
		m.lastMode = v.Mode
		metrics.SetMode(uint8(v.Mode))
	case v.Mode == logic.ModeScheduled && v.IntervalMinutes != m.lastInterval:
		m.logger.Info("interval changed", "from", m.lastInterval, "to", v.IntervalMinutes)
		m.armScheduleLocked(now, v.IntervalMinutes)
	}
	m.lastInterval = v.IntervalMinutes

	if v.Mode == logic.ModeManual && !m.pump.IsRunning() && m.cfg.ConsumeManualTrigger() {
		m.performWateringLocked(now, TriggerManual)
	}

	m.status.SetSettings(m.cfg.Snapshot(), m.cfg.TriggerPending())
}

// Shutdown cancels the schedule and stops the pump if it is running.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelScheduleLocked()
	if !m.pump.IsRunning() {
		return nil
	}
	err := m.pump.Stop()
	m.status.SetWatering(false)
	m.notify(attr.Watering, 0)
	if err != nil {
		m.status.RecordDriverFailure()
		return fmt.Errorf("stop pump on shutdown: %w", err)
	}
	return nil
}

// teardownLocked removes the side effects of the previous mode.
func (m *Manager) teardownLocked() {
	m.cancelScheduleLocked()
	m.status.SetNextWatering(time.Time{})

	if m.status.Snapshot().Watering || m.pump.IsRunning() {
		if err := m.pump.Stop(); err != nil {
			m.status.RecordDriverFailure()
			m.logger.Error("stop pump failed", "error", err)
		}
		m.status.SetWatering(false)
		m.notify(attr.Watering, 0)
	}
}

// setupLocked establishes the side effects of the new mode.
func (m *Manager) setupLocked(now time.Time, v settings.Values) {
	if v.Mode == logic.ModeScheduled {
		m.armScheduleLocked(now, v.IntervalMinutes)
		return
	}
	m.notify(attr.TimeUntilNextWatering, 0)
}

// armScheduleLocked (re)arms the schedule one interval from now and records
// the due time. A zero interval leaves nothing scheduled.
func (m *Manager) armScheduleLocked(now time.Time, minutes uint16) {
	m.cancelScheduleLocked()

	if minutes == 0 {
		m.status.SetNextWatering(time.Time{})
		m.notify(attr.TimeUntilNextWatering, 0)
		m.logger.Warn("scheduled mode with zero interval, nothing scheduled")
		return
	}

	due := logic.NextDue(now, logic.IntervalFromMinutes(minutes))
	m.armTimerLocked(due.Sub(now))
	m.status.SetNextWatering(due)
	m.notify(attr.TimeUntilNextWatering, logic.SecondsUntil(now, due))
	m.logger.Debug("schedule armed", "next", due)
}

func (m *Manager) armTimerLocked(d time.Duration) {
	m.schedGen++
	gen := m.schedGen
	m.sched = m.clock.AfterFunc(d, func() { m.onSchedule(gen) })
}

// cancelScheduleLocked is idempotent.
func (m *Manager) cancelScheduleLocked() {
	m.schedGen++
	if m.sched != nil {
		m.sched.Stop()
		m.sched = nil
	}
}

func (m *Manager) onSchedule(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.schedGen {
		return
	}
	m.sched = nil
	m.performWateringLocked(m.clock.Now(), TriggerSchedule)
}

// performWateringLocked runs one watering cycle. At most one cycle runs at a
// time; a driver failure abandons the cycle without touching status.
func (m *Manager) performWateringLocked(now time.Time, trigger Trigger) {
	v := m.cfg.Snapshot()
	scheduled := trigger == TriggerSchedule && v.Mode == logic.ModeScheduled

	if m.pump.IsRunning() {
		m.logger.Warn("watering already in progress, cycle skipped", "trigger", trigger)
		if scheduled {
			m.armScheduleLocked(now, v.IntervalMinutes)
		}
		return
	}

	d := logic.DurationForVolume(uint32(v.AmountML))
	if d <= 0 {
		m.logger.Info("zero amount, nothing to water", "trigger", trigger)
		if scheduled {
			m.armScheduleLocked(now, v.IntervalMinutes)
		}
		return
	}

	if err := m.pump.Start(d); err != nil {
		m.status.RecordDriverFailure()
		m.logger.Error("watering cycle abandoned", "trigger", trigger, "error", err)
		if scheduled && v.IntervalMinutes > 0 {
			// The missed slot stays recorded; only the timer moves on.
			m.armTimerLocked(logic.NextDue(now, logic.IntervalFromMinutes(v.IntervalMinutes)).Sub(now))
		}
		return
	}

	m.status.StartCycle(now)
	metrics.ObserveCycle(d)
	m.logger.Info("watering started", "trigger", trigger, "amount_ml", v.AmountML, "duration", d)
	m.notify(attr.Watering, 1)
	m.notify(attr.TimeSinceLastWatering, 0)

	if scheduled {
		m.armScheduleLocked(now, v.IntervalMinutes)
	}
}

func (m *Manager) notify(id attr.ID, v uint32) {
	if m.notifier != nil {
		m.notifier.Notify(id, v)
	}
}

func boolValue(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
