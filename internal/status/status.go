// Package status holds the controller's Status record and the daemon state
// shown by the HTTP page and system events.
//
// Single writer per field group: the state machine writes the watering
// fields and counts, the run loop writes connectivity and network. Any
// number of readers take Snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/settings"
)

// NetworkInfo contains network state as published by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	HeartbeatMs int64
	PumpPin     int
	ActiveLow   bool
	Broker      string
	TopicPrefix string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Settings       settings.Values
	TriggerPending bool
	Watering       bool
	LastWateredAt  time.Time // zero = never
	NextWateringAt time.Time // zero = not scheduled
	Counts         logic.Counts
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// SecondsSinceLastWatering is measured from startup until the first watering.
func (s Snapshot) SecondsSinceLastWatering() uint32 {
	from := s.LastWateredAt
	if from.IsZero() {
		from = s.StartTime
	}
	return logic.SecondsSince(s.Now, from)
}

// SecondsUntilNextWatering is 0 when nothing is scheduled or the slot has passed.
func (s Snapshot) SecondsUntilNextWatering() uint32 {
	return logic.SecondsUntil(s.Now, s.NextWateringAt)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// SetWatering records the actuation state.
func (t *Tracker) SetWatering(on bool) {
	t.mu.Lock()
	t.snap.Watering = on
	t.mu.Unlock()
}

// StartCycle marks a watering cycle started at at.
func (t *Tracker) StartCycle(at time.Time) {
	t.mu.Lock()
	t.snap.Watering = true
	t.snap.LastWateredAt = at
	t.snap.Counts.Cycles++
	t.mu.Unlock()
}

// SetNextWatering records the next scheduled slot; the zero time clears it.
func (t *Tracker) SetNextWatering(at time.Time) {
	t.mu.Lock()
	t.snap.NextWateringAt = at
	t.mu.Unlock()
}

// RecordDriverFailure counts a failed pump driver call.
func (t *Tracker) RecordDriverFailure() {
	t.mu.Lock()
	t.snap.Counts.DriverFailures++
	t.mu.Unlock()
}

// SetRejectedWrites records the number of rejected attribute writes.
func (t *Tracker) SetRejectedWrites(n int) {
	t.mu.Lock()
	t.snap.Counts.RejectedWrites = n
	t.mu.Unlock()
}

// SetSettings records the configuration seen by the last tick.
func (t *Tracker) SetSettings(v settings.Values, triggerPending bool) {
	t.mu.Lock()
	t.snap.Settings = v
	t.snap.TriggerPending = triggerPending
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
