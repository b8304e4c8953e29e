package manager

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/plant-waterer/internal/actuator"
	"github.com/sweeney/plant-waterer/internal/attr"
	"github.com/sweeney/plant-waterer/internal/clock"
	"github.com/sweeney/plant-waterer/internal/gpio"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/settings"
	"github.com/sweeney/plant-waterer/internal/status"
)

var T = time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)

type notification struct {
	id attr.ID
	v  uint32
}

// recorder is an attr.Notifier that keeps every notification.
type recorder struct {
	mu  sync.Mutex
	got []notification
}

func (r *recorder) Notify(id attr.ID, v uint32) {
	r.mu.Lock()
	r.got = append(r.got, notification{id, v})
	r.mu.Unlock()
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.got = nil
	r.mu.Unlock()
}

func (r *recorder) ids() map[attr.ID]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[attr.ID]int{}
	for _, n := range r.got {
		out[n.id]++
	}
	return out
}

// last returns the most recent value notified for id.
func (r *recorder) last(id attr.ID) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.got) - 1; i >= 0; i-- {
		if r.got[i].id == id {
			return r.got[i].v, true
		}
	}
	return 0, false
}

type harness struct {
	m      *Manager
	cfg    *settings.Store
	status *status.Tracker
	pump   *actuator.Pump
	driver *gpio.FakeDriver
	clock  *clock.Fake
	notes  *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewFake(T)
	drv := gpio.NewFakeDriver()
	pump := actuator.New(drv, clk)
	cfg := settings.NewStore(60, 100)
	tr := status.NewTracker(T, status.Config{})
	tr.SetClock(clk.Now)
	notes := &recorder{}

	m, err := New(cfg, tr, pump, clk, notes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	drv.Reset()
	notes.reset()
	return &harness{m: m, cfg: cfg, status: tr, pump: pump, driver: drv, clock: clk, notes: notes}
}

func TestNewResetsConfiguration(t *testing.T) {
	cfg := settings.NewStore(5, 150)
	cfg.SetMode(logic.ModeScheduled)
	cfg.RequestWatering()
	drv := gpio.NewFakeDriver()
	clk := clock.NewFake(T)

	_, err := New(cfg, status.NewTracker(T, status.Config{}), actuator.New(drv, clk), clk, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if cfg.Snapshot().Mode != logic.ModeOff {
		t.Error("mode should be reset to Off")
	}
	if cfg.TriggerPending() {
		t.Error("manual trigger should be cleared")
	}
	if len(drv.Calls) != 1 || drv.Calls[0] {
		t.Errorf("pump should be forced off at init, calls=%v", drv.Calls)
	}
}

func TestNewFailsWhenPumpNotReady(t *testing.T) {
	drv := gpio.NewFakeDriver()
	drv.SetError = errors.New("gpio busy")
	clk := clock.NewFake(T)

	m, err := New(settings.NewStore(0, 0), status.NewTracker(T, status.Config{}), actuator.New(drv, clk), clk, nil)
	if err == nil {
		t.Fatal("expected init error")
	}
	if m != nil {
		t.Error("no manager may be returned on init failure")
	}
	if !errors.Is(err, drv.SetError) {
		t.Errorf("error should wrap the driver error: %v", err)
	}
}

func TestTickNotifiesDerivedFields(t *testing.T) {
	h := newHarness(t)
	h.clock.Advance(42 * time.Second)

	h.m.Tick()

	if v, _ := h.notes.last(attr.TimeSinceLastWatering); v != 42 {
		t.Errorf("since before any watering: got %d, want 42", v)
	}
	if v, ok := h.notes.last(attr.TimeUntilNextWatering); !ok || v != 0 {
		t.Errorf("until while Off: got %d (%v), want 0", v, ok)
	}
}

func TestTickIdempotent(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetInterval(5)
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()

	calls := h.driver.CallCount()
	pending := h.clock.Pending()
	next := h.status.Snapshot().NextWateringAt
	h.notes.reset()

	h.m.Tick()

	if h.driver.CallCount() != calls {
		t.Error("second tick touched the pump")
	}
	if h.clock.Pending() != pending {
		t.Errorf("second tick changed timers: %d -> %d", pending, h.clock.Pending())
	}
	if !h.status.Snapshot().NextWateringAt.Equal(next) {
		t.Error("second tick moved the schedule")
	}
	ids := h.notes.ids()
	if len(ids) != 2 || ids[attr.TimeSinceLastWatering] != 1 || ids[attr.TimeUntilNextWatering] != 1 {
		t.Errorf("second tick notifications: got %v, want only since/until", ids)
	}
}

func TestOffToScheduledArmsOneSchedule(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetInterval(5)
	h.cfg.SetMode(logic.ModeScheduled)

	h.m.Tick()

	if got := h.status.Snapshot().NextWateringAt; !got.Equal(T.Add(300 * time.Second)) {
		t.Errorf("next_watering_at: got %v, want T+300s", got)
	}
	if h.clock.Pending() != 1 {
		t.Errorf("pending timers: got %d, want 1", h.clock.Pending())
	}
	if v, _ := h.notes.last(attr.TimeUntilNextWatering); v != 300 {
		t.Errorf("until: got %d, want 300", v)
	}
	if h.driver.CallCount() != 0 {
		t.Error("entering Scheduled must not water immediately")
	}
}

func TestScheduledWateringCycle(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetInterval(5)
	h.cfg.SetAmount(150)
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()

	h.clock.Advance(300 * time.Second)

	snap := h.status.Snapshot()
	if !snap.Watering || !h.pump.IsRunning() {
		t.Fatal("schedule should start watering")
	}
	if !snap.LastWateredAt.Equal(T.Add(300 * time.Second)) {
		t.Errorf("last_watered_at: got %v", snap.LastWateredAt)
	}
	if !snap.NextWateringAt.Equal(T.Add(600 * time.Second)) {
		t.Errorf("next_watering_at: got %v, want T+600s", snap.NextWateringAt)
	}
	if v, _ := h.notes.last(attr.Watering); v != 1 {
		t.Error("watering=1 should be notified")
	}

	// Pump auto-stops after 4285ms; the next tick observes it.
	h.clock.Advance(4285 * time.Millisecond)
	if h.pump.IsRunning() {
		t.Fatal("pump should have auto-stopped")
	}
	h.m.Tick()
	if h.status.Snapshot().Watering {
		t.Error("tick should clear watering after auto-stop")
	}
	if v, _ := h.notes.last(attr.Watering); v != 0 {
		t.Error("watering=0 should be notified")
	}

	// Cadence continues.
	h.clock.Advance(300*time.Second - 4285*time.Millisecond)
	if got := h.status.Snapshot().Counts.Cycles; got != 2 {
		t.Errorf("cycles: got %d, want 2", got)
	}
}

func TestScheduledToOffWhileWatering(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetInterval(1)
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()
	h.clock.Advance(time.Minute)
	if !h.pump.IsRunning() {
		t.Fatal("expected watering in progress")
	}

	h.cfg.SetMode(logic.ModeOff)
	h.m.Tick()

	if h.pump.IsRunning() || h.driver.IsOn() {
		t.Error("leaving Scheduled must stop the pump")
	}
	snap := h.status.Snapshot()
	if snap.Watering {
		t.Error("watering should be false")
	}
	if !snap.NextWateringAt.IsZero() {
		t.Error("schedule should be cleared")
	}
	if h.clock.Pending() != 0 {
		t.Errorf("pending timers: got %d, want 0", h.clock.Pending())
	}

	// Re-entering Scheduled does not water immediately.
	calls := h.driver.CallCount()
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()
	if h.driver.CallCount() != calls || h.pump.IsRunning() {
		t.Error("re-entering Scheduled must not water immediately")
	}
	if h.clock.Pending() != 1 {
		t.Errorf("pending timers: got %d, want 1", h.clock.Pending())
	}
}

func TestManualTrigger(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetMode(logic.ModeManual)
	h.cfg.SetAmount(150)
	h.cfg.RequestWatering()

	h.m.Tick()

	snap := h.status.Snapshot()
	if !snap.Watering {
		t.Fatal("manual trigger should start watering")
	}
	if !snap.LastWateredAt.Equal(T) {
		t.Errorf("last_watered_at: got %v, want T", snap.LastWateredAt)
	}
	if h.cfg.TriggerPending() {
		t.Error("trigger should be consumed in the same tick")
	}

	due, ok := h.clock.NextDue()
	if !ok || due.Sub(T) != 4285*time.Millisecond {
		t.Errorf("auto-stop in %v, want 4285ms", due.Sub(T))
	}
	if !snap.NextWateringAt.IsZero() {
		t.Error("manual mode schedules nothing")
	}
}

func TestManualTriggerWhileWateringWaits(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetMode(logic.ModeManual)
	h.cfg.SetAmount(50)
	h.cfg.RequestWatering()
	h.m.Tick()

	h.cfg.RequestWatering()
	h.m.Tick()
	if !h.cfg.TriggerPending() {
		t.Fatal("trigger must stay pending while watering")
	}
	if got := h.status.Snapshot().Counts.Cycles; got != 1 {
		t.Errorf("cycles: got %d, want 1", got)
	}

	h.clock.Advance(2 * time.Second)
	h.m.Tick()
	if h.cfg.TriggerPending() || h.status.Snapshot().Counts.Cycles != 2 {
		t.Error("pending trigger should run once the pump is idle")
	}
}

func TestManualTriggerOutsideManualStaysPending(t *testing.T) {
	h := newHarness(t)
	h.cfg.RequestWatering()

	h.m.Tick()

	if !h.cfg.TriggerPending() {
		t.Error("trigger should stay pending in Off mode")
	}
	if h.driver.CallCount() != 0 {
		t.Error("no watering outside Manual mode")
	}

	h.cfg.SetMode(logic.ModeManual)
	h.m.Tick()
	if h.cfg.TriggerPending() || !h.pump.IsRunning() {
		t.Error("pending trigger should fire on entering Manual")
	}
}

func TestIntervalChangeReschedules(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetInterval(5)
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()

	h.clock.Advance(60 * time.Second)
	h.cfg.SetInterval(2)
	h.m.Tick()

	if got := h.status.Snapshot().NextWateringAt; !got.Equal(T.Add(180 * time.Second)) {
		t.Errorf("next_watering_at: got %v, want T+180s", got)
	}
	if h.clock.Pending() != 1 {
		t.Errorf("pending timers: got %d, want 1 (original cancelled)", h.clock.Pending())
	}
	if v, _ := h.notes.last(attr.TimeUntilNextWatering); v != 120 {
		t.Errorf("until: got %d, want 120", v)
	}

	h.clock.Advance(120 * time.Second)
	if got := h.status.Snapshot().Counts.Cycles; got != 1 {
		t.Fatalf("cycles at T+180s: got %d, want 1", got)
	}
	h.clock.Advance(time.Second)
	h.m.Tick()
	// The next slot is T+180s + 2m = T+300s.
	h.clock.Advance(118 * time.Second)
	if got := h.status.Snapshot().Counts.Cycles; got != 1 {
		t.Errorf("cycles at T+299s: got %d, want 1", got)
	}
	h.clock.Advance(time.Second)
	if got := h.status.Snapshot().Counts.Cycles; got != 2 {
		t.Errorf("cycles at T+300s: got %d, want 2", got)
	}
}

func TestIntervalChangeOutsideScheduledIgnored(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetMode(logic.ModeManual)
	h.m.Tick()

	h.cfg.SetInterval(3)
	h.m.Tick()

	if h.clock.Pending() != 0 {
		t.Error("interval change in Manual must not arm a schedule")
	}
}

func TestScheduledDriverFailure(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetInterval(5)
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()
	h.driver.OnError = errors.New("relay fault")

	h.clock.Advance(300 * time.Second)

	snap := h.status.Snapshot()
	if snap.Watering || h.pump.IsRunning() {
		t.Error("failed start must leave watering=false")
	}
	if !snap.NextWateringAt.Equal(T.Add(300 * time.Second)) {
		t.Errorf("next_watering_at disturbed: got %v, want T+300s", snap.NextWateringAt)
	}
	if snap.Counts.DriverFailures != 1 || snap.Counts.Cycles != 0 {
		t.Errorf("counts: got %+v", snap.Counts)
	}

	// The missed slot is not retried immediately; the following slot is.
	calls := h.driver.CallCount()
	h.m.Tick()
	h.clock.Advance(299 * time.Second)
	if h.driver.CallCount() != calls {
		t.Error("no retry before the following slot")
	}
	h.driver.OnError = nil
	h.clock.Advance(time.Second)
	if !h.pump.IsRunning() {
		t.Error("following slot should water")
	}
}

func TestZeroAmountIsNoop(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetAmount(0)
	h.cfg.SetInterval(1)
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()

	h.clock.Advance(time.Minute)

	if h.driver.CallCount() != 0 {
		t.Error("zero amount must not energize the pump")
	}
	snap := h.status.Snapshot()
	if snap.Watering || !snap.LastWateredAt.IsZero() {
		t.Error("zero amount must not change watering status")
	}
	if !snap.NextWateringAt.Equal(T.Add(2 * time.Minute)) {
		t.Errorf("cadence should continue: next=%v", snap.NextWateringAt)
	}
}

func TestScheduledZeroInterval(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetInterval(0)
	h.cfg.SetMode(logic.ModeScheduled)

	h.m.Tick()

	if h.clock.Pending() != 0 {
		t.Error("zero interval must not arm a schedule")
	}
	if !h.status.Snapshot().NextWateringAt.IsZero() {
		t.Error("next_watering_at should be cleared")
	}
}

func TestModeSwitchManualToScheduledStopsPump(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetMode(logic.ModeManual)
	h.cfg.SetAmount(500)
	h.cfg.RequestWatering()
	h.m.Tick()

	h.cfg.SetInterval(10)
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()

	if h.pump.IsRunning() {
		t.Error("mode change must stop the running cycle")
	}
	if got := h.status.Snapshot().NextWateringAt; !got.Equal(T.Add(10 * time.Minute)) {
		t.Errorf("next_watering_at: got %v", got)
	}
}

func TestTeardownStopFailureStillStopped(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetMode(logic.ModeManual)
	h.cfg.RequestWatering()
	h.m.Tick()
	h.driver.OffError = errors.New("stuck")

	h.cfg.SetMode(logic.ModeOff)
	h.m.Tick()

	if h.pump.IsRunning() || h.status.Snapshot().Watering {
		t.Error("failed stop must still report stopped")
	}
	if h.status.Snapshot().Counts.DriverFailures != 1 {
		t.Error("failed stop should be counted")
	}
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetInterval(1)
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()
	h.clock.Advance(time.Minute)

	if err := h.m.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if h.pump.IsRunning() || h.driver.IsOn() {
		t.Error("shutdown must stop the pump")
	}
	if h.clock.Pending() != 0 {
		t.Errorf("pending timers: got %d, want 0", h.clock.Pending())
	}
	if err := h.m.Shutdown(); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestStaleScheduleCallbackIgnored(t *testing.T) {
	h := newHarness(t)
	h.cfg.SetInterval(1)
	h.cfg.SetMode(logic.ModeScheduled)
	h.m.Tick()
	stale := h.m.schedGen

	h.cfg.SetMode(logic.ModeOff)
	h.m.Tick()

	h.m.onSchedule(stale)
	if h.driver.CallCount() != 0 {
		t.Error("stale schedule callback must not water")
	}
}
