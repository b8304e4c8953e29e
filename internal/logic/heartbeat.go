package logic

import "time"

// Counts tracks controller activity since startup.
type Counts struct {
	Cycles         int
	DriverFailures int
	RejectedWrites int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
}

// Heartbeat decides when periodic heartbeat events are due.
type Heartbeat struct {
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewHeartbeat creates a Heartbeat whose first interval starts at startTime.
func NewHeartbeat(startTime time.Time) *Heartbeat {
	return &Heartbeat{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup). Returns nil if the interval has not elapsed or if
// interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(h.lastHeartbeat) < interval {
		return nil
	}

	h.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
	}
}
