package logic

import "time"

// DurationForVolume returns how long the pump must run to deliver volumeML.
// The flow rate is piecewise: the slow rate up to and including the
// threshold, the fast rate above it. Integer division truncates to whole
// milliseconds.
func DurationForVolume(volumeML uint32) time.Duration {
	rate := uint64(FlowRateSlowML)
	if volumeML > FlowThresholdML {
		rate = FlowRateFastML
	}
	ms := uint64(volumeML) * 1000 / rate
	return time.Duration(ms) * time.Millisecond
}

// NextDue returns the time the next scheduled watering falls due.
// The interval is truncated to whole seconds.
func NextDue(now time.Time, interval time.Duration) time.Time {
	return now.Add(interval.Truncate(time.Second))
}

// IntervalFromMinutes converts the attribute's minute granularity to a Duration.
func IntervalFromMinutes(minutes uint16) time.Duration {
	return time.Duration(minutes) * time.Minute
}

// SecondsSince returns whole seconds elapsed from then to now, clamped to
// the uint32 range. A then in the future yields 0.
func SecondsSince(now, then time.Time) uint32 {
	return clampSeconds(now.Sub(then))
}

// SecondsUntil returns whole seconds from now until due. Zero due times and
// due times already passed yield 0.
func SecondsUntil(now, due time.Time) uint32 {
	if due.IsZero() {
		return 0
	}
	return clampSeconds(due.Sub(now))
}

func clampSeconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	s := int64(d / time.Second)
	if s > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(s)
}
