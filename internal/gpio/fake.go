package gpio

import "sync"

// FakeDriver is a test double that records pump output calls.
// Safe for use from timer goroutines.
type FakeDriver struct {
	mu sync.Mutex

	// Calls records every Set argument, including failed ones.
	Calls []bool

	// On is the last value successfully set.
	On bool

	// SetError, if set, is returned by every Set call.
	SetError error

	// OnError, if set, is returned only by Set(true) calls.
	OnError error

	// OffError, if set, is returned only by Set(false) calls.
	// The output is still considered off.
	OffError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeDriver creates a FakeDriver with the pump off.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// Set records the call and applies it unless an error is scripted.
func (f *FakeDriver) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, on)
	if f.SetError != nil {
		return f.SetError
	}
	if on && f.OnError != nil {
		return f.OnError
	}
	f.On = on
	if !on && f.OffError != nil {
		return f.OffError
	}
	return nil
}

// CallCount returns the number of Set calls so far.
func (f *FakeDriver) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// IsOn returns the last value successfully set.
func (f *FakeDriver) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.On
}

// Fail scripts err for subsequent Set calls; nil clears it.
func (f *FakeDriver) Fail(err error) {
	f.mu.Lock()
	f.SetError = err
	f.mu.Unlock()
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded calls and scripted errors.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
	f.On = false
	f.SetError = nil
	f.OnError = nil
	f.OffError = nil
	f.Closed = false
}
