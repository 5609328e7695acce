package playback

import (
	"sync"
	"time"
)

// ManualTicker is a Ticker whose ticks are fired explicitly. It is used by
// tests and by callers that step playback by hand.
type ManualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

// NewManualTicker creates a ManualTicker.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time)}
}

// C implements Ticker.
func (m *ManualTicker) C() <-chan time.Time { return m.ch }

// Stop implements Ticker.
func (m *ManualTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

// Stopped reports whether the owning task has stopped the ticker.
func (m *ManualTicker) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Tick delivers one tick, blocking until the task receives it. It reports
// false if the task did not take the tick within timeout.
func (m *ManualTicker) Tick(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m.ch <- time.Now():
		return true
	case <-timer.C:
		return false
	}
}
