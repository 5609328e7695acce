package playback

import (
	"sync"
	"time"
)

// DefaultInterval is the playback cadence used when none is configured.
const DefaultInterval = 100 * time.Millisecond

// Ticker delivers ticks to a Task. It matches the subset of *time.Ticker a
// Task needs, so tests can drive ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTicker returns a wall-clock Ticker firing every d. A non-positive d
// uses DefaultInterval.
func NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		d = DefaultInterval
	}
	return timeTicker{t: time.NewTicker(d)}
}

// Task runs a callback on every tick until stopped. Ticks are handled one at
// a time on the task's goroutine; a slow callback delays later ticks rather
// than overlapping them.
type Task struct {
	ticker   Ticker
	onTick   func()
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// Start begins delivering ticks from ticker to onTick. The task owns ticker
// and stops it when the task ends.
func Start(ticker Ticker, onTick func()) *Task {
	t := &Task{
		ticker:   ticker,
		onTick:   onTick,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *Task) loop() {
	defer close(t.done)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-t.ticker.C():
			// Stop may race with a pending tick; it wins.
			select {
			case <-t.stopChan:
				return
			default:
			}
			t.onTick()
		}
	}
}

// Stop cancels the task. It reports true only for the call that actually
// stopped it. Stop does not wait for an in-progress tick; use Done for that.
// It is safe to call from inside the tick callback.
func (t *Task) Stop() bool {
	stopped := false
	t.stopOnce.Do(func() {
		close(t.stopChan)
		stopped = true
	})
	return stopped
}

// Done is closed once the task's goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
