package watcher

import (
	"sync"
	"time"
)

// DefaultDebounceDuration is the default quiet period before a change fires.
const DefaultDebounceDuration = 250 * time.Millisecond

// Debouncer collapses a burst of Trigger calls into one call of fn, made
// once the burst has been quiet for the debounce duration.
type Debouncer struct {
	duration time.Duration
	fn       func()

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
	fired int
}

// NewDebouncer returns a debouncer for fn. A zero duration means
// DefaultDebounceDuration.
func NewDebouncer(duration time.Duration, fn func()) *Debouncer {
	if duration <= 0 {
		duration = DefaultDebounceDuration
	}
	return &Debouncer{duration: duration, fn: fn}
}

// Trigger restarts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	seq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, func() { d.run(seq) })
}

// Flush runs a pending call now. It does nothing when no call is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	seq := d.seq
	d.mu.Unlock()
	d.run(seq)
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	// a timer that already fired sees the new seq and gives up
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Fired reports how many times fn has run.
func (d *Debouncer) Fired() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired
}

// Duration returns the debounce duration.
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}

func (d *Debouncer) run(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	// bump so a concurrently firing timer for the same seq cannot run fn twice
	d.seq++
	d.timer = nil
	d.fired++
	d.mu.Unlock()

	d.fn()
}
