package preview

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid schedule calls into one task execution: each
// Schedule supersedes any pending task and restarts the delay, so only the
// last task within a window ever runs. One Debouncer backs each pipeline;
// the same abstraction serves every debounced concern.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	gen   uint64
}

// NewDebouncer returns a debouncer with the given delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule queues fn to run after the delay, cancelling any task still
// pending. fn runs on a timer goroutine only if no later Schedule or Cancel
// has superseded it in the meantime.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.gen
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Cancel drops any pending task.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Flush runs through the pending delay immediately. Tests use it to avoid
// waiting on wall-clock time.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	timer := d.timer
	d.mu.Unlock()
	if timer != nil && timer.Stop() {
		// Reset to fire now; the generation check still applies.
		timer.Reset(0)
	}
}
