package timeline

import (
	"sync"
	"time"
)

// Clock advances a discrete frame counter at a fixed cadence while playing.
//
// Every transition (start, stop, fps change, seek past the end) bumps a
// generation counter and tears down the running ticker; a ticker goroutine
// that observes a stale generation exits without touching the frame. A stale
// ticker therefore never ticks after a state change.
type Clock struct {
	mu          sync.Mutex
	fps         float64
	totalFrames int
	frame       int
	playing     bool
	gen         uint64
	stop        chan struct{}

	// OnFrame is invoked (outside the lock) after every tick and seek.
	OnFrame func(frame int)
	// OnStop is invoked when playback ends by reaching the last frame.
	OnStop func()
}

// NewClock returns a stopped clock at frame 0.
func NewClock(fps float64, totalFrames int) *Clock {
	return &Clock{fps: fps, totalFrames: totalFrames}
}

// Playing reports the current state.
func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Frame returns the current frame index.
func (c *Clock) Frame() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Play starts the tick loop. No-op when already playing or when fps is
// unusable.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing || c.fps <= 0 || c.totalFrames <= 0 {
		return
	}
	c.startLocked()
}

// Stop cancels the running ticker.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Toggle flips between Playing and Stopped (keyboard space).
func (c *Clock) Toggle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		c.stopLocked()
		return
	}
	if c.fps > 0 && c.totalFrames > 0 {
		c.startLocked()
	}
}

// SetFPS changes the tick cadence. A running clock is torn down and
// recreated at the new period.
func (c *Clock) SetFPS(fps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasPlaying := c.playing
	c.stopLocked()
	c.fps = fps
	if wasPlaying && fps > 0 {
		c.startLocked()
	}
}

// Seek moves the frame counter, clamped to [0, totalFrames-1].
func (c *Clock) Seek(frame int) {
	c.mu.Lock()
	if frame < 0 {
		frame = 0
	}
	if max := c.totalFrames - 1; frame > max {
		frame = max
	}
	c.frame = frame
	onFrame := c.OnFrame
	c.mu.Unlock()

	if onFrame != nil {
		onFrame(frame)
	}
}

// Step moves the frame counter by delta frames (keyboard arrows).
func (c *Clock) Step(delta int) {
	c.Seek(c.Frame() + delta)
}

func (c *Clock) startLocked() {
	c.playing = true
	c.gen++
	gen := c.gen
	c.stop = make(chan struct{})
	period := time.Duration(float64(time.Second) / c.fps)
	go c.run(gen, period, c.stop)
}

func (c *Clock) stopLocked() {
	if !c.playing {
		return
	}
	c.playing = false
	c.gen++
	close(c.stop)
	c.stop = nil
}

func (c *Clock) run(gen uint64, period time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame, done, onFrame, onStop := c.tick(gen)
			if onFrame != nil {
				onFrame(frame)
			}
			if done {
				if onStop != nil {
					onStop()
				}
				return
			}
		}
	}
}

// tick advances the frame under the lock. Returns done=true when the clock
// reached the last frame and stopped, or when this goroutine's generation is
// stale.
func (c *Clock) tick(gen uint64) (frame int, done bool, onFrame func(int), onStop func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || !c.playing {
		return c.frame, true, nil, nil
	}

	c.frame++
	last := c.totalFrames - 1
	if c.frame >= last {
		c.frame = last
		c.playing = false
		c.gen++
		c.stop = nil
		return c.frame, true, c.OnFrame, c.OnStop
	}
	return c.frame, false, c.OnFrame, nil
}
