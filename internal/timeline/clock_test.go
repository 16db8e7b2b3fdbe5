package timeline

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestClockAdvancesAndStopsAtLastFrame(t *testing.T) {
	c := NewClock(200, 5)

	var mu sync.Mutex
	var frames []int
	stopped := make(chan struct{})

	c.OnFrame = func(frame int) {
		mu.Lock()
		frames = append(frames, frame)
		mu.Unlock()
	}
	c.OnStop = func() { close(stopped) }

	c.Play()
	waitFor(t, stopped, "playback to reach the last frame")

	if c.Playing() {
		t.Error("clock still playing after reaching the last frame")
	}
	if got := c.Frame(); got != 4 {
		t.Errorf("expected to rest at frame 4, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) == 0 {
		t.Fatal("no frames observed")
	}
	for i := 1; i < len(frames); i++ {
		if frames[i] != frames[i-1]+1 {
			t.Errorf("frames not monotonic: %v", frames)
			break
		}
	}
	if frames[len(frames)-1] != 4 {
		t.Errorf("last observed frame should be 4, got %d", frames[len(frames)-1])
	}
}

func TestClockStopHaltsTicks(t *testing.T) {
	c := NewClock(100, 1000)

	first := make(chan struct{})
	var once sync.Once
	c.OnFrame = func(int) { once.Do(func() { close(first) }) }

	c.Play()
	waitFor(t, first, "first tick")
	c.Stop()

	if c.Playing() {
		t.Fatal("expected stopped clock")
	}

	// A stale ticker goroutine must not advance the frame after Stop.
	frame := c.Frame()
	time.Sleep(50 * time.Millisecond)
	if got := c.Frame(); got != frame {
		t.Errorf("frame advanced after stop: %d -> %d", frame, got)
	}
}

func TestClockSetFPSWhilePlaying(t *testing.T) {
	c := NewClock(50, 1000)
	c.Play()
	defer c.Stop()

	c.SetFPS(200)
	if !c.Playing() {
		t.Fatal("fps change should keep a playing clock playing")
	}

	frame := c.Frame()
	deadline := time.After(2 * time.Second)
	for c.Frame() == frame {
		select {
		case <-deadline:
			t.Fatal("clock stopped ticking after fps change")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestClockSeekClamps(t *testing.T) {
	c := NewClock(25, 100)

	c.Seek(-5)
	if got := c.Frame(); got != 0 {
		t.Errorf("expected clamp to 0, got %d", got)
	}

	c.Seek(500)
	if got := c.Frame(); got != 99 {
		t.Errorf("expected clamp to 99, got %d", got)
	}

	c.Seek(42)
	if got := c.Frame(); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestClockSeekNotifies(t *testing.T) {
	c := NewClock(25, 100)

	var got int
	c.OnFrame = func(frame int) { got = frame }

	c.Seek(10)
	if got != 10 {
		t.Errorf("expected OnFrame(10), got %d", got)
	}
}

func TestClockStep(t *testing.T) {
	c := NewClock(25, 100)
	c.Seek(10)

	c.Step(3)
	if got := c.Frame(); got != 13 {
		t.Errorf("expected 13, got %d", got)
	}
	c.Step(-20)
	if got := c.Frame(); got != 0 {
		t.Errorf("expected clamp to 0, got %d", got)
	}
}

func TestClockToggle(t *testing.T) {
	c := NewClock(100, 1000)

	c.Toggle()
	if !c.Playing() {
		t.Fatal("expected toggle to start playback")
	}
	c.Toggle()
	if c.Playing() {
		t.Fatal("expected toggle to stop playback")
	}
}

func TestClockPlayNoopWithoutFrames(t *testing.T) {
	c := NewClock(25, 0)
	c.Play()
	if c.Playing() {
		t.Error("clock with no frames should not play")
	}
}
