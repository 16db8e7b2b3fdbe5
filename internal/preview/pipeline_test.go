package preview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Dezexus/subvision/pkg/models"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    int
	last     Request
	err      error
	released *atomic.Int32
	block    chan struct{}
}

func (f *fakeFetcher) fetch(ctx context.Context, req Request) (*Image, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	err := f.err
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	if err != nil {
		return nil, err
	}

	var onRelease func()
	if f.released != nil {
		onRelease = func() { f.released.Add(1) }
	}
	return NewImage([]byte{1, 2, 3}, "image/png", onRelease), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) lastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newTestPipeline(f *fakeFetcher, delay time.Duration) *Pipeline {
	return NewPipeline("effect", 4, delay, f.fetch, zerolog.Nop())
}

func req(frame int) Request {
	return Request{
		SourceID:   "src-1",
		FrameIndex: frame,
		Params:     models.EffectParams{Mode: models.EffectModeBlur, Strength: 10, ScaleFactor: 1},
	}
}

func waitForResult(t *testing.T, ch <-chan Request) Request {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a preview result")
		return Request{}
	}
}

func TestPipelineDebouncesBurst(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestPipeline(f, 20*time.Millisecond)
	defer p.Close()

	results := make(chan Request, 8)
	p.OnResult = func(r Request, _ *Image) { results <- r }

	// A slider drag: five parameter changes inside one debounce window.
	for strength := 1; strength <= 5; strength++ {
		r := req(0)
		r.Params.Strength = strength
		p.Request(r)
	}

	got := waitForResult(t, results)
	assert.Equal(t, 5, got.Params.Strength, "only the final input set should be fetched")
	assert.Equal(t, 1, f.callCount())
}

func TestPipelineCacheHitSkipsFetch(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestPipeline(f, time.Millisecond)
	defer p.Close()

	results := make(chan Request, 8)
	p.OnResult = func(r Request, _ *Image) { results <- r }

	p.Request(req(3))
	waitForResult(t, results)
	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, 1, p.CacheLen())

	// Identical input set: served from cache, synchronously.
	p.Request(req(3))
	waitForResult(t, results)
	assert.Equal(t, 1, f.callCount())
}

func TestPipelineCacheHitSupersedesPendingMiss(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestPipeline(f, 30*time.Millisecond)
	defer p.Close()

	results := make(chan Request, 8)
	p.OnResult = func(r Request, _ *Image) { results <- r }

	// Prime the cache with frame 2.
	p.Request(req(2))
	waitForResult(t, results)
	assert.Equal(t, 1, f.callCount())

	// Frame 1 misses and starts a debounce window; before it fires, frame 2
	// becomes the current input set again via a hit.
	p.Request(req(1))
	assert.True(t, p.Loading())
	p.Request(req(2))

	got := waitForResult(t, results)
	assert.Equal(t, 2, got.FrameIndex)
	assert.False(t, p.Loading(), "a hit leaves nothing pending")

	// Well past the debounce window: the superseded miss must never fetch or
	// display.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.callCount(), "stale debounced fetch must be cancelled")
	select {
	case r := <-results:
		t.Fatalf("displayed frame %d after the input set moved on", r.FrameIndex)
	default:
	}
}

func TestPipelineCacheHitSupersedesInFlightFetch(t *testing.T) {
	var released atomic.Int32
	block := make(chan struct{})
	f := &fakeFetcher{released: &released}
	p := newTestPipeline(f, time.Millisecond)
	defer p.Close()

	results := make(chan Request, 8)
	p.OnResult = func(r Request, _ *Image) { results <- r }

	// Prime frame 2, then let frame 1's fetch start and block.
	p.Request(req(2))
	waitForResult(t, results)

	f.mu.Lock()
	f.block = block
	f.mu.Unlock()
	p.Request(req(1))
	deadline := time.Now().Add(2 * time.Second)
	for f.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Hit on frame 2 while frame 1 is in flight, then let frame 1 complete.
	p.Request(req(2))
	got := waitForResult(t, results)
	assert.Equal(t, 2, got.FrameIndex)
	close(block)

	assert.Eventually(t, func() bool { return released.Load() >= 1 },
		2*time.Second, 5*time.Millisecond, "superseded in-flight image never released")
	_, ok := p.cache.Get(req(1).CacheKey())
	assert.False(t, ok, "stale completion must not be cached")
	select {
	case r := <-results:
		t.Fatalf("displayed frame %d after the input set moved on", r.FrameIndex)
	default:
	}
}

func TestPipelineStaleResultDiscarded(t *testing.T) {
	var released atomic.Int32
	block := make(chan struct{})
	f := &fakeFetcher{released: &released, block: block}
	p := newTestPipeline(f, time.Millisecond)
	defer p.Close()

	results := make(chan Request, 8)
	p.OnResult = func(r Request, _ *Image) { results <- r }

	p.Request(req(1))
	// Let the first fetch start and block inside the backend call.
	deadline := time.Now().Add(2 * time.Second)
	for f.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	// A newer request supersedes it, then the old fetch completes.
	p.Request(req(2))
	close(block)

	got := waitForResult(t, results)
	assert.Equal(t, 2, got.FrameIndex)

	// The superseded image must be released, not cached or displayed.
	assert.Eventually(t, func() bool { return released.Load() >= 1 },
		2*time.Second, 5*time.Millisecond, "stale image never released")
	_, ok := p.cache.Get(req(1).CacheKey())
	assert.False(t, ok)
}

func TestPipelineFetchErrorKeepsLastGood(t *testing.T) {
	f := &fakeFetcher{}
	p := newTestPipeline(f, time.Millisecond)
	defer p.Close()

	results := make(chan Request, 8)
	errs := make(chan error, 8)
	p.OnResult = func(r Request, _ *Image) { results <- r }
	p.OnError = func(_ Request, err error) { errs <- err }

	p.Request(req(1))
	waitForResult(t, results)
	assert.Equal(t, 1, p.CacheLen())

	f.mu.Lock()
	f.err = errors.New("backend unreachable")
	f.mu.Unlock()

	p.Request(req(2))
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch error never reported")
	}

	assert.False(t, p.Loading(), "error must clear the loading flag")
	assert.Equal(t, 1, p.CacheLen(), "last-good preview must survive the failure")
	_, ok := p.cache.Get(req(1).CacheKey())
	assert.True(t, ok)
}

func TestPipelineCloseReleasesCache(t *testing.T) {
	var released atomic.Int32
	f := &fakeFetcher{released: &released}
	p := newTestPipeline(f, time.Millisecond)

	results := make(chan Request, 8)
	p.OnResult = func(r Request, _ *Image) { results <- r }

	p.Request(req(1))
	waitForResult(t, results)

	p.Close()
	assert.Equal(t, 0, p.CacheLen())
	assert.Equal(t, int32(1), released.Load())

	// Requests after close are ignored.
	p.Request(req(2))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.callCount())
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	base := req(1)

	changedFrame := base
	changedFrame.FrameIndex = 2

	changedParams := base
	changedParams.Params.Strength = 99

	changedText := base
	changedText.ActiveText = "hello"

	keys := map[string]bool{
		base.CacheKey():          true,
		changedFrame.CacheKey():  true,
		changedParams.CacheKey(): true,
		changedText.CacheKey():   true,
	}
	assert.Len(t, keys, 4, "every input change must produce a distinct key")

	assert.Equal(t, base.CacheKey(), req(1).CacheKey(), "equal inputs must share a key")
}

func TestCacheKeyEmptyTextSentinel(t *testing.T) {
	r := req(1)
	assert.Contains(t, r.CacheKey(), NoActiveTextSentinel)
}
