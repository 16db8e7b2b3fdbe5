package preview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"

	"github.com/Dezexus/subvision/internal/metrics"
	"github.com/Dezexus/subvision/pkg/models"
)

// Default pipeline parameters.
const (
	DebounceDelay        = 500 * time.Millisecond
	EffectCacheCapacity  = 30
	FrameCacheCapacity   = 50
	NoActiveTextSentinel = "<none>"
)

// Request is the full input set that determines a preview's pixels. Any
// field change produces a different cache key and supersedes the pending
// request.
type Request struct {
	SourceID   string
	FrameIndex int
	Params     models.EffectParams
	ActiveText string
}

// CacheKey is a stable serialization of the request. An empty ActiveText is
// keyed under a placeholder so "no annotation at this frame" is itself a
// cacheable state.
func (r Request) CacheKey() string {
	text := r.ActiveText
	if text == "" {
		text = NoActiveTextSentinel
	}
	return fmt.Sprintf("%s|%d|%s:%d:%d:%d:%d,%d,%d,%d:%g|%s",
		r.SourceID, r.FrameIndex,
		r.Params.Mode, r.Params.Strength, r.Params.PaddingX, r.Params.PaddingY,
		r.Params.Region.X, r.Params.Region.Y, r.Params.Region.Width, r.Params.Region.Height,
		r.Params.ScaleFactor,
		text)
}

// FetchFunc retrieves a rendered preview from the backend. The returned
// image is owned by the caller until transferred to the cache.
type FetchFunc func(ctx context.Context, req Request) (*Image, error)

// Pipeline debounces preview requests, serves repeats from an LRU cache, and
// discards fetch completions that a newer request has superseded.
//
// Liveness: every Fetch call bumps a generation and cancels the in-flight
// context. A completion checks its captured generation under the lock before
// touching the cache; a stale one releases its image and writes nothing, so
// effectively-concurrent completions serialize into last-valid-write-wins.
type Pipeline struct {
	name  string
	cache *Cache
	deb   *Debouncer
	fetch FetchFunc
	log   zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	loading bool
	closed  bool

	// OnResult delivers a cache-owned image for the given request.
	OnResult func(req Request, img *Image)
	// OnError reports a failed fetch after the loading flag is cleared. The
	// last-good cached preview stays valid.
	OnError func(req Request, err error)
}

// NewPipeline creates a pipeline named for metrics ("effect", "frame") with
// the given cache capacity and debounce delay.
func NewPipeline(name string, capacity int, delay time.Duration, fetch FetchFunc, log zerolog.Logger) *Pipeline {
	p := &Pipeline{
		name:  name,
		cache: NewCache(capacity),
		deb:   NewDebouncer(delay),
		fetch: fetch,
		log:   log.With().Str("pipeline", name).Logger(),
	}
	p.cache.OnEvict = func(string) {
		metrics.PreviewCacheEvictions.WithLabelValues(name).Inc()
	}
	return p
}

// Request asks for a preview. A cache hit is served synchronously through
// OnResult and issues no fetch; either path supersedes any pending or
// in-flight request, so an older miss can never land after a newer hit. A
// miss schedules a debounced fetch for this input set.
func (p *Pipeline) Request(req Request) {
	key := req.CacheKey()
	if img, ok := p.cache.Get(key); ok {
		metrics.RecordCacheAccess(p.name, true)
		p.mu.Lock()
		p.gen++
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.loading = false
		p.mu.Unlock()
		p.deb.Cancel()
		if p.OnResult != nil {
			p.OnResult(req, img)
		}
		return
	}
	metrics.RecordCacheAccess(p.name, false)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.gen++
	gen := p.gen
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.loading = true
	p.mu.Unlock()

	p.deb.Schedule(func() { p.launch(req, key, gen) })
}

// Invalidate drops the cached entry for the given request and cancels any
// pending or in-flight fetch. Used when a mutation changes what the preview
// should show.
func (p *Pipeline) Invalidate(req Request) {
	p.cache.Remove(req.CacheKey())
	p.mu.Lock()
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.loading = false
	p.mu.Unlock()
	p.deb.Cancel()
}

// Loading reports whether a fetch is pending or in flight.
func (p *Pipeline) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// CacheLen returns the number of cached previews.
func (p *Pipeline) CacheLen() int {
	return p.cache.Len()
}

// Close cancels pending work and releases every cached resource.
func (p *Pipeline) Close() {
	p.deb.Cancel()
	p.mu.Lock()
	p.closed = true
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.cache.Purge()
}

func (p *Pipeline) launch(req Request, key string, gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.closed {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.resolve(ctx, req, key, gen)
}

func (p *Pipeline) resolve(ctx context.Context, req Request, key string, gen uint64) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "preview.fetch")
	span.SetTag("pipeline", p.name)
	span.SetTag("source_id", req.SourceID)
	span.SetTag("frame", req.FrameIndex)
	defer span.Finish()

	start := time.Now()
	img, err := p.fetch(ctx, req)
	metrics.RecordFetch(p.name, time.Since(start).Seconds(), err)

	p.mu.Lock()
	stale := gen != p.gen || p.closed
	if !stale {
		p.loading = false
		p.cancel = nil
	}
	p.mu.Unlock()

	if stale {
		// A newer request owns the pipeline now; this result must not be
		// displayed or cached.
		img.Release()
		metrics.PreviewStaleDiscards.WithLabelValues(p.name).Inc()
		return
	}

	if err != nil {
		// Non-fatal: keep the last-good preview.
		p.log.Warn().Err(err).Str("key", key).Msg("preview fetch failed")
		if p.OnError != nil {
			p.OnError(req, err)
		}
		return
	}

	p.cache.Add(key, img)
	if p.OnResult != nil {
		p.OnResult(req, img)
	}
}
