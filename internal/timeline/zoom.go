package timeline

import "github.com/Dezexus/subvision/pkg/models"

// ZoomPan manages the timeline magnification factor and scroll transform.
//
// Zoom changes are two-phase: ZoomBy commits the new zoom level and stages a
// scroll offset, but the offset only becomes current once the caller has
// re-laid-out the content at the new width and calls CommitScroll. Applying
// the offset against stale dimensions would break the anchor invariant.
type ZoomPan struct {
	Zoom   float64
	Scroll float64

	pendingScroll float64
	pending       bool
}

// NewZoomPan returns a controller at zoom 1, scrolled to the origin.
func NewZoomPan() *ZoomPan {
	return &ZoomPan{Zoom: models.MinZoomLevel}
}

// ZoomBy changes the zoom level by delta, keeping the content under screen
// position anchorX pinned. Returns false when the clamped level is unchanged
// and nothing was staged.
func (z *ZoomPan) ZoomBy(delta, anchorX float64) bool {
	newZoom := clampFloat(z.Zoom+delta, models.MinZoomLevel, models.MaxZoomLevel)
	if newZoom == z.Zoom {
		return false
	}

	absoluteAnchor := z.Scroll + anchorX
	newAbsoluteAnchor := absoluteAnchor * (newZoom / z.Zoom)

	z.Zoom = newZoom
	z.pendingScroll = newAbsoluteAnchor - anchorX
	z.pending = true
	return true
}

// CommitScroll applies the scroll offset staged by the last ZoomBy. Call it
// after the content has been re-rendered at the new zoom. No-op when nothing
// is pending.
func (z *ZoomPan) CommitScroll() {
	if !z.pending {
		return
	}
	z.Scroll = z.pendingScroll
	z.pending = false
}

// PendingScroll reports the staged offset, if any.
func (z *ZoomPan) PendingScroll() (float64, bool) {
	return z.pendingScroll, z.pending
}

// Pan applies a plain horizontal scroll delta. No anchor math; negative
// offsets clamp to the origin.
func (z *ZoomPan) Pan(delta float64) {
	z.Scroll += delta
	if z.Scroll < 0 {
		z.Scroll = 0
	}
}

// Reset returns the view to zoom 1 at the origin.
func (z *ZoomPan) Reset() {
	z.Zoom = models.MinZoomLevel
	z.Scroll = 0
	z.pending = false
}

// ContentWidth returns the rendered timeline width for a base (zoom 1) width.
func (z *ZoomPan) ContentWidth(baseWidth float64) float64 {
	return baseWidth * z.Zoom
}

// TimeAt converts a screen x position to a time value, given the base content
// width and total duration. Used by click-to-seek and by the anchor tests.
func (z *ZoomPan) TimeAt(screenX, baseWidth, totalDuration float64) float64 {
	width := z.ContentWidth(baseWidth)
	if width <= 0 {
		return 0
	}
	return (z.Scroll + screenX) / width * totalDuration
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
