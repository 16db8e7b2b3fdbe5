package timeline

import (
	"math"

	"github.com/Dezexus/subvision/pkg/models"
)

// Edge identifies which annotation boundary a drag is editing.
type Edge int

const (
	EdgeStart Edge = iota
	EdgeEnd
)

// Drag is the boundary-drag state machine. The zero value is Idle; Begin
// moves it to Dragging and End returns it to Idle. It is a plain value, not a
// reference into the store: each Move computes the clamped boundary from the
// initial values captured at Begin plus the accumulated pointer delta, so
// intermediate updates never feed back into the math.
type Drag struct {
	active       bool
	annotationID int64
	edge         Edge
	initialStart float64
	initialEnd   float64
	initialX     float64
}

// DragUpdate is the result of one pointer move: the clamped boundary value to
// apply live to the annotation.
type DragUpdate struct {
	AnnotationID int64
	Edge         Edge
	Time         float64
	Frame        int
}

// Begin captures the annotation's current boundaries and the pointer origin.
func (d *Drag) Begin(a models.Annotation, edge Edge, pointerX float64) {
	*d = Drag{
		active:       true,
		annotationID: a.ID,
		edge:         edge,
		initialStart: a.Start,
		initialEnd:   a.End,
		initialX:     pointerX,
	}
}

// Active reports whether a drag is in progress. While true, timeline clicks
// must not be interpreted as seeks.
func (d *Drag) Active() bool {
	return d.active
}

// Move converts the pointer position into a frame-quantized, collision-safe
// boundary edit. contentWidth is the rendered timeline width in pixels.
// All inputs clamp; Move never rejects.
func (d *Drag) Move(pointerX, contentWidth, totalDuration, fps float64, totalFrames int) (DragUpdate, bool) {
	if !d.active || contentWidth <= 0 || fps <= 0 {
		return DragUpdate{}, false
	}

	deltaTime := (pointerX - d.initialX) / contentWidth * totalDuration

	var candidate float64
	if d.edge == EdgeStart {
		candidate = d.initialStart + deltaTime
	} else {
		candidate = d.initialEnd + deltaTime
	}

	frame := int(math.Round(candidate * fps))
	if d.edge == EdgeStart {
		maxFrame := int(math.Floor((d.initialEnd - models.MinAnnotationDuration) * fps))
		frame = clampInt(frame, 0, maxFrame)
	} else {
		minFrame := int(math.Ceil((d.initialStart + models.MinAnnotationDuration) * fps))
		frame = clampInt(frame, minFrame, totalFrames)
	}

	return DragUpdate{
		AnnotationID: d.annotationID,
		Edge:         d.edge,
		Time:         float64(frame) / fps,
		Frame:        frame,
	}, true
}

// End returns the state machine to Idle.
func (d *Drag) End() {
	*d = Drag{}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
