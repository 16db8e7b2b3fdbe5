package timeline

import (
	"math"
	"testing"

	"github.com/Dezexus/subvision/pkg/models"
)

const (
	dragFPS      = 10.0
	dragDuration = 10.0
	dragFrames   = 100
	dragWidth    = 1000.0
)

// pointerFor converts a desired time delta into the pointer position that
// produces it at the test geometry.
func pointerFor(initialX, deltaTime float64) float64 {
	return initialX + deltaTime/dragDuration*dragWidth
}

func TestDragEndClampsToMinimumDuration(t *testing.T) {
	a := models.Annotation{ID: 1, Start: 1.0, End: 2.0}

	var d Drag
	d.Begin(a, EdgeEnd, 500)

	// Pull the end toward 1.05s: below the 0.1s minimum gap, so it clamps
	// to the first frame at or after start+0.1.
	update, ok := d.Move(pointerFor(500, -0.95), dragWidth, dragDuration, dragFPS, dragFrames)
	if !ok {
		t.Fatal("expected an active drag to produce an update")
	}
	if update.Frame != 11 {
		t.Errorf("expected frame 11, got %d", update.Frame)
	}
	if math.Abs(update.Time-1.1) > 1e-9 {
		t.Errorf("expected end clamped to 1.1, got %f", update.Time)
	}
}

func TestDragStartClampsAgainstEnd(t *testing.T) {
	a := models.Annotation{ID: 1, Start: 1.0, End: 2.0}

	var d Drag
	d.Begin(a, EdgeStart, 500)

	update, ok := d.Move(pointerFor(500, 5.0), dragWidth, dragDuration, dragFPS, dragFrames)
	if !ok {
		t.Fatal("expected an update")
	}
	// floor((2.0 - 0.1) * 10) = 19
	if update.Frame != 19 {
		t.Errorf("expected frame 19, got %d", update.Frame)
	}
	if math.Abs(update.Time-1.9) > 1e-9 {
		t.Errorf("expected start clamped to 1.9, got %f", update.Time)
	}
}

func TestDragStartClampsToZero(t *testing.T) {
	a := models.Annotation{ID: 1, Start: 0.5, End: 2.0}

	var d Drag
	d.Begin(a, EdgeStart, 500)

	update, _ := d.Move(pointerFor(500, -3.0), dragWidth, dragDuration, dragFPS, dragFrames)
	if update.Frame != 0 || update.Time != 0 {
		t.Errorf("expected start clamped to frame 0, got frame %d time %f", update.Frame, update.Time)
	}
}

func TestDragEndClampsToLastFrame(t *testing.T) {
	a := models.Annotation{ID: 1, Start: 8.0, End: 9.0}

	var d Drag
	d.Begin(a, EdgeEnd, 100)

	update, _ := d.Move(pointerFor(100, 50.0), dragWidth, dragDuration, dragFPS, dragFrames)
	if update.Frame != dragFrames {
		t.Errorf("expected end clamped to frame %d, got %d", dragFrames, update.Frame)
	}
}

func TestDragQuantizesToFrames(t *testing.T) {
	a := models.Annotation{ID: 1, Start: 1.0, End: 5.0}

	var d Drag
	d.Begin(a, EdgeEnd, 0)

	// 5.0 - 0.234 = 4.766s rounds to frame 48.
	update, _ := d.Move(pointerFor(0, -0.234), dragWidth, dragDuration, dragFPS, dragFrames)
	if update.Frame != 48 {
		t.Errorf("expected frame 48, got %d", update.Frame)
	}
	if math.Abs(update.Time-4.8) > 1e-9 {
		t.Errorf("expected time 4.8, got %f", update.Time)
	}
}

func TestDragMovesComputeFromInitialState(t *testing.T) {
	a := models.Annotation{ID: 1, Start: 1.0, End: 2.0}

	var d Drag
	d.Begin(a, EdgeEnd, 500)

	// Two moves to the same pointer position must agree regardless of what
	// happened in between.
	first, _ := d.Move(pointerFor(500, 0.5), dragWidth, dragDuration, dragFPS, dragFrames)
	d.Move(pointerFor(500, -0.9), dragWidth, dragDuration, dragFPS, dragFrames)
	second, _ := d.Move(pointerFor(500, 0.5), dragWidth, dragDuration, dragFPS, dragFrames)

	if first != second {
		t.Errorf("repeated move diverged: %+v vs %+v", first, second)
	}
}

func TestDragLifecycle(t *testing.T) {
	var d Drag
	if d.Active() {
		t.Fatal("zero value should be idle")
	}
	if _, ok := d.Move(100, dragWidth, dragDuration, dragFPS, dragFrames); ok {
		t.Fatal("idle drag should not produce updates")
	}

	d.Begin(models.Annotation{ID: 1, Start: 1, End: 2}, EdgeStart, 10)
	if !d.Active() {
		t.Fatal("expected drag active after Begin")
	}

	d.End()
	if d.Active() {
		t.Fatal("expected drag idle after End")
	}
	if _, ok := d.Move(100, dragWidth, dragDuration, dragFPS, dragFrames); ok {
		t.Fatal("ended drag should not produce updates")
	}
}
