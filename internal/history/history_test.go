package history

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dezexus/subvision/pkg/models"
)

func items(ids ...int64) []models.Annotation {
	out := make([]models.Annotation, len(ids))
	for i, id := range ids {
		out[i] = models.Annotation{ID: id, Start: float64(id), End: float64(id) + 1}
	}
	return out
}

func TestUndoRestoresSnapshot(t *testing.T) {
	h := New()

	before := items(1, 2)
	h.Snapshot(before, 1)

	after := items(1)
	restored, ok := h.Undo(after, 2)
	assert.True(t, ok)
	assert.Equal(t, before, restored)

	redone, ok := h.Redo(restored, 1)
	assert.True(t, ok)
	assert.Equal(t, after, redone)
}

func TestUndoEmpty(t *testing.T) {
	h := New()
	_, ok := h.Undo(items(1), 1)
	assert.False(t, ok)
	_, ok = h.Redo(items(1), 1)
	assert.False(t, ok)
}

func TestSnapshotDeduplicatesByRevision(t *testing.T) {
	h := New()

	current := items(1, 2, 3)
	// A burst of focus events snapshots the same revision repeatedly; it
	// must still undo as a single unit.
	h.Snapshot(current, 7)
	h.Snapshot(current, 7)
	h.Snapshot(current, 7)

	past, _ := h.Depths()
	assert.Equal(t, 1, past)

	h.Snapshot(current, 8)
	past, _ = h.Depths()
	assert.Equal(t, 2, past)
}

func TestSnapshotClearsRedo(t *testing.T) {
	h := New()

	h.Snapshot(items(1), 1)
	_, ok := h.Undo(items(1, 2), 2)
	assert.True(t, ok)
	assert.True(t, h.CanRedo())

	h.Snapshot(items(1), 3)
	assert.False(t, h.CanRedo())
}

func TestHistoryDepthIsBounded(t *testing.T) {
	h := New()

	for i := 0; i < MaxDepth+20; i++ {
		h.Snapshot(items(int64(i)), uint64(i+1))
	}

	past, _ := h.Depths()
	assert.Equal(t, MaxDepth, past)

	// The oldest snapshots dropped; undoing all the way lands on the
	// snapshot taken at iteration 20.
	current := items(999)
	var last []models.Annotation
	for h.CanUndo() {
		restored, ok := h.Undo(current, 0)
		assert.True(t, ok)
		current = restored
		last = restored
	}
	assert.Equal(t, items(20), last)
}

func TestSnapshotIsolatedFromCallerMutation(t *testing.T) {
	h := New()

	current := items(1)
	h.Snapshot(current, 1)
	current[0].Text = "mutated after snapshot"

	restored, ok := h.Undo(items(1), 2)
	assert.True(t, ok)
	assert.Equal(t, "", restored[0].Text)
}
