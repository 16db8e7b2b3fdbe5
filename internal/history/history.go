// Package history implements bounded snapshot-based undo/redo over the
// annotation collection.
package history

import "github.com/Dezexus/subvision/pkg/models"

// MaxDepth caps both the undo and redo stacks; the oldest entry drops first.
const MaxDepth = 50

type snapshot struct {
	items []models.Annotation
	rev   uint64
}

// History holds the past/future snapshot stacks. Pushing a snapshot clears
// the future stack; only Undo and Redo move entries between the two.
//
// Snapshots carry the store revision at capture time, which stands in for
// reference identity: a repeated Snapshot call with an unchanged revision
// (e.g. duplicate focus events) is a no-op, so a burst of them still undoes
// as a single unit.
type History struct {
	past    []snapshot
	future  []snapshot
	lastRev uint64
	primed  bool
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// Snapshot records the current collection before a mutation. No-op when rev
// equals the revision recorded by the previous push.
func (h *History) Snapshot(current []models.Annotation, rev uint64) {
	if h.primed && rev == h.lastRev {
		return
	}
	h.past = append(h.past, snapshot{items: models.CloneAnnotations(current), rev: rev})
	if len(h.past) > MaxDepth {
		h.past = h.past[1:]
	}
	h.future = h.future[:0]
	h.lastRev = rev
	h.primed = true
}

// Undo pops the most recent past snapshot, pushing the current collection
// onto the future stack. Returns the restored collection, or ok=false when
// there is nothing to undo.
func (h *History) Undo(current []models.Annotation, rev uint64) ([]models.Annotation, bool) {
	if len(h.past) == 0 {
		return nil, false
	}
	top := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]

	h.future = append(h.future, snapshot{items: models.CloneAnnotations(current), rev: rev})
	if len(h.future) > MaxDepth {
		h.future = h.future[1:]
	}
	return models.CloneAnnotations(top.items), true
}

// Redo is the symmetric inverse of Undo.
func (h *History) Redo(current []models.Annotation, rev uint64) ([]models.Annotation, bool) {
	if len(h.future) == 0 {
		return nil, false
	}
	top := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]

	h.past = append(h.past, snapshot{items: models.CloneAnnotations(current), rev: rev})
	if len(h.past) > MaxDepth {
		h.past = h.past[1:]
	}
	return models.CloneAnnotations(top.items), true
}

// CanUndo reports whether the past stack is non-empty.
func (h *History) CanUndo() bool { return len(h.past) > 0 }

// CanRedo reports whether the future stack is non-empty.
func (h *History) CanRedo() bool { return len(h.future) > 0 }

// Depths returns the current stack sizes, for diagnostics.
func (h *History) Depths() (past, future int) {
	return len(h.past), len(h.future)
}
