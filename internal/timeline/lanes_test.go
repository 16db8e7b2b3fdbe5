package timeline

import (
	"testing"

	"github.com/Dezexus/subvision/pkg/models"
)

func TestPackLanesReusesFreedLane(t *testing.T) {
	items := []models.Annotation{
		{ID: 1, Start: 0, End: 2},
		{ID: 2, Start: 1, End: 3},
		{ID: 3, Start: 2.5, End: 4},
	}

	laned := PackLanes(items)

	want := []int{0, 1, 0}
	for i, la := range laned {
		if la.Lane != want[i] {
			t.Errorf("annotation %d: expected lane %d, got %d", la.ID, want[i], la.Lane)
		}
	}
	if n := LaneCount(laned); n != 2 {
		t.Errorf("expected 2 lanes, got %d", n)
	}
}

func TestPackLanesEmpty(t *testing.T) {
	if laned := PackLanes(nil); laned != nil {
		t.Errorf("expected nil for empty input, got %v", laned)
	}
	if n := LaneCount(nil); n != 0 {
		t.Errorf("expected 0 lanes, got %d", n)
	}
}

func TestPackLanesSingle(t *testing.T) {
	laned := PackLanes([]models.Annotation{{ID: 7, Start: 1, End: 2}})
	if len(laned) != 1 || laned[0].Lane != 0 {
		t.Errorf("expected single annotation on lane 0, got %v", laned)
	}
}

func TestPackLanesAdjacentShareLane(t *testing.T) {
	// end == start is not an overlap
	items := []models.Annotation{
		{ID: 1, Start: 0, End: 1},
		{ID: 2, Start: 1, End: 2},
		{ID: 3, Start: 2, End: 3},
	}

	for _, la := range PackLanes(items) {
		if la.Lane != 0 {
			t.Errorf("annotation %d: adjacent annotations should share lane 0, got %d", la.ID, la.Lane)
		}
	}
}

func TestPackLanesPreservesInputOrder(t *testing.T) {
	items := []models.Annotation{
		{ID: 3, Start: 4, End: 5},
		{ID: 1, Start: 0, End: 2},
		{ID: 2, Start: 1, End: 3},
	}

	laned := PackLanes(items)
	for i := range items {
		if laned[i].ID != items[i].ID {
			t.Fatalf("position %d: expected ID %d, got %d", i, items[i].ID, laned[i].ID)
		}
	}
}

func TestPackLanesNoOverlapWithinLane(t *testing.T) {
	items := []models.Annotation{
		{ID: 1, Start: 0, End: 5},
		{ID: 2, Start: 1, End: 2},
		{ID: 3, Start: 2, End: 6},
		{ID: 4, Start: 3, End: 4},
		{ID: 5, Start: 4.5, End: 7},
		{ID: 6, Start: 6, End: 8},
		{ID: 7, Start: 0.5, End: 0.9},
	}

	laned := PackLanes(items)
	for i, a := range laned {
		for j, b := range laned {
			if i >= j || a.Lane != b.Lane {
				continue
			}
			if a.Start < b.End && b.Start < a.End {
				t.Errorf("annotations %d and %d overlap on lane %d", a.ID, b.ID, a.Lane)
			}
		}
	}
}
