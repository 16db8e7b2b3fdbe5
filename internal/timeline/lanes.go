package timeline

import (
	"sort"

	"github.com/Dezexus/subvision/pkg/models"
)

// PackLanes assigns non-overlapping display lanes to the annotation
// collection. Annotations are considered in start order (stable, so ties keep
// collection order) and each one takes the lowest-indexed lane that is free at
// its start time, opening a new lane when none is.
//
// Two annotations on the same lane never have overlapping [start, end)
// intervals. The input is not modified; results come back in the input's
// order.
func PackLanes(items []models.Annotation) []models.LanedAnnotation {
	if len(items) == 0 {
		return nil
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return items[order[a]].Start < items[order[b]].Start
	})

	lanes := make(map[int64]int, len(items))
	var laneEnds []float64
	for _, idx := range order {
		a := items[idx]
		assigned := -1
		for lane, end := range laneEnds {
			if end <= a.Start {
				assigned = lane
				break
			}
		}
		if assigned < 0 {
			laneEnds = append(laneEnds, a.End)
			assigned = len(laneEnds) - 1
		} else {
			laneEnds[assigned] = a.End
		}
		lanes[a.ID] = assigned
	}

	out := make([]models.LanedAnnotation, len(items))
	for i, a := range items {
		out[i] = models.LanedAnnotation{Annotation: a, Lane: lanes[a.ID]}
	}
	return out
}

// LaneCount returns the number of lanes a packed layout occupies.
func LaneCount(laned []models.LanedAnnotation) int {
	max := -1
	for _, la := range laned {
		if la.Lane > max {
			max = la.Lane
		}
	}
	return max + 1
}
