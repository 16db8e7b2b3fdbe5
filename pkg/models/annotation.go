package models

// MinAnnotationDuration is the smallest span, in seconds, an annotation may
// be shrunk to by any edit.
const MinAnnotationDuration = 0.1

// Annotation is a single time-coded subtitle item. The annotation collection
// owned by an editor session is the single source of truth; everything else
// (lanes, previews) is derived from it.
type Annotation struct {
	ID         int64   `json:"id" db:"id"`
	Start      float64 `json:"start" db:"start_sec"`
	End        float64 `json:"end" db:"end_sec"`
	Text       string  `json:"text" db:"text"`
	Confidence float64 `json:"confidence" db:"confidence"`
	Edited     bool    `json:"edited" db:"edited"`
}

// Duration returns the annotation's span in seconds.
func (a Annotation) Duration() float64 {
	return a.End - a.Start
}

// Covers reports whether t (seconds) falls inside [Start, End).
func (a Annotation) Covers(t float64) bool {
	return t >= a.Start && t < a.End
}

// LanedAnnotation is an annotation plus its derived display lane. Lanes are
// recomputed from the collection on every timing change and never persisted.
type LanedAnnotation struct {
	Annotation
	Lane int `json:"lane"`
}

// CloneAnnotations deep-copies a collection. History snapshots and store
// reads hand out clones so callers can never alias the live collection.
func CloneAnnotations(items []Annotation) []Annotation {
	if items == nil {
		return nil
	}
	out := make([]Annotation, len(items))
	copy(out, items)
	return out
}
