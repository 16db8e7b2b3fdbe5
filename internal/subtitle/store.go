// Package subtitle owns the annotation collection and its derived views.
package subtitle

import (
	"sync"

	"github.com/Dezexus/subvision/internal/timeline"
	"github.com/Dezexus/subvision/pkg/models"
)

// Store is the observable container for the annotation collection. All reads
// hand out clones; all writes bump a monotonic revision and notify
// subscribers. The revision feeds the history manager's duplicate-snapshot
// guard.
type Store struct {
	mu     sync.RWMutex
	items  []models.Annotation
	rev    uint64
	nextID int64

	subMu sync.Mutex
	subs  map[int]func()
	subID int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{nextID: 1, subs: make(map[int]func())}
}

// Subscribe registers fn to run after every mutation. The returned func
// unsubscribes; both are safe to call concurrently.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.subID
	s.subID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Rev returns the current revision.
func (s *Store) Rev() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// All returns a clone of the collection in storage order.
func (s *Store) All() []models.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneAnnotations(s.items)
}

// Laned returns the collection with derived display lanes.
func (s *Store) Laned() []models.LanedAnnotation {
	s.mu.RLock()
	items := models.CloneAnnotations(s.items)
	s.mu.RUnlock()
	return timeline.PackLanes(items)
}

// Get returns the annotation with the given id.
func (s *Store) Get(id int64) (models.Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.items {
		if a.ID == id {
			return a, true
		}
	}
	return models.Annotation{}, false
}

// ActiveAt returns the first annotation covering time t (seconds).
func (s *Store) ActiveAt(t float64) (models.Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.items {
		if a.Covers(t) {
			return a, true
		}
	}
	return models.Annotation{}, false
}

// Add appends an annotation, assigning an ID when the caller left it zero.
func (s *Store) Add(a models.Annotation) models.Annotation {
	s.mu.Lock()
	if a.ID == 0 {
		a.ID = s.nextID
	}
	if a.ID >= s.nextID {
		s.nextID = a.ID + 1
	}
	s.items = append(s.items, a)
	s.rev++
	s.mu.Unlock()
	s.notify()
	return a
}

// Upsert replaces the annotation with a matching ID, or appends it. Used by
// extraction-job subtitle_new/subtitle_update events.
func (s *Store) Upsert(a models.Annotation) {
	s.mu.Lock()
	replaced := false
	for i := range s.items {
		if s.items[i].ID == a.ID {
			s.items[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		if a.ID >= s.nextID {
			s.nextID = a.ID + 1
		}
		s.items = append(s.items, a)
	}
	s.rev++
	s.mu.Unlock()
	s.notify()
}

// Delete removes the annotation with the given id. Idempotent.
func (s *Store) Delete(id int64) bool {
	s.mu.Lock()
	removed := false
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		s.rev++
	}
	s.mu.Unlock()
	if removed {
		s.notify()
	}
	return removed
}

// SetText replaces an annotation's text and marks it edited.
func (s *Store) SetText(id int64, text string) bool {
	s.mu.Lock()
	ok := false
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Text = text
			s.items[i].Edited = true
			s.rev++
			ok = true
			break
		}
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// SetBoundary applies a boundary-drag update. The drag controller has
// already quantized and clamped the value, so this only writes it through.
func (s *Store) SetBoundary(u timeline.DragUpdate) bool {
	s.mu.Lock()
	ok := false
	for i := range s.items {
		if s.items[i].ID == u.AnnotationID {
			if u.Edge == timeline.EdgeStart {
				s.items[i].Start = u.Time
			} else {
				s.items[i].End = u.Time
			}
			s.items[i].Edited = true
			s.rev++
			ok = true
			break
		}
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// Merge combines the annotation with id into its successor in storage order:
// the union of the two spans, texts joined with a space, confidence averaged,
// edited set. Returns the merged annotation.
func (s *Store) Merge(id int64) (models.Annotation, bool) {
	s.mu.Lock()
	idx := -1
	for i := range s.items {
		if s.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || idx+1 >= len(s.items) {
		s.mu.Unlock()
		return models.Annotation{}, false
	}

	a, b := s.items[idx], s.items[idx+1]
	merged := models.Annotation{
		ID:         a.ID,
		Start:      minFloat(a.Start, b.Start),
		End:        maxFloat(a.End, b.End),
		Text:       joinTexts(a.Text, b.Text),
		Confidence: (a.Confidence + b.Confidence) / 2,
		Edited:     true,
	}
	s.items[idx] = merged
	s.items = append(s.items[:idx+1], s.items[idx+2:]...)
	s.rev++
	s.mu.Unlock()
	s.notify()
	return merged, true
}

// Replace swaps in a whole new collection (undo/redo restore, SRT import).
func (s *Store) Replace(items []models.Annotation) {
	s.mu.Lock()
	s.items = models.CloneAnnotations(items)
	for _, a := range s.items {
		if a.ID >= s.nextID {
			s.nextID = a.ID + 1
		}
	}
	s.rev++
	s.mu.Unlock()
	s.notify()
}

// Len returns the collection size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func joinTexts(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
