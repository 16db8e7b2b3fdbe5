// Package preview implements the debounced, LRU-cached preview fetch
// pipeline between the editor session and the rendering backend.
package preview

import "sync"

// Image is a rendered preview resource. Ownership is exclusive: it belongs
// to whichever component holds it until transferred to the cache, and is
// released exactly once, on eviction, invalidation, or stale-response
// discard.
type Image struct {
	Bytes       []byte
	ContentType string

	once      sync.Once
	onRelease func()
}

// NewImage wraps fetched bytes. onRelease, if non-nil, runs when the image
// is released (tests use it to count releases).
func NewImage(data []byte, contentType string, onRelease func()) *Image {
	return &Image{Bytes: data, ContentType: contentType, onRelease: onRelease}
}

// Release frees the resource. Safe to call more than once; only the first
// call has effect.
func (img *Image) Release() {
	if img == nil {
		return
	}
	img.once.Do(func() {
		img.Bytes = nil
		if img.onRelease != nil {
			img.onRelease()
		}
	})
}
