package preview

import (
	"container/list"
	"sync"
)

// Cache is a bounded LRU over rendered preview images. The cache owns every
// image it holds: inserting transfers ownership, and eviction or removal
// releases the resource. Removal of an absent key is a no-op.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[string]*list.Element

	// OnEvict is invoked (after release) for every evicted or removed key.
	OnEvict func(key string)
}

type cacheEntry struct {
	key string
	img *Image
}

// NewCache returns an LRU cache holding at most capacity images.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Get returns the cached image and moves it to the most-recently-used
// position. The image stays owned by the cache; callers must not release it.
func (c *Cache) Get(key string) (*Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).img, true
}

// Add inserts an image at the most-recently-used position, taking ownership.
// A previous image under the same key is released. When the cache is over
// capacity the least-recently-used entry is evicted and released before the
// insert completes.
func (c *Cache) Add(key string, img *Image) {
	c.mu.Lock()
	var evicted []string

	if el, ok := c.index[key]; ok {
		old := el.Value.(*cacheEntry)
		old.img.Release()
		old.img = img
		c.ll.MoveToFront(el)
	} else {
		for c.ll.Len() >= c.capacity {
			evicted = append(evicted, c.removeOldestLocked())
		}
		c.index[key] = c.ll.PushFront(&cacheEntry{key: key, img: img})
	}
	onEvict := c.OnEvict
	c.mu.Unlock()

	if onEvict != nil {
		for _, k := range evicted {
			onEvict(k)
		}
	}
}

// Remove releases and drops the entry for key. Idempotent.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	el, ok := c.index[key]
	if ok {
		entry := el.Value.(*cacheEntry)
		entry.img.Release()
		c.ll.Remove(el)
		delete(c.index, key)
	}
	onEvict := c.OnEvict
	c.mu.Unlock()

	if ok && onEvict != nil {
		onEvict(key)
	}
}

// Purge releases every entry. Used on session teardown.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.ll.Front(); el != nil; el = el.Next() {
		el.Value.(*cacheEntry).img.Release()
	}
	c.ll.Init()
	c.index = make(map[string]*list.Element, c.capacity)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) removeOldestLocked() string {
	el := c.ll.Back()
	entry := el.Value.(*cacheEntry)
	entry.img.Release()
	c.ll.Remove(el)
	delete(c.index, entry.key)
	return entry.key
}
