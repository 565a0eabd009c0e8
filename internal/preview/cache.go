package preview

import (
	"container/list"
	"sync"
)

// Rendered is the fully computed preview payload for one Target.
type Rendered struct {
	Lines     []string
	Syntax    string // chroma/tree-sitter lexer name, "" if unhighlighted
	Fname     string
	HiLine    int // 1-based line to highlight, 0 for none
	Scrollbar *Scrollbar
	Context   string // ctags-derived context header, "" if none
}

// Scrollbar describes a left-right preview split's scroll thumb as a
// (top offset, length) pair in display rows.
type Scrollbar struct {
	Top    int
	Length int
}

// Cache is an LRU cache of Rendered previews keyed by Target.CacheKey,
// the same container/list-based LRU shape as the fuzzy matcher's
// result cache, sized small since previews are large and the working
// set (the last few cursor positions) is tiny.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
}

type cacheEntry struct {
	key   string
	value Rendered
}

// NewCache creates an LRU cache holding at most maxSize entries.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 32
	}
	return &Cache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Get returns the cached Rendered for key, promoting it to
// most-recently-used.
func (c *Cache) Get(key string) (Rendered, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return Rendered{}, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).value, true
}

// Put inserts or updates key's cached Rendered, evicting the least
// recently used entry if the cache is at capacity.
func (c *Cache) Put(key string, value Rendered) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).value = value
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, value: value})
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Invalidate drops a single cached entry, used when the underlying
// file changes on disk.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.lru.Remove(elem)
		delete(c.items, key)
	}
}
