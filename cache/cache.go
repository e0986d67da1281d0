// Package cache provides a bounded, thread-safe LRU store for rendered page
// images, keyed by page index and zoom level. It sits between the document
// model and the PDF engine so that scrolling back to an already rendered page
// does not pay the rasterization cost again.
package cache

import (
	"container/list"
	"image"
	"math"
	"sort"
	"sync"
)

// DefaultMaxSize is the number of page images kept when no explicit
// capacity is given.
const DefaultMaxSize = 100

// ZoomPrecision is the number of decimal places zoom levels are rounded to
// before they become part of a cache key. UI zoom gestures produce values
// like 1.001 and 1.002 for what is visually the same zoom; without rounding
// every wiggle would create a distinct entry. Coarsen with care: the
// precision must stay finer than the UI's zoom step.
const ZoomPrecision = 2

var zoomScale = math.Pow(10, ZoomPrecision)

type key struct {
	page int
	zoom float64
}

type entry struct {
	key key
	img image.Image
}

// Stats is a read-only snapshot of the cache state, for diagnostics and
// tests. Callers must not use it for correctness decisions: it is stale the
// moment the lock is released.
type Stats struct {
	Size    int
	MaxSize int
	Pages   []int // distinct page indices present, sorted
}

// PageCache is an LRU cache of rendered page images. All operations are
// serialized by a single mutex; none of them blocks on I/O, so the lock is
// only ever held for map and list manipulation. Rasterization happens in the
// caller, outside the lock.
type PageCache struct {
	mu      sync.Mutex
	maxSize int
	ll      *list.List               // front = most recently used
	entries map[key]*list.Element
}

// New returns an empty cache holding at most maxSize images.
// A maxSize below 1 falls back to DefaultMaxSize.
func New(maxSize int) *PageCache {
	if maxSize < 1 {
		maxSize = DefaultMaxSize
	}
	return &PageCache{
		maxSize: maxSize,
		ll:      list.New(),
		entries: make(map[key]*list.Element, maxSize),
	}
}

func cacheKey(page int, zoom float64) key {
	return key{page: page, zoom: math.Round(zoom*zoomScale) / zoomScale}
}

// Get returns the cached image for (page, zoom) and marks it most recently
// used. The zoom is rounded to ZoomPrecision decimals before lookup. A miss
// has no side effects.
func (c *PageCache) Get(page int, zoom float64) (image.Image, bool) {
	k := cacheKey(page, zoom)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.entries[k]; ok {
		c.ll.MoveToFront(ele)
		return ele.Value.(*entry).img, true
	}
	return nil, false
}

// Add stores a rendered image for (page, zoom). If the key is already
// present the call is a no-op: the first image stored wins and recency is
// not refreshed. Two callers that both missed and rendered the same page
// may race here; dropping the second render is cheaper than coordinating
// the render step itself. At capacity the least recently used entry is
// evicted first.
func (c *PageCache) Add(page int, zoom float64, img image.Image) {
	k := cacheKey(page, zoom)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[k]; ok {
		return
	}
	if c.ll.Len() >= c.maxSize {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
	c.entries[k] = c.ll.PushFront(&entry{key: k, img: img})
}

// RemovePage drops every entry for the given page index, at any zoom level.
// Removing a page that has no entries is a no-op.
func (c *PageCache) RemovePage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var next *list.Element
	for ele := c.ll.Front(); ele != nil; ele = next {
		next = ele.Next()
		if ent := ele.Value.(*entry); ent.key.page == page {
			c.ll.Remove(ele)
			delete(c.entries, ent.key)
		}
	}
}

// Clear drops all entries.
func (c *PageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.entries = make(map[key]*list.Element, c.maxSize)
}

// Stats returns a snapshot of the cache state.
func (c *PageCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[int]struct{})
	for k := range c.entries {
		seen[k.page] = struct{}{}
	}
	pages := make([]int, 0, len(seen))
	for page := range seen {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return Stats{
		Size:    c.ll.Len(),
		MaxSize: c.maxSize,
		Pages:   pages,
	}
}
