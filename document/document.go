// Package document wraps an open PDF engine handle together with the page
// image cache. It is the single owner of the handle: every render consults
// the cache first, and every structural mutation invalidates the entries it
// makes stale before the caller can observe them.
package document

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/drummonds/goPDFView/cache"
	"github.com/drummonds/goPDFView/pdfengine"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// Resource is a loaded PDF document. The engine handle underneath is not
// re-entrant safe, so a resource-level mutex serializes every engine call;
// the cache has its own lock and is consulted inside the same critical
// section so a mutation can never interleave with a render on stale page
// numbering.
type Resource struct {
	mu     sync.Mutex
	engine pdfengine.Engine
	doc    pdfengine.Document
	path   string
	cache  *cache.PageCache
}

// New returns an unloaded resource with a default-sized page cache.
func New(engine pdfengine.Engine) *Resource {
	return NewWithCacheSize(engine, cache.DefaultMaxSize)
}

// NewWithCacheSize returns an unloaded resource whose cache holds at most
// cacheSize rendered pages.
func NewWithCacheSize(engine pdfengine.Engine, cacheSize int) *Resource {
	return &Resource{
		engine: engine,
		cache:  cache.New(cacheSize),
	}
}

// Open loads the document at path, replacing any document already open on
// this resource. The cache is cleared so no entry from the previous
// document can leak into the new page numbering.
func (r *Resource) Open(path string) error {
	doc, err := r.engine.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc != nil {
		if closeErr := r.doc.Close(); closeErr != nil {
			Logger.Warn("Failed closing previous document", "path", r.path, "error", closeErr)
		}
	}
	r.doc = doc
	r.path = path
	r.cache.Clear()
	Logger.Info("Document opened", "path", path, "pages", doc.PageCount())
	return nil
}

// Close releases the handle and empties the cache. Closing an already
// closed resource is a no-op.
func (r *Resource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil
	}
	err := r.doc.Close()
	r.doc = nil
	r.path = ""
	r.cache.Clear()
	return err
}

// IsLoaded reports whether a document is currently open.
func (r *Resource) IsLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc != nil
}

// Path returns the originating file path, or "" when unloaded.
func (r *Resource) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// PageCount returns the number of pages, or 0 when unloaded.
func (r *Resource) PageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return 0
	}
	return r.doc.PageCount()
}

// Metadata returns the document information dictionary, or an empty map
// when unloaded.
func (r *Resource) Metadata() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return map[string]string{}
	}
	return r.doc.Metadata()
}

// RenderPage returns the page image at the given zoom, from the cache when
// possible. An out-of-range page returns (nil, nil): render requests are
// probed speculatively by viewers racing document teardown, so a bad index
// is an absent result, not an error. Rasterization cost scales with zoom²,
// which makes the cache hit the primary latency control on this path.
func (r *Resource) RenderPage(page int, zoom float64) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil, ErrNoDocument
	}
	if page < 0 || page >= r.doc.PageCount() {
		return nil, nil
	}

	if img, ok := r.cache.Get(page, zoom); ok {
		return img, nil
	}

	img, err := r.doc.RenderPage(page, zoom)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	r.cache.Add(page, zoom, img)
	return img, nil
}

// DeletePage removes one page and drops its cache entries at every zoom.
func (r *Resource) DeletePage(page int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return ErrNoDocument
	}
	if page < 0 || page >= r.doc.PageCount() {
		return ErrPageOutOfRange
	}
	if err := r.doc.DeletePage(page); err != nil {
		return fmt.Errorf("delete page %d: %w", page, err)
	}
	r.cache.RemovePage(page)
	return nil
}

// DeletePageRange removes pages from..to inclusive and invalidates each
// removed index.
func (r *Resource) DeletePageRange(from, to int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return ErrNoDocument
	}
	if from < 0 || from > to || to >= r.doc.PageCount() {
		return ErrPageOutOfRange
	}
	if err := r.doc.DeletePageRange(from, to); err != nil {
		return fmt.Errorf("delete pages %d-%d: %w", from, to, err)
	}
	for page := from; page <= to; page++ {
		r.cache.RemovePage(page)
	}
	return nil
}

// MovePage relocates a page, invalidating the source and destination
// positions. Those are the two spots whose rendered content changed.
func (r *Resource) MovePage(from, to int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return ErrNoDocument
	}
	count := r.doc.PageCount()
	if from < 0 || from >= count || to < 0 || to >= count {
		return ErrPageOutOfRange
	}
	if err := r.doc.MovePage(from, to); err != nil {
		return fmt.Errorf("move page %d to %d: %w", from, to, err)
	}
	r.cache.RemovePage(from)
	r.cache.RemovePage(to)
	return nil
}

// CopyPage duplicates a page; a negative destination appends at the end.
// Page numbering after the insertion point shifts, so the whole cache is
// cleared rather than tracking the renumbering.
func (r *Resource) CopyPage(page, to int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return ErrNoDocument
	}
	if page < 0 || page >= r.doc.PageCount() {
		return ErrPageOutOfRange
	}
	if err := r.doc.CopyPage(page, to); err != nil {
		return fmt.Errorf("copy page %d: %w", page, err)
	}
	r.cache.Clear()
	return nil
}

// SelectPages keeps only the listed pages, in the given order. The whole
// cache is cleared since the operation renumbers everything.
func (r *Resource) SelectPages(pages []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return ErrNoDocument
	}
	count := r.doc.PageCount()
	for _, page := range pages {
		if page < 0 || page >= count {
			return ErrInvalidSelection
		}
	}
	if err := r.doc.SelectPages(pages); err != nil {
		return fmt.Errorf("select pages: %w", err)
	}
	r.cache.Clear()
	return nil
}

// InsertPage creates a blank page. When inserted at a specific position the
// cache entry at that position is invalidated; entries for pages shifted
// above it go stale until evicted, the same accepted gap the viewer has
// always had.
func (r *Resource) InsertPage(position int, width, height float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return ErrNoDocument
	}
	if position > r.doc.PageCount() {
		return ErrPageOutOfRange
	}
	if err := r.doc.InsertPage(position, width, height); err != nil {
		return fmt.Errorf("insert page at %d: %w", position, err)
	}
	if position >= 0 {
		r.cache.RemovePage(position)
	}
	return nil
}

// Save writes the document to path. Saving onto the originating file is
// forced into incremental mode, which preserves unreferenced structure;
// saving elsewhere may apply the full optimization options.
func (r *Resource) Save(path string, opts pdfengine.SaveOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return ErrNoDocument
	}
	opts.Incremental = path == r.path
	if err := r.doc.Save(path, opts); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSaveFailed, path, err)
	}
	return nil
}

// SearchPage finds occurrences of query on a page. Unloaded resources and
// out-of-range pages return no matches.
func (r *Resource) SearchPage(page int, query string, wantQuads bool) ([]pdfengine.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil, nil
	}
	if page < 0 || page >= r.doc.PageCount() {
		return nil, nil
	}
	matches, err := r.doc.Search(page, query, wantQuads)
	if err != nil {
		return nil, fmt.Errorf("search page %d: %w", page, err)
	}
	return matches, nil
}

// PageImages lists the embedded images on a page. Unloaded resources and
// out-of-range pages return an empty list.
func (r *Resource) PageImages(page int) ([]pdfengine.ImageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil, nil
	}
	if page < 0 || page >= r.doc.PageCount() {
		return nil, nil
	}
	refs, err := r.doc.PageImages(page)
	if err != nil {
		return nil, fmt.Errorf("list images on page %d: %w", page, err)
	}
	return refs, nil
}

// ExtractImage pulls one embedded image payload. Returns nil when unloaded.
func (r *Resource) ExtractImage(page, object int) (*pdfengine.EmbeddedImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil, nil
	}
	extracted, err := r.doc.ExtractImage(page, object)
	if err != nil {
		return nil, fmt.Errorf("extract image %d on page %d: %w", object, page, err)
	}
	return extracted, nil
}

// CacheStats returns a diagnostic snapshot of the page cache.
func (r *Resource) CacheStats() cache.Stats {
	return r.cache.Stats()
}
