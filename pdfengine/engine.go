// Package pdfengine wraps the external PDF engines behind a narrow
// interface. The rest of the application never touches an engine type
// directly; it opens documents through an Engine and talks to the returned
// Document handle.
package pdfengine

import (
	"errors"
	"image"
)

// ErrUnsupported is returned by a backend for operations it cannot perform.
// The fitz backend is render-only; the pdfium backend covers the full
// surface.
var ErrUnsupported = errors.New("operation not supported by this renderer backend")

// TextFormat selects the representation returned by Document.Text.
type TextFormat string

const (
	TextPlain TextFormat = "text"
	TextHTML  TextFormat = "html"
)

// SaveOptions control how a document is written back to disk.
// Incremental saves append to the existing file and preserve unreferenced
// structure; it is forced when saving to the document's originating path.
// The optimization knobs apply only on a full rewrite and only where the
// backend supports them.
type SaveOptions struct {
	// GarbageLevel is the garbage collection aggressiveness, 0 (none) to 4
	// (merge duplicates and compress streams).
	GarbageLevel int
	// Deflate compresses uncompressed streams.
	Deflate bool
	// Clean sanitizes content streams.
	Clean bool
	// Incremental appends changes instead of rewriting the file.
	Incremental bool
}

// Point is a coordinate in page space (points, origin top-left).
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned region in page space.
type Rect struct {
	X0, Y0 float64
	X1, Y1 float64
}

// Quad is a four-corner region, for matches in rotated or sheared text.
type Quad struct {
	UL, UR, LL, LR Point
}

// Match is one occurrence found by Document.Search. Quad is only populated
// when quads were requested.
type Match struct {
	Rect Rect
	Quad *Quad
}

// ImageRef identifies an embedded image on a page. Images are addressed by
// their page object index, which is stable for the lifetime of the loaded
// page.
type ImageRef struct {
	Object int
	Width  int
	Height int
}

// EmbeddedImage is the extracted payload of an embedded image.
type EmbeddedImage struct {
	Format       string // "jpeg", "png" or "raw"
	Data         []byte
	Width        int
	Height       int
	BitsPerPixel int
}

// Document is a single open PDF. Handles are not safe for concurrent use;
// the caller serializes access.
type Document interface {
	// PageCount returns the number of pages.
	PageCount() int

	// Metadata returns the document information dictionary as a string map.
	Metadata() map[string]string

	// RenderPage rasterizes one page at the given zoom factor
	// (1.0 = native resolution at 72 DPI).
	RenderPage(index int, zoom float64) (image.Image, error)

	// Text extracts page text in the requested format.
	Text(index int, format TextFormat) (string, error)

	// Search finds occurrences of query on a page. With wantQuads the
	// corner points of each match are included.
	Search(index int, query string, wantQuads bool) ([]Match, error)

	// PageImages lists the embedded images on a page.
	PageImages(index int) ([]ImageRef, error)

	// ExtractImage pulls the payload of one embedded image, addressed by
	// page index and page object index.
	ExtractImage(pageIndex, object int) (*EmbeddedImage, error)

	DeletePage(index int) error
	DeletePageRange(from, to int) error
	MovePage(from, to int) error
	// CopyPage duplicates a page. A negative destination appends at the end.
	CopyPage(index, to int) error
	// SelectPages keeps only the listed pages, in the given order. Pages
	// may repeat.
	SelectPages(pages []int) error
	// InsertPage creates a blank page of the given size in points. A
	// negative position appends at the end.
	InsertPage(position int, width, height float64) error

	Save(path string, opts SaveOptions) error

	Close() error
}

// Engine opens PDF documents.
type Engine interface {
	Open(path string) (Document, error)

	// Close cleans up any resources used by the engine.
	Close() error
}

// NewEngine creates the default PDFium-based engine (pure Go, no CGo)
func NewEngine() (Engine, error) {
	return NewPDFiumEngine()
}

// zoomToDPI maps a zoom factor onto a DPI value. Zoom 1.0 is native
// resolution, which PDF defines as 72 points per inch.
func zoomToDPI(zoom float64) float64 {
	if zoom <= 0 {
		zoom = 1.0
	}
	return zoom * 72
}
