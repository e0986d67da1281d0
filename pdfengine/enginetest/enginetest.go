// Package enginetest provides an in-memory Engine implementation for tests.
// It tracks render and save calls so tests can assert that the page cache
// actually prevented re-rasterization.
package enginetest

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/drummonds/goPDFView/pdfengine"
)

// Page is the test stand-in for a PDF page.
type Page struct {
	Width  float64
	Height float64
	Text   string
	Images []pdfengine.ImageRef
}

// Engine hands out Document fakes. Paths registered via AddDocument open
// successfully; everything else fails like a corrupt file would.
type Engine struct {
	mu     sync.Mutex
	docs   map[string][]Page
	opened []*Document
	closed bool
}

// NewEngine returns an empty fake engine.
func NewEngine() *Engine {
	return &Engine{docs: make(map[string][]Page)}
}

// AddDocument registers a document that Open will serve for path.
func (e *Engine) AddDocument(path string, pages ...Page) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[path] = pages
}

// AddTextDocument registers a document whose pages carry the given texts.
func (e *Engine) AddTextDocument(path string, pageTexts ...string) {
	pages := make([]Page, len(pageTexts))
	for i, text := range pageTexts {
		pages[i] = Page{Width: 595, Height: 842, Text: text}
	}
	e.AddDocument(path, pages...)
}

func (e *Engine) Open(path string) (pdfengine.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pages, ok := e.docs[path]
	if !ok {
		return nil, fmt.Errorf("cannot open broken document: %s", path)
	}
	doc := &Document{
		Pages:       append([]Page(nil), pages...),
		RenderCalls: make(map[int]int),
	}
	e.opened = append(e.opened, doc)
	return doc, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// OpenedDocuments returns every Document this engine has handed out,
// in open order.
func (e *Engine) OpenedDocuments() []*Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Document(nil), e.opened...)
}

// Document is the fake engine handle. Mutations reshape the Pages slice
// the same way the real engine renumbers pages.
type Document struct {
	mu    sync.Mutex
	Pages []Page

	// RenderCalls counts rasterizations per page index.
	RenderCalls map[int]int
	// RenderErr, when set, fails every render.
	RenderErr error

	SavedPath string
	SavedOpts pdfengine.SaveOptions
	SaveErr   error

	Closed bool
}

func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Pages)
}

func (d *Document) Metadata() map[string]string {
	return map[string]string{"producer": "enginetest"}
}

// RenderPage returns a fresh 1x1 image per call so tests can tell cached
// results apart from re-renders by pointer identity.
func (d *Document) RenderPage(index int, zoom float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.RenderErr != nil {
		return nil, d.RenderErr
	}
	if index < 0 || index >= len(d.Pages) {
		return nil, errors.New("render index out of range")
	}
	d.RenderCalls[index]++
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (d *Document) Text(index int, format pdfengine.TextFormat) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.Pages) {
		return "", errors.New("text index out of range")
	}
	return d.Pages[index].Text, nil
}

func (d *Document) Search(index int, query string, wantQuads bool) ([]pdfengine.Match, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.Pages) {
		return nil, errors.New("search index out of range")
	}
	if !strings.Contains(strings.ToLower(d.Pages[index].Text), strings.ToLower(query)) {
		return nil, nil
	}
	match := pdfengine.Match{Rect: pdfengine.Rect{X0: 10, Y0: 10, X1: 60, Y1: 22}}
	if wantQuads {
		match.Quad = &pdfengine.Quad{
			UL: pdfengine.Point{X: 10, Y: 10},
			UR: pdfengine.Point{X: 60, Y: 10},
			LL: pdfengine.Point{X: 10, Y: 22},
			LR: pdfengine.Point{X: 60, Y: 22},
		}
	}
	return []pdfengine.Match{match}, nil
}

func (d *Document) PageImages(index int) ([]pdfengine.ImageRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.Pages) {
		return nil, errors.New("page images index out of range")
	}
	return append([]pdfengine.ImageRef(nil), d.Pages[index].Images...), nil
}

func (d *Document) ExtractImage(pageIndex, object int) (*pdfengine.EmbeddedImage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pageIndex < 0 || pageIndex >= len(d.Pages) {
		return nil, errors.New("extract index out of range")
	}
	for _, ref := range d.Pages[pageIndex].Images {
		if ref.Object == object {
			return &pdfengine.EmbeddedImage{
				Format: "png",
				Data:   []byte{0x89, 0x50, 0x4E, 0x47},
				Width:  ref.Width,
				Height: ref.Height,
			}, nil
		}
	}
	return nil, errors.New("no image at object index")
}

func (d *Document) DeletePage(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.Pages) {
		return errors.New("delete index out of range")
	}
	d.Pages = append(d.Pages[:index], d.Pages[index+1:]...)
	return nil
}

func (d *Document) DeletePageRange(from, to int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if from < 0 || to >= len(d.Pages) || from > to {
		return errors.New("delete range out of range")
	}
	d.Pages = append(d.Pages[:from], d.Pages[to+1:]...)
	return nil
}

func (d *Document) MovePage(from, to int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if from < 0 || from >= len(d.Pages) || to < 0 || to >= len(d.Pages) {
		return errors.New("move index out of range")
	}
	page := d.Pages[from]
	rest := append(d.Pages[:from:from], d.Pages[from+1:]...)
	d.Pages = append(rest[:to:to], append([]Page{page}, rest[to:]...)...)
	return nil
}

func (d *Document) CopyPage(index, to int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.Pages) {
		return errors.New("copy index out of range")
	}
	if to < 0 {
		to = len(d.Pages)
	}
	page := d.Pages[index]
	d.Pages = append(d.Pages[:to:to], append([]Page{page}, d.Pages[to:]...)...)
	return nil
}

func (d *Document) SelectPages(pages []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	selected := make([]Page, 0, len(pages))
	for _, page := range pages {
		if page < 0 || page >= len(d.Pages) {
			return errors.New("select index out of range")
		}
		selected = append(selected, d.Pages[page])
	}
	d.Pages = selected
	return nil
}

func (d *Document) InsertPage(position int, width, height float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if position < 0 {
		position = len(d.Pages)
	}
	page := Page{Width: width, Height: height}
	d.Pages = append(d.Pages[:position:position], append([]Page{page}, d.Pages[position:]...)...)
	return nil
}

func (d *Document) Save(path string, opts pdfengine.SaveOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SaveErr != nil {
		return d.SaveErr
	}
	d.SavedPath = path
	d.SavedOpts = opts
	return nil
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// Renders returns the number of rasterizations recorded for a page.
func (d *Document) Renders(page int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.RenderCalls[page]
}
