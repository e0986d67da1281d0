package pdfengine

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzEngine opens documents with go-fitz (requires CGo and MuPDF). It is a
// render-only backend: rasterization, text extraction and metadata work,
// everything that mutates or writes the document returns ErrUnsupported.
type FitzEngine struct {
}

// NewFitzEngine creates a new Fitz-based PDF engine
func NewFitzEngine() (*FitzEngine, error) {
	return &FitzEngine{}, nil
}

// Open opens a PDF document using go-fitz
func (e *FitzEngine) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

// Close cleans up resources (no-op for Fitz, documents hold their own state)
func (e *FitzEngine) Close() error {
	return nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) Metadata() map[string]string {
	return d.doc.Metadata()
}

func (d *fitzDocument) RenderPage(index int, zoom float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(index, zoomToDPI(zoom))
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}
	return img, nil
}

func (d *fitzDocument) Text(index int, format TextFormat) (string, error) {
	switch format {
	case TextPlain:
		return d.doc.Text(index)
	case TextHTML:
		return d.doc.HTML(index, true)
	default:
		return "", fmt.Errorf("text format %q: %w", format, ErrUnsupported)
	}
}

func (d *fitzDocument) Search(index int, query string, wantQuads bool) ([]Match, error) {
	return nil, fmt.Errorf("search: %w", ErrUnsupported)
}

func (d *fitzDocument) PageImages(index int) ([]ImageRef, error) {
	return nil, fmt.Errorf("page images: %w", ErrUnsupported)
}

func (d *fitzDocument) ExtractImage(pageIndex, object int) (*EmbeddedImage, error) {
	return nil, fmt.Errorf("extract image: %w", ErrUnsupported)
}

func (d *fitzDocument) DeletePage(index int) error {
	return fmt.Errorf("delete page: %w", ErrUnsupported)
}

func (d *fitzDocument) DeletePageRange(from, to int) error {
	return fmt.Errorf("delete page range: %w", ErrUnsupported)
}

func (d *fitzDocument) MovePage(from, to int) error {
	return fmt.Errorf("move page: %w", ErrUnsupported)
}

func (d *fitzDocument) CopyPage(index, to int) error {
	return fmt.Errorf("copy page: %w", ErrUnsupported)
}

func (d *fitzDocument) SelectPages(pages []int) error {
	return fmt.Errorf("select pages: %w", ErrUnsupported)
}

func (d *fitzDocument) InsertPage(position int, width, height float64) error {
	return fmt.Errorf("insert page: %w", ErrUnsupported)
}

func (d *fitzDocument) Save(path string, opts SaveOptions) error {
	return fmt.Errorf("save: %w", ErrUnsupported)
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
