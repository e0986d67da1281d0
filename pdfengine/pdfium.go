package pdfengine

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/enums"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PDFiumEngine opens documents with go-pdfium over WebAssembly (pure Go,
// no CGo). This is the full-surface backend: rendering, text, search,
// embedded images, page mutation and saving.
type PDFiumEngine struct {
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

// NewPDFiumEngine creates a new PDFium-based engine using WebAssembly
func NewPDFiumEngine() (*PDFiumEngine, error) {
	// Initialize WebAssembly pool with minimal configuration
	// For single-threaded usage, we keep it simple
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1, // Minimum idle workers
		MaxIdle:  1, // Maximum idle workers
		MaxTotal: 1, // Total worker limit
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	// Get a PDFium instance from the pool
	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	return &PDFiumEngine{
		pool:     pool,
		instance: instance,
	}, nil
}

// Open opens a PDF document from disk
func (e *PDFiumEngine) Open(path string) (Document, error) {
	doc, err := e.instance.OpenDocument(&requests.OpenDocument{
		FilePath: &path,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	return &pdfiumDocument{instance: e.instance, ref: doc.Document}, nil
}

// Close cleans up resources used by the PDFium engine
func (e *PDFiumEngine) Close() error {
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
	e.instance = nil
	return nil
}

type pdfiumDocument struct {
	instance pdfium.Pdfium
	ref      references.FPDF_DOCUMENT
}

func (d *pdfiumDocument) page(index int) requests.Page {
	return requests.Page{
		ByIndex: &requests.PageByIndex{
			Document: d.ref,
			Index:    index,
		},
	}
}

func (d *pdfiumDocument) PageCount() int {
	resp, err := d.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: d.ref,
	})
	if err != nil {
		return 0
	}
	return resp.PageCount
}

func (d *pdfiumDocument) Metadata() map[string]string {
	resp, err := d.instance.GetMetaData(&requests.GetMetaData{
		Document: d.ref,
	})
	if err != nil {
		return map[string]string{}
	}
	metadata := make(map[string]string, len(resp.Tags))
	for _, tag := range resp.Tags {
		metadata[tag.Tag] = tag.Value
	}
	return metadata
}

func (d *pdfiumDocument) RenderPage(index int, zoom float64) (image.Image, error) {
	pageRender, err := d.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI:  int(math.Round(zoomToDPI(zoom))),
		Page: d.page(index),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}
	img := pageRender.Result.Image

	// Release WebAssembly resources for this page render
	pageRender.Cleanup()

	return img, nil
}

func (d *pdfiumDocument) Text(index int, format TextFormat) (string, error) {
	if format != TextPlain {
		return "", fmt.Errorf("text format %q: %w", format, ErrUnsupported)
	}
	resp, err := d.instance.GetPageText(&requests.GetPageText{
		Page: d.page(index),
	})
	if err != nil {
		return "", fmt.Errorf("unable to extract text from page %d: %w", index, err)
	}
	return resp.Text, nil
}

func (d *pdfiumDocument) Search(index int, query string, wantQuads bool) ([]Match, error) {
	if query == "" {
		return nil, nil
	}
	resp, err := d.instance.GetPageTextStructured(&requests.GetPageTextStructured{
		Page: d.page(index),
		Mode: requests.GetPageTextStructuredModeRects,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get structured text for page %d: %w", index, err)
	}

	needle := strings.ToLower(query)
	var matches []Match
	for _, rect := range resp.Rects {
		if rect == nil || !strings.Contains(strings.ToLower(rect.Text), needle) {
			continue
		}
		match := Match{
			Rect: Rect{
				X0: rect.PointPosition.Left,
				Y0: rect.PointPosition.Top,
				X1: rect.PointPosition.Right,
				Y1: rect.PointPosition.Bottom,
			},
		}
		if wantQuads {
			match.Quad = &Quad{
				UL: Point{X: rect.PointPosition.Left, Y: rect.PointPosition.Top},
				UR: Point{X: rect.PointPosition.Right, Y: rect.PointPosition.Top},
				LL: Point{X: rect.PointPosition.Left, Y: rect.PointPosition.Bottom},
				LR: Point{X: rect.PointPosition.Right, Y: rect.PointPosition.Bottom},
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (d *pdfiumDocument) PageImages(index int) ([]ImageRef, error) {
	loaded, err := d.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: d.ref,
		Index:    index,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to load page %d: %w", index, err)
	}
	defer d.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: loaded.Page,
	})

	pageReq := requests.Page{ByReference: &loaded.Page}
	countResp, err := d.instance.FPDFPage_CountObjects(&requests.FPDFPage_CountObjects{
		Page: pageReq,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to count page objects on page %d: %w", index, err)
	}

	var refs []ImageRef
	for i := 0; i < countResp.Count; i++ {
		objResp, err := d.instance.FPDFPage_GetObject(&requests.FPDFPage_GetObject{
			Page:  pageReq,
			Index: i,
		})
		if err != nil {
			continue
		}
		typeResp, err := d.instance.FPDFPageObj_GetType(&requests.FPDFPageObj_GetType{
			PageObject: objResp.PageObject,
		})
		if err != nil || typeResp.Type != enums.FPDF_PAGEOBJ_IMAGE {
			continue
		}
		ref := ImageRef{Object: i}
		metaResp, err := d.instance.FPDFImageObj_GetImageMetadata(&requests.FPDFImageObj_GetImageMetadata{
			ImageObject: objResp.PageObject,
			Page:        pageReq,
		})
		if err == nil {
			ref.Width = int(metaResp.ImageMetadata.Width)
			ref.Height = int(metaResp.ImageMetadata.Height)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (d *pdfiumDocument) ExtractImage(pageIndex, object int) (*EmbeddedImage, error) {
	loaded, err := d.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: d.ref,
		Index:    pageIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to load page %d: %w", pageIndex, err)
	}
	defer d.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: loaded.Page,
	})

	pageReq := requests.Page{ByReference: &loaded.Page}
	objResp, err := d.instance.FPDFPage_GetObject(&requests.FPDFPage_GetObject{
		Page:  pageReq,
		Index: object,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get page object %d on page %d: %w", object, pageIndex, err)
	}
	typeResp, err := d.instance.FPDFPageObj_GetType(&requests.FPDFPageObj_GetType{
		PageObject: objResp.PageObject,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get page object type: %w", err)
	}
	if typeResp.Type != enums.FPDF_PAGEOBJ_IMAGE {
		return nil, fmt.Errorf("page object %d on page %d is not an image", object, pageIndex)
	}

	dataResp, err := d.instance.FPDFImageObj_GetImageDataRaw(&requests.FPDFImageObj_GetImageDataRaw{
		ImageObject: objResp.PageObject,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to extract image data: %w", err)
	}

	extracted := &EmbeddedImage{
		Format: sniffImageFormat(dataResp.Data),
		Data:   dataResp.Data,
	}
	metaResp, err := d.instance.FPDFImageObj_GetImageMetadata(&requests.FPDFImageObj_GetImageMetadata{
		ImageObject: objResp.PageObject,
		Page:        pageReq,
	})
	if err == nil {
		extracted.Width = int(metaResp.ImageMetadata.Width)
		extracted.Height = int(metaResp.ImageMetadata.Height)
		extracted.BitsPerPixel = int(metaResp.ImageMetadata.BitsPerPixel)
	}
	return extracted, nil
}

func (d *pdfiumDocument) DeletePage(index int) error {
	_, err := d.instance.FPDFPage_Delete(&requests.FPDFPage_Delete{
		Document:  d.ref,
		PageIndex: index,
	})
	if err != nil {
		return fmt.Errorf("unable to delete page %d: %w", index, err)
	}
	return nil
}

func (d *pdfiumDocument) DeletePageRange(from, to int) error {
	// Delete back to front so earlier deletions don't shift the target index.
	for index := to; index >= from; index-- {
		if err := d.DeletePage(index); err != nil {
			return err
		}
	}
	return nil
}

func (d *pdfiumDocument) MovePage(from, to int) error {
	if from == to {
		return nil
	}
	// PDFium has no in-place move; import a copy at the destination, then
	// drop the original, which has shifted one up when the copy landed
	// before it.
	if err := d.importPages(d.ref, pageRange([]int{from}), to); err != nil {
		return fmt.Errorf("unable to move page %d: %w", from, err)
	}
	original := from
	if to <= from {
		original = from + 1
	}
	return d.DeletePage(original)
}

func (d *pdfiumDocument) CopyPage(index, to int) error {
	if to < 0 {
		to = d.PageCount()
	}
	if err := d.importPages(d.ref, pageRange([]int{index}), to); err != nil {
		return fmt.Errorf("unable to copy page %d: %w", index, err)
	}
	return nil
}

func (d *pdfiumDocument) SelectPages(pages []int) error {
	// PDFium cannot reorder in place either; build a fresh document from
	// the selection and swap the handle underneath.
	created, err := d.instance.FPDF_CreateNewDocument(&requests.FPDF_CreateNewDocument{})
	if err != nil {
		return fmt.Errorf("unable to create document for page selection: %w", err)
	}
	if err := d.importPages(created.Document, pageRange(pages), 0); err != nil {
		d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: created.Document})
		return fmt.Errorf("unable to select pages: %w", err)
	}
	d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.ref})
	d.ref = created.Document
	return nil
}

func (d *pdfiumDocument) InsertPage(position int, width, height float64) error {
	if position < 0 {
		position = d.PageCount()
	}
	if width <= 0 {
		width = 595 // A4 in points
	}
	if height <= 0 {
		height = 842
	}
	_, err := d.instance.FPDFPage_New(&requests.FPDFPage_New{
		Document:  d.ref,
		PageIndex: position,
		Width:     width,
		Height:    height,
	})
	if err != nil {
		return fmt.Errorf("unable to insert page at %d: %w", position, err)
	}
	return nil
}

func (d *pdfiumDocument) Save(path string, opts SaveOptions) error {
	// PDFium applies its own object consolidation on a full rewrite; the
	// GarbageLevel/Deflate/Clean knobs have no direct equivalent here and
	// only select between incremental and full saves.
	flags := requests.SaveFlagNoIncremental
	if opts.Incremental {
		flags = requests.SaveFlagIncremental
	}
	_, err := d.instance.FPDF_SaveAsCopy(&requests.FPDF_SaveAsCopy{
		Document: d.ref,
		FilePath: &path,
		Flags:    flags,
	})
	if err != nil {
		return fmt.Errorf("unable to save document to %s: %w", path, err)
	}
	return nil
}

func (d *pdfiumDocument) Close() error {
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.ref,
	})
	return err
}

func (d *pdfiumDocument) importPages(dest references.FPDF_DOCUMENT, ranges string, index int) error {
	_, err := d.instance.FPDF_ImportPages(&requests.FPDF_ImportPages{
		Source:      d.ref,
		Destination: dest,
		PageRange:   &ranges,
		Index:       index,
	})
	return err
}

// pageRange formats zero-based page indices as the 1-based comma list
// PDFium's import call expects.
func pageRange(pages []int) string {
	parts := make([]string, len(pages))
	for i, page := range pages {
		parts[i] = strconv.Itoa(page + 1)
	}
	return strings.Join(parts, ",")
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// sniffImageFormat guesses the format of raw embedded image data. Streams
// that are neither JPEG nor PNG (CCITT, raw samples behind Flate, ...) are
// reported as "raw".
func sniffImageFormat(data []byte) string {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return "jpeg"
	case bytes.HasPrefix(data, pngMagic):
		return "png"
	default:
		return "raw"
	}
}
