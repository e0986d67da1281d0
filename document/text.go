package document

import (
	"fmt"

	"github.com/drummonds/goPDFView/pdfengine"
	"github.com/ledongthuc/pdf"
)

// PageText extracts page text in the requested format. Unloaded resources
// and out-of-range pages return "". When the engine yields no plain text
// (scanned or oddly encoded documents) a pure-Go extractor is tried against
// the original file before giving up.
func (r *Resource) PageText(page int, format pdfengine.TextFormat) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return "", nil
	}
	if page < 0 || page >= r.doc.PageCount() {
		return "", nil
	}

	text, err := r.doc.Text(page, format)
	if err != nil {
		return "", fmt.Errorf("extract text from page %d: %w", page, err)
	}
	if text != "" || format != pdfengine.TextPlain || r.path == "" {
		return text, nil
	}

	Logger.Debug("Engine returned no text, trying pure-Go extraction", "path", r.path, "page", page)
	fallback, err := fallbackPlainText(r.path, page)
	if err != nil {
		Logger.Warn("Pure-Go text extraction failed", "path", r.path, "page", page, "error", err)
		return "", nil
	}
	return fallback, nil
}

// fallbackPlainText extracts plain text with ledongthuc/pdf, which reads
// the file on disk rather than the (possibly mutated) in-memory document.
func fallbackPlainText(path string, page int) (string, error) {
	pdfFile, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer pdfFile.Close()

	if page < 0 || page >= reader.NumPage() {
		return "", nil
	}
	p := reader.Page(page + 1) // ledongthuc pages are 1-based
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}
