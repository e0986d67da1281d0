package document

import "errors"

// Error taxonomy for document operations. Engine-level failures are wrapped
// so callers can match the category with errors.Is while the engine's
// diagnostic text survives for display.
var (
	// ErrNoDocument is returned by mutation and render operations called
	// before a document is opened.
	ErrNoDocument = errors.New("no document loaded")

	// ErrOpenFailed wraps the engine error when a file cannot be parsed
	// or read.
	ErrOpenFailed = errors.New("unable to open document")

	// ErrSaveFailed wraps the engine error when writing the document fails.
	ErrSaveFailed = errors.New("unable to save document")

	// ErrPageOutOfRange is returned by mutation operations given an index
	// outside [0, PageCount).
	ErrPageOutOfRange = errors.New("page index out of range")

	// ErrInvalidSelection is returned by SelectPages when any index is out
	// of range.
	ErrInvalidSelection = errors.New("invalid page selection")
)
