package document_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/goPDFView/document"
	"github.com/drummonds/goPDFView/pdfengine"
	"github.com/drummonds/goPDFView/pdfengine/enginetest"
)

func newLoadedResource(t *testing.T, pageTexts ...string) (*document.Resource, *enginetest.Document) {
	t.Helper()
	engine := enginetest.NewEngine()
	engine.AddTextDocument("three.pdf", pageTexts...)
	res := document.New(engine)
	require.NoError(t, res.Open("three.pdf"))
	docs := engine.OpenedDocuments()
	require.Len(t, docs, 1)
	return res, docs[0]
}

func TestRenderPageRequiresDocument(t *testing.T) {
	t.Parallel()

	res := document.New(enginetest.NewEngine())
	_, err := res.RenderPage(0, 1.0)
	assert.ErrorIs(t, err, document.ErrNoDocument)
}

func TestOpenFailurePreservesDiagnostic(t *testing.T) {
	t.Parallel()

	res := document.New(enginetest.NewEngine())
	err := res.Open("missing.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrOpenFailed)
	assert.Contains(t, err.Error(), "missing.pdf")
	assert.False(t, res.IsLoaded())
}

func TestRenderPageOutOfRangeReturnsEmpty(t *testing.T) {
	t.Parallel()

	res, _ := newLoadedResource(t, "a", "b", "c")
	img, err := res.RenderPage(5, 1.0)
	assert.NoError(t, err)
	assert.Nil(t, img)

	img, err = res.RenderPage(-1, 1.0)
	assert.NoError(t, err)
	assert.Nil(t, img)
}

func TestRenderPageUsesCache(t *testing.T) {
	t.Parallel()

	res, doc := newLoadedResource(t, "a", "b", "c")

	first, err := res.RenderPage(1, 1.0)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, doc.Renders(1))

	second, err := res.RenderPage(1, 1.0)
	require.NoError(t, err)
	assert.Same(t, first, second, "second request must come from the cache")
	assert.Equal(t, 1, doc.Renders(1), "page must not be rasterized again")

	// A different zoom is a different cache entry and renders again.
	_, err = res.RenderPage(1, 2.0)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Renders(1))
}

func TestRenderPageZoomJitterHitsSameEntry(t *testing.T) {
	t.Parallel()

	res, doc := newLoadedResource(t, "a")

	_, err := res.RenderPage(0, 1.001)
	require.NoError(t, err)
	_, err = res.RenderPage(0, 1.0049)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Renders(0), "jittered zooms round to the same key")
}

func TestRenderErrorIsNotCached(t *testing.T) {
	t.Parallel()

	res, doc := newLoadedResource(t, "a")
	doc.RenderErr = errors.New("raster backend exploded")

	_, err := res.RenderPage(0, 1.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raster backend exploded")

	doc.RenderErr = nil
	img, err := res.RenderPage(0, 1.0)
	require.NoError(t, err)
	assert.NotNil(t, img)
}

func TestOpenReplacesDocumentAndClearsCache(t *testing.T) {
	t.Parallel()

	engine := enginetest.NewEngine()
	engine.AddTextDocument("one.pdf", "first")
	engine.AddTextDocument("two.pdf", "second")
	res := document.New(engine)
	require.NoError(t, res.Open("one.pdf"))

	_, err := res.RenderPage(0, 1.0)
	require.NoError(t, err)
	require.Equal(t, 1, res.CacheStats().Size)

	require.NoError(t, res.Open("two.pdf"))
	docs := engine.OpenedDocuments()
	require.Len(t, docs, 2)
	assert.True(t, docs[0].Closed, "previous handle must be closed")
	assert.Equal(t, 0, res.CacheStats().Size, "cache must be cleared on open")
	assert.Equal(t, "two.pdf", res.Path())
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	res, doc := newLoadedResource(t, "a")
	require.NoError(t, res.Close())
	assert.True(t, doc.Closed)
	assert.False(t, res.IsLoaded())
	assert.Equal(t, "", res.Path())

	// Closing again is a no-op, not an error.
	assert.NoError(t, res.Close())
}

func TestReadAccessorsDegradeWhenUnloaded(t *testing.T) {
	t.Parallel()

	res := document.New(enginetest.NewEngine())
	assert.Equal(t, 0, res.PageCount())
	assert.Empty(t, res.Metadata())

	text, err := res.PageText(0, pdfengine.TextPlain)
	assert.NoError(t, err)
	assert.Equal(t, "", text)

	matches, err := res.SearchPage(0, "anything", false)
	assert.NoError(t, err)
	assert.Nil(t, matches)

	refs, err := res.PageImages(0)
	assert.NoError(t, err)
	assert.Nil(t, refs)
}

func TestDeletePageInvalidatesOnlyThatPage(t *testing.T) {
	t.Parallel()

	res, doc := newLoadedResource(t, "a", "b", "c")

	// Warm the cache: page 1 at two zooms, pages 0 and 2 at one.
	for _, req := range []struct {
		page int
		zoom float64
	}{{0, 1.0}, {1, 1.0}, {1, 2.0}, {2, 1.0}} {
		_, err := res.RenderPage(req.page, req.zoom)
		require.NoError(t, err)
	}
	require.Equal(t, 4, res.CacheStats().Size)

	require.NoError(t, res.DeletePage(1))
	assert.Equal(t, 2, res.PageCount())

	stats := res.CacheStats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, []int{0, 2}, stats.Pages)

	// Pages 0 and 2 come straight from the cache, no re-render.
	_, err := res.RenderPage(0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Renders(0))
}

func TestDeletePageBounds(t *testing.T) {
	t.Parallel()

	res, _ := newLoadedResource(t, "a", "b", "c")
	assert.ErrorIs(t, res.DeletePage(3), document.ErrPageOutOfRange)
	assert.ErrorIs(t, res.DeletePage(-1), document.ErrPageOutOfRange)

	unloaded := document.New(enginetest.NewEngine())
	assert.ErrorIs(t, unloaded.DeletePage(0), document.ErrNoDocument)
}

func TestDeletePageRange(t *testing.T) {
	t.Parallel()

	res, _ := newLoadedResource(t, "a", "b", "c", "d")
	for page := 0; page < 4; page++ {
		_, err := res.RenderPage(page, 1.0)
		require.NoError(t, err)
	}

	require.NoError(t, res.DeletePageRange(1, 2))
	assert.Equal(t, 2, res.PageCount())
	assert.Equal(t, []int{0, 3}, res.CacheStats().Pages)

	assert.ErrorIs(t, res.DeletePageRange(2, 1), document.ErrPageOutOfRange)
	assert.ErrorIs(t, res.DeletePageRange(0, 9), document.ErrPageOutOfRange)
}

func TestMovePageInvalidatesBothPositions(t *testing.T) {
	t.Parallel()

	res, _ := newLoadedResource(t, "a", "b", "c")
	for page := 0; page < 3; page++ {
		_, err := res.RenderPage(page, 1.0)
		require.NoError(t, err)
	}

	require.NoError(t, res.MovePage(0, 2))
	assert.Equal(t, []int{1}, res.CacheStats().Pages)

	assert.ErrorIs(t, res.MovePage(0, 5), document.ErrPageOutOfRange)
}

func TestCopyPageClearsCache(t *testing.T) {
	t.Parallel()

	res, _ := newLoadedResource(t, "a", "b")
	_, err := res.RenderPage(0, 1.0)
	require.NoError(t, err)

	require.NoError(t, res.CopyPage(0, -1))
	assert.Equal(t, 3, res.PageCount())
	assert.Equal(t, 0, res.CacheStats().Size, "copy renumbers pages, cache must be emptied")

	assert.ErrorIs(t, res.CopyPage(9, -1), document.ErrPageOutOfRange)
}

func TestSelectPagesClearsCache(t *testing.T) {
	t.Parallel()

	res, _ := newLoadedResource(t, "a", "b", "c")
	_, err := res.RenderPage(2, 1.0)
	require.NoError(t, err)

	require.NoError(t, res.SelectPages([]int{2, 0}))
	assert.Equal(t, 2, res.PageCount())
	assert.Equal(t, 0, res.CacheStats().Size)

	assert.ErrorIs(t, res.SelectPages([]int{0, 7}), document.ErrInvalidSelection)
}

func TestInsertPageInvalidatesPosition(t *testing.T) {
	t.Parallel()

	res, _ := newLoadedResource(t, "a", "b")
	_, err := res.RenderPage(0, 1.0)
	require.NoError(t, err)
	_, err = res.RenderPage(1, 1.0)
	require.NoError(t, err)

	require.NoError(t, res.InsertPage(0, 595, 842))
	assert.Equal(t, 3, res.PageCount())
	assert.Equal(t, []int{1}, res.CacheStats().Pages, "entry at the insertion point is dropped")

	// Appending does not touch the cache.
	require.NoError(t, res.InsertPage(-1, 595, 842))
	assert.Equal(t, []int{1}, res.CacheStats().Pages)
}

func TestSaveForcesIncrementalOnOriginatingPath(t *testing.T) {
	t.Parallel()

	res, doc := newLoadedResource(t, "a")

	require.NoError(t, res.Save("three.pdf", pdfengine.SaveOptions{GarbageLevel: 4, Deflate: true}))
	assert.True(t, doc.SavedOpts.Incremental, "saving onto the original file must be incremental")

	require.NoError(t, res.Save("elsewhere.pdf", pdfengine.SaveOptions{GarbageLevel: 4}))
	assert.False(t, doc.SavedOpts.Incremental)
	assert.Equal(t, 4, doc.SavedOpts.GarbageLevel)
	assert.Equal(t, "elsewhere.pdf", doc.SavedPath)
}

func TestSaveFailureWrapsDiagnostic(t *testing.T) {
	t.Parallel()

	res, doc := newLoadedResource(t, "a")
	doc.SaveErr = errors.New("disk full")

	err := res.Save("out.pdf", pdfengine.SaveOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrSaveFailed)
	assert.Contains(t, err.Error(), "disk full")

	unloaded := document.New(enginetest.NewEngine())
	assert.ErrorIs(t, unloaded.Save("out.pdf", pdfengine.SaveOptions{}), document.ErrNoDocument)
}

func TestSearchPage(t *testing.T) {
	t.Parallel()

	res, _ := newLoadedResource(t, "the quick brown fox", "nothing here")

	matches, err := res.SearchPage(0, "Quick", true)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.NotNil(t, matches[0].Quad)

	matches, err = res.SearchPage(1, "quick", false)
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Out of range is an absent result, not an error.
	matches, err = res.SearchPage(9, "quick", false)
	assert.NoError(t, err)
	assert.Nil(t, matches)
}

func TestPageText(t *testing.T) {
	t.Parallel()

	res, _ := newLoadedResource(t, "hello world")

	text, err := res.PageText(0, pdfengine.TextPlain)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	text, err = res.PageText(7, pdfengine.TextPlain)
	assert.NoError(t, err)
	assert.Equal(t, "", text)
}
