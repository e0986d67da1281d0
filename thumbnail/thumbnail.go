// Package thumbnail produces small page previews through the shared
// document resource, so thumbnail rendering and full-page rendering feed
// the same page cache.
package thumbnail

import (
	"context"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/drummonds/goPDFView/document"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// DefaultWidth is the thumbnail width in pixels when none is configured.
const DefaultWidth = 200

// renderZoom is the zoom pages are rasterized at before downscaling.
// Half resolution keeps the source sharp enough for a 200px strip without
// paying for a full-size render.
const renderZoom = 0.5

// defaultWorkers bounds concurrent thumbnail renders. The resource
// serializes engine calls anyway; the bound just keeps a long document from
// flooding the queue ahead of interactive renders.
const defaultWorkers = 4

// Generator renders page thumbnails for one document resource.
type Generator struct {
	res     *document.Resource
	width   int
	workers int
}

// NewGenerator returns a Generator producing thumbnails of the given width.
// A width below 1 falls back to DefaultWidth.
func NewGenerator(res *document.Resource, width int) *Generator {
	if width < 1 {
		width = DefaultWidth
	}
	return &Generator{res: res, width: width, workers: defaultWorkers}
}

// Page renders one page thumbnail. Out-of-range pages return (nil, nil),
// matching the resource's render contract.
func (g *Generator) Page(ctx context.Context, page int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := g.res.RenderPage(page, renderZoom)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, nil
	}
	resized := imaging.Resize(img, g.width, 0, imaging.Lanczos)
	return imaging.Sharpen(resized, 0.5), nil
}

// All renders thumbnails for every page, in page order. Renders run on a
// bounded worker pool; the first failure cancels the rest.
func (g *Generator) All(ctx context.Context) ([]image.Image, error) {
	count := g.res.PageCount()
	thumbs := make([]image.Image, count)

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.workers)
	for page := 0; page < count; page++ {
		grp.Go(func() error {
			thumb, err := g.Page(ctx, page)
			if err != nil {
				return err
			}
			thumbs[page] = thumb
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return thumbs, nil
}

// Prefetch warms the page cache around the page currently in view, the
// pattern a viewer produces while scrolling. Rendering is synchronous and
// not cancellable mid-page; the context is only checked between pages.
func (g *Generator) Prefetch(ctx context.Context, around, radius int) {
	count := g.res.PageCount()
	for offset := 1; offset <= radius; offset++ {
		for _, page := range []int{around + offset, around - offset} {
			if page < 0 || page >= count {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if _, err := g.res.RenderPage(page, renderZoom); err != nil {
				Logger.Warn("Prefetch render failed", "page", page, "error", err)
				return
			}
		}
	}
}
