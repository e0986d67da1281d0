// Package server exposes document sessions over HTTP in place of the
// desktop viewer: open a document, pull page images and thumbnails, run the
// page mutations, save. Each session owns one document resource and with it
// one page cache.
package server

import (
	"bytes"
	"errors"
	"image/png"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/goPDFView/config"
	"github.com/drummonds/goPDFView/document"
	"github.com/drummonds/goPDFView/pdfengine"
	"github.com/drummonds/goPDFView/thumbnail"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	Engine       pdfengine.Engine
	Echo         *echo.Echo
	ServerConfig config.ServerConfig

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	res      *document.Resource
	thumbs   *thumbnail.Generator
	lastUsed time.Time
}

// NewServerHandler wires the engine and config into a handler with an empty
// session registry.
func NewServerHandler(engine pdfengine.Engine, e *echo.Echo, serverConfig config.ServerConfig) *ServerHandler {
	return &ServerHandler{
		Engine:       engine,
		Echo:         e,
		ServerConfig: serverConfig,
		sessions:     make(map[string]*session),
	}
}

// AddRoutes registers the document API routes - all under /api/* prefix for clarity
func (serverHandler *ServerHandler) AddRoutes() {
	e := serverHandler.Echo

	e.POST("/api/documents", serverHandler.OpenDocument)
	e.GET("/api/documents/:id", serverHandler.GetDocument)
	e.DELETE("/api/documents/:id", serverHandler.CloseDocument)
	e.GET("/api/documents/:id/cache", serverHandler.GetCacheStats)
	e.POST("/api/documents/:id/save", serverHandler.SaveDocument)
	e.POST("/api/documents/:id/select", serverHandler.SelectPages)

	e.GET("/api/documents/:id/pages/:page/image", serverHandler.GetPageImage)
	e.GET("/api/documents/:id/pages/:page/thumbnail", serverHandler.GetPageThumbnail)
	e.GET("/api/documents/:id/pages/:page/text", serverHandler.GetPageText)
	e.GET("/api/documents/:id/pages/:page/search", serverHandler.SearchPage)
	e.GET("/api/documents/:id/pages/:page/images", serverHandler.GetPageImages)
	e.GET("/api/documents/:id/pages/:page/images/:object", serverHandler.ExtractImage)

	e.POST("/api/documents/:id/pages", serverHandler.InsertPage)
	e.DELETE("/api/documents/:id/pages", serverHandler.DeletePageRange)
	e.DELETE("/api/documents/:id/pages/:page", serverHandler.DeletePage)
	e.POST("/api/documents/:id/pages/:page/move", serverHandler.MovePage)
	e.POST("/api/documents/:id/pages/:page/copy", serverHandler.CopyPage)
}

func (serverHandler *ServerHandler) getSession(id string) *session {
	serverHandler.mu.Lock()
	defer serverHandler.mu.Unlock()
	sess, ok := serverHandler.sessions[id]
	if !ok {
		return nil
	}
	sess.lastUsed = time.Now()
	return sess
}

// statusForError maps the document error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, document.ErrNoDocument):
		return http.StatusConflict
	case errors.Is(err, document.ErrPageOutOfRange),
		errors.Is(err, document.ErrInvalidSelection):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrOpenFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pdfengine.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(context echo.Context, err error) error {
	return context.JSON(statusForError(err), map[string]string{"error": err.Error()})
}

type openRequest struct {
	Path string `json:"path"`
}

// OpenDocument opens a PDF under the configured document root and returns
// the session ID for it
func (serverHandler *ServerHandler) OpenDocument(context echo.Context) error {
	var request openRequest
	if err := context.Bind(&request); err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if request.Path == "" {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "path is required"})
	}

	path := filepath.Join(serverHandler.ServerConfig.DocumentPath, filepath.FromSlash(request.Path))
	path, err := filepath.Abs(path)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	// Refuse anything that escapes the document root
	if !strings.HasPrefix(path, serverHandler.ServerConfig.DocumentPath+string(filepath.Separator)) &&
		path != serverHandler.ServerConfig.DocumentPath {
		Logger.Warn("Refusing to open document outside document root", "path", path)
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "path outside document root"})
	}

	res := document.NewWithCacheSize(serverHandler.Engine, serverHandler.ServerConfig.CacheMaxSize)
	if err := res.Open(path); err != nil {
		Logger.Error("Unable to open document", "path", path, "error", err)
		return errorJSON(context, err)
	}

	id := ulid.Make().String()
	serverHandler.mu.Lock()
	serverHandler.sessions[id] = &session{
		res:      res,
		thumbs:   thumbnail.NewGenerator(res, serverHandler.ServerConfig.ThumbnailWidth),
		lastUsed: time.Now(),
	}
	serverHandler.mu.Unlock()

	Logger.Info("Document session opened", "id", id, "path", path, "pages", res.PageCount())
	return context.JSON(http.StatusCreated, map[string]any{
		"id":        id,
		"path":      request.Path,
		"pageCount": res.PageCount(),
	})
}

// GetDocument returns session info for an open document
func (serverHandler *ServerHandler) GetDocument(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	return context.JSON(http.StatusOK, map[string]any{
		"id":        context.Param("id"),
		"path":      sess.res.Path(),
		"pageCount": sess.res.PageCount(),
		"metadata":  sess.res.Metadata(),
	})
}

// CloseDocument closes a session and releases the document
func (serverHandler *ServerHandler) CloseDocument(context echo.Context) error {
	id := context.Param("id")
	serverHandler.mu.Lock()
	sess, ok := serverHandler.sessions[id]
	delete(serverHandler.sessions, id)
	serverHandler.mu.Unlock()
	if !ok {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	if err := sess.res.Close(); err != nil {
		Logger.Error("Error closing document", "id", id, "error", err)
		return errorJSON(context, err)
	}
	Logger.Info("Document session closed", "id", id)
	return context.JSON(http.StatusOK, "Document Closed")
}

// GetCacheStats returns a diagnostic snapshot of the session's page cache
func (serverHandler *ServerHandler) GetCacheStats(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	stats := sess.res.CacheStats()
	return context.JSON(http.StatusOK, map[string]any{
		"size":    stats.Size,
		"maxSize": stats.MaxSize,
		"pages":   stats.Pages,
	})
}

func pageParam(context echo.Context) (int, error) {
	return strconv.Atoi(context.Param("page"))
}

// GetPageImage renders one page as PNG. The zoom query parameter defaults
// to 1.0
func (serverHandler *ServerHandler) GetPageImage(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	page, err := pageParam(context)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page number"})
	}
	zoom := 1.0
	if zoomStr := context.QueryParam("zoom"); zoomStr != "" {
		zoom, err = strconv.ParseFloat(zoomStr, 64)
		if err != nil || zoom <= 0 {
			return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid zoom"})
		}
	}

	img, err := sess.res.RenderPage(page, zoom)
	if err != nil {
		Logger.Error("Unable to render page", "page", page, "zoom", zoom, "error", err)
		return errorJSON(context, err)
	}
	if img == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "page not found"})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		Logger.Error("Unable to encode PNG image", "page", page, "error", err)
		return context.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return context.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// GetPageThumbnail renders one page thumbnail as PNG
func (serverHandler *ServerHandler) GetPageThumbnail(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	page, err := pageParam(context)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page number"})
	}

	thumb, err := sess.thumbs.Page(context.Request().Context(), page)
	if err != nil {
		Logger.Error("Unable to render thumbnail", "page", page, "error", err)
		return errorJSON(context, err)
	}
	if thumb == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "page not found"})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return context.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return context.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// GetPageText extracts page text; format defaults to plain text
func (serverHandler *ServerHandler) GetPageText(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	page, err := pageParam(context)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page number"})
	}
	format := pdfengine.TextFormat(context.QueryParam("format"))
	if format == "" {
		format = pdfengine.TextPlain
	}

	text, err := sess.res.PageText(page, format)
	if err != nil {
		return errorJSON(context, err)
	}
	return context.JSON(http.StatusOK, map[string]string{"text": text})
}

// SearchPage searches one page for the term query parameter
func (serverHandler *ServerHandler) SearchPage(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	page, err := pageParam(context)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page number"})
	}
	term := context.QueryParam("term")
	if term == "" {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "term is required"})
	}
	wantQuads, _ := strconv.ParseBool(context.QueryParam("quads"))

	matches, err := sess.res.SearchPage(page, term, wantQuads)
	if err != nil {
		return errorJSON(context, err)
	}
	return context.JSON(http.StatusOK, map[string]any{"matches": matches})
}

// GetPageImages lists the embedded images on a page
func (serverHandler *ServerHandler) GetPageImages(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	page, err := pageParam(context)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page number"})
	}

	refs, err := sess.res.PageImages(page)
	if err != nil {
		return errorJSON(context, err)
	}
	return context.JSON(http.StatusOK, map[string]any{"images": refs})
}

// ExtractImage returns one embedded image payload
func (serverHandler *ServerHandler) ExtractImage(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	page, err := pageParam(context)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page number"})
	}
	object, err := strconv.Atoi(context.Param("object"))
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid image object index"})
	}

	extracted, err := sess.res.ExtractImage(page, object)
	if err != nil {
		return errorJSON(context, err)
	}
	if extracted == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "image not found"})
	}
	contentType := "application/octet-stream"
	switch extracted.Format {
	case "jpeg":
		contentType = "image/jpeg"
	case "png":
		contentType = "image/png"
	}
	return context.Blob(http.StatusOK, contentType, extracted.Data)
}

// DeletePage deletes a single page
func (serverHandler *ServerHandler) DeletePage(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	page, err := pageParam(context)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page number"})
	}
	if err := sess.res.DeletePage(page); err != nil {
		return errorJSON(context, err)
	}
	return context.JSON(http.StatusOK, "Page Deleted")
}

// DeletePageRange deletes pages from..to inclusive, given as query
// parameters
func (serverHandler *ServerHandler) DeletePageRange(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	from, err := strconv.Atoi(context.QueryParam("from"))
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid from page"})
	}
	to, err := strconv.Atoi(context.QueryParam("to"))
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid to page"})
	}
	if err := sess.res.DeletePageRange(from, to); err != nil {
		return errorJSON(context, err)
	}
	return context.JSON(http.StatusOK, "Pages Deleted")
}

type moveRequest struct {
	To int `json:"to"`
}

// MovePage moves a page to a new position
func (serverHandler *ServerHandler) MovePage(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	page, err := pageParam(context)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page number"})
	}
	var request moveRequest
	if err := context.Bind(&request); err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := sess.res.MovePage(page, request.To); err != nil {
		return errorJSON(context, err)
	}
	return context.JSON(http.StatusOK, "Page Moved")
}

type copyRequest struct {
	To *int `json:"to"`
}

// CopyPage duplicates a page; without a destination it appends at the end
func (serverHandler *ServerHandler) CopyPage(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	page, err := pageParam(context)
	if err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid page number"})
	}
	var request copyRequest
	if err := context.Bind(&request); err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	to := -1
	if request.To != nil {
		to = *request.To
	}
	if err := sess.res.CopyPage(page, to); err != nil {
		return errorJSON(context, err)
	}
	return context.JSON(http.StatusOK, "Page Copied")
}

type selectRequest struct {
	Pages []int `json:"pages"`
}

// SelectPages keeps only the listed pages, in the given order
func (serverHandler *ServerHandler) SelectPages(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	var request selectRequest
	if err := context.Bind(&request); err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(request.Pages) == 0 {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "pages is required"})
	}
	if err := sess.res.SelectPages(request.Pages); err != nil {
		return errorJSON(context, err)
	}
	return context.JSON(http.StatusOK, "Pages Selected")
}

type insertRequest struct {
	Position *int    `json:"position"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// InsertPage creates a blank page; without a position it appends at the end
func (serverHandler *ServerHandler) InsertPage(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	var request insertRequest
	if err := context.Bind(&request); err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	position := -1
	if request.Position != nil {
		position = *request.Position
	}
	if err := sess.res.InsertPage(position, request.Width, request.Height); err != nil {
		return errorJSON(context, err)
	}
	return context.JSON(http.StatusCreated, "Page Inserted")
}

type saveRequest struct {
	Path    string `json:"path"`
	Garbage int    `json:"garbage"`
	Deflate bool   `json:"deflate"`
	Clean   bool   `json:"clean"`
}

// SaveDocument writes the document back to disk. Saving without a path
// targets the originating file, which forces an incremental save
func (serverHandler *ServerHandler) SaveDocument(context echo.Context) error {
	sess := serverHandler.getSession(context.Param("id"))
	if sess == nil {
		return context.JSON(http.StatusNotFound, map[string]string{"error": "unknown document session"})
	}
	var request saveRequest
	if err := context.Bind(&request); err != nil {
		return context.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	path := request.Path
	if path == "" {
		path = sess.res.Path()
	} else {
		path = filepath.Join(serverHandler.ServerConfig.DocumentPath, filepath.FromSlash(path))
	}
	opts := pdfengine.SaveOptions{
		GarbageLevel: request.Garbage,
		Deflate:      request.Deflate,
		Clean:        request.Clean,
	}
	if err := sess.res.Save(path, opts); err != nil {
		Logger.Error("Unable to save document", "path", path, "error", err)
		return errorJSON(context, err)
	}
	Logger.Info("Document saved", "path", path)
	return context.JSON(http.StatusOK, "Document Saved")
}
