package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// SPAHandler serves the scanner page and its assets, falling back to the
// index file for unknown paths.
type SPAHandler struct {
	staticDir string
	indexFile string
}

// NewSPAHandler serves staticDir. An empty indexFile means "index.html".
func NewSPAHandler(staticDir, indexFile string) *SPAHandler {
	if indexFile == "" {
		indexFile = "index.html"
	}
	return &SPAHandler{
		staticDir: staticDir,
		indexFile: indexFile,
	}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Wildcard path from the chi route, or the raw path when mounted directly
	urlPath := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && len(rctx.URLParams.Keys) > 0 {
		urlPath = chi.URLParam(r, "*")
	}
	urlPath = path.Clean("/" + urlPath)

	if urlPath == "/api" || strings.HasPrefix(urlPath, "/api/") {
		http.NotFound(w, r)
		return
	}

	filePath := filepath.Join(h.staticDir, filepath.FromSlash(urlPath))

	info, err := os.Stat(filePath)
	if err == nil && !info.IsDir() {
		http.ServeFile(w, r, filePath)
		return
	}

	indexPath := filepath.Join(h.staticDir, h.indexFile)
	if _, err := os.Stat(indexPath); err != nil {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, indexPath)
}

func StaticFileServer(staticDir string) http.Handler {
	return NewSPAHandler(staticDir, "")
}
