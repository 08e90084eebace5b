package transport

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter assembles the HTTP surface: the chat stream endpoint plus the
// static frontend. Every path outside /api falls back to the SPA index so
// client-side routes survive a page reload.
func NewRouter(handler *ChatHandler, staticDir string, throttle *Throttle, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	if throttle != nil {
		r.Use(throttle.Middleware)
	}

	r.Post("/api/chat/stream", handler.ServeHTTP)

	r.NotFound(spaHandler(staticDir, logger))

	return r
}

// spaHandler serves files from staticDir, falling back to index.html for
// paths that do not map to an existing file.
func spaHandler(staticDir string, logger *zap.Logger) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(staticDir))

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		requested := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(requested); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		index := filepath.Join(staticDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			logger.Debug("Static index not found", zap.String("path", index))
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	}
}
