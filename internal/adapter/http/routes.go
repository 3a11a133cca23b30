package http

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the API, download, and generation routes. gen
// serves the WebSocket endpoint. staticDir, when it exists, is served at /.
func MountRoutes(r chi.Router, h *Handlers, gen http.Handler, staticDir string) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/templates", h.ListTemplates)
		r.Get("/languages", h.ListLanguages)
		r.Get("/jobs", h.ListJobs)
		r.Delete("/jobs/{jobID}", h.CancelJob)
		r.Handle("/generate", gen)
	})

	r.Get("/download/{jobID}/{name}", h.Download)

	if staticDir == "" {
		return
	}
	if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
		slog.Warn("static dir not found, web client disabled", "dir", staticDir)
		return
	}
	r.Handle("/*", http.FileServer(http.Dir(staticDir)))
}
