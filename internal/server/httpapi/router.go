package httpapi

import (
	"net/http"

	"github.com/engarde/templatesync/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the public and bearer-protected routes.
func NewRouter(h *Handler, secretKey []byte, logger logging.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/sso", h.SSOLogin)
		r.Post("/refresh", h.Refresh)
	})

	r.Route("/templates", func(r chi.Router) {
		r.Use(Authenticator(secretKey, logger))
		r.Get("/updates", h.ListUpdates)
		r.Post("/sync", h.Sync)
		r.Post("/migrate", h.Migrate)
		r.Get("/admin", h.AdminCatalog)
	})

	return r
}
