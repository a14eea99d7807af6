package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/httputil"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes. Admin routes require a bearer token
// matching adminToken; with no token configured they are disabled.
func SetupRoutes(h *Handlers, health *HealthChecker, adminToken string, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health checks (no auth required)
	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			httputil.OK(w, map[string]string{"status": "alive"})
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.GetCategories)

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", h.SearchListings)
			r.Get("/{slug}", h.GetListing)
			r.Get("/{slug}/image", h.GetListingImage)
		})
		r.Post("/images/broken", h.ReportBrokenImage)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin(adminToken))

			r.Post("/import/preview", h.PreviewImport)
			r.Post("/import/commit", h.CommitImport)
			r.Get("/import/logs", h.GetImportLogs)

			r.Post("/listings/{id}/images", h.UploadListingImage)

			r.Post("/enrich", h.EnrichPending)
			r.Post("/enrich/{id}", h.EnrichListing)

			r.Get("/images/broken", h.ListBrokenImages)
			r.Delete("/images/broken", h.ClearBrokenImages)
		})
	})

	return r
}

// requireAdmin checks the Authorization bearer token in constant time.
func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if token == "" {
				httputil.Error(w, http.StatusForbidden, "admin api disabled")
				return
			}
			got, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
				httputil.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
