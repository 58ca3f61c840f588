// Package api assembles the HTTP surface: the chi router, middleware stack,
// and route-to-handler wiring.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/mentha-app/mentha-engine/internal/api/middleware"
	"github.com/mentha-app/mentha-engine/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	CreateProjectHandler http.HandlerFunc
	GetProjectHandler    http.HandlerFunc
	ListProjectsHandler  http.HandlerFunc

	CreateKeywordHandler http.HandlerFunc
	GetKeywordHandler    http.HandlerFunc
	ListKeywordsHandler  http.HandlerFunc
	DeleteKeywordHandler http.HandlerFunc

	TriggerScanHandler  http.HandlerFunc
	GetScanJobHandler   http.HandlerFunc
	JobResultHandler    http.HandlerFunc
	LatestResultHandler http.HandlerFunc
	ListResultsHandler  http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public endpoints: liveness and Prometheus scrape.
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/projects", orNotImplemented(deps.CreateProjectHandler))
		r.Get("/api/v1/projects", orNotImplemented(deps.ListProjectsHandler))
		r.Get("/api/v1/projects/{projectID}", orNotImplemented(deps.GetProjectHandler))

		r.Post("/api/v1/keywords", orNotImplemented(deps.CreateKeywordHandler))
		r.Get("/api/v1/keywords", orNotImplemented(deps.ListKeywordsHandler))
		r.Get("/api/v1/keywords/{keywordID}", orNotImplemented(deps.GetKeywordHandler))
		r.Delete("/api/v1/keywords/{keywordID}", orNotImplemented(deps.DeleteKeywordHandler))

		r.Post("/api/v1/keywords/{keywordID}/scan", orNotImplemented(deps.TriggerScanHandler))
		r.Get("/api/v1/keywords/{keywordID}/results/latest", orNotImplemented(deps.LatestResultHandler))
		r.Get("/api/v1/keywords/{keywordID}/results", orNotImplemented(deps.ListResultsHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetScanJobHandler))
		r.Get("/api/v1/jobs/{jobID}/result", orNotImplemented(deps.JobResultHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
