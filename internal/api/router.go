package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/akazachkov/queryflow/internal/api/middleware"
	"github.com/akazachkov/queryflow/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc
	SubmitHandler http.HandlerFunc
	PollHandler   http.HandlerFunc
	ListJobs      http.HandlerFunc
	GetJob        http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/queries", orNotImplemented(deps.SubmitHandler))
		r.Get("/api/v1/queries/{jobID}", orNotImplemented(deps.PollHandler))

		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
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
