package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/akazachkov/queryflow/internal/api/response"
	"github.com/akazachkov/queryflow/internal/archive"
)

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs,
// listing recently finished jobs from the archive.
func NewListJobsHandler(arch archive.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a positive integer", nil)
				return
			}
			limit = n
		}

		jobs, err := arch.ListRecent(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.JSON(w, jobs)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// Unlike the live status endpoint this reads the archive only, so unknown
// ids are a plain 404.
func NewGetJobHandler(arch archive.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"job id must be a UUID", nil)
			return
		}

		job, err := arch.GetJob(r.Context(), id)
		if errors.Is(err, archive.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not archived", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		response.JSON(w, job)
	}
}
