package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/akazachkov/queryflow/internal/api/response"
	"github.com/akazachkov/queryflow/internal/gateway"
)

// maxUploadBytes bounds the in-memory portion of multipart parsing; larger
// uploads spill to disk.
const maxUploadBytes = 32 << 20

// Submitter defines the interface the handler depends on.
type Submitter interface {
	Submit(ctx context.Context, sub gateway.Submission) (string, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/queries.
// The request carries exactly one of: a multipart file field "audio", or a
// form field "questionnaire".
func NewSubmitHandler(gw Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Malformed form body", nil)
			return
		}

		sub := gateway.Submission{}

		audio, hdr, err := r.FormFile("audio")
		switch {
		case err == nil:
			defer audio.Close()
			sub.Audio = audio
			sub.AudioFilename = hdr.Filename
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			// No audio; questionnaire may still be present.
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unreadable audio upload", nil)
			return
		}

		sub.Questionnaire = strings.TrimSpace(r.FormValue("questionnaire"))

		if (sub.Audio == nil) == (sub.Questionnaire == "") {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Exactly one of audio or questionnaire is required", nil)
			return
		}

		jobID, err := gw.Submit(r.Context(), sub)
		if err != nil {
			if errors.Is(err, gateway.ErrQueueUnavailable) {
				response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
					"Submission could not be queued, please retry", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Accepted(w, submitResponse{
			JobID:  jobID,
			Status: "processing",
		})
	}
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
