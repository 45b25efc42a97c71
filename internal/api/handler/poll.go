package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/akazachkov/queryflow/internal/api/response"
	"github.com/akazachkov/queryflow/internal/status"
	"github.com/akazachkov/queryflow/pkg/models"
)

// StatusGetter defines the reconciler interface the poll handler depends on.
type StatusGetter interface {
	Get(ctx context.Context, jobID string) status.ClientStatus
}

// NewPollHandler returns an http.HandlerFunc for GET /api/v1/queries/{jobID}.
// Unknown but well-formed ids report pending: submission and the first
// status write are not atomic, so not-found is indistinguishable from
// not-yet-visible.
func NewPollHandler(svc StatusGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if _, err := uuid.Parse(jobID); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"job id must be a UUID", nil)
			return
		}

		cs := svc.Get(r.Context(), jobID)
		response.JSON(w, pollResponse{
			Status:   cs.Status,
			Progress: cs.Progress,
			Result:   cs.Result,
			Message:  cs.Message,
		})
	}
}

type pollResponse struct {
	Status   string           `json:"status"`
	Progress *models.Progress `json:"progress,omitempty"`
	Result   json.RawMessage  `json:"result,omitempty"`
	Message  string           `json:"message,omitempty"`
}
