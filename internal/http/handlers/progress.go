package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// JobProgress serves the polling read model. Unknown job IDs and records
// past their TTL look identical to clients.
func (a *App) JobProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job id required")
		return
	}

	rec, ok, err := a.Progress.Get(r.Context(), jobID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("api: progress read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read job status")
		return
	}
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found or expired")
		return
	}
	a.json(w, http.StatusOK, rec)
}
