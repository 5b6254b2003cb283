package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devcapsules/codecapsules-sub003/internal/admission"
	"github.com/devcapsules/codecapsules-sub003/internal/domain"
	"github.com/devcapsules/codecapsules-sub003/internal/metrics"
	"github.com/devcapsules/codecapsules-sub003/internal/middleware"
)

type generateRequest struct {
	Prompt     string `json:"prompt"`
	Language   string `json:"language"`
	Difficulty string `json:"difficulty,omitempty"`
	Type       string `json:"type,omitempty"`
}

// GenerateCapsule admits, enqueues and acknowledges one job. The response
// is a 202 with the job ID; clients poll JobProgress for the outcome.
func (a *App) GenerateCapsule(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Language = strings.TrimSpace(req.Language)
	if req.Prompt == "" || req.Language == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt and language are required")
		return
	}

	op := domain.JobTypeGeneration
	if req.Type == string(domain.JobTypeExecution) {
		op = domain.JobTypeExecution
	}

	userID := middleware.UserIDFromContext(r.Context())
	plan := domain.NormalizePlan(middleware.PlanFromContext(r.Context()))

	dec, err := a.Admission.Admit(r.Context(), admission.Request{
		UserID:   userID,
		ClientIP: middleware.ClientIP(r),
		Plan:     plan,
		Op:       op,
	})
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		metrics.AdmissionRejectsTotal.WithLabelValues("rate_limit_minute").Inc()
		a.error(w, http.StatusTooManyRequests, "rate_limit_minute", err.Error())
		return
	case errors.Is(err, domain.ErrQuotaExceeded):
		metrics.AdmissionRejectsTotal.WithLabelValues("quota_exceeded").Inc()
		a.error(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
		return
	case err != nil:
		a.Logger.Error().Err(err).Msg("api: admission check failed")
		a.error(w, http.StatusInternalServerError, "internal", "admission check failed")
		return
	}

	w.Header().Set("X-Quota-Limit", strconv.Itoa(dec.Limit))
	w.Header().Set("X-Quota-Remaining", strconv.Itoa(dec.Remaining))
	w.Header().Set("X-Quota-Type", dec.QuotaType)

	job := domain.Job{
		ID:          uuid.NewString(),
		UserID:      userID,
		Prompt:      req.Prompt,
		Language:    req.Language,
		Difficulty:  req.Difficulty,
		Type:        op,
		SubmittedAt: time.Now().UTC(),
		Attempt:     1,
		QuotaKey:    dec.QuotaKey,
	}

	if err := a.Progress.Init(r.Context(), job.ID); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: progress init failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to register job")
		return
	}
	if err := a.Queue.Enqueue(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: enqueue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}
	if depth, err := a.Queue.Depth(r.Context()); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}

	a.Logger.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Str("plan", string(plan)).
		Str("type", string(op)).
		Msg("api: job queued")

	a.json(w, http.StatusAccepted, map[string]string{
		"jobId":  job.ID,
		"status": string(domain.JobStatusQueued),
	})
}
