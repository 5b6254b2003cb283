package pipeline

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/devcapsules/codecapsules-sub003/internal/domain"
	"github.com/devcapsules/codecapsules-sub003/internal/infra"
)

// Handler is the HTTP surface of the compute tier. All routes sit behind
// the tunnel signature middleware; by the time a request lands here it is
// authenticated.
type Handler struct {
	generator Generator
	logger    infra.Logger
}

func NewHandler(generator Generator, logger infra.Logger) *Handler {
	return &Handler{generator: generator, logger: logger}
}

// Generate runs one capsule generation. Application-level failures are
// reported as 200 with success=false so the caller can distinguish them
// from transport problems.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req domain.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.json(w, http.StatusBadRequest, domain.PipelineResponse{
			Success: false,
			Error:   "invalid payload",
		})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" || strings.TrimSpace(req.Language) == "" {
		h.json(w, http.StatusOK, domain.PipelineResponse{
			Success: false,
			JobID:   req.JobID,
			Error:   "prompt and language are required",
		})
		return
	}

	out, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", req.JobID).Msg("pipeline: generation failed")
		h.json(w, http.StatusOK, domain.PipelineResponse{
			Success: false,
			JobID:   req.JobID,
			Error:   "generation failed",
		})
		return
	}

	capsule := map[string]any{}
	raw, err := json.Marshal(out.Capsule)
	if err == nil {
		_ = json.Unmarshal(raw, &capsule)
	}

	elapsed := time.Since(start).Milliseconds()
	if out.GenerationTimeMs > elapsed {
		elapsed = out.GenerationTimeMs
	}

	h.logger.Info().
		Str("job_id", req.JobID).
		Str("language", req.Language).
		Float64("quality_score", out.QualityScore).
		Int64("generation_time_ms", elapsed).
		Msg("pipeline: capsule generated")

	h.json(w, http.StatusOK, domain.PipelineResponse{
		Success:          true,
		JobID:            req.JobID,
		Capsule:          capsule,
		QualityScore:     out.QualityScore,
		TokenUsage:       out.TokenUsage,
		GenerationTimeMs: elapsed,
		Pipeline:         out.Pipeline,
	})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
