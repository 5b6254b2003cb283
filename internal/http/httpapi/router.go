// Package httpapi assembles the edge router.
package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/devcapsules/codecapsules-sub003/internal/http/handlers"
	"github.com/devcapsules/codecapsules-sub003/internal/infra"
	"github.com/devcapsules/codecapsules-sub003/internal/metrics"
	"github.com/devcapsules/codecapsules-sub003/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.AuthOptional(cfg.JWTSecret))

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/v1/capsules/generate", app.GenerateCapsule)
	r.Get("/v1/jobs/{jobID}", app.JobProgress)

	return r
}
