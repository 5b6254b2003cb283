package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/devcapsules/codecapsules-sub003/internal/admission"
	"github.com/devcapsules/codecapsules-sub003/internal/infra"
	"github.com/devcapsules/codecapsules-sub003/internal/progress"
	"github.com/devcapsules/codecapsules-sub003/internal/queue"
)

// App bundles the edge tier's dependencies for the HTTP handlers.
type App struct {
	Admission *admission.Controller
	Queue     queue.Queue
	Progress  *progress.Store
	Logger    infra.Logger
}

func NewApp(adm *admission.Controller, q queue.Queue, prog *progress.Store, logger infra.Logger) *App {
	return &App{Admission: adm, Queue: q, Progress: prog, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
