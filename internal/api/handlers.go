package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/birdhouse/internal/runs"
	"github.com/shehryarbajwa/birdhouse/internal/schedule"
	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// Scheduler is the part of the scheduler the API exposes.
type Scheduler interface {
	Slots() []models.Slot
	Next() time.Time
	Running() bool
	Trigger(trigger models.Trigger) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	scheduler Scheduler
	runs      *runs.Registry
}

// NewHandler creates a new HTTP handler
func NewHandler(scheduler Scheduler, registry *runs.Registry) *Handler {
	return &Handler{
		scheduler: scheduler,
		runs:      registry,
	}
}

// GetSchedule handles GET /v1/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ScheduleResponse{
		Slots:   h.scheduler.Slots(),
		Next:    h.scheduler.Next(),
		Running: h.scheduler.Running(),
	})
}

// CreateRun handles POST /v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRunRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Kind != "" && req.Kind != models.KindBrowse {
		http.Error(w, "only browse runs can be started over the API", http.StatusBadRequest)
		return
	}

	if err := h.scheduler.Trigger(models.TriggerAPI); err != nil {
		if errors.Is(err, schedule.ErrBusy) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if errors.Is(err, schedule.ErrStopped) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("🚀 Browsing session requested by %s", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	run, err := h.runs.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /v1/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	kind := models.RunKind(r.URL.Query().Get("kind"))
	status := models.RunStatus(r.URL.Query().Get("status"))

	writeJSON(w, http.StatusOK, h.runs.List(kind, status))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
