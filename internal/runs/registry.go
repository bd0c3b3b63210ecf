// Package runs keeps an in-memory history of browser runs.
package runs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/birdhouse/pkg/models"
)

// DefaultLimit is how many runs the registry remembers.
const DefaultLimit = 200

// ErrNotFound is returned for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// Registry stores snapshots of runs. Callers own the *models.Run they
// mutate and call Save to publish a new snapshot; readers always get copies.
type Registry struct {
	runs  sync.Map // map[runID]*models.Run
	mu    sync.Mutex
	order []string
	limit int
	now   func() time.Time
}

// NewRegistry creates a registry keeping the last limit runs.
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Registry{
		limit: limit,
		now:   time.Now,
	}
}

// Begin creates and stores a RUNNING run.
func (r *Registry) Begin(kind models.RunKind, trigger models.Trigger) *models.Run {
	run := &models.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    models.StatusRunning,
		Trigger:   trigger,
		StartedAt: r.now(),
	}
	r.Save(run)
	return run
}

// Save stores a snapshot of run.
func (r *Registry) Save(run *models.Run) {
	snapshot := clone(run)
	if _, loaded := r.runs.Swap(run.ID, snapshot); loaded {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, run.ID)
	for len(r.order) > r.limit {
		r.runs.Delete(r.order[0])
		r.order = r.order[1:]
	}
}

// Finish marks run COMPLETED, or ERROR when err is non-nil, and stores it.
func (r *Registry) Finish(run *models.Run, err error) {
	run.FinishedAt = r.now()
	if err != nil {
		run.Status = models.StatusError
		run.Errors = append(run.Errors, err.Error())
	} else {
		run.Status = models.StatusCompleted
	}
	r.Save(run)
}

// Skip records a run that never started because another was in progress.
func (r *Registry) Skip(kind models.RunKind, trigger models.Trigger, reason string) *models.Run {
	now := r.now()
	run := &models.Run{
		ID:         uuid.New().String(),
		Kind:       kind,
		Status:     models.StatusSkipped,
		Trigger:    trigger,
		StartedAt:  now,
		FinishedAt: now,
	}
	if reason != "" {
		run.Errors = []string{reason}
	}
	r.Save(run)
	return run
}

// Get retrieves a run by ID
func (r *Registry) Get(id string) (*models.Run, error) {
	value, ok := r.runs.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(value.(*models.Run)), nil
}

// List returns runs newest first, optionally filtered by kind and status
func (r *Registry) List(kind models.RunKind, status models.RunStatus) []*models.Run {
	r.mu.Lock()
	ids := append([]string(nil), r.order...)
	r.mu.Unlock()

	runs := make([]*models.Run, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		value, ok := r.runs.Load(ids[i])
		if !ok {
			continue
		}
		run := value.(*models.Run)

		if kind != "" && run.Kind != kind {
			continue
		}
		if status != "" && run.Status != status {
			continue
		}

		runs = append(runs, clone(run))
	}
	return runs
}

// Running returns the runs currently in progress.
func (r *Registry) Running() []*models.Run {
	return r.List("", models.StatusRunning)
}

func clone(run *models.Run) *models.Run {
	cp := *run
	cp.Errors = append([]string(nil), run.Errors...)
	return &cp
}
