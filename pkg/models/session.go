package models

import (
	"fmt"
	"time"
)

// RunKind identifies what a browser run did
type RunKind string

const (
	KindBrowse RunKind = "browse"
	KindLogin  RunKind = "login"
	KindPost   RunKind = "post"
)

// RunStatus represents the current state of a browser run
type RunStatus string

const (
	StatusRunning   RunStatus = "RUNNING"
	StatusCompleted RunStatus = "COMPLETED"
	StatusError     RunStatus = "ERROR"
	StatusSkipped   RunStatus = "SKIPPED"
)

// Trigger records who started a run
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerAPI      Trigger = "api"
)

// Run represents one browser session driven by the bot
type Run struct {
	ID         string        `json:"id"`
	Kind       RunKind       `json:"kind"`
	Status     RunStatus     `json:"status"`
	Trigger    Trigger       `json:"trigger"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt,omitempty"`
	Budget     time.Duration `json:"budget,omitempty"`
	Actions    int           `json:"actions"`
	Errors     []string      `json:"errors,omitempty"`
}

// Elapsed returns how long the run took, or has taken so far.
func (r *Run) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Slot is a daily time at which a browsing session fires
type Slot struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// CronSpec renders the slot as a five-field daily cron expression.
func (s Slot) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
}

// Before orders slots within a day.
func (s Slot) Before(o Slot) bool {
	if s.Hour != o.Hour {
		return s.Hour < o.Hour
	}
	return s.Minute < o.Minute
}
