package models

import "time"

// ProfileSnapshot is a compressed copy of a local browser profile
type ProfileSnapshot struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
	DataPath  string    `json:"-"` // Path to the tar.gz archive
}

// ScheduleResponse describes today's browsing plan
type ScheduleResponse struct {
	Slots   []Slot    `json:"slots"`
	Next    time.Time `json:"next,omitempty"`
	Running bool      `json:"running"`
}

// CreateRunRequest is the payload for triggering a browse run
type CreateRunRequest struct {
	Kind RunKind `json:"kind,omitempty"`
}
