package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunKind string

const (
	RunKindQuery  RunKind = "query"
	RunKindCanary RunKind = "canary"
)

// QueryRun summarizes one pass of the ingestion pipeline for a city.
type QueryRun struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Kind          RunKind    `json:"kind" db:"kind"`
	City          string     `json:"city" db:"city"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	ListingsFound int        `json:"listings_found" db:"listings_found"`
	Geocoded      int        `json:"geocoded" db:"geocoded"`
	GeocodeMisses int        `json:"geocode_misses" db:"geocode_misses"`
	Preseeded     int        `json:"preseeded" db:"preseeded"`
	Fallback      bool       `json:"fallback" db:"fallback"`
	Advisory      string     `json:"advisory,omitempty" db:"advisory"`
	Error         string     `json:"error,omitempty" db:"error"`
}

func NewQueryRun(kind RunKind, city string) *QueryRun {
	return &QueryRun{
		ID:        uuid.New(),
		Kind:      kind,
		City:      city,
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
	}
}

// Finish stamps the run as completed, or failed when err is non-nil.
func (r *QueryRun) Finish(err error) {
	now := time.Now()
	r.FinishedAt = &now
	if err != nil {
		r.Status = RunStatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = RunStatusCompleted
}

func (r *QueryRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
