package model

import "time"

// RunStatus represents the state of an enrichment run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusAborted  RunStatus = "aborted"
)

// RunSummary counts per-building outcomes of one enrichment run.
type RunSummary struct {
	Enriched int `json:"enriched"` // all adapters succeeded or confirmed not-found
	Partial  int `json:"partial"`  // at least one adapter succeeded, at least one errored
	Skipped  int `json:"skipped"`  // nothing eligible or selection raced
	Failed   int `json:"failed"`   // no adapter call completed for the building
}

// Total returns the number of buildings the run touched.
func (s RunSummary) Total() int {
	return s.Enriched + s.Partial + s.Skipped + s.Failed
}

// Run records one orchestrator invocation and its outcome.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	BatchSize  int        `json:"batch_size"`
	Summary    RunSummary `json:"summary"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}
