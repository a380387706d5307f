package model

import "time"

// RunStatus is the outcome of one job execution.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunResult summarizes one job execution. It is built once by the run
// executor and not modified afterwards.
type RunResult struct {
	ID           string        `json:"id"`
	Job          string        `json:"job_name"`
	Status       RunStatus     `json:"status"`
	RecordsFound int           `json:"records_found"`
	RecordsSaved int           `json:"records_saved"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// OK reports whether the run succeeded.
func (r RunResult) OK() bool {
	return r.Status == RunStatusSuccess
}
