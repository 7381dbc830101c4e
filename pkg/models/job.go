package models

import "time"

// JobStatus is the state of an extraction job.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job tracks one extraction run, including per-member counts for ZIP
// fan-out.
type Job struct {
	ID          string     `json:"id"`
	DocumentID  string     `json:"document_id"`
	Status      JobStatus  `json:"status"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ResultPath  string     `json:"result_path,omitempty"`
	SchemaLabel string     `json:"schema_label,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Clone returns a copy of the job.
func (j *Job) Clone() *Job {
	out := *j
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}
