package jobModel

import (
	"context"
	"time"

	"github.com/akolanti/BidExtract/internal/domain/runModel"
)

type JobStatus string

const (
	JobStatusQueued   JobStatus = "QUEUED"
	JobStatusRunning  JobStatus = "RUNNING"
	JobStatusComplete JobStatus = "COMPLETE"
	JobStatusError    JobStatus = "Error"
)

// Job is one batch submitted over HTTP. It is saved on every status change.
type Job struct {
	Id          string               `json:"id"`
	TraceId     string               `json:"trace_id"`
	BatchId     string               `json:"batch_id,omitempty"`
	Paths       []string             `json:"paths"`
	Status      JobStatus            `json:"status"`
	Error       JobError             `json:"error,omitempty"`
	Summary     *runModel.RunSummary `json:"summary,omitempty"`
	Output      JobOutput            `json:"output,omitempty"`
	CreatedTime time.Time            `json:"created_time"`
	EndTime     time.Time            `json:"end_time,omitempty"`
}

type JobError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

type JobOutput struct {
	Dir        string `json:"dir,omitempty"`
	Workbook   string `json:"workbook,omitempty"`
	MasterData string `json:"master_data,omitempty"`
}

func (j Job) Finished() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusError
}

type JobStore interface {
	GetJob(ctx context.Context, jobId string) (Job, bool)
	SaveJob(ctx context.Context, job Job) error
	DeleteJob(ctx context.Context, jobID string)
}
