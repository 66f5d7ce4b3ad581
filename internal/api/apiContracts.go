package api

import (
	"time"

	"github.com/akolanti/BidExtract/internal/domain/runModel"
)

type JobExternalStatus string

const (
	JobStatusError JobExternalStatus = "Error"
)

type JobResponse struct {
	Id        string               `json:"id"`
	BatchId   string               `json:"batch_id,omitempty"`
	Status    string               `json:"status"`
	Summary   *runModel.RunSummary `json:"summary,omitempty"`
	Output    *Output              `json:"output,omitempty"`
	Error     *JobOutgoingError    `json:"error,omitempty"`
	StartTime time.Time            `json:"start_time"`
	EndTime   time.Time            `json:"end_time,omitempty"`
}

type JobOutgoingError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"can_retry"`
}

type Output struct {
	Workbook   string `json:"workbook"`
	MasterData string `json:"master_data"`
}

type InitJobResponse struct {
	Id        string `json:"id"`
	StatusURL string `json:"status_url"`
	Documents int    `json:"documents"`
}

// requests---------------------

type RunRequest struct {
	Paths []string `json:"paths"`
}
