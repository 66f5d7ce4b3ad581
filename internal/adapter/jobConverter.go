package adapter

import (
	"fmt"

	"github.com/akolanti/BidExtract/internal/api"
	"github.com/akolanti/BidExtract/internal/domain/jobModel"
)

func ToInitJobResponse(job jobModel.Job) api.InitJobResponse {
	return api.InitJobResponse{
		Id:        job.Id,
		StatusURL: fmt.Sprintf("status/%s", job.Id),
		Documents: len(job.Paths),
	}
}

func ToAPIResponse(job jobModel.Job) api.JobResponse {
	var errorPtr *api.JobOutgoingError
	if job.Error.Message != "" || job.Error.Code != 0 {
		errorPtr = &api.JobOutgoingError{
			Code:    job.Error.Code,
			Message: job.Error.Message,
			Retry:   job.Error.Retry,
		}
	}

	var output *api.Output
	if job.Output.MasterData != "" {
		output = &api.Output{Workbook: job.Output.Workbook, MasterData: job.Output.MasterData}
	}

	return api.JobResponse{
		Id:        job.Id,
		BatchId:   job.BatchId,
		Status:    string(job.Status),
		Summary:   job.Summary,
		Output:    output,
		Error:     errorPtr,
		StartTime: job.CreatedTime,
		EndTime:   job.EndTime,
	}
}

func BadRequest(id string, message string, code int) api.JobResponse {
	return api.JobResponse{
		Id:     id,
		Status: string(api.JobStatusError),
		Error: &api.JobOutgoingError{
			Code:    code,
			Message: message,
			Retry:   false,
		},
	}
}
