package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/akolanti/BidExtract/internal/api"
	"github.com/akolanti/BidExtract/internal/domain/jobModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/akolanti/BidExtract/internal/job"
	"github.com/go-chi/chi/v5"
)

type MockJobService struct {
	OnSubmit func(ctx context.Context, paths []string) (jobModel.Job, error)
	OnGetJob func(ctx context.Context, id string) (jobModel.Job, bool)
}

func (m *MockJobService) Submit(ctx context.Context, paths []string) (jobModel.Job, error) {
	return m.OnSubmit(ctx, paths)
}

func (m *MockJobService) GetJob(ctx context.Context, id string) (jobModel.Job, bool) {
	return m.OnGetJob(ctx, id)
}

func router(svc JobService) http.Handler {
	r := chi.NewRouter()
	NewJobHandler(svc).Routes(r)
	return r
}

func TestPostRunHandler(t *testing.T) {
	svc := &MockJobService{
		OnSubmit: func(ctx context.Context, paths []string) (jobModel.Job, error) {
			switch {
			case len(paths) == 0:
				return jobModel.Job{}, job.ErrNoPaths
			case paths[0] == "busy":
				return jobModel.Job{}, job.ErrShuttingDown
			}
			return jobModel.Job{Id: "job-1", Paths: paths, Status: jobModel.JobStatusQueued}, nil
		},
	}

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"accepted", `{"paths":["a.pdf","b.docx"]}`, http.StatusAccepted},
		{"malformed json", `{"paths":`, http.StatusBadRequest},
		{"no paths", `{"paths":[]}`, http.StatusBadRequest},
		{"shutting down", `{"paths":["busy"]}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router(svc).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d; want %d, body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusAccepted {
				return
			}
			var res api.InitJobResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.Id != "job-1" || res.StatusURL != "status/job-1" || res.Documents != 2 {
				t.Errorf("response = %+v", res)
			}
		})
	}
}

func TestGetStatusHandler(t *testing.T) {
	finished := jobModel.Job{
		Id:          "job-1",
		BatchId:     "20241019T101500",
		Status:      jobModel.JobStatusComplete,
		Summary:     &runModel.RunSummary{BatchId: "20241019T101500", Processed: 2, Succeeded: 1, Failed: 1},
		Output:      jobModel.JobOutput{Workbook: "out/records.xlsx", MasterData: "out/master_data.json"},
		CreatedTime: time.Now(),
	}
	svc := &MockJobService{
		OnGetJob: func(ctx context.Context, id string) (jobModel.Job, bool) {
			if id == finished.Id {
				return finished, true
			}
			return jobModel.Job{}, false
		},
	}

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/job-1", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
		var res api.JobResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.Status != "COMPLETE" || res.Summary.Failed != 1 || res.Output == nil || res.Error != nil {
			t.Errorf("response = %+v", res)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/ghost", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("code = %d; want 404", rec.Code)
		}
		var res api.JobResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &res)
		if res.Error == nil || res.Error.Message != "Job not found" {
			t.Errorf("response = %+v", res)
		}
	})
}

func TestWriteErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, http.StatusBadRequest, "id-1", errors.New("bad").Error())
	if rec.Header().Get("Content-Type") != "application/json" || rec.Code != http.StatusBadRequest {
		t.Errorf("code %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}
