package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/domain/jobModel"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/akolanti/BidExtract/internal/export"
	"github.com/akolanti/BidExtract/internal/ingest"
	"github.com/akolanti/BidExtract/internal/metrics"
	"github.com/akolanti/BidExtract/internal/pipeline"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/google/uuid"
)

var (
	ErrNoPaths      = errors.New("paths is required")
	ErrTooManyPaths = fmt.Errorf("at most %d paths per run", config.MaxPathsPerRun)
	ErrNoDocuments  = errors.New("no supported documents found")
	ErrShuttingDown = errors.New("service is shutting down")
)

type Runner interface {
	Start(ctx context.Context, paths []string) *pipeline.Run
}

type BatchWriter interface {
	WriteBatch(records []recordModel.Record, summary runModel.RunSummary) (export.BatchFiles, error)
}

// Service runs submitted batches in the background and keeps their status
// in the JobStore.
type Service struct {
	ctx      context.Context
	store    jobModel.JobStore
	runner   Runner
	writer   BatchWriter
	logger   *logger_i.Logger
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopping bool
}

type ServiceConfig struct {
	JobStore jobModel.JobStore
	Runner   Runner
	Writer   BatchWriter
}

// InitJobService binds running jobs to ctx: cancelling it cancels their runs.
func InitJobService(ctx context.Context, cfg ServiceConfig) *Service {
	return &Service{
		ctx:    ctx,
		store:  cfg.JobStore,
		runner: cfg.Runner,
		writer: cfg.Writer,
		logger: logger_i.NewLogger("JobService"),
	}
}

// Submit validates paths, records a QUEUED job and starts its run.
func (s *Service) Submit(ctx context.Context, paths []string) (jobModel.Job, error) {
	if len(paths) == 0 {
		return jobModel.Job{}, ErrNoPaths
	}
	if len(paths) > config.MaxPathsPerRun {
		return jobModel.Job{}, ErrTooManyPaths
	}
	docs, err := ingest.Discover(paths)
	if err != nil {
		return jobModel.Job{}, err
	}
	if len(docs) == 0 {
		return jobModel.Job{}, ErrNoDocuments
	}

	traceId := logger_i.TraceID(ctx)
	if traceId == "" {
		traceId = uuid.NewString()
	}
	job := jobModel.Job{
		Id:          uuid.NewString(),
		TraceId:     traceId,
		Paths:       docs,
		Status:      jobModel.JobStatusQueued,
		CreatedTime: time.Now(),
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return jobModel.Job{}, ErrShuttingDown
	}
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.store.SaveJob(ctx, job); err != nil {
		s.wg.Done()
		return jobModel.Job{}, fmt.Errorf("save job: %w", err)
	}
	metrics.IncrementJobsInQueue()
	s.logger.WithContext(ctx).Info("Created new job", "jobId", job.Id, "documents", len(docs))

	go s.execute(job)
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (jobModel.Job, bool) {
	if id == "" {
		return jobModel.Job{}, false
	}
	return s.store.GetJob(ctx, id)
}

// Wait blocks new submissions and waits for running jobs to finish.
func (s *Service) Wait() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) execute(job jobModel.Job) {
	defer s.wg.Done()
	ctx := logger_i.WithTrace(s.ctx, job.TraceId)
	log := s.logger.WithContext(ctx).With("jobId", job.Id)
	metrics.DecrementJobsInQueue()

	run := s.runner.Start(ctx, job.Paths)
	job.BatchId = run.BatchId
	job.Status = jobModel.JobStatusRunning
	s.save(ctx, log, job)

	var records []recordModel.Record
	for rec := range run.Records() {
		records = append(records, rec)
	}
	summary := run.Wait()
	job.Summary = &summary
	job.EndTime = time.Now()

	files, err := s.writer.WriteBatch(records, summary)
	if err != nil {
		job.Status = jobModel.JobStatusError
		job.Error = jobModel.JobError{Code: http.StatusInternalServerError, Message: "export failed: " + err.Error(), Retry: true}
		log.Error("job export failed", "error", err)
		s.save(ctx, log, job)
		return
	}
	job.Output = jobModel.JobOutput{Dir: files.Dir, Workbook: files.Workbook, MasterData: files.MasterData}
	job.Status = jobModel.JobStatusComplete
	s.save(ctx, log, job)
	log.Info("job complete", "batch", job.BatchId, "succeeded", summary.Succeeded, "failed", summary.Failed)
}

// save uses a fresh context so the final status is recorded even after shutdown.
func (s *Service) save(ctx context.Context, log *logger_i.Logger, job jobModel.Job) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.SaveJob(saveCtx, job); err != nil {
		log.Error("could not save job status", "status", job.Status, "error", err)
	}
}
