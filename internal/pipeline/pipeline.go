package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/domain/commonModels"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/akolanti/BidExtract/internal/extraction"
	"github.com/akolanti/BidExtract/internal/worker"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/google/uuid"
)

type Loader interface {
	Load(ctx context.Context, path string) (commonModels.Document, []string, error)
}

type Extractor interface {
	Extract(ctx context.Context, req recordModel.ExtractionRequest) (extraction.Result, error)
}

// runScoped is implemented by extractors that remember results per run.
type runScoped interface {
	EndRun(traceId string)
}

type Parser interface {
	Parse(raw string, ordinal int) (recordModel.PartialRecord, error)
}

type Aggregator interface {
	Aggregate(docId string, partials []recordModel.PartialRecord, failures []recordModel.ChunkFailure) recordModel.Record
}

type Deps struct {
	Loader     Loader
	Extractor  Extractor
	Parser     Parser
	Aggregator Aggregator
}

type Settings struct {
	Schema            recordModel.Schema
	Params            recordModel.ModelParams
	MaxTokensPerChunk int
	ChunkOverlap      int
	Concurrency       int
	ChunkFanout       int
	ForcedChunkFactor float64
	IdleWorkerTimeout time.Duration
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Schema: cfg.Schema,
		Params: recordModel.ModelParams{
			Provider:        cfg.Provider,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
		MaxTokensPerChunk: cfg.MaxTokensPerChunk,
		ChunkOverlap:      cfg.ChunkOverlap,
		Concurrency:       cfg.Concurrency,
		ChunkFanout:       cfg.ChunkFanout,
		ForcedChunkFactor: cfg.ForcedChunkFactor,
	}
}

// Pipeline turns document paths into Records. One Pipeline can serve many
// runs; the rate gate and per-run dedup state live in the Extractor.
type Pipeline struct {
	settings Settings
	deps     Deps
	logger   *logger_i.Logger
	now      func() time.Time

	batchMu   sync.Mutex
	lastBatch string
	batchSeq  int
}

func New(settings Settings, deps Deps) *Pipeline {
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	if settings.ChunkFanout < 1 {
		settings.ChunkFanout = 1
	}
	if settings.ForcedChunkFactor <= 0 || settings.ForcedChunkFactor > 1 {
		settings.ForcedChunkFactor = 1
	}
	return &Pipeline{settings: settings, deps: deps, logger: logger_i.NewLogger("pipeline"), now: time.Now}
}

// Run is one batch in flight. Records arrive in completion order, one per
// document, and the channel is closed once every document is terminal.
type Run struct {
	BatchId string
	TraceId string

	records  chan recordModel.Record
	recorder *runModel.Recorder
	done     chan struct{}
	summary  runModel.RunSummary
}

func (r *Run) Records() <-chan recordModel.Record {
	return r.records
}

// Wait blocks until the run is over and returns the finalized summary.
func (r *Run) Wait() runModel.RunSummary {
	<-r.done
	return r.summary
}

// Start processes paths in the background. Cancelling ctx stops new model
// calls; documents that had not finished are reported Failed: Cancelled.
func (p *Pipeline) Start(ctx context.Context, paths []string) *Run {
	batchId := p.nextBatchId()
	traceId := uuid.NewString()
	ctx = logger_i.WithTrace(ctx, traceId)

	recorder := runModel.NewRecorder(batchId, paths)
	docs := recorder.Pending()
	run := &Run{
		BatchId:  batchId,
		TraceId:  traceId,
		records:  make(chan recordModel.Record, len(docs)),
		recorder: recorder,
		done:     make(chan struct{}),
	}

	log := p.logger.WithContext(ctx).With("batch", batchId)
	log.Info("run started", "documents", len(docs), "concurrency", p.settings.Concurrency)

	go func() {
		pool := worker.NewPool(ctx, worker.PoolConfig{
			MaxWorkers:           int64(p.settings.Concurrency),
			IdleTimeout:          p.settings.IdleWorkerTimeout,
			RequestsPerNewWorker: 1,
		}, func(ctx context.Context, task worker.Task) {
			run.records <- p.processDocument(ctx, recorder, task.Path)
		})
		for _, path := range docs {
			pool.Submit(worker.Task{Path: path, TraceId: traceId})
		}
		pool.Close()
		if scoped, ok := p.deps.Extractor.(runScoped); ok {
			scoped.EndRun(traceId)
		}

		for _, path := range recorder.Pending() {
			// a handler that panicked never completed its document
			run.records <- p.fail(ctx, recorder, path, internalError(path))
		}

		run.summary = recorder.Finalize()
		close(run.records)
		log.Info("run finished", "processed", run.summary.Processed, "succeeded", run.summary.Succeeded, "failed", run.summary.Failed,
			"elapsed", run.summary.FinishedAt.Sub(run.summary.StartedAt))
		close(run.done)
	}()
	return run
}

// nextBatchId names the run by its start second. Runs started within the same
// second get -2, -3, ... so their output folders stay apart.
func (p *Pipeline) nextBatchId() string {
	base := runModel.NewBatchId(p.now())
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	if base != p.lastBatch {
		p.lastBatch, p.batchSeq = base, 1
		return base
	}
	p.batchSeq++
	return fmt.Sprintf("%s-%d", base, p.batchSeq)
}
