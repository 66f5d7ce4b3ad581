package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/akolanti/BidExtract/internal/aggregate"
	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/customHttpClient"
	"github.com/akolanti/BidExtract/internal/data/store"
	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/akolanti/BidExtract/internal/export"
	"github.com/akolanti/BidExtract/internal/extraction"
	"github.com/akolanti/BidExtract/internal/handlers"
	"github.com/akolanti/BidExtract/internal/ingest"
	"github.com/akolanti/BidExtract/internal/job"
	"github.com/akolanti/BidExtract/internal/llm"
	"github.com/akolanti/BidExtract/internal/llm/gemini"
	"github.com/akolanti/BidExtract/internal/llm/openaiLLM"
	"github.com/akolanti/BidExtract/internal/mcpserver"
	"github.com/akolanti/BidExtract/internal/parse"
	"github.com/akolanti/BidExtract/internal/pipeline"
	"github.com/akolanti/BidExtract/internal/server"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	httpClient := customHttpClient.NewClient()
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.NewGeminiClient(ctx, cfg.APIKey, cfg.Model, httpClient)
	case config.ProviderOpenAI:
		return openaiLLM.New(openaiLLM.Config{APIKey: cfg.APIKey, BaseURL: cfg.ModelEndpoint, Model: cfg.Model, HTTPClient: httpClient})
	}
	return nil, fmt.Errorf("provider %q is not supported", cfg.Provider)
}

// preflight fails fast on bad credentials or an unreachable endpoint so no
// document is started against a dead provider.
func preflight(ctx context.Context, provider llm.Provider) error {
	ctx, cancel := context.WithTimeout(ctx, config.PreflightTimeout)
	defer cancel()
	if err := provider.Ping(ctx); err != nil {
		return failure.New(failure.ConfigError, "preflight", fmt.Errorf("%s endpoint check failed: %w", provider.Name(), err))
	}
	return nil
}

// buildPipeline wires every collaborator from cfg and checks the provider.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *logger_i.Logger) (*pipeline.Pipeline, error) {
	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, withCode(config.ExitConfig, failure.New(failure.ConfigError, "provider", err))
	}
	if err := preflight(ctx, provider); err != nil {
		return nil, withCode(config.ExitConfig, err)
	}
	logger.Info("provider ready", "provider", provider.Name(), "model", cfg.Model)

	policy, err := aggregate.ParsePolicy(cfg.ConflictPolicy)
	if err != nil {
		return nil, withCode(config.ExitConfig, failure.New(failure.ConfigError, "policy", err))
	}
	parser, err := parse.New(cfg.Schema)
	if err != nil {
		return nil, withCode(config.ExitConfig, failure.New(failure.ConfigError, "schema", err))
	}

	client := extraction.NewClient(
		provider,
		extraction.NewRateGate(cfg.RequestsPerMinute, cfg.TokensPerMinute),
		extraction.PolicyFromConfig(cfg),
		cfg.RequestTimeout,
		extraction.WithCache(store.NewCompletionCache(ctx, cfg.CacheRedisAddr)),
	)

	return pipeline.New(pipeline.SettingsFromConfig(cfg), pipeline.Deps{
		Loader:     ingest.NewLoader(config.PageExtractTimeout),
		Extractor:  client,
		Parser:     parser,
		Aggregator: aggregate.New(cfg.Schema, policy),
	}), nil
}

func runBatch(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	logger := logger_i.NewLogger("main")
	logger.Debug("configuration", "config", cfg.Redacted())

	paths, err := ingest.Discover(args)
	if err != nil {
		return withCode(config.ExitConfig, err)
	}
	if len(paths) == 0 {
		return withCode(config.ExitConfig, errors.New("no supported documents found"))
	}

	pipe, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var completed atomic.Int64
	run := pipe.Start(ctx, paths)

	serverCtx, stopServer := context.WithCancel(context.Background())
	serverDone := make(chan struct{})
	if cfg.MetricsAddr != "" {
		srv := server.New(cfg.MetricsAddr, func() any {
			return map[string]any{"batch_id": run.BatchId, "documents": len(paths), "completed": completed.Load()}
		})
		go func() {
			defer close(serverDone)
			if err := srv.Serve(serverCtx); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	} else {
		close(serverDone)
	}
	defer func() {
		stopServer()
		<-serverDone
	}()

	records := make([]recordModel.Record, 0, len(paths))
	for rec := range run.Records() {
		completed.Add(1)
		records = append(records, rec)
	}
	summary := run.Wait()

	files, err := export.NewWriter(cfg.OutputDir, cfg.Schema).WriteBatch(records, summary)
	if err != nil {
		return withCode(config.ExitFailed, err)
	}
	printSummary(stdout, summary, files)

	if summary.HasFailures() {
		return withCode(config.ExitFailed, fmt.Errorf("%d of %d documents failed", summary.Failed, summary.Processed))
	}
	return nil
}

func printSummary(w io.Writer, s runModel.RunSummary, files export.BatchFiles) {
	fmt.Fprintf(w, "batch %s: %d processed, %d done, %d failed in %s\n",
		s.BatchId, s.Processed, s.Succeeded, s.Failed, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	for _, d := range s.FailedDocuments() {
		fmt.Fprintf(w, "  FAILED %s: %s: %s\n", d.Path, d.ErrorKind, d.Error)
	}
	fmt.Fprintf(w, "workbook:    %s\nmaster data: %s\n", files.Workbook, files.MasterData)
}

func serveMCP(ctx context.Context, cfg *config.Config) error {
	logger := logger_i.NewLogger("main")
	pipe, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	svc := mcpserver.New(pipe, export.NewWriter(cfg.OutputDir, cfg.Schema), cfg.Schema)
	logger.Info("serving MCP over stdio")
	if err := svc.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return withCode(config.ExitFailed, err)
	}
	return nil
}

// serveAPI runs submitted batches until ctx is done. Runs in flight are
// cancelled with ctx and their documents reported Failed: Cancelled.
func serveAPI(ctx context.Context, cfg *config.Config, listenAddr string) error {
	logger := logger_i.NewLogger("main")
	pipe, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	service := job.InitJobService(ctx, job.ServiceConfig{
		JobStore: store.NewJobStore(ctx, cfg.CacheRedisAddr),
		Runner:   pipe,
		Writer:   export.NewWriter(cfg.OutputDir, cfg.Schema),
	})
	srv := server.New(listenAddr, nil, handlers.NewJobHandler(service).Routes)

	err = srv.Serve(ctx)
	service.Wait()
	if err != nil {
		return withCode(config.ExitFailed, err)
	}
	return nil
}
