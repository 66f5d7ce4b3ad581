package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/BidExtract/internal/domain/commonModels"
	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/akolanti/BidExtract/internal/extraction"
	"github.com/akolanti/BidExtract/internal/metrics"
	"github.com/akolanti/BidExtract/internal/segment"
	"golang.org/x/sync/errgroup"
)

func (p *Pipeline) processDocument(ctx context.Context, recorder *runModel.Recorder, path string) recordModel.Record {
	start := time.Now()
	log := p.logger.WithContext(ctx).With("doc", path)

	advance := func(to runModel.DocState) {
		if err := recorder.Transition(path, to); err != nil {
			log.Error("state transition rejected", "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, recorder, path, failure.New(failure.Cancelled, "pipeline.start", err))
	}

	advance(runModel.StateLoading)
	doc, warnings, err := p.deps.Loader.Load(ctx, path)
	if err != nil {
		return p.fail(ctx, recorder, path, err)
	}
	log.Info("document loaded", "type", doc.ContentType, "pages", len(doc.Pages), "warnings", len(warnings))

	advance(runModel.StateSegmenting)
	chunks, err := segment.Segment(doc, p.settings.MaxTokensPerChunk, p.settings.ChunkOverlap)
	if err != nil {
		return p.fail(ctx, recorder, path, failure.New(failure.ChunkError, "segment", err))
	}
	for _, c := range chunks {
		if c.Forced {
			metrics.RecordChunk("forced")
			warnings = append(warnings, fmt.Sprintf("chunk %d: %s: text without sentence breaks was split at the token limit", c.Ordinal, failure.ChunkError))
		}
	}

	advance(runModel.StateExtracting)
	partials, failures := p.extractChunks(ctx, doc, chunks)
	if err := ctx.Err(); err != nil {
		return p.fail(ctx, recorder, path, failure.New(failure.Cancelled, "pipeline.extract", err))
	}

	advance(runModel.StateAggregating)
	rec := p.deps.Aggregator.Aggregate(doc.Id, partials, failures)
	rec.Path = path
	rec.State = runModel.StateDone
	rec.Warnings = append(warnings, rec.Warnings...)

	outcome := runModel.DocumentOutcome{
		DocId:            path,
		Path:             path,
		State:            runModel.StateDone,
		Chunks:           len(chunks),
		ChunkFailures:    len(failures),
		UnresolvedFields: rec.Unresolved(),
		Warnings:         rec.Warnings,
	}
	if err := recorder.Complete(outcome); err != nil {
		log.Error("could not record outcome", "error", err)
	}
	metrics.RecordDocument(string(runModel.StateDone))
	metrics.CaptureJobMetrics(string(runModel.StateDone), time.Since(start))
	log.Info("document done", "chunks", len(chunks), "chunkFailures", len(failures), "unresolved", len(outcome.UnresolvedFields), "elapsed", time.Since(start))
	return rec
}

// extractChunks runs extract and parse for every chunk with at most
// ChunkFanout in flight. Results are indexed by ordinal.
func (p *Pipeline) extractChunks(ctx context.Context, doc commonModels.Document, chunks []commonModels.Chunk) ([]recordModel.PartialRecord, []recordModel.ChunkFailure) {
	type outcome struct {
		partial *recordModel.PartialRecord
		failure *recordModel.ChunkFailure
	}
	results := make([]outcome, len(chunks))

	var g errgroup.Group
	g.SetLimit(p.settings.ChunkFanout)
	for i, chunk := range chunks {
		g.Go(func() error {
			partial, fail := p.extractChunk(ctx, doc, chunk)
			results[i] = outcome{partial: partial, failure: fail}
			return nil
		})
	}
	_ = g.Wait()

	var partials []recordModel.PartialRecord
	var failures []recordModel.ChunkFailure
	for _, r := range results {
		switch {
		case r.partial != nil:
			partials = append(partials, *r.partial)
		case r.failure != nil:
			failures = append(failures, *r.failure)
		}
	}
	return partials, failures
}

func (p *Pipeline) extractChunk(ctx context.Context, doc commonModels.Document, chunk commonModels.Chunk) (*recordModel.PartialRecord, *recordModel.ChunkFailure) {
	log := p.logger.WithContext(ctx).With("doc", doc.Id, "chunk", chunk.Ordinal)
	if ctx.Err() != nil {
		return nil, &recordModel.ChunkFailure{Chunk: chunk.Ordinal, Kind: failure.Cancelled, Message: ctx.Err().Error()}
	}

	req := extraction.NewRequest(doc.Name, chunk, p.settings.Schema, p.settings.Params)
	res, err := p.deps.Extractor.Extract(ctx, req)
	if err != nil {
		kind, ok := failure.KindOf(err)
		if !ok {
			kind = failure.TerminalAPIError
		}
		metrics.RecordChunk("failed")
		log.Warn("chunk extraction failed", "kind", kind, "attempts", res.Attempts, "error", err)
		return nil, &recordModel.ChunkFailure{Chunk: chunk.Ordinal, Kind: kind, Message: failure.Message(err), Attempts: res.Attempts}
	}

	partial, err := p.deps.Parser.Parse(res.Text, chunk.Ordinal)
	if err != nil {
		metrics.RecordChunk("failed")
		log.Warn("chunk response unreadable", "error", err)
		return nil, &recordModel.ChunkFailure{Chunk: chunk.Ordinal, Kind: failure.ParseError, Message: failure.Message(err), Attempts: res.Attempts}
	}
	if chunk.Forced {
		partial = partial.Discount(p.settings.ForcedChunkFactor)
	}
	metrics.RecordChunk("parsed")
	return &partial, nil
}

// fail completes path as Failed and returns its all-gaps Record.
func (p *Pipeline) fail(ctx context.Context, recorder *runModel.Recorder, path string, err error) recordModel.Record {
	kind, ok := failure.KindOf(err)
	if !ok {
		kind = failure.LoadError
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		kind = failure.Cancelled
	}

	rec := recordModel.UnresolvedRecord(p.settings.Schema, path, path)
	rec.State = runModel.StateFailed
	rec.ErrorKind = kind
	rec.Error = failure.Message(err)

	outcome := runModel.DocumentOutcome{
		DocId:            path,
		Path:             path,
		State:            runModel.StateFailed,
		ErrorKind:        kind,
		Error:            rec.Error,
		UnresolvedFields: rec.Unresolved(),
	}
	log := p.logger.WithContext(ctx).With("doc", path)
	if rerr := recorder.Complete(outcome); rerr != nil {
		log.Error("could not record outcome", "error", rerr)
	}
	metrics.RecordDocument(string(runModel.StateFailed))
	log.Warn("document failed", "kind", kind, "error", rec.Error)
	return rec
}

func internalError(path string) error {
	return failure.Newf(failure.LoadError, "pipeline.worker", "processing of %s stopped unexpectedly", path)
}
