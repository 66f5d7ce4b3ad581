package extraction

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/akolanti/BidExtract/internal/data/store"
	"github.com/akolanti/BidExtract/internal/domain/failure"
	"github.com/akolanti/BidExtract/internal/domain/recordModel"
	"github.com/akolanti/BidExtract/internal/llm"
	"github.com/akolanti/BidExtract/internal/metrics"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"golang.org/x/sync/singleflight"
)

const op = "extraction.extract"

// Result is the raw completion for one request. Attempts is filled in on
// failure too so callers can report it.
type Result struct {
	Fingerprint string
	Text        string
	Model       string
	Attempts    int
	TotalTokens int
	Cached      bool
	Shared      bool
}

type Client struct {
	provider llm.Provider
	gate     Gate
	policy   BackoffPolicy
	timeout  time.Duration
	cache    store.CompletionCache
	logger   *logger_i.Logger

	group singleflight.Group
	mu    sync.RWMutex
	// completed results by run trace id, then fingerprint
	done map[string]map[string]Result

	sleep func(ctx context.Context, d time.Duration) error
	rnd   func() float64
}

type Option func(*Client)

// WithCache adds a cross-run completion cache consulted before the gate.
func WithCache(c store.CompletionCache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithSleep replaces the backoff wait, used by tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(cl *Client) { cl.sleep = fn }
}

func WithRandom(fn func() float64) Option {
	return func(cl *Client) { cl.rnd = fn }
}

func NewClient(provider llm.Provider, gate Gate, policy BackoffPolicy, timeout time.Duration, opts ...Option) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	c := &Client{
		provider: provider,
		gate:     gate,
		policy:   policy,
		timeout:  timeout,
		logger:   logger_i.NewLogger("extraction"),
		done:     make(map[string]map[string]Result),
		sleep:    sleepCtx,
		rnd:      rand.Float64,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Extract returns the completion for req. Identical fingerprints within one
// run, identified by the trace id on ctx, share one in-flight call and reuse
// the completed result until EndRun.
func (c *Client) Extract(ctx context.Context, req recordModel.ExtractionRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Fingerprint: req.Fingerprint}, failure.New(failure.Cancelled, op, err)
	}

	runId := logger_i.TraceID(ctx)
	if prev, ok := c.completed(runId, req.Fingerprint); ok {
		metrics.RecordAttempt("shared")
		return prev, nil
	}

	ch := c.group.DoChan(runId+"\x00"+req.Fingerprint, func() (any, error) {
		return c.call(ctx, runId, req)
	})
	select {
	case r := <-ch:
		res, _ := r.Val.(Result)
		if r.Err != nil {
			return res, r.Err
		}
		if r.Shared {
			res.Shared = true
		}
		return res, nil
	case <-ctx.Done():
		return Result{Fingerprint: req.Fingerprint}, failure.New(failure.Cancelled, op, ctx.Err())
	}
}

func (c *Client) call(ctx context.Context, runId string, req recordModel.ExtractionRequest) (Result, error) {
	log := c.logger.WithContext(ctx).With("doc", req.DocId, "chunk", req.Chunk.Ordinal, "fingerprint", shortFingerprint(req.Fingerprint))

	if prev, ok := c.completed(runId, req.Fingerprint); ok {
		return prev, nil
	}

	if c.cache != nil {
		if hit, found := c.cache.GetCompletion(ctx, req.Fingerprint); found {
			res := Result{Fingerprint: req.Fingerprint, Text: hit.Text, Model: hit.Model, TotalTokens: hit.TotalTokens, Cached: true}
			c.remember(runId, res)
			metrics.RecordAttempt("cache_hit")
			log.Debug("llm.extract.cache_hit")
			return res, nil
		}
	}

	res := Result{Fingerprint: req.Fingerprint}
	llmReq := llm.Request{
		System:          req.Prompt.System,
		User:            req.Prompt.User,
		Model:           req.Params.Model,
		Temperature:     req.Params.Temperature,
		MaxOutputTokens: req.Params.MaxOutputTokens,
		JSON:            true,
	}

	var lastErr *llm.APIError
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		res.Attempts = attempt
		if err := c.gate.Acquire(ctx, req.EstimatedTokens); err != nil {
			return res, c.cancelled(log, ctx, err)
		}

		start := time.Now()
		completion, err := c.attempt(ctx, llmReq)
		metrics.CaptureExecutionMetrics(c.provider.Name(), time.Since(start))
		if err == nil {
			res.Text = completion.Text
			res.Model = completion.Model
			res.TotalTokens = completion.TotalTokens
			metrics.RecordAttempt("ok")
			log.Info("llm.extract.ok", "attempts", attempt, "tokens", completion.TotalTokens, "elapsed", time.Since(start))
			c.remember(runId, res)
			c.store(ctx, log, res)
			return res, nil
		}
		if ctx.Err() != nil {
			return res, c.cancelled(log, ctx, ctx.Err())
		}

		apiErr := llm.Classify(c.provider.Name(), err)
		if !apiErr.Transient {
			metrics.RecordAttempt("terminal")
			log.Warn("llm.extract.terminal", "attempt", attempt, "status", apiErr.StatusCode, "error", apiErr)
			return res, failure.New(failure.TerminalAPIError, op, apiErr)
		}
		metrics.RecordAttempt("transient")
		lastErr = apiErr
		if attempt == c.policy.MaxAttempts {
			break
		}

		delay := c.policy.Delay(attempt, apiErr.RetryAfter, c.rnd)
		metrics.RecordRetry()
		log.Warn("llm.extract.retry", "attempt", attempt, "status", apiErr.StatusCode, "delay", delay, "error", apiErr)
		if err := c.sleep(ctx, delay); err != nil {
			return res, c.cancelled(log, ctx, err)
		}
	}

	log.Error("llm.extract.exhausted", "attempts", res.Attempts, "error", lastErr)
	return res, failure.New(failure.TransientAPIError, op, fmt.Errorf("gave up after %d attempts: %w", res.Attempts, lastErr))
}

func (c *Client) attempt(ctx context.Context, req llm.Request) (llm.Completion, error) {
	if c.timeout <= 0 {
		return c.provider.Complete(ctx, req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	completion, err := c.provider.Complete(attemptCtx, req)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return completion, err
}

func (c *Client) cancelled(log *logger_i.Logger, ctx context.Context, err error) error {
	metrics.RecordAttempt("cancelled")
	log.Debug("llm.extract.cancelled", "error", err)
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return failure.New(failure.Cancelled, op, err)
}

func (c *Client) completed(runId, fingerprint string) (Result, bool) {
	c.mu.RLock()
	prev, ok := c.done[runId][fingerprint]
	c.mu.RUnlock()
	if !ok {
		return Result{}, false
	}
	prev.Shared = true
	prev.Attempts = 0
	return prev, true
}

func (c *Client) remember(runId string, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results, ok := c.done[runId]
	if !ok {
		results = make(map[string]Result)
		c.done[runId] = results
	}
	results[res.Fingerprint] = res
}

// EndRun drops the results remembered for the run with traceId. Reuse across
// runs is left to the completion cache.
func (c *Client) EndRun(traceId string) {
	c.mu.Lock()
	delete(c.done, traceId)
	c.mu.Unlock()
}

// RunsTracked reports how many runs still hold remembered results.
func (c *Client) RunsTracked() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.done)
}

func (c *Client) store(ctx context.Context, log *logger_i.Logger, res Result) {
	if c.cache == nil {
		return
	}
	err := c.cache.SaveCompletion(ctx, store.CachedCompletion{
		Fingerprint: res.Fingerprint,
		Text:        res.Text,
		Model:       res.Model,
		TotalTokens: res.TotalTokens,
	})
	if err != nil {
		log.Warn("llm.extract.cache_write_failed", "error", err)
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
