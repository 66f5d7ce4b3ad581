package extraction

import (
	"context"
	"time"

	"github.com/akolanti/BidExtract/internal/metrics"
	"golang.org/x/time/rate"
)

// Gate hands out permission for one model call. Callers block until a slot
// is free or ctx ends.
type Gate interface {
	Acquire(ctx context.Context, tokens int) error
}

// RateGate enforces requests-per-minute and tokens-per-minute across the
// whole process.
type RateGate struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

func NewRateGate(requestsPerMinute, tokensPerMinute int) *RateGate {
	return &RateGate{
		requests: rate.NewLimiter(perMinute(requestsPerMinute), burstFor(requestsPerMinute)),
		tokens:   rate.NewLimiter(perMinute(tokensPerMinute), burstFor(tokensPerMinute)),
	}
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(n) / 60.0)
}

func burstFor(n int) int {
	if b := n / 10; b > 1 {
		return b
	}
	return 1
}

// Acquire takes one request slot and the token estimate. An estimate larger
// than the bucket is clamped to the bucket size so it can still proceed.
func (g *RateGate) Acquire(ctx context.Context, tokens int) error {
	start := time.Now()
	defer func() {
		metrics.ObserveRateWait(time.Since(start))
	}()

	if err := g.requests.Wait(ctx); err != nil {
		return err
	}
	if tokens <= 0 {
		return nil
	}
	if b := g.tokens.Burst(); tokens > b {
		tokens = b
	}
	return g.tokens.WaitN(ctx, tokens)
}
