package extraction

import (
	"context"
	"math"
	"time"

	"github.com/akolanti/BidExtract/internal/config"
)

// BackoffPolicy bounds retries of transient failures. MaxAttempts counts the
// first call, so 5 means one call and up to four retries.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      time.Duration
}

func PolicyFromConfig(cfg *config.Config) BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: cfg.MaxRetryAttempts,
		BaseDelay:   cfg.BackoffBase,
		Multiplier:  cfg.BackoffMultiplier,
		MaxDelay:    cfg.BackoffMax,
		Jitter:      cfg.BackoffJitter,
	}
}

// Delay is the wait after the given failed attempt (1-based). A provider
// hint raises the delay but never beyond MaxDelay. rnd returns [0,1).
func (p BackoffPolicy) Delay(attempt int, hint time.Duration, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	delay := time.Duration(d)
	if hint > delay {
		delay = hint
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	if p.Jitter > 0 && rnd != nil {
		delay += time.Duration(rnd() * float64(p.Jitter))
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
