package store

import (
	"context"
	"time"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/data/redisStore"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

// CachedCompletion is a raw model answer stored under its request fingerprint.
type CachedCompletion struct {
	Fingerprint string    `json:"fingerprint"`
	Text        string    `json:"text"`
	Model       string    `json:"model"`
	TotalTokens int       `json:"total_tokens"`
	StoredAt    time.Time `json:"stored_at"`
}

// CompletionCache lets identical requests reuse an earlier completion instead
// of spending another model call.
type CompletionCache interface {
	GetCompletion(ctx context.Context, fingerprint string) (CachedCompletion, bool)
	SaveCompletion(ctx context.Context, c CachedCompletion) error
}

// NewCompletionCache connects to redis when addr is set and falls back to the
// in-memory store when it is empty or unreachable.
func NewCompletionCache(ctx context.Context, addr string) CompletionCache {
	logger := logger_i.NewLogger("completion_cache")
	if addr == "" {
		logger.Debug("no redis address, using in-memory completion cache")
		return InitInMemoryCompletionStore()
	}
	s, err := redisStore.GetRedisStore(ctx, addr, config.RedisCompletionStore)
	if err != nil {
		logger.Warn("redis completion cache unavailable, using in-memory store", "error", err)
		return InitInMemoryCompletionStore()
	}
	return NewRedisCompletionStore(s)
}
