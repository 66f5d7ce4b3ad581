package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/data/redisStore"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

const completionKeyPrefix = "bidextract:completion:"

type RedisCompletionStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
	ttl    time.Duration
}

func NewRedisCompletionStore(s *redisStore.Store) *RedisCompletionStore {
	return &RedisCompletionStore{
		store:  s,
		logger: logger_i.NewLogger("CompletionStore"),
		ttl:    config.RedisCompletionStoreTTL,
	}
}

func completionKey(fingerprint string) string {
	return completionKeyPrefix + fingerprint
}

func (s *RedisCompletionStore) SaveCompletion(ctx context.Context, c CachedCompletion) error {
	log := s.logger.WithContext(ctx).With("fingerprint", c.Fingerprint)
	if c.StoredAt.IsZero() {
		c.StoredAt = time.Now()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, completionKey(c.Fingerprint), data, s.ttl); err != nil {
		log.Warn("failed to cache completion", "error", err)
		return err
	}
	log.Debug("cached completion")
	return nil
}

// GetCompletion treats every redis failure as a miss.
func (s *RedisCompletionStore) GetCompletion(ctx context.Context, fingerprint string) (CachedCompletion, bool) {
	var c CachedCompletion
	log := s.logger.WithContext(ctx).With("fingerprint", fingerprint)
	val, err := s.store.Get(ctx, completionKey(fingerprint))
	if s.store.IsNil(err) {
		return c, false
	} else if err != nil {
		log.Warn("completion cache lookup failed", "error", err)
		return c, false
	}

	if err := json.Unmarshal([]byte(val), &c); err != nil {
		log.Warn("discarding unreadable cached completion", "error", err)
		_ = s.store.Del(ctx, completionKey(fingerprint))
		return CachedCompletion{}, false
	}
	log.Debug("completion cache hit")
	return c, true
}
