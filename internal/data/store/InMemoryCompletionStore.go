package store

import (
	"context"
	"sync"
	"time"
)

type InMemoryCompletionStore struct {
	mu          *sync.RWMutex
	completions map[string]CachedCompletion
}

func InitInMemoryCompletionStore() *InMemoryCompletionStore {
	return &InMemoryCompletionStore{
		mu:          new(sync.RWMutex),
		completions: make(map[string]CachedCompletion),
	}
}

func (store *InMemoryCompletionStore) SaveCompletion(ctx context.Context, c CachedCompletion) error {
	if c.StoredAt.IsZero() {
		c.StoredAt = time.Now()
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.completions[c.Fingerprint] = c
	return nil
}

func (store *InMemoryCompletionStore) GetCompletion(ctx context.Context, fingerprint string) (CachedCompletion, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	c, found := store.completions[fingerprint]
	return c, found
}

func (store *InMemoryCompletionStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.completions)
}
