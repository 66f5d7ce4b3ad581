package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/BidExtract/internal/data/redisStore"
	"github.com/akolanti/BidExtract/internal/data/store"
	"github.com/akolanti/BidExtract/internal/domain/jobModel"
	"github.com/akolanti/BidExtract/internal/domain/runModel"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisCompletionStore_Lifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := store.NewRedisCompletionStore(redisStore.NewTestStore(client))

	ctx := logger_i.WithTrace(context.Background(), "test-trace")
	entry := store.CachedCompletion{Fingerprint: "abc123", Text: `{"fields":{}}`, Model: "gpt-4o", TotalTokens: 42}

	t.Run("Save and Get Roundtrip", func(t *testing.T) {
		if err := cache.SaveCompletion(ctx, entry); err != nil {
			t.Fatalf("SaveCompletion failed: %v", err)
		}
		got, found := cache.GetCompletion(ctx, "abc123")
		if !found {
			t.Fatal("completion was saved but not found in Redis")
		}
		if got.Text != entry.Text || got.TotalTokens != 42 || got.StoredAt.IsZero() {
			t.Errorf("got %+v", got)
		}
		if ttl := mr.TTL("bidextract:completion:abc123"); ttl <= 0 {
			t.Errorf("completion stored without expiry: %v", ttl)
		}
	})

	t.Run("Missing fingerprint", func(t *testing.T) {
		if _, found := cache.GetCompletion(ctx, "ghost"); found {
			t.Error("expected miss for unknown fingerprint")
		}
	})

	t.Run("Corrupt entry is a miss and removed", func(t *testing.T) {
		if err := mr.Set("bidextract:completion:bad", "{not json"); err != nil {
			t.Fatal(err)
		}
		if _, found := cache.GetCompletion(ctx, "bad"); found {
			t.Error("corrupt entry should not be returned")
		}
		if mr.Exists("bidextract:completion:bad") {
			t.Error("corrupt entry was not deleted")
		}
	})

	t.Run("Redis down is a miss", func(t *testing.T) {
		down, err := miniredis.Run()
		if err != nil {
			t.Fatal(err)
		}
		downCache := store.NewRedisCompletionStore(redisStore.NewTestStore(redis.NewClient(&redis.Options{Addr: down.Addr()})))
		_ = downCache.SaveCompletion(ctx, entry)
		down.Close()
		if _, found := downCache.GetCompletion(ctx, "abc123"); found {
			t.Error("expected miss when redis is unreachable")
		}
	})
}

func TestInMemoryCompletionStore_Concurrent(t *testing.T) {
	cache := store.InitInMemoryCompletionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cache.SaveCompletion(ctx, store.CachedCompletion{Fingerprint: "same", Text: "x"})
			_, _ = cache.GetCompletion(ctx, "same")
		}()
	}
	wg.Wait()

	if cache.Len() != 1 {
		t.Errorf("Len = %d; want 1", cache.Len())
	}
}

func TestNewCompletionCache_Fallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, ok := store.NewCompletionCache(ctx, "").(*store.InMemoryCompletionStore); !ok {
		t.Error("empty address should give the in-memory store")
	}
	if _, ok := store.NewCompletionCache(ctx, "127.0.0.1:1").(*store.InMemoryCompletionStore); !ok {
		t.Error("unreachable redis should fall back to the in-memory store")
	}

	mr := miniredis.RunT(t)
	if _, ok := store.NewCompletionCache(ctx, mr.Addr()).(*store.RedisCompletionStore); !ok {
		t.Error("reachable redis should give the redis store")
	}
}

func TestRedisJobStore_Lifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	jobs := store.NewRedisJobStore(redisStore.NewTestStore(redis.NewClient(&redis.Options{Addr: mr.Addr()})))
	ctx := logger_i.WithTrace(context.Background(), "test-trace")

	job := jobModel.Job{Id: "job-1", Paths: []string{"a.pdf"}, Status: jobModel.JobStatusQueued, CreatedTime: time.Now()}
	if err := jobs.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	job.Status = jobModel.JobStatusComplete
	job.Summary = &runModel.RunSummary{BatchId: "20241019T101500", Processed: 1, Succeeded: 1}
	if err := jobs.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob update: %v", err)
	}

	got, found := jobs.GetJob(ctx, "job-1")
	if !found {
		t.Fatal("job not found")
	}
	if got.Status != jobModel.JobStatusComplete || got.Summary == nil || got.Summary.Succeeded != 1 {
		t.Errorf("got %+v", got)
	}
	if ttl := mr.TTL("bidextract:job:job-1"); ttl <= 0 {
		t.Errorf("job stored without expiry: %v", ttl)
	}

	jobs.DeleteJob(ctx, "job-1")
	if _, found := jobs.GetJob(ctx, "job-1"); found {
		t.Error("deleted job still found")
	}
}

func TestNewJobStore_Fallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, ok := store.NewJobStore(ctx, "").(*store.InMemoryJobStore); !ok {
		t.Error("empty address should give the in-memory store")
	}
	mr := miniredis.RunT(t)
	if _, ok := store.NewJobStore(ctx, mr.Addr()).(*store.RedisJobStore); !ok {
		t.Error("reachable redis should give the redis store")
	}
}
