package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akolanti/BidExtract/pkg/logger_i"
)

func TestWorkerPool_Flow(t *testing.T) {
	var processed int32
	var seenTrace atomic.Value
	release := make(chan struct{})
	handle := func(ctx context.Context, task Task) {
		<-release
		seenTrace.Store(logger_i.TraceID(ctx))
		atomic.AddInt32(&processed, 1)
	}
	pool := NewPool(context.Background(), PoolConfig{MaxWorkers: 3, IdleTimeout: time.Minute, RequestsPerNewWorker: 1}, handle)

	t.Run("Dispatcher creates worker on signal", func(t *testing.T) {
		for i := 0; i < 6; i++ {
			pool.Submit(Task{Path: "doc.pdf", TraceId: "batch-1"})
			time.Sleep(10 * time.Millisecond)
		}
		if count := pool.WorkerCount(); count < 2 || count > 3 {
			t.Errorf("Expected the pool to grow to between 2 and 3 workers, got %d", count)
		}
	})

	t.Run("Close drains the queue", func(t *testing.T) {
		close(release)
		done := make(chan struct{})
		go func() {
			pool.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Workers did not stop within timeout")
		}
		if got := atomic.LoadInt32(&processed); got != 6 {
			t.Errorf("Expected 6 documents processed, got %d", got)
		}
		if trace, _ := seenTrace.Load().(string); trace != "batch-1" {
			t.Errorf("handler context trace = %q; want batch-1", trace)
		}
		if pool.WorkerCount() != 0 {
			t.Errorf("Expected no workers after Close, got %d", pool.WorkerCount())
		}
	})
}

func TestWorkerPool_GrowsToMaxWorkers(t *testing.T) {
	tests := []struct {
		name     string
		tasks    int
		wantPeak int64
	}{
		{"fewer tasks than workers", 3, 3},
		{"as many tasks as workers", 4, 4},
		{"burst larger than the pool", 8, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inFlight, peak atomic.Int64
			release := make(chan struct{})
			handle := func(ctx context.Context, task Task) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				inFlight.Add(-1)
			}
			pool := NewPool(context.Background(), PoolConfig{MaxWorkers: 4, IdleTimeout: time.Minute, RequestsPerNewWorker: 1}, handle)
			for i := 0; i < tt.tasks; i++ {
				pool.Submit(Task{Path: "doc.pdf"})
			}

			deadline := time.Now().Add(2 * time.Second)
			for peak.Load() < tt.wantPeak && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			close(release)
			pool.Close()

			if got := peak.Load(); got != tt.wantPeak {
				t.Errorf("peak concurrent tasks = %d; want %d", got, tt.wantPeak)
			}
		})
	}
}

func TestWorker_IdleTimeout(t *testing.T) {
	handle := func(ctx context.Context, task Task) {
		time.Sleep(5 * time.Millisecond)
	}
	pool := NewPool(context.Background(), PoolConfig{MaxWorkers: 4, IdleTimeout: 30 * time.Millisecond, RequestsPerNewWorker: 1}, handle)
	defer pool.Close()

	for i := 0; i < 4; i++ {
		pool.Submit(Task{Path: "doc.pdf"})
		time.Sleep(2 * time.Millisecond)
	}
	if pool.WorkerCount() < 2 {
		t.Fatalf("pool did not grow, count is %d", pool.WorkerCount())
	}
	time.Sleep(300 * time.Millisecond)

	if count := pool.WorkerCount(); count != 1 {
		t.Errorf("Idle workers should retire down to one, but count is %d", count)
	}
}

func TestWorker_PanicDoesNotKillPool(t *testing.T) {
	var processed int32
	handle := func(ctx context.Context, task Task) {
		if task.Path == "bad.pdf" {
			panic("boom")
		}
		atomic.AddInt32(&processed, 1)
	}
	pool := NewPool(context.Background(), PoolConfig{MaxWorkers: 1}, handle)
	pool.Submit(Task{Path: "bad.pdf"})
	pool.Submit(Task{Path: "good.pdf"})
	pool.Close()

	if atomic.LoadInt32(&processed) != 1 {
		t.Errorf("Expected the document after the panic to be processed, got %d", processed)
	}
}
