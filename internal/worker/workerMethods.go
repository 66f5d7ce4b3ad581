package worker

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/akolanti/BidExtract/internal/metrics"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

func (p *Pool) execute(task Task) {
	start := time.Now()
	ctx := p.ctx
	if task.TraceId != "" {
		ctx = logger_i.WithTrace(ctx, task.TraceId)
	}
	log := p.logger.WithContext(ctx).With("path", task.Path)
	log.Debug("Processing document", "queued", start.Sub(task.Enqueued))

	defer func() {
		if r := recover(); r != nil {
			log.Error("document handler panicked", "panic", r, "stack", string(debug.Stack()))
		}
		metrics.CaptureJobMetrics("worker", time.Since(start))
	}()
	p.handle(ctx, task)
}

// tryRetire claims one slot below the current count unless that would drop
// the pool under MinWorkers.
func (p *Pool) tryRetire() bool {
	for {
		n := atomic.LoadInt64(&p.currentWorkerCount)
		if n <= p.cfg.MinWorkers {
			return false
		}
		if atomic.CompareAndSwapInt64(&p.currentWorkerCount, n, n-1) {
			return true
		}
	}
}

// removeWorker releases a worker. retired means tryRetire already took it
// off the count.
func (p *Pool) removeWorker(reason string, retired bool) {
	if !retired {
		atomic.AddInt64(&p.currentWorkerCount, -1)
	}
	p.workerWaitGroup.Done()
	metrics.DecrementActiveWorkerCount()
	p.logger.Debug("Removed worker", "reason", reason, "workerCount", atomic.LoadInt64(&p.currentWorkerCount))
}
