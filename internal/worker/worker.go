package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/internal/metrics"
	"github.com/akolanti/BidExtract/pkg/logger_i"
)

// Task is one document waiting for a worker.
type Task struct {
	Path     string
	TraceId  string
	Enqueued time.Time
}

type Handler func(ctx context.Context, task Task)

type PoolConfig struct {
	MaxWorkers           int64
	MinWorkers           int64
	IdleTimeout          time.Duration
	BufferLimit          int
	RequestsPerNewWorker int64
}

// Pool starts with one worker and grows by one every RequestsPerNewWorker
// submissions up to MaxWorkers. Idle workers retire down to MinWorkers.
type Pool struct {
	cfg    PoolConfig
	handle Handler
	ctx    context.Context
	logger *logger_i.Logger

	taskChannel        chan Task
	dispatcherChannel  chan bool
	dispatcherDone     chan struct{}
	workerWaitGroup    sync.WaitGroup
	currentWorkerCount int64
	requestCount       int64
	closeOnce          sync.Once
}

func NewPool(ctx context.Context, cfg PoolConfig, handle Handler) *Pool {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.MinWorkers < 1 {
		cfg.MinWorkers = config.MinWorkerCount
	}
	if cfg.MinWorkers > cfg.MaxWorkers {
		cfg.MinWorkers = cfg.MaxWorkers
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = config.IdleWorkerTimeout
	}
	if cfg.BufferLimit <= 0 {
		cfg.BufferLimit = config.BufferLimit
	}
	if cfg.RequestsPerNewWorker <= 0 {
		cfg.RequestsPerNewWorker = config.RequestsPerNewWorkerCount
	}
	p := &Pool{
		cfg:               cfg,
		handle:            handle,
		ctx:               ctx,
		logger:            logger_i.NewLogger("WorkerPool"),
		taskChannel:       make(chan Task, cfg.BufferLimit),
		dispatcherChannel: make(chan bool, 1),
		dispatcherDone:    make(chan struct{}),
	}
	p.logger.Info("Initializing worker pool", "maxWorkers", cfg.MaxWorkers)
	go p.dispatcher()
	return p
}

// Submit queues a task, blocking while the buffer is full. Below MaxWorkers
// every RequestsPerNewWorker-th submission adds a worker. It must not be
// called after Close.
func (p *Pool) Submit(task Task) {
	if task.Enqueued.IsZero() {
		task.Enqueued = time.Now()
	}
	count := atomic.AddInt64(&p.requestCount, 1)
	if count%p.cfg.RequestsPerNewWorker == 0 && p.WorkerCount() < p.cfg.MaxWorkers {
		// every signal below MaxWorkers must reach the dispatcher
		metrics.StartDispatcherSignalCount()
		p.dispatcherChannel <- true
	}

	metrics.IncrementJobsInQueue()
	p.taskChannel <- task
}

// Close stops growth, lets the workers drain the queue and waits for them.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.dispatcherChannel)
		<-p.dispatcherDone
		close(p.taskChannel)
		p.workerWaitGroup.Wait()
		p.logger.Info("Worker pool closed")
	})
}

func (p *Pool) WorkerCount() int64 {
	return atomic.LoadInt64(&p.currentWorkerCount)
}

func (p *Pool) dispatcher() {
	defer close(p.dispatcherDone)
	p.createWorker()
	p.logger.Info("Dispatcher started")
	for range p.dispatcherChannel {
		if atomic.LoadInt64(&p.currentWorkerCount) < p.cfg.MaxWorkers {
			p.logger.Debug("Creating new worker", "workerCount", atomic.LoadInt64(&p.currentWorkerCount))
			p.createWorker()
		}
	}
}

func (p *Pool) createWorker() {
	p.workerWaitGroup.Add(1)
	atomic.AddInt64(&p.currentWorkerCount, 1)
	metrics.IncrementActiveWorkerCount()
	go p.worker()
}

func (p *Pool) worker() {
	idle := time.NewTimer(p.cfg.IdleTimeout)
	defer idle.Stop()
	for {
		select {
		case task, ok := <-p.taskChannel:
			if !ok {
				p.removeWorker("task queue closed", false)
				return
			}
			metrics.DecrementJobsInQueue()
			p.execute(task)
			idle.Reset(p.cfg.IdleTimeout)

		case <-idle.C:
			if p.tryRetire() {
				p.removeWorker("idle worker timeout", true)
				return
			}
			idle.Reset(p.cfg.IdleTimeout)
		}
	}
}
