package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var countJobsInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "count_jobs_in_queue",
	Help: "Number of documents waiting for a worker",
})

var dispatcherSignalCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dispatcher_signal_count",
	Help: "How often the dispatcher has been signaled to start a worker",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "active_worker_count",
	Help: "Number of active document workers",
})

var llmAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bidextract_llm_attempts_total",
	Help: "Model call attempts labelled by outcome (ok, transient, terminal, cancelled, cache_hit, shared)",
}, []string{"outcome"})

var llmRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bidextract_llm_retries_total",
	Help: "Model call attempts that were retries of an earlier attempt",
})

var rateWait = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "bidextract_rate_wait_seconds",
	Help:    "Time spent waiting for a rate limiter slot.",
	Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 60},
})

var documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bidextract_documents_total",
	Help: "Documents by terminal state",
}, []string{"state"})

var chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bidextract_chunks_total",
	Help: "Chunks by outcome (parsed, failed, forced)",
}, []string{"outcome"})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func IncrementJobsInQueue() {
	countJobsInQueue.Inc()
}

func DecrementJobsInQueue() {
	countJobsInQueue.Dec()
}

func StartDispatcherSignalCount() {
	dispatcherSignalCount.Inc()
}

func IncrementActiveWorkerCount() {
	activeWorkerCount.Inc()
}
func DecrementActiveWorkerCount() {
	activeWorkerCount.Dec()
}

func RecordAttempt(outcome string) {
	llmAttempts.WithLabelValues(outcome).Inc()
}

func RecordRetry() {
	llmRetries.Inc()
}

func ObserveRateWait(waited time.Duration) {
	rateWait.Observe(waited.Seconds())
}

func RecordDocument(state string) {
	documentsTotal.WithLabelValues(state).Inc()
}

func RecordChunk(outcome string) {
	chunksTotal.WithLabelValues(outcome).Inc()
}

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "bidextract_document_duration_seconds",
	Help:    "Total time spent processing one document.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120, 300},
}, []string{"status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
}, []string{"service"})

func CaptureExecutionMetrics(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureJobMetrics(label string, timeElapsed time.Duration) {
	requestDuration.WithLabelValues(label).Observe(timeElapsed.Seconds())
}
