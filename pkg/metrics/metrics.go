// Package metrics exposes Prometheus metrics for csvmachine runs.
//
// # Overview
//
// Every workflow run records into a Collector labelled with its source
// name. The underlying vectors are registered once with promauto, so
// serving them only requires the default Prometheus handler.
//
// # Basic Usage
//
//	collector := metrics.NewCollector("orders.csv")
//	timer := metrics.NewTimer()
//	rows := parse()
//	collector.ObserveLatency(metrics.OpTotal, timer.Stop())
//	collector.AddRows(metrics.StatusSuccess, len(rows))
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/csvmachine/pkg/pool"
)

// Operation labels for ParseLatency.
const (
	OpHeader  = "header"
	OpProduce = "produce"
	OpConsume = "consume"
	OpTotal   = "total"
)

// Status labels for RowsProcessed.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// RowsProcessed counts content rows turned into entities.
	// Labels: source, status (success/failure)
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvmachine_rows_processed_total",
			Help: "Total number of CSV rows mapped to entities",
		},
		[]string{"source", "status"},
	)

	// BatchesDrained counts batches claimed from the entity queue.
	BatchesDrained = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvmachine_batches_drained_total",
			Help: "Total number of row batches drained by consumers",
		},
		[]string{"source"},
	)

	// BatchSize tracks how many rows a consumer claims at once.
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "csvmachine_batch_size_rows",
			Help:    "Rows per drained batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"source"},
	)

	// QueueDepth is the number of rows waiting in the entity queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "csvmachine_queue_depth",
			Help: "Rows waiting in the entity queue",
		},
		[]string{"source"},
	)

	// ParseLatency tracks how long each phase of a run takes, in seconds.
	// Labels: operation (header/produce/consume/total), source
	ParseLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "csvmachine_parse_latency_seconds",
			Help: "Duration of parse phases in seconds",
			Buckets: []float64{
				1e-4, // 100μs - header of a small file
				1e-3, // 1ms
				1e-2, // 10ms
				1e-1, // 100ms
				1,    // 1s
				10,   // 10s - large files
				60,
			},
		},
		[]string{"operation", "source"},
	)

	// Throughput is the rows per second of the last finished run.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "csvmachine_throughput_rows_per_second",
			Help: "Rows per second of the last completed run",
		},
		[]string{"source"},
	)

	// BufferPool reports the shared buffer pool after each run.
	// Labels: state (allocated/in_use/hits)
	BufferPool = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "csvmachine_buffer_pool_buffers",
			Help: "Buffers of the shared read and field buffer pool",
		},
		[]string{"state"},
	)
)

// RecordBufferPool publishes pool statistics.
func RecordBufferPool(s pool.Stats) {
	BufferPool.WithLabelValues("allocated").Set(float64(s.Allocated))
	BufferPool.WithLabelValues("in_use").Set(float64(s.InUse))
	BufferPool.WithLabelValues("hits").Set(float64(s.Hits))
}

// Collector records the metrics of one source. It is safe for concurrent
// use by the producer and every consumer.
type Collector struct {
	source    string
	rows      prometheus.Counter
	failed    prometheus.Counter
	batches   prometheus.Counter
	batchSize prometheus.Observer
	depth     prometheus.Gauge
	startTime time.Time
}

// NewCollector creates a collector for the named source.
func NewCollector(source string) *Collector {
	if source == "" {
		source = "stream"
	}
	return &Collector{
		source:    source,
		rows:      RowsProcessed.WithLabelValues(source, StatusSuccess),
		failed:    RowsProcessed.WithLabelValues(source, StatusFailure),
		batches:   BatchesDrained.WithLabelValues(source),
		batchSize: BatchSize.WithLabelValues(source),
		depth:     QueueDepth.WithLabelValues(source),
		startTime: time.Now(),
	}
}

// Source returns the source label.
func (c *Collector) Source() string { return c.source }

// StartTime returns when the collector was created.
func (c *Collector) StartTime() time.Time { return c.startTime }

// AddRows counts n rows with the given status.
func (c *Collector) AddRows(status string, n int) {
	if status == StatusFailure {
		c.failed.Add(float64(n))
		return
	}
	c.rows.Add(float64(n))
}

// ObserveBatch records one drained batch.
func (c *Collector) ObserveBatch(size int) {
	c.batches.Inc()
	c.batchSize.Observe(float64(size))
}

// SetQueueDepth records the queue length.
func (c *Collector) SetQueueDepth(n int) {
	c.depth.Set(float64(n))
}

// ObserveLatency records the duration of an operation.
func (c *Collector) ObserveLatency(operation string, d time.Duration) {
	ParseLatency.WithLabelValues(operation, c.source).Observe(d.Seconds())
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since NewTimer. It can be called more than
// once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker computes rows per second over a window. Safe for
// concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	source    string
}

// NewThroughputTracker creates a tracker for source.
func NewThroughputTracker(source string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		source:    source,
	}
}

// Increment adds n rows.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns the rows per second since the last reset, updates
// the Throughput gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}
	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.source).Set(throughput)
	return throughput
}
