package metrics

import (
	"time"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/sources/caching"
	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "l1sload"

type Metricer interface {
	caching.Metrics
	RecordL1Request(method string, duration time.Duration, err error)
	RecordBatch(keys int, duration time.Duration, err error)
}

type Metrics struct {
	registry *prometheus.Registry

	cacheSize   *prometheus.GaugeVec
	cacheGet    *prometheus.CounterVec
	cacheAdd    *prometheus.CounterVec
	l1Requests  *prometheus.CounterVec
	l1Duration  *prometheus.HistogramVec
	batches     *prometheus.CounterVec
	batchKeys   prometheus.Histogram
	batchLength prometheus.Histogram
}

var (
	_ Metricer                   = (*Metrics)(nil)
	_ opmetrics.RegistryMetricer = (*Metrics)(nil)
)

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		cacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "source_cache_size",
			Help:      "L1 source cache size",
		}, []string{"type"}),
		cacheGet: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "source_cache_get",
			Help:      "L1 source cache lookups, hitting or not",
		}, []string{"type", "hit"}),
		cacheAdd: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "source_cache_add",
			Help:      "L1 source cache additions, evicting previous values or not",
		}, []string{"type", "evicted"}),
		l1Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "l1_requests_total",
			Help:      "L1 JSON-RPC requests by method and result",
		}, []string{"method", "result"}),
		l1Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "l1_request_duration_seconds",
			Help:      "L1 JSON-RPC request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_total",
			Help:      "Storage batch reads by result",
		}, []string{"result"}),
		batchKeys: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_keys",
			Help:      "Number of keys per storage batch read",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		batchLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_duration_seconds",
			Help:      "Storage batch read latency, bounded by the slowest key",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(m.cacheSize, m.cacheGet, m.cacheAdd, m.l1Requests, m.l1Duration, m.batches, m.batchKeys, m.batchLength)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) CacheAdd(label string, cacheSize int, evicted bool) {
	m.cacheSize.WithLabelValues(label).Set(float64(cacheSize))
	m.cacheAdd.WithLabelValues(label, boolLabel(evicted)).Inc()
}

func (m *Metrics) CacheGet(label string, hit bool) {
	m.cacheGet.WithLabelValues(label, boolLabel(hit)).Inc()
}

func (m *Metrics) RecordL1Request(method string, duration time.Duration, err error) {
	m.l1Requests.WithLabelValues(method, resultLabel(err)).Inc()
	m.l1Duration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) RecordBatch(keys int, duration time.Duration, err error) {
	m.batches.WithLabelValues(resultLabel(err)).Inc()
	m.batchKeys.Observe(float64(keys))
	m.batchLength.Observe(duration.Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

type noopMetrics struct{}

// NoopMetrics discards all measurements.
var NoopMetrics Metricer = noopMetrics{}

func (noopMetrics) CacheAdd(string, int, bool) {}
func (noopMetrics) CacheGet(string, bool) {}
func (noopMetrics) RecordL1Request(string, time.Duration, error) {}
func (noopMetrics) RecordBatch(int, time.Duration, error) {}
