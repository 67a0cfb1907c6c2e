// Package metrics exposes the pipeline's counters/gauges/histograms both
// as Prometheus collectors and as an in-process snapshot struct readable
// without scraping.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the in-process snapshot, safe for concurrent reads via
// Snapshot().
type Metrics struct {
	mu sync.RWMutex

	tradesProcessed    int64
	decodeErrors       int64
	sinkFailures       map[string]int64
	candleUpdates      int64
	reconnectAttempts  int64
	dispatchQueueDepth int64

	tradesProcessedTotal    prometheus.Counter
	decodeErrorsTotal       prometheus.Counter
	sinkFailuresTotal       *prometheus.CounterVec
	candleUpdatesTotal      prometheus.Counter
	reconnectAttemptsTotal  prometheus.Counter
	dispatchQueueDepthGauge prometheus.Gauge
	cacheOpLatency          *prometheus.HistogramVec
}

// New registers the pipeline's collectors against reg and returns the
// combined handle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sinkFailures: make(map[string]int64),

		tradesProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listener_trades_processed_total",
			Help: "Total trades accepted and dispatched by the pipeline.",
		}),
		decodeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listener_decode_errors_total",
			Help: "Total raw logs that failed ABI decoding.",
		}),
		sinkFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listener_sink_failures_total",
			Help: "Total fan-out sink failures, labeled by sink name.",
		}, []string{"sink"}),
		candleUpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listener_candle_updates_total",
			Help: "Total candle mutations across all intervals.",
		}),
		reconnectAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listener_chain_reconnect_attempts_total",
			Help: "Total chain client reconnect attempts.",
		}),
		dispatchQueueDepthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "listener_dispatch_queue_depth",
			Help: "Current depth of the pipeline event dispatch channel.",
		}),
		cacheOpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listener_cache_op_latency_seconds",
			Help:    "Cache operation latency by operation name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.tradesProcessedTotal,
			m.decodeErrorsTotal,
			m.sinkFailuresTotal,
			m.candleUpdatesTotal,
			m.reconnectAttemptsTotal,
			m.dispatchQueueDepthGauge,
			m.cacheOpLatency,
		)
	}

	return m
}

func (m *Metrics) TradeProcessed() {
	m.mu.Lock()
	m.tradesProcessed++
	m.mu.Unlock()
	m.tradesProcessedTotal.Inc()
}

func (m *Metrics) DecodeError() {
	m.mu.Lock()
	m.decodeErrors++
	m.mu.Unlock()
	m.decodeErrorsTotal.Inc()
}

func (m *Metrics) SinkFailure(sink string) {
	m.mu.Lock()
	m.sinkFailures[sink]++
	m.mu.Unlock()
	m.sinkFailuresTotal.WithLabelValues(sink).Inc()
}

func (m *Metrics) CandleUpdate() {
	m.mu.Lock()
	m.candleUpdates++
	m.mu.Unlock()
	m.candleUpdatesTotal.Inc()
}

func (m *Metrics) ReconnectAttempt() {
	m.mu.Lock()
	m.reconnectAttempts++
	m.mu.Unlock()
	m.reconnectAttemptsTotal.Inc()
}

func (m *Metrics) SetDispatchQueueDepth(depth int) {
	m.mu.Lock()
	m.dispatchQueueDepth = int64(depth)
	m.mu.Unlock()
	m.dispatchQueueDepthGauge.Set(float64(depth))
}

func (m *Metrics) ObserveCacheOp(operation string, d time.Duration) {
	m.cacheOpLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// Snapshot is a point-in-time, race-free copy of the in-process counters.
type Snapshot struct {
	TradesProcessed    int64
	DecodeErrors       int64
	SinkFailures       map[string]int64
	CandleUpdates      int64
	ReconnectAttempts  int64
	DispatchQueueDepth int64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sinkFailures := make(map[string]int64, len(m.sinkFailures))
	for k, v := range m.sinkFailures {
		sinkFailures[k] = v
	}

	return Snapshot{
		TradesProcessed:    m.tradesProcessed,
		DecodeErrors:       m.decodeErrors,
		SinkFailures:       sinkFailures,
		CandleUpdates:      m.candleUpdates,
		ReconnectAttempts:  m.reconnectAttempts,
		DispatchQueueDepth: m.dispatchQueueDepth,
	}
}
