package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the feature pipeline.
type Metrics struct {
	// Per-symbol outcomes
	SymbolsTotal *prometheus.CounterVec // labels: status=ok|insufficient|failed
	BarsDropped  *prometheus.CounterVec // labels: reason
	BarsKept     prometheus.Counter

	// Engine
	ComputeDur  prometheus.Histogram
	Diagnostics *prometheus.CounterVec // labels: spec

	// Sinks
	RowsWritten *prometheus.CounterVec // labels: sink
	SinkErrors  *prometheus.CounterVec // labels: sink
	SinkDur     *prometheus.HistogramVec

	// Batches
	BatchesTotal *prometheus.CounterVec // labels: status
	BatchDur     prometheus.Histogram
	LastBatchTS  prometheus.Gauge

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Rows held back while Redis is unavailable
	RedisRowsBuffered prometheus.Counter
	RedisRowsDropped  prometheus.Counter
	RedisRowsFlushed  prometheus.Counter

	// Websocket fan-out
	WSClients prometheus.Gauge
	WSDrops   prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SymbolsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "features_symbols_total",
			Help: "Symbols processed, by outcome",
		}, []string{"status"}),
		BarsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "features_bars_dropped_total",
			Help: "Raw rows dropped by the normalizer, by reason",
		}, []string{"reason"}),
		BarsKept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "features_bars_kept_total",
			Help: "Bars accepted by the normalizer",
		}),

		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "features_compute_duration_seconds",
			Help:    "Indicator computation latency per symbol",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "features_degraded_specs_total",
			Help: "Indicator specs emitted as all-missing for lack of inputs",
		}, []string{"spec"}),

		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "features_rows_written_total",
			Help: "Feature rows written, by sink",
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "features_sink_errors_total",
			Help: "Failed sink writes, by sink",
		}, []string{"sink"}),
		SinkDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "features_sink_write_duration_seconds",
			Help:    "Sink write latency per symbol",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),

		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "features_batches_total",
			Help: "Completed batches, by status",
		}, []string{"status"}),
		BatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "features_batch_duration_seconds",
			Help:    "Wall time of a full batch",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		LastBatchTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "features_last_batch_timestamp_seconds",
			Help: "Unix time the last batch finished",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "features_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "features_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		RedisRowsBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "features_redis_rows_buffered_total",
			Help: "Rows held in memory because the Redis write failed",
		}),
		RedisRowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "features_redis_rows_dropped_total",
			Help: "Buffered rows discarded because the buffer was full",
		}),
		RedisRowsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "features_redis_rows_flushed_total",
			Help: "Buffered rows delivered once Redis recovered",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "features_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "features_ws_drops_total",
			Help: "Messages dropped for slow websocket clients",
		}),
	}

	reg.MustRegister(
		m.SymbolsTotal,
		m.BarsDropped,
		m.BarsKept,
		m.ComputeDur,
		m.Diagnostics,
		m.RowsWritten,
		m.SinkErrors,
		m.SinkDur,
		m.BatchesTotal,
		m.BatchDur,
		m.LastBatchTS,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisRowsBuffered,
		m.RedisRowsDropped,
		m.RedisRowsFlushed,
		m.WSClients,
		m.WSDrops,
	)

	return m
}
