package prometheus

import (
	"time"

	"aadash/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports AA call metrics to Prometheus.
type Collector struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
}

var _ metrics.Collector = (*Collector)(nil)

// NewCollector creates the metric vectors under namespace. Call Register to expose them.
func NewCollector(namespace string) *Collector {
	return &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aa",
				Name:      "requests_total",
				Help:      "Account aggregator calls by operation, mode and outcome",
			},
			[]string{"op", "mode", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "aa",
				Name:      "request_duration_seconds",
				Help:      "Account aggregator call latency",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op", "mode"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "aa",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
	}
}

// Register registers all metrics with the given registry.
func (c *Collector) Register(registry prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{c.requests, c.latency, c.breakerState} {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) ObserveCall(op, mode, outcome string, duration time.Duration) {
	c.requests.WithLabelValues(op, mode, outcome).Inc()
	c.latency.WithLabelValues(op, mode).Observe(duration.Seconds())
}

func (c *Collector) RecordBreakerState(name string, state metrics.BreakerState) {
	c.breakerState.WithLabelValues(name).Set(float64(state))
}
