package runs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records run outcomes.
type Metrics struct {
	Finished *prometheus.CounterVec
	Polls    prometheus.Counter
	Duration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics returns the process-wide run metrics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			Finished: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "capmux_runs_finished_total",
				Help: "Runs that stopped being polled, by outcome.",
			}, []string{"outcome"}),
			Polls: promauto.NewCounter(prometheus.CounterOpts{
				Name: "capmux_runs_polls_total",
				Help: "Run status checks.",
			}),
			Duration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "capmux_runs_wait_seconds",
				Help:    "Time spent waiting for runs to finish.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			}),
		}
	})
	return metrics
}

func (m *Metrics) poll() {
	if m == nil {
		return
	}
	m.Polls.Inc()
}

func (m *Metrics) finish(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Finished.WithLabelValues(outcome).Inc()
	m.Duration.Observe(seconds)
}
