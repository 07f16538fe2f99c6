package bridge

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dotcommander/capmux/internal/errs"
)

// Metrics records dispatch outcomes.
type Metrics struct {
	DispatchTotal   *prometheus.CounterVec
	DispatchSeconds *prometheus.HistogramVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the process wide bridge metrics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			DispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "capmux_bridge_dispatch_total",
				Help: "Function dispatches by capability and outcome",
			}, []string{"capability", "outcome"}),
			DispatchSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "capmux_bridge_dispatch_seconds",
				Help:    "Function dispatch latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"capability"}),
		}
	})
	return metricsInstance
}

func (m *Metrics) observe(name string, took time.Duration, err error) {
	if m == nil || m.DispatchTotal == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(name, Outcome(err)).Inc()
	if m.DispatchSeconds != nil {
		m.DispatchSeconds.WithLabelValues(name).Observe(took.Seconds())
	}
}

// Outcome is the metric label for err.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	kind := errs.Kind(err)
	if kind == nil {
		return "error"
	}
	return strings.ReplaceAll(kind.Error(), " ", "_")
}
