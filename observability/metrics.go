package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type callMetrics struct {
	calls   *prometheus.CounterVec
	errors  *prometheus.CounterVec
	emitted *prometheus.HistogramVec
}

var (
	callMetricsOnce sync.Once
	callRegistry    *callMetrics
)

// CallMetrics returns the lazily-initialised registry recording host calls
// into the native modules.
func CallMetrics() *callMetrics {
	callMetricsOnce.Do(func() {
		callRegistry = &callMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledgerguard",
				Subsystem: "call",
				Name:      "total",
				Help:      "Total host calls segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledgerguard",
				Subsystem: "call",
				Name:      "errors_total",
				Help:      "Failed host calls segmented by module and error category.",
			}, []string{"module", "category"}),
			emitted: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ledgerguard",
				Subsystem: "call",
				Name:      "events",
				Help:      "Number of events committed per successful call.",
				Buckets:   []float64{0, 1, 2, 4, 8, 16},
			}, []string{"module"}),
		}
		prometheus.MustRegister(
			callRegistry.calls,
			callRegistry.errors,
			callRegistry.emitted,
		)
	})
	return callRegistry
}

// Observe records the outcome of a call. category is empty on success.
func (m *callMetrics) Observe(module, method, category string, events int) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	if category != "" {
		m.calls.WithLabelValues(module, method, "error").Inc()
		m.errors.WithLabelValues(module, category).Inc()
		return
	}
	m.calls.WithLabelValues(module, method, "success").Inc()
	m.emitted.WithLabelValues(module).Observe(float64(events))
}
