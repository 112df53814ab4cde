// Package metrics provides Prometheus metrics for include runs.
package metrics

import (
	"time"

	"htmlinc/internal/include"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus metrics of an htmlinc process.
type Collector struct {
	// Host metrics
	HostsTotal   *prometheus.CounterVec
	HostDuration *prometheus.HistogramVec

	// Page metrics
	PagesRendered *prometheus.CounterVec
	PageDuration  prometheus.Histogram

	// Watch metrics
	Rebuilds prometheus.Counter
}

// New registers the metrics with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		HostsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "htmlinc",
				Name:      "hosts_total",
				Help:      "Include hosts processed, by outcome",
			},
			[]string{"outcome"},
		),
		HostDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "htmlinc",
				Name:      "host_duration_seconds",
				Help:      "Time from host selection to insertion or failure",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		PagesRendered: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "htmlinc",
				Name:      "pages_rendered_total",
				Help:      "Pages run through the include engine, by result",
			},
			[]string{"result"},
		),
		PageDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "htmlinc",
				Name:      "page_duration_seconds",
				Help:      "Time to expand every include of a page",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		Rebuilds: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "htmlinc",
				Name:      "watch_rebuilds_total",
				Help:      "Rebuilds triggered by file changes",
			},
		),
	}
}

// ObserveHost implements include.Metrics.
func (c *Collector) ObserveHost(outcome include.Outcome, elapsed time.Duration) {
	c.HostsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome != include.OutcomeSkipped {
		c.HostDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
	}
}

// ObservePage records one page run. A page with any failed host counts as
// "partial".
func (c *Collector) ObservePage(report *include.Report, err error, elapsed time.Duration) {
	result := "ok"
	switch {
	case err != nil && report != nil && report.Count(include.OutcomeInserted) > 0:
		result = "partial"
	case err != nil:
		result = "error"
	}
	c.PagesRendered.WithLabelValues(result).Inc()
	c.PageDuration.Observe(elapsed.Seconds())
}
