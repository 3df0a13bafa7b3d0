// Package metrics provides Prometheus metrics collection for the resource
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the engine.
type Collector struct {
	// Action metrics
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec

	// Reaper metrics
	ResourcesReaped prometheus.Counter
	ReaperErrors    prometheus.Counter
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a collector registered on the given registerer.
func NewWith(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "restack",
				Name:      "resource_actions_total",
				Help:      "Total number of resource actions executed",
			},
			[]string{"app", "type", "action", "outcome"},
		),
		ActionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "restack",
				Name:      "resource_action_duration_seconds",
				Help:      "Resource action duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"action"},
		),
		ResourcesReaped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "restack",
				Name:      "resources_reaped_total",
				Help:      "Total number of expired resources removed by the reaper",
			},
		),
		ReaperErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "restack",
				Name:      "reaper_errors_total",
				Help:      "Total number of failed reaper sweeps",
			},
		),
	}
}
