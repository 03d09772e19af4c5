// Package metrics exposes conversion counters and stage timings in the
// Prometheus exposition format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meico/internal/pipeline"
	"meico/internal/services"
)

const namespace = "meico"

// Collector records conversion metrics on its own registry.
type Collector struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

// New builds a Collector. pending reports the number of scratch areas
// waiting for deletion; nil omits that gauge.
func New(pending func() int) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each completed pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures by stage and error kind.",
		}, []string{"stage", "kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Conversion requests by surface and outcome.",
		}, []string{"surface", "outcome"}),
	}
	c.registry.MustRegister(c.stageDuration, c.stageFailures, c.requests)
	if pending != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scratch_pending_deletions",
			Help:      "Scratch areas queued for another deletion attempt.",
		}, func() float64 { return float64(pending()) }))
	}
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// StageStarted implements pipeline.Observer.
func (c *Collector) StageStarted(context.Context, pipeline.Stage) {}

// StageCompleted implements pipeline.Observer.
func (c *Collector) StageCompleted(_ context.Context, stage pipeline.Stage, elapsed time.Duration) {
	c.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// StageFailed implements pipeline.Observer.
func (c *Collector) StageFailed(_ context.Context, stage pipeline.Stage, err error) {
	c.stageFailures.WithLabelValues(string(stage), services.Kind(err)).Inc()
}

// ObserveRequest counts one finished request. The outcome is "ok" or the
// error kind.
func (c *Collector) ObserveRequest(surface string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = services.Kind(err)
	}
	c.requests.WithLabelValues(surface, outcome).Inc()
}

// Handler serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var _ pipeline.Observer = (*Collector)(nil)
