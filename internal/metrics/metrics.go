// Package metrics exposes batch processing counters to prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spigell/resume-batch/internal/batch"
)

const namespace = "resume_batch"

// Collector records batch lifecycle events. It implements batch.Observer.
type Collector struct {
	registry *prometheus.Registry

	batches      *prometheus.CounterVec
	items        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge
	totalScore   prometheus.Histogram
	batchSize    prometheus.Histogram
}

var _ batch.Observer = (*Collector)(nil)

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Finished batches by terminal status and strategy",
			},
			[]string{"status", "strategy"},
		),
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Processed documents by status and error kind",
			},
			[]string{"status", "error_kind"},
		),
		itemDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_duration_seconds",
				Help:      "Time spent processing a single document",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"status"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_in_flight",
			Help:      "Documents currently being processed",
		}),
		totalScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "total_score",
			Help:      "Weighted total score of completed documents",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Documents per started batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
		}),
	}

	c.registry.MustRegister(
		c.batches,
		c.items,
		c.itemDuration,
		c.inFlight,
		c.totalScore,
		c.batchSize,
		collectors.NewGoCollector(),
	)

	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) BatchStarted(_ batch.Strategy, total int) {
	c.batchSize.Observe(float64(total))
}

func (c *Collector) ItemStarted() {
	c.inFlight.Inc()
}

func (c *Collector) ItemFinished(o batch.ItemOutcome) {
	c.inFlight.Dec()
	c.items.WithLabelValues(string(o.Status), string(o.ErrorKind)).Inc()
	c.itemDuration.WithLabelValues(string(o.Status)).Observe(o.Duration.Seconds())
	if o.Status == batch.ItemCompleted && o.Scores != nil {
		c.totalScore.Observe(o.Scores.Total)
	}
}

func (c *Collector) BatchFinished(r batch.Report) {
	c.batches.WithLabelValues(string(r.Status), string(r.Strategy)).Inc()
}
