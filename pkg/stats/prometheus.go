// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus is the default Sink, keyed by a single "name" label carrying
// the filter's fully-resolved dotted stat name. Namespace mirrors the
// teacher's metrics.New(namespace) convention.
type Prometheus struct {
	counters   *prometheus.CounterVec
	gauges     *prometheus.GaugeVec
	histograms *prometheus.HistogramVec
	timings    *prometheus.HistogramVec
}

// NewPrometheus registers the four vectors under namespace (defaulting to
// "mongoproxy") and returns a ready Sink.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "mongoproxy"
	}
	return &Prometheus{
		counters: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stat_total",
				Help:      "Counter values keyed by resolved stat name.",
			},
			[]string{"name"},
		),
		gauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stat_gauge",
				Help:      "Gauge values keyed by resolved stat name.",
			},
			[]string{"name"},
		),
		histograms: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stat_value",
				Help:      "Value distributions (document counts, byte sizes) keyed by resolved stat name.",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
			[]string{"name"},
		),
		timings: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stat_duration_seconds",
				Help:      "Timing distributions keyed by resolved stat name.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"name"},
		),
	}
}

func (p *Prometheus) Counter(name string) {
	p.counters.WithLabelValues(name).Inc()
}

func (p *Prometheus) CounterBy(name string, delta uint64) {
	p.counters.WithLabelValues(name).Add(float64(delta))
}

func (p *Prometheus) Gauge(name string, value float64) {
	p.gauges.WithLabelValues(name).Set(value)
}

func (p *Prometheus) GaugeAdd(name string, delta float64) {
	p.gauges.WithLabelValues(name).Add(delta)
}

func (p *Prometheus) DeliverHistogramToSinks(name string, value float64) {
	p.histograms.WithLabelValues(name).Observe(value)
}

func (p *Prometheus) DeliverTimingToSinks(name string, duration time.Duration) {
	p.timings.WithLabelValues(name).Observe(duration.Seconds())
}
