package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry      *prometheus.Registry
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	activeProbes  prometheus.Gauge
	notifications *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsuffix_worker_probes_total",
			Help: "Total capability probe tasks by capability and outcome.",
		}, []string{"capability", "outcome"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelsuffix_worker_probe_duration_seconds",
			Help:    "Duration of each capability probe task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"capability", "outcome"}),
		activeProbes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelsuffix_worker_active_probes",
			Help: "Current number of capability probes running in the worker.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsuffix_worker_settled_notifications_total",
			Help: "Total capability.settled webhook deliveries by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.probesTotal,
		m.probeDuration,
		m.activeProbes,
		m.notifications,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
