// Package metrics exports measurement results as Prometheus metrics and
// serves them, together with the record log, over HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"speedlog/internal/storage/models"
)

const namespace = "speedlog"

// Metrics holds the collectors updated from each persisted record.
type Metrics struct {
	registry *prometheus.Registry

	cycles   *prometheus.CounterVec
	download prometheus.Gauge
	upload   prometheus.Gauge
	latency  prometheus.Gauge
	ping     prometheus.Gauge
	lastRun  prometheus.Gauge
}

// New returns Metrics registered on a fresh registry that also carries
// the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Measurement cycles recorded, by result.",
		}, []string{"result"}),
		download: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "download_mbps",
			Help:      "Download throughput of the last successful cycle.",
		}),
		upload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_mbps",
			Help:      "Upload throughput of the last successful cycle.",
		}),
		latency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_ms",
			Help:      "Server latency of the last successful cycle.",
		}),
		ping: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ping_ms",
			Help:      "Ping measured during the last successful cycle.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last recorded cycle.",
		}),
	}
	m.registry.MustRegister(
		m.cycles, m.download, m.upload, m.latency, m.ping, m.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe updates the metrics from rec.
func (m *Metrics) Observe(rec *models.Record) {
	m.lastRun.Set(rec.Timestamp)
	if !rec.Success() {
		m.cycles.WithLabelValues("failure").Inc()
		return
	}
	m.cycles.WithLabelValues("success").Inc()
	setIf(m.download, rec.DownloadSpeedMbps)
	setIf(m.upload, rec.UploadSpeedMbps)
	setIf(m.latency, rec.Latency)
	setIf(m.ping, rec.Ping)
}

func setIf(g prometheus.Gauge, v *float64) {
	if v != nil {
		g.Set(*v)
	}
}
