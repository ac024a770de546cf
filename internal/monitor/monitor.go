// Package monitor exposes Prometheus metrics for the detection pipeline and the process.
package monitor

import (
	"context"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/logger"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	frames        *prometheus.CounterVec
	frameDuration prometheus.Histogram
	static        *prometheus.CounterVec
	ice           *prometheus.CounterVec
	sessions      prometheus.Gauge
	memUsage      prometheus.Gauge
	cpuUsage      prometheus.Gauge

	proc *process.Process
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sibisee_frames_total",
			Help: "Live frames processed, by result.",
		}, []string{"result"}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sibisee_frame_duration_seconds",
			Help:    "Time spent processing one live frame.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1},
		}),
		static: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sibisee_static_detections_total",
			Help: "Static image detections, by status.",
		}, []string{"status"}),
		ice: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sibisee_ice_resolutions_total",
			Help: "ICE server resolutions, by source.",
		}, []string{"source"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sibisee_live_sessions",
			Help: "Open live sessions.",
		}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sibisee_process_memory_megabytes",
			Help: "Resident memory of the service in megabytes.",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sibisee_process_cpu_percent",
			Help: "CPU usage of the service in percent.",
		}),
	}

	m.registry.MustRegister(m.frames, m.frameDuration, m.static, m.ice, m.sessions, m.memUsage, m.cpuUsage)

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Log().Warn("process metrics unavailable", zap.Error(err))
	}
	m.proc = proc

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFrame records one live frame.
func (m *Metrics) ObserveFrame(result string, took time.Duration) {
	m.frames.WithLabelValues(result).Inc()
	if took > 0 {
		m.frameDuration.Observe(took.Seconds())
	}
}

// ObserveStatic records one static detection.
func (m *Metrics) ObserveStatic(status string) {
	m.static.WithLabelValues(status).Inc()
}

// ObserveICE records where an ICE server list came from.
func (m *Metrics) ObserveICE(source string) {
	m.ice.WithLabelValues(source).Inc()
}

// SetSessions sets the open session gauge.
func (m *Metrics) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

// Sample reads the process memory and CPU usage once.
func (m *Metrics) Sample() {
	if m.proc == nil {
		return
	}
	if mem, err := m.proc.MemoryInfo(); err == nil {
		m.memUsage.Set(float64(mem.RSS / 1024 / 1024))
	}
	if cpu, err := m.proc.CPUPercent(); err == nil {
		m.cpuUsage.Set(math.Round(cpu*100) / 100)
	}
}

// Run samples process usage every interval until ctx is done.
func (m *Metrics) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}
